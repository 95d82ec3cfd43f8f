// internal/storage/models/group.go
package models

import "time"

// Group is an administrative tag on wallets, used for consumer-side filtering.
type Group struct {
	ID        string     `gorm:"primarykey;type:uuid"`
	Name      string     `gorm:"uniqueIndex;not null;type:varchar(100)"`
	CreatedBy string     `gorm:"type:varchar(100)"`
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `gorm:"index"`
}
