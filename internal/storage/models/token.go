// internal/storage/models/token.go
package models

import "time"

// Token is a fungible token class keyed by mint address. DeploymentTime,
// once set, only ever moves toward the past (oldest observation wins).
type Token struct {
	BaseModel
	Mint           string     `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Symbol         string     `gorm:"type:varchar(20)"`
	Name           string     `gorm:"type:varchar(100)"`
	Decimals       uint8      `gorm:"not null;default:6"`
	DeploymentTime *time.Time `gorm:"column:deployment_time"`
}
