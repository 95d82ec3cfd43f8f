// internal/storage/models/wallet.go
package models

// Wallet is a watched address. An address appears in at most one wallet row.
type Wallet struct {
	BaseModel
	Address  string  `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Name     string  `gorm:"type:varchar(100)"`
	GroupID  *string `gorm:"index;type:uuid"`
	Group    *Group  `gorm:"foreignKey:GroupID"`
	IsActive bool    `gorm:"not null;default:true"`
}
