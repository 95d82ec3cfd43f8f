// internal/storage/models/transaction.go
package models

import "time"

const (
	TransactionTypeBuy  = "buy"
	TransactionTypeSell = "sell"
)

// Transaction is a classified buy/sell event for one watched wallet.
// The composite unique index allows one transaction to produce one row
// per watched wallet it touches.
type Transaction struct {
	BaseModel
	WalletID        uint      `gorm:"uniqueIndex:idx_tx_sig_wallet;not null"`
	Wallet          *Wallet   `gorm:"foreignKey:WalletID"`
	Signature       string    `gorm:"uniqueIndex:idx_tx_sig_wallet;not null;type:varchar(88)"`
	BlockTime       time.Time `gorm:"index;not null"`
	TransactionType string    `gorm:"not null;type:varchar(10)"`
	SolSpent        float64   `gorm:"type:decimal(20,9);not null;default:0"`
	SolReceived     float64   `gorm:"type:decimal(20,9);not null;default:0"`
	USDSpent        float64   `gorm:"column:usd_spent;type:decimal(20,9);not null;default:0"`
	USDReceived     float64   `gorm:"column:usd_received;type:decimal(20,9);not null;default:0"`

	Operations []TokenOperation `gorm:"foreignKey:TransactionID"`
}

// TokenOperation is one per-token leg of a classified event. Amount is the
// magnitude of the token delta in UI units and is always positive.
type TokenOperation struct {
	BaseModel
	TransactionID uint    `gorm:"index;not null"`
	TokenID       uint    `gorm:"index;not null"`
	Token         *Token  `gorm:"foreignKey:TokenID"`
	Amount        float64 `gorm:"type:decimal(30,9);not null"`
	OperationType string  `gorm:"not null;type:varchar(10)"`
}
