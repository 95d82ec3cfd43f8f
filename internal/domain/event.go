// internal/domain/event.go
package domain

import "time"

// Well-known mints the classifier treats specially.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// LamportsPerSol is the native token's smallest-unit scale (9 decimals).
const LamportsPerSol = 1_000_000_000

// TransactionType is the wallet-viewpoint classification of an event.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// TokenChange is one per-mint leg of a classified event. RawAmount is the
// magnitude of the delta in smallest units; Amount is RawAmount / 10^Decimals.
type TokenChange struct {
	Mint      string  `json:"mint"`
	RawAmount uint64  `json:"raw_amount"`
	Decimals  uint8   `json:"decimals"`
	Amount    float64 `json:"amount"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
}

// Event is the classified buy/sell produced by the pipeline for one watched
// wallet. Exactly one of SolSpent/SolReceived is positive.
type Event struct {
	Signature   string          `json:"signature"`
	BlockTime   time.Time       `json:"block_time"`
	Wallet      WalletRecord    `json:"wallet"`
	Type        TransactionType `json:"type"`
	SolAmount   float64         `json:"sol_amount"`
	SolSpent    float64         `json:"sol_spent"`
	SolReceived float64         `json:"sol_received"`
	USDSpent    float64         `json:"usd_spent"`
	USDReceived float64         `json:"usd_received"`
	Changes     []TokenChange   `json:"changes"`
}

// WalletRecord is the cached projection of a wallet row consulted on the hot
// path. GroupID is nil for ungrouped wallets.
type WalletRecord struct {
	ID        uint    `json:"id"`
	Address   string  `json:"address"`
	Name      string  `json:"name,omitempty"`
	GroupID   *string `json:"group_id,omitempty"`
	GroupName string  `json:"group_name,omitempty"`
	IsActive  bool    `json:"is_active"`
}

// TokenMeta is resolver output for one mint. DeployedAt is absent when the
// first-signature lookup failed.
type TokenMeta struct {
	Mint       string     `json:"mint"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name"`
	Decimals   uint8      `json:"decimals"`
	DeployedAt *time.Time `json:"deployed_at,omitempty"`
}
