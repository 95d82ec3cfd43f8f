// internal/domain/payload.go
package domain

import "time"

// TokenBalance is one pre/post token balance entry, already decoded from the
// stream representation. Amount is the raw integer amount as a string, the
// way the chain reports it. HasAmount is false when the stream entry carried
// no decoded amount, in which case Decimals is meaningless rather than zero.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string
	Decimals     uint8
	HasAmount    bool
	UIAmount     float64
}

// Payload is the normalised transaction update every downstream component
// consumes. AccountKeys is the expanded key list: static message keys followed
// by address-table loaded writable then readonly keys, folded exactly once,
// all base58.
type Payload struct {
	Signature         string
	Slot              uint64
	BlockTime         time.Time
	Failed            bool
	Fee               uint64
	AccountKeys       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	HasMeta           bool
}
