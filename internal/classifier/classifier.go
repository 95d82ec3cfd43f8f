// internal/classifier/classifier.go
package classifier

import (
	"context"
	"strconv"
	"strings"

	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

// Thresholds gate how large a native balance move must be before it counts.
// The asymmetry is deliberate: a buy must cross the fee floor, a sell only
// has to clear dust.
type Thresholds struct {
	Buy  float64
	Sell float64
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Buy: 0.01, Sell: 0.001}
}

// Resolver supplies token metadata for the mints surviving classification.
type Resolver interface {
	ResolveMany(ctx context.Context, mints []string) (map[string]domain.TokenMeta, error)
}

// Classifier turns raw transaction payloads into classified buy/sell events
// from the watched wallet's viewpoint.
type Classifier struct {
	thresholds Thresholds
	resolver   Resolver
	logger     *zap.Logger
}

func New(thresholds Thresholds, resolver Resolver, logger *zap.Logger) *Classifier {
	if thresholds.Buy <= 0 {
		thresholds.Buy = DefaultThresholds().Buy
	}
	if thresholds.Sell <= 0 {
		thresholds.Sell = DefaultThresholds().Sell
	}
	return &Classifier{
		thresholds: thresholds,
		resolver:   resolver,
		logger:     logger.Named("classifier"),
	}
}

// rawDelta accumulates the per-mint token movement in smallest units.
// decimalsKnown distinguishes chain-reported decimals, zero included, from
// entries whose decoded amount was missing.
type rawDelta struct {
	amount        uint64
	decimals      uint8
	decimalsKnown bool
}

// outcome is the CPU-only classification result before metadata enrichment.
type outcome struct {
	txType    domain.TransactionType
	solAmount float64
	deltas    map[string]rawDelta
}

// Classify evaluates the payload for one watched wallet. A nil event with a
// nil error means the payload does not qualify (failed tx, no balance arrays,
// wallet not involved, below thresholds, or no qualifying token delta).
func (c *Classifier) Classify(ctx context.Context, payload *domain.Payload, wallet domain.WalletRecord, solPrice float64) (*domain.Event, error) {
	out := c.evaluate(payload, wallet.Address, solPrice)
	if out == nil {
		return nil, nil
	}

	mints := make([]string, 0, len(out.deltas))
	for mint := range out.deltas {
		mints = append(mints, mint)
	}

	metas, err := c.resolver.ResolveMany(ctx, mints)
	if err != nil {
		// Metadata trouble must not drop the event; fall back to placeholders.
		c.logger.Warn("Metadata resolution failed, using placeholders",
			zap.String("signature", payload.Signature),
			zap.Error(err))
		metas = nil
	}

	changes := make([]domain.TokenChange, 0, len(out.deltas))
	for mint, delta := range out.deltas {
		meta, ok := metas[mint]
		if !ok {
			meta = SyntheticMeta(mint)
		}
		// The chain-reported decimals on the balance entry win over metadata.
		decimals := delta.decimals
		if !delta.decimalsKnown {
			decimals = meta.Decimals
		}
		changes = append(changes, domain.TokenChange{
			Mint:      mint,
			RawAmount: delta.amount,
			Decimals:  decimals,
			Amount:    uiAmount(delta.amount, decimals),
			Symbol:    meta.Symbol,
			Name:      meta.Name,
		})
	}

	event := &domain.Event{
		Signature: payload.Signature,
		BlockTime: payload.BlockTime,
		Wallet:    wallet,
		Type:      out.txType,
		SolAmount: out.solAmount,
		Changes:   changes,
	}
	usd := out.solAmount * solPrice
	if out.txType == domain.TransactionBuy {
		event.SolSpent = out.solAmount
		event.USDSpent = usd
	} else {
		event.SolReceived = out.solAmount
		event.USDReceived = usd
	}

	return event, nil
}

// Involves reports whether the payload's expanded account-key list contains
// the address. Used as a cheap pre-filter before wallet lookup.
func Involves(payload *domain.Payload, address string) bool {
	return walletIndex(payload, address) >= 0
}

// evaluate runs the pure classification rules. It never blocks.
func (c *Classifier) evaluate(payload *domain.Payload, address string, solPrice float64) *outcome {
	if payload == nil || payload.Failed || !payload.HasMeta {
		return nil
	}
	if payload.PreBalances == nil || payload.PostBalances == nil {
		return nil
	}

	idx := walletIndex(payload, address)
	if idx < 0 || idx >= len(payload.PreBalances) || idx >= len(payload.PostBalances) {
		return nil
	}

	solDelta := (float64(payload.PostBalances[idx]) - float64(payload.PreBalances[idx])) / domain.LamportsPerSol
	usdcDelta := usdcDelta(payload, address)

	var txType domain.TransactionType
	var solAmount float64
	switch {
	case usdcDelta < 0:
		txType = domain.TransactionBuy
		solAmount = usdToSol(-usdcDelta, solPrice, -solDelta)
	case usdcDelta > 0:
		txType = domain.TransactionSell
		solAmount = usdToSol(usdcDelta, solPrice, solDelta)
	case solDelta < -c.thresholds.Buy:
		txType = domain.TransactionBuy
		solAmount = -solDelta
	case solDelta > c.thresholds.Sell:
		txType = domain.TransactionSell
		solAmount = solDelta
	default:
		return nil
	}

	deltas := tokenDeltas(payload, address, txType)
	if len(deltas) == 0 {
		return nil
	}

	return &outcome{txType: txType, solAmount: solAmount, deltas: deltas}
}

// usdToSol converts the stable leg to SOL terms. Without a usable price the
// wallet's own native delta is the best remaining estimate.
func usdToSol(usd, solPrice, fallback float64) float64 {
	if solPrice > 0 {
		return usd / solPrice
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

// walletIndex resolves the address in the expanded account-key list.
func walletIndex(payload *domain.Payload, address string) int {
	for i, key := range payload.AccountKeys {
		if key == address {
			return i
		}
	}
	return -1
}

// usdcDelta computes the wallet's USDC balance change in UI units. A missing
// pre or post entry counts as zero on that side.
func usdcDelta(payload *domain.Payload, address string) float64 {
	var pre, post float64
	for _, balance := range payload.PreTokenBalances {
		if balance.Mint == domain.USDCMint && balance.Owner == address {
			pre = balance.UIAmount
			break
		}
	}
	for _, balance := range payload.PostTokenBalances {
		if balance.Mint == domain.USDCMint && balance.Owner == address {
			post = balance.UIAmount
			break
		}
	}
	return post - pre
}

// balanceKey identifies one token account entry across the pre/post arrays.
type balanceKey struct {
	accountIndex int
	mint         string
}

// tokenDeltas aggregates per-mint raw deltas whose sign agrees with the
// classified type. Wrapped SOL and USDC are quoting legs, not tokens.
func tokenDeltas(payload *domain.Payload, address string, txType domain.TransactionType) map[string]rawDelta {
	pre := make(map[balanceKey]domain.TokenBalance)
	post := make(map[balanceKey]domain.TokenBalance)

	for _, balance := range payload.PreTokenBalances {
		if relevantBalance(balance, address) {
			pre[balanceKey{balance.AccountIndex, balance.Mint}] = balance
		}
	}
	for _, balance := range payload.PostTokenBalances {
		if relevantBalance(balance, address) {
			post[balanceKey{balance.AccountIndex, balance.Mint}] = balance
		}
	}

	keys := make(map[balanceKey]struct{}, len(pre)+len(post))
	for key := range pre {
		keys[key] = struct{}{}
	}
	for key := range post {
		keys[key] = struct{}{}
	}

	deltas := make(map[string]rawDelta)
	for key := range keys {
		preEntry, havePre := pre[key]
		postEntry, havePost := post[key]

		preAmount := parseRawAmount(preEntry.Amount)
		postAmount := parseRawAmount(postEntry.Amount)

		var decimals uint8
		var decimalsKnown bool
		if havePost && postEntry.HasAmount {
			decimals, decimalsKnown = postEntry.Decimals, true
		} else if havePre && preEntry.HasAmount {
			decimals, decimalsKnown = preEntry.Decimals, true
		}

		var magnitude uint64
		switch {
		case txType == domain.TransactionBuy && postAmount > preAmount:
			magnitude = postAmount - preAmount
		case txType == domain.TransactionSell && preAmount > postAmount:
			magnitude = preAmount - postAmount
		default:
			continue
		}

		agg := deltas[key.mint]
		agg.amount += magnitude
		if decimalsKnown {
			agg.decimals = decimals
			agg.decimalsKnown = true
		}
		deltas[key.mint] = agg
	}

	return deltas
}

func relevantBalance(balance domain.TokenBalance, address string) bool {
	return balance.Owner == address &&
		balance.Mint != domain.WrappedSOLMint &&
		balance.Mint != domain.USDCMint
}

func parseRawAmount(amount string) uint64 {
	if amount == "" {
		return 0
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func uiAmount(raw uint64, decimals uint8) float64 {
	scale := 1.0
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	return float64(raw) / scale
}

// SyntheticMeta builds the placeholder metadata used when on-chain lookup is
// unavailable for a mint.
func SyntheticMeta(mint string) domain.TokenMeta {
	symbol := mint
	if len(symbol) > 4 {
		symbol = symbol[:4]
	}
	name := mint
	if len(name) > 8 {
		name = name[:8]
	}
	return domain.TokenMeta{
		Mint:     mint,
		Symbol:   strings.ToUpper(symbol),
		Name:     "Token " + name + "...",
		Decimals: 6,
	}
}
