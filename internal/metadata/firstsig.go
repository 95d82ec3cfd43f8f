// internal/metadata/firstsig.go
package metadata

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	signaturePageSize = 1000
	signatureMaxPages = 5
)

// firstDeploymentTime pages backward through the mint's signature history and
// returns the block time of the earliest signature it can reach. Best effort:
// nil when the history is empty, deeper than signatureMaxPages reaches, or
// the RPC fails.
func (r *Resolver) firstDeploymentTime(ctx context.Context, mint string) *time.Time {
	var earliest SignatureInfo
	before := ""

	for page := 0; page < signatureMaxPages; page++ {
		infos, err := r.chain.GetSignatures(ctx, mint, signaturePageSize, before)
		if err != nil {
			r.logger.Debug("Signature page fetch failed",
				zap.String("mint", mint),
				zap.Int("page", page),
				zap.Error(err))
			return nil
		}
		if len(infos) == 0 {
			break
		}

		// Pages are newest-first, so the last entry is the oldest so far.
		earliest = infos[len(infos)-1]
		before = earliest.Signature

		if len(infos) < signaturePageSize {
			break
		}
	}

	if earliest.Signature == "" {
		return nil
	}
	if earliest.BlockTime != nil {
		return earliest.BlockTime
	}

	// Some RPC providers omit blockTime in the signature listing; fall back
	// to fetching the transaction itself.
	blockTime, err := r.chain.GetTransactionBlockTime(ctx, earliest.Signature)
	if err != nil {
		r.logger.Debug("Block time fallback fetch failed",
			zap.String("mint", mint),
			zap.String("signature", earliest.Signature),
			zap.Error(err))
		return nil
	}
	return blockTime
}
