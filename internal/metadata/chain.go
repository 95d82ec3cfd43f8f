// internal/metadata/chain.go
package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// MetaplexTokenMetadataProgramID is the program ID of the Metaplex Token
// Metadata program that stores symbol/name for SPL mints.
const MetaplexTokenMetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

var metaplexProgramID = solana.MustPublicKeyFromBase58(MetaplexTokenMetadataProgramID)

// SignatureInfo is one entry of a signatures-for-address page.
type SignatureInfo struct {
	Signature string
	BlockTime *time.Time
}

// ChainClient is the on-chain lookup surface the resolver depends on.
type ChainClient interface {
	// GetMintDecimals reads the SPL mint account and returns its decimals.
	GetMintDecimals(ctx context.Context, mint string) (uint8, error)
	// GetTokenMetadata reads the Metaplex metadata account for the mint.
	GetTokenMetadata(ctx context.Context, mint string) (symbol, name string, err error)
	// GetSignatures returns one page of signatures for the address, newest
	// first, starting before the given signature when non-empty.
	GetSignatures(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error)
	// GetTransactionBlockTime fetches the block time of one transaction.
	GetTransactionBlockTime(ctx context.Context, signature string) (*time.Time, error)
}

// RPCChainClient implements ChainClient over a solana JSON-RPC endpoint.
type RPCChainClient struct {
	client *rpc.Client
	logger *zap.Logger
}

func NewRPCChainClient(rpcURL string, logger *zap.Logger) *RPCChainClient {
	return &RPCChainClient{
		client: rpc.New(rpcURL),
		logger: logger.Named("chain_client"),
	}
}

// GetMintDecimals reads the raw mint account. The decimals byte sits at
// offset 44 of the SPL mint layout.
func (c *RPCChainClient) GetMintDecimals(ctx context.Context, mint string) (uint8, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}

	acc, err := c.client.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get mint account: %w", err)
	}
	if acc == nil || acc.Value == nil {
		return 0, fmt.Errorf("mint account not found: %s", mint)
	}

	data := acc.Value.Data.GetBinary()
	if len(data) < 45 {
		return 0, fmt.Errorf("invalid mint account data length: %d", len(data))
	}

	return data[44], nil
}

// GetTokenMetadata reads the Metaplex metadata PDA and parses the borsh
// name/symbol strings at their fixed offsets.
func (c *RPCChainClient) GetTokenMetadata(ctx context.Context, mint string) (string, string, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", "", fmt.Errorf("invalid mint address: %w", err)
	}

	pda, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			metaplexProgramID.Bytes(),
			pubkey.Bytes(),
		},
		metaplexProgramID,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive metadata PDA: %w", err)
	}

	acc, err := c.client.GetAccountInfoWithOpts(ctx, pda, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get metadata account: %w", err)
	}
	if acc == nil || acc.Value == nil {
		return "", "", fmt.Errorf("metadata account not found: %s", mint)
	}

	name, symbol, err := parseMetadataStrings(acc.Value.Data.GetBinary())
	if err != nil {
		return "", "", fmt.Errorf("failed to parse metadata account: %w", err)
	}
	return symbol, name, nil
}

// parseMetadataStrings extracts name and symbol from a raw Metaplex metadata
// account: key (1) + update authority (32) + mint (32), then two
// length-prefixed strings.
func parseMetadataStrings(data []byte) (name, symbol string, err error) {
	const header = 1 + 32 + 32

	name, next, err := readBorshString(data, header)
	if err != nil {
		return "", "", err
	}
	symbol, _, err = readBorshString(data, next)
	if err != nil {
		return "", "", err
	}
	return trimNul(name), trimNul(symbol), nil
}

func readBorshString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("metadata truncated at offset %d", offset)
	}
	length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
	start := offset + 4
	if start+length > len(data) {
		return "", 0, fmt.Errorf("metadata string overruns account data")
	}
	return string(data[start : start+length]), start + length, nil
}

func trimNul(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}

func (c *RPCChainClient) GetSignatures(ctx context.Context, address string, limit int, before string) ([]SignatureInfo, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid before signature: %w", err)
		}
		opts.Before = sig
	}

	page, err := c.client.GetSignaturesForAddressWithOpts(ctx, pubkey, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	infos := make([]SignatureInfo, 0, len(page))
	for _, entry := range page {
		info := SignatureInfo{Signature: entry.Signature.String()}
		if entry.BlockTime != nil {
			t := entry.BlockTime.Time()
			info.BlockTime = &t
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *RPCChainClient) GetTransactionBlockTime(ctx context.Context, signature string) (*time.Time, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	version := uint64(0)
	result, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if result == nil || result.BlockTime == nil {
		return nil, nil
	}

	t := result.BlockTime.Time()
	return &t, nil
}
