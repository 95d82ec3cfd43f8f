// internal/stream/geyser.go
package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

const (
	// maxMessageSize accommodates large confirmed-transaction updates.
	maxMessageSize = 64 << 20

	keepaliveInterval = 30 * time.Second
	keepaliveTimeout  = 10 * time.Second
)

// Stream is one live transaction subscription.
type Stream interface {
	// Recv blocks for the next decoded transaction update. Non-transaction
	// updates (pings, slot notices) are consumed internally.
	Recv() (*domain.Payload, error)
	Close() error
}

// StreamClient opens transaction streams filtered to an address set.
type StreamClient interface {
	OpenStream(ctx context.Context, addresses []string) (Stream, error)
}

// GeyserClient implements StreamClient over a Yellowstone geyser gRPC node.
type GeyserClient struct {
	conn   *grpc.ClientConn
	client pb.GeyserClient
	token  string
	logger *zap.Logger
}

// NewGeyserClient dials the geyser endpoint with the keepalive and message
// size settings long-lived subscriptions need.
func NewGeyserClient(endpoint, token string, logger *zap.Logger) (*GeyserClient, error) {
	target := endpoint
	transport := grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	if strings.HasPrefix(endpoint, "http://") {
		target = strings.TrimPrefix(endpoint, "http://")
		transport = grpc.WithTransportCredentials(insecure.NewCredentials())
	} else {
		target = strings.TrimPrefix(endpoint, "https://")
	}

	conn, err := grpc.NewClient(target,
		transport,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepaliveInterval,
			Timeout:             keepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial geyser endpoint: %w", err)
	}

	return &GeyserClient{
		conn:   conn,
		client: pb.NewGeyserClient(conn),
		token:  token,
		logger: logger.Named("geyser"),
	}, nil
}

// OpenStream starts one Subscribe stream filtered to the given addresses at
// confirmed commitment, votes and failed transactions excluded.
func (g *GeyserClient) OpenStream(ctx context.Context, addresses []string) (Stream, error) {
	if g.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-token", g.token)
	}

	sub, err := g.client.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open subscribe stream: %w", err)
	}

	vote := false
	failed := false
	request := &pb.SubscribeRequest{
		Commitment: pb.CommitmentLevel_CONFIRMED.Enum(),
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			"wallets": {
				Vote:           &vote,
				Failed:         &failed,
				AccountInclude: addresses,
			},
		},
		// Block meta carries the block times the transaction updates lack.
		BlocksMeta: map[string]*pb.SubscribeRequestFilterBlocksMeta{
			"meta": {},
		},
	}
	if err := sub.Send(request); err != nil {
		return nil, fmt.Errorf("failed to send subscribe request: %w", err)
	}

	return &geyserStream{
		sub:    sub,
		clock:  newBlockClock(blockClockCapacity),
		logger: g.logger,
	}, nil
}

func (g *GeyserClient) Close() error {
	return g.conn.Close()
}

type geyserStream struct {
	sub    pb.Geyser_SubscribeClient
	clock  *blockClock
	logger *zap.Logger
}

// Recv loops until a transaction update arrives or the stream errors.
// Block-meta updates are folded into the slot clock so transaction payloads
// carry the chain's block time whenever the meta for their slot has arrived.
func (s *geyserStream) Recv() (*domain.Payload, error) {
	for {
		update, err := s.sub.Recv()
		if err != nil {
			return nil, err
		}

		if meta := update.GetBlockMeta(); meta != nil {
			if ts := meta.GetBlockTime(); ts != nil {
				s.clock.Observe(meta.GetSlot(), time.Unix(ts.GetTimestamp(), 0).UTC())
			}
			continue
		}

		payload := DecodeUpdate(update)
		if payload == nil {
			continue
		}
		if blockTime, ok := s.clock.At(payload.Slot); ok {
			payload.BlockTime = blockTime
		}
		return payload, nil
	}
}

func (s *geyserStream) Close() error {
	return s.sub.CloseSend()
}

// DecodeUpdate converts one geyser update into the normalised payload. It
// returns nil for non-transaction updates and for updates without the
// transaction body. Byte-array keys are re-encoded to base58; address-table
// loaded keys are folded after the static keys exactly once.
func DecodeUpdate(update *pb.SubscribeUpdate) *domain.Payload {
	txUpdate := update.GetTransaction()
	if txUpdate == nil {
		return nil
	}
	info := txUpdate.GetTransaction()
	if info == nil {
		return nil
	}

	payload := &domain.Payload{
		Slot: txUpdate.GetSlot(),
		// Arrival time stands in until the slot's block meta is joined;
		// confirmed updates land within moments of their block either way.
		BlockTime: time.Now().UTC(),
	}

	if sig := info.GetSignature(); len(sig) > 0 {
		payload.Signature = base58.Encode(sig)
	}

	if tx := info.GetTransaction(); tx != nil {
		if payload.Signature == "" && len(tx.GetSignatures()) > 0 {
			payload.Signature = base58.Encode(tx.GetSignatures()[0])
		}
		if msg := tx.GetMessage(); msg != nil {
			for _, key := range msg.GetAccountKeys() {
				payload.AccountKeys = append(payload.AccountKeys, base58.Encode(key))
			}
		}
	}

	meta := info.GetMeta()
	if meta != nil {
		payload.HasMeta = true
		payload.Failed = meta.GetErr() != nil
		payload.Fee = meta.GetFee()
		payload.PreBalances = meta.GetPreBalances()
		payload.PostBalances = meta.GetPostBalances()

		for _, key := range meta.GetLoadedWritableAddresses() {
			payload.AccountKeys = append(payload.AccountKeys, base58.Encode(key))
		}
		for _, key := range meta.GetLoadedReadonlyAddresses() {
			payload.AccountKeys = append(payload.AccountKeys, base58.Encode(key))
		}

		payload.PreTokenBalances = decodeTokenBalances(meta.GetPreTokenBalances())
		payload.PostTokenBalances = decodeTokenBalances(meta.GetPostTokenBalances())
	}

	if payload.Signature == "" {
		return nil
	}
	return payload
}

func decodeTokenBalances(balances []*pb.TokenBalance) []domain.TokenBalance {
	if len(balances) == 0 {
		return nil
	}
	decoded := make([]domain.TokenBalance, 0, len(balances))
	for _, balance := range balances {
		entry := domain.TokenBalance{
			AccountIndex: int(balance.GetAccountIndex()),
			Mint:         balance.GetMint(),
			Owner:        balance.GetOwner(),
		}
		if ui := balance.GetUiTokenAmount(); ui != nil {
			entry.Amount = ui.GetAmount()
			entry.Decimals = uint8(ui.GetDecimals())
			entry.HasAmount = true
			entry.UIAmount = ui.GetUiAmount()
		}
		decoded = append(decoded, entry)
	}
	return decoded
}
