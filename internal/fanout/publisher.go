// internal/fanout/publisher.go
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

// GlobalChannel carries every persisted event.
const GlobalChannel = "events"

// GroupChannel returns the channel name scoped to one group.
func GroupChannel(groupID string) string {
	return fmt.Sprintf("events:group:%s", groupID)
}

// Publisher fans a persisted event out to live consumers. Delivery is
// at-most-once; reconnecting consumers re-read state from the store.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Message is the wire schema consumers receive.
type Message struct {
	Signature       string         `json:"signature"`
	WalletAddress   string         `json:"walletAddress"`
	WalletName      string         `json:"walletName,omitempty"`
	GroupID         string         `json:"groupId,omitempty"`
	GroupName       string         `json:"groupName,omitempty"`
	TransactionType string         `json:"transactionType"`
	SolAmount       float64        `json:"solAmount"`
	Tokens          []MessageToken `json:"tokens"`
	Timestamp       string         `json:"timestamp"`
}

type MessageToken struct {
	Mint   string  `json:"mint"`
	Amount float64 `json:"amount"`
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
}

// NewMessage converts a classified event into its wire form.
func NewMessage(event *domain.Event) *Message {
	msg := &Message{
		Signature:       event.Signature,
		WalletAddress:   event.Wallet.Address,
		WalletName:      event.Wallet.Name,
		GroupName:       event.Wallet.GroupName,
		TransactionType: string(event.Type),
		SolAmount:       event.SolAmount,
		Tokens:          make([]MessageToken, 0, len(event.Changes)),
		Timestamp:       event.BlockTime.UTC().Format(time.RFC3339),
	}
	if event.Wallet.GroupID != nil {
		msg.GroupID = *event.Wallet.GroupID
	}
	for _, change := range event.Changes {
		msg.Tokens = append(msg.Tokens, MessageToken{
			Mint:   change.Mint,
			Amount: change.Amount,
			Symbol: change.Symbol,
			Name:   change.Name,
		})
	}
	return msg
}

// RedisPublisher publishes messages on the global channel and, for grouped
// wallets, the group channel. Ordering holds per publisher process only.
type RedisPublisher struct {
	client redis.Cmdable
	logger *zap.Logger
}

func NewRedisPublisher(client redis.Cmdable, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger.Named("fanout"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event message: %w", err)
	}

	if err := p.client.Publish(ctx, GlobalChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", GlobalChannel, err)
	}

	if event.Wallet.GroupID != nil {
		channel := GroupChannel(*event.Wallet.GroupID)
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish on %s: %w", channel, err)
		}
	}

	p.logger.Debug("Event published",
		zap.String("signature", event.Signature),
		zap.String("wallet", event.Wallet.Address),
		zap.String("type", string(event.Type)))

	return nil
}
