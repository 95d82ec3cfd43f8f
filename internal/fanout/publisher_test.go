package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

func sampleEvent(groupID *string) *domain.Event {
	return &domain.Event{
		Signature: "5sampleSignature",
		BlockTime: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
		Wallet: domain.WalletRecord{
			ID:        1,
			Address:   "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
			Name:      "whale-1",
			GroupID:   groupID,
			GroupName: "whales",
			IsActive:  true,
		},
		Type:      domain.TransactionBuy,
		SolAmount: 2.5,
		SolSpent:  2.5,
		USDSpent:  500,
		Changes: []domain.TokenChange{
			{Mint: "6GCgqQvHVhmNaTvpXnD6BC4yRXMcfr6ZYZ6YNk6wpump", RawAmount: 1_000_000, Decimals: 6, Amount: 1, Symbol: "PEP", Name: "Pepper"},
		},
	}
}

func TestNewMessageShape(t *testing.T) {
	group := "11111111-1111-1111-1111-111111111111"
	msg := NewMessage(sampleEvent(&group))

	if msg.Signature != "5sampleSignature" {
		t.Errorf("unexpected signature %s", msg.Signature)
	}
	if msg.WalletAddress != "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU" {
		t.Errorf("unexpected wallet address %s", msg.WalletAddress)
	}
	if msg.TransactionType != "buy" {
		t.Errorf("unexpected type %s", msg.TransactionType)
	}
	if msg.GroupID != group || msg.GroupName != "whales" {
		t.Errorf("group fields not carried: %s / %s", msg.GroupID, msg.GroupName)
	}
	if msg.Timestamp != "2025-01-15T10:30:00Z" {
		t.Errorf("timestamp must be RFC3339 UTC, got %s", msg.Timestamp)
	}
	if len(msg.Tokens) != 1 || msg.Tokens[0].Symbol != "PEP" {
		t.Errorf("unexpected tokens: %+v", msg.Tokens)
	}
}

func TestNewMessageOmitsEmptyGroup(t *testing.T) {
	msg := NewMessage(sampleEvent(nil))
	msg.GroupName = ""

	encoded, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["groupId"]; ok {
		t.Error("groupId must be omitted for ungrouped wallets")
	}
}

func TestGroupChannelNaming(t *testing.T) {
	got := GroupChannel("11111111-1111-1111-1111-111111111111")
	want := "events:group:11111111-1111-1111-1111-111111111111"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// recordingRedis captures Publish calls without a live server.
type recordingRedis struct {
	redis.Cmdable
	channels []string
}

func (r *recordingRedis) Publish(ctx context.Context, channel string, _ interface{}) *redis.IntCmd {
	r.channels = append(r.channels, channel)
	return redis.NewIntResult(1, nil)
}

func TestRedisPublisherChannels(t *testing.T) {
	rec := &recordingRedis{}
	publisher := NewRedisPublisher(rec, zap.NewNop())

	group := "22222222-2222-2222-2222-222222222222"
	if err := publisher.Publish(context.Background(), sampleEvent(&group)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(rec.channels) != 2 {
		t.Fatalf("expected global plus group channel, got %v", rec.channels)
	}
	if rec.channels[0] != GlobalChannel {
		t.Errorf("first publish must hit %s, got %s", GlobalChannel, rec.channels[0])
	}
	if rec.channels[1] != GroupChannel(group) {
		t.Errorf("second publish must hit the group channel, got %s", rec.channels[1])
	}
}

func TestRedisPublisherUngroupedSkipsGroupChannel(t *testing.T) {
	rec := &recordingRedis{}
	publisher := NewRedisPublisher(rec, zap.NewNop())

	if err := publisher.Publish(context.Background(), sampleEvent(nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(rec.channels) != 1 || rec.channels[0] != GlobalChannel {
		t.Errorf("ungrouped event must publish globally only, got %v", rec.channels)
	}
}
