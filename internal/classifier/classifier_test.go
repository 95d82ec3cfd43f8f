package classifier

import (
	"context"
	"math"
	"testing"

	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

const (
	walletA = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	walletB = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	mintPEP = "6GCgqQvHVhmNaTvpXnD6BC4yRXMcfr6ZYZ6YNk6wpump"
	mintDOG = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type staticResolver map[string]domain.TokenMeta

func (r staticResolver) ResolveMany(_ context.Context, mints []string) (map[string]domain.TokenMeta, error) {
	out := make(map[string]domain.TokenMeta, len(mints))
	for _, mint := range mints {
		if meta, ok := r[mint]; ok {
			out[mint] = meta
		}
	}
	return out, nil
}

type failingResolver struct{}

func (failingResolver) ResolveMany(context.Context, []string) (map[string]domain.TokenMeta, error) {
	return nil, context.DeadlineExceeded
}

func newTestClassifier(resolver Resolver) *Classifier {
	return New(DefaultThresholds(), resolver, zap.NewNop())
}

// swapPayload builds a payload where the wallet at index 0 trades native SOL
// against one token.
func swapPayload(wallet, mint string, preLamports, postLamports uint64, preTokens, postTokens string) *domain.Payload {
	return &domain.Payload{
		Signature:    "5VERYrealLookingSignatureValue111111111111111111111111111111111111",
		AccountKeys:  []string{wallet, mint, "11111111111111111111111111111111"},
		PreBalances:  []uint64{preLamports, 0, 0},
		PostBalances: []uint64{postLamports, 0, 0},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: preTokens, Decimals: 6, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: postTokens, Decimals: 6, HasAmount: true},
		},
		HasMeta: true,
	}
}

func TestClassifySolBuy(t *testing.T) {
	c := newTestClassifier(staticResolver{
		mintPEP: {Mint: mintPEP, Symbol: "PEP", Name: "Pepper", Decimals: 6},
	})

	// Spends 2 SOL, gains 1_000_000_000 raw token units.
	payload := swapPayload(walletA, mintPEP, 5_000_000_000, 3_000_000_000, "0", "1000000000")
	wallet := domain.WalletRecord{ID: 1, Address: walletA, IsActive: true}

	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event, got nil")
	}
	if event.Type != domain.TransactionBuy {
		t.Errorf("expected buy, got %s", event.Type)
	}
	if math.Abs(event.SolAmount-2.0) > 1e-9 {
		t.Errorf("expected SolAmount 2.0, got %f", event.SolAmount)
	}
	if math.Abs(event.SolSpent-2.0) > 1e-9 || event.SolReceived != 0 {
		t.Errorf("expected SolSpent 2.0 and zero SolReceived, got %f / %f", event.SolSpent, event.SolReceived)
	}
	if math.Abs(event.USDSpent-400.0) > 1e-6 {
		t.Errorf("expected USDSpent 400, got %f", event.USDSpent)
	}
	if len(event.Changes) != 1 {
		t.Fatalf("expected 1 token change, got %d", len(event.Changes))
	}
	change := event.Changes[0]
	if change.Mint != mintPEP || change.RawAmount != 1_000_000_000 {
		t.Errorf("unexpected change: %+v", change)
	}
	if math.Abs(change.Amount-1000.0) > 1e-9 {
		t.Errorf("expected UI amount 1000, got %f", change.Amount)
	}
	if change.Symbol != "PEP" {
		t.Errorf("expected resolved symbol PEP, got %s", change.Symbol)
	}
}

func TestClassifySolSell(t *testing.T) {
	c := newTestClassifier(staticResolver{})

	// Gains 0.5 SOL, sheds 250_000 raw token units.
	payload := swapPayload(walletA, mintDOG, 1_000_000_000, 1_500_000_000, "750000", "500000")
	wallet := domain.WalletRecord{ID: 1, Address: walletA, IsActive: true}

	event, err := c.Classify(context.Background(), payload, wallet, 100)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event, got nil")
	}
	if event.Type != domain.TransactionSell {
		t.Errorf("expected sell, got %s", event.Type)
	}
	if math.Abs(event.SolReceived-0.5) > 1e-9 || event.SolSpent != 0 {
		t.Errorf("expected SolReceived 0.5 and zero SolSpent, got %f / %f", event.SolReceived, event.SolSpent)
	}
	if math.Abs(event.USDReceived-50.0) > 1e-6 {
		t.Errorf("expected USDReceived 50, got %f", event.USDReceived)
	}
	if len(event.Changes) != 1 || event.Changes[0].RawAmount != 250_000 {
		t.Fatalf("unexpected changes: %+v", event.Changes)
	}
}

func TestClassifyUSDCBuyOverridesSolRule(t *testing.T) {
	c := newTestClassifier(staticResolver{})

	// Pays 100 USDC; the native balance barely moves (fees only).
	payload := &domain.Payload{
		Signature:    "4anotherRealisticLookingSignature11111111111111111111111111111111",
		AccountKeys:  []string{walletA, mintPEP},
		PreBalances:  []uint64{1_000_000_000, 0},
		PostBalances: []uint64{999_995_000, 0},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 2, Mint: domain.USDCMint, Owner: walletA, Amount: "100000000", Decimals: 6, HasAmount: true, UIAmount: 100},
			{AccountIndex: 3, Mint: mintPEP, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 2, Mint: domain.USDCMint, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true, UIAmount: 0},
			{AccountIndex: 3, Mint: mintPEP, Owner: walletA, Amount: "5000000", Decimals: 6, HasAmount: true},
		},
		HasMeta: true,
	}
	wallet := domain.WalletRecord{ID: 2, Address: walletA, IsActive: true}

	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event, got nil")
	}
	if event.Type != domain.TransactionBuy {
		t.Errorf("expected buy from the USDC leg, got %s", event.Type)
	}
	// 100 USD at 200 USD/SOL.
	if math.Abs(event.SolAmount-0.5) > 1e-9 {
		t.Errorf("expected SolAmount 0.5, got %f", event.SolAmount)
	}
	// USDC must not show up as a token change.
	for _, change := range event.Changes {
		if change.Mint == domain.USDCMint || change.Mint == domain.WrappedSOLMint {
			t.Errorf("quoting leg leaked into changes: %s", change.Mint)
		}
	}
	if len(event.Changes) != 1 || event.Changes[0].Mint != mintPEP {
		t.Fatalf("unexpected changes: %+v", event.Changes)
	}
}

func TestClassifyUSDCSellBelowNativeThreshold(t *testing.T) {
	c := newTestClassifier(staticResolver{})

	// Receives 12 USDC while the native balance gain stays under the sell
	// floor; the stable leg alone must carry the classification.
	payload := &domain.Payload{
		Signature:    "6stableQuotedSellSignature111111111111111111111111111111111111111",
		AccountKeys:  []string{walletA, mintDOG},
		PreBalances:  []uint64{1_000_000_000, 0},
		PostBalances: []uint64{1_000_050_000, 0},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 2, Mint: domain.USDCMint, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true, UIAmount: 0},
			{AccountIndex: 3, Mint: mintDOG, Owner: walletA, Amount: "500000000000", Decimals: 6, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 2, Mint: domain.USDCMint, Owner: walletA, Amount: "12000000", Decimals: 6, HasAmount: true, UIAmount: 12},
			{AccountIndex: 3, Mint: mintDOG, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true},
		},
		HasMeta: true,
	}
	wallet := domain.WalletRecord{ID: 3, Address: walletA, IsActive: true}

	event, err := c.Classify(context.Background(), payload, wallet, 150)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event == nil {
		t.Fatal("expected an event, got nil")
	}
	if event.Type != domain.TransactionSell {
		t.Errorf("expected sell from the USDC leg, got %s", event.Type)
	}
	// 12 USD at 150 USD/SOL.
	if math.Abs(event.SolAmount-0.08) > 1e-9 {
		t.Errorf("expected SolAmount 0.08, got %f", event.SolAmount)
	}
	if math.Abs(event.SolReceived-0.08) > 1e-9 || event.SolSpent != 0 {
		t.Errorf("expected SolReceived 0.08 and zero SolSpent, got %f / %f", event.SolReceived, event.SolSpent)
	}
	if math.Abs(event.USDReceived-12.0) > 1e-6 {
		t.Errorf("expected USDReceived 12, got %f", event.USDReceived)
	}
	if len(event.Changes) != 1 {
		t.Fatalf("expected 1 token change, got %d", len(event.Changes))
	}
	if change := event.Changes[0]; change.Mint != mintDOG || change.RawAmount != 500_000_000_000 {
		t.Errorf("unexpected change: %+v", change)
	}
}

func TestClassifyZeroDecimalToken(t *testing.T) {
	c := newTestClassifier(failingResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	// A whole-unit token: chain reports decimals 0 and the metadata lookup
	// degrades to the synthetic placeholder, which must not override it.
	payload := &domain.Payload{
		Signature:    "7wholeUnitTokenSignature11111111111111111111111111111111111111111",
		AccountKeys:  []string{walletA, mintPEP},
		PreBalances:  []uint64{5_000_000_000, 0},
		PostBalances: []uint64{3_000_000_000, 0},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: mintPEP, Owner: walletA, Amount: "0", Decimals: 0, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: mintPEP, Owner: walletA, Amount: "5", Decimals: 0, HasAmount: true},
		},
		HasMeta: true,
	}

	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil || event == nil {
		t.Fatalf("expected an event, got %v / %v", event, err)
	}
	change := event.Changes[0]
	if change.Decimals != 0 {
		t.Errorf("expected chain-reported decimals 0, got %d", change.Decimals)
	}
	if math.Abs(change.Amount-5.0) > 1e-9 {
		t.Errorf("expected UI amount 5, got %f", change.Amount)
	}
}

func TestClassifySkipsBelowThresholds(t *testing.T) {
	c := newTestClassifier(staticResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	// 0.005 SOL out: below the 0.01 buy floor.
	payload := swapPayload(walletA, mintPEP, 1_000_000_000, 995_000_000, "0", "1000")
	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil || event != nil {
		t.Errorf("expected nil event below buy threshold, got %v / %v", event, err)
	}

	// 0.0005 SOL in: below the 0.001 sell floor.
	payload = swapPayload(walletA, mintPEP, 1_000_000_000, 1_000_500_000, "1000", "0")
	event, err = c.Classify(context.Background(), payload, wallet, 200)
	if err != nil || event != nil {
		t.Errorf("expected nil event below sell threshold, got %v / %v", event, err)
	}
}

func TestClassifySkipsNonQualifyingPayloads(t *testing.T) {
	c := newTestClassifier(staticResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	failed := swapPayload(walletA, mintPEP, 5_000_000_000, 3_000_000_000, "0", "1000000")
	failed.Failed = true
	if event, _ := c.Classify(context.Background(), failed, wallet, 200); event != nil {
		t.Error("failed transaction must not produce an event")
	}

	noMeta := swapPayload(walletA, mintPEP, 5_000_000_000, 3_000_000_000, "0", "1000000")
	noMeta.HasMeta = false
	if event, _ := c.Classify(context.Background(), noMeta, wallet, 200); event != nil {
		t.Error("metadata-less transaction must not produce an event")
	}

	uninvolved := swapPayload(walletB, mintPEP, 5_000_000_000, 3_000_000_000, "0", "1000000")
	if event, _ := c.Classify(context.Background(), uninvolved, wallet, 200); event != nil {
		t.Error("transaction not involving the wallet must not produce an event")
	}
}

func TestClassifyRequiresSignAgreement(t *testing.T) {
	c := newTestClassifier(staticResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	// Native delta says buy, but the wallet's token balance went down.
	payload := swapPayload(walletA, mintPEP, 5_000_000_000, 3_000_000_000, "1000000", "500000")
	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if event != nil {
		t.Errorf("disagreeing token delta must not qualify, got %+v", event)
	}
}

func TestClassifyPerWalletViewpoint(t *testing.T) {
	c := newTestClassifier(staticResolver{})

	// A and B are counterparties in one transaction: A buys, B sells.
	payload := &domain.Payload{
		Signature:    "3bothSidesWatchedSignature111111111111111111111111111111111111111",
		AccountKeys:  []string{walletA, walletB, mintPEP},
		PreBalances:  []uint64{5_000_000_000, 1_000_000_000, 0},
		PostBalances: []uint64{3_000_000_000, 3_000_000_000, 0},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: mintPEP, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true},
			{AccountIndex: 4, Mint: mintPEP, Owner: walletB, Amount: "9000000", Decimals: 6, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 3, Mint: mintPEP, Owner: walletA, Amount: "9000000", Decimals: 6, HasAmount: true},
			{AccountIndex: 4, Mint: mintPEP, Owner: walletB, Amount: "0", Decimals: 6, HasAmount: true},
		},
		HasMeta: true,
	}

	buyEvent, err := c.Classify(context.Background(), payload, domain.WalletRecord{ID: 1, Address: walletA, IsActive: true}, 200)
	if err != nil || buyEvent == nil {
		t.Fatalf("expected buy event for wallet A, got %v / %v", buyEvent, err)
	}
	if buyEvent.Type != domain.TransactionBuy {
		t.Errorf("wallet A should be a buy, got %s", buyEvent.Type)
	}

	sellEvent, err := c.Classify(context.Background(), payload, domain.WalletRecord{ID: 2, Address: walletB, IsActive: true}, 200)
	if err != nil || sellEvent == nil {
		t.Fatalf("expected sell event for wallet B, got %v / %v", sellEvent, err)
	}
	if sellEvent.Type != domain.TransactionSell {
		t.Errorf("wallet B should be a sell, got %s", sellEvent.Type)
	}
	if sellEvent.Changes[0].RawAmount != buyEvent.Changes[0].RawAmount {
		t.Errorf("counterparty magnitudes differ: %d vs %d",
			sellEvent.Changes[0].RawAmount, buyEvent.Changes[0].RawAmount)
	}
}

func TestClassifySyntheticMetadataFallback(t *testing.T) {
	c := newTestClassifier(failingResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	payload := swapPayload(walletA, mintPEP, 5_000_000_000, 3_000_000_000, "0", "1000000")
	event, err := c.Classify(context.Background(), payload, wallet, 200)
	if err != nil {
		t.Fatalf("metadata failure must not surface as an error: %v", err)
	}
	if event == nil {
		t.Fatal("metadata failure must not drop the event")
	}

	change := event.Changes[0]
	want := SyntheticMeta(mintPEP)
	if change.Symbol != want.Symbol || change.Name != want.Name {
		t.Errorf("expected synthetic metadata %q/%q, got %q/%q",
			want.Symbol, want.Name, change.Symbol, change.Name)
	}
}

func TestClassifyZeroPriceFallsBackToNativeDelta(t *testing.T) {
	c := newTestClassifier(staticResolver{})
	wallet := domain.WalletRecord{Address: walletA, IsActive: true}

	payload := &domain.Payload{
		Signature:    "2priceOutageSignature11111111111111111111111111111111111111111111",
		AccountKeys:  []string{walletA},
		PreBalances:  []uint64{5_000_000_000},
		PostBalances: []uint64{3_000_000_000},
		PreTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: domain.USDCMint, Owner: walletA, Amount: "100000000", Decimals: 6, HasAmount: true, UIAmount: 100},
			{AccountIndex: 2, Mint: mintPEP, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true},
		},
		PostTokenBalances: []domain.TokenBalance{
			{AccountIndex: 1, Mint: domain.USDCMint, Owner: walletA, Amount: "0", Decimals: 6, HasAmount: true, UIAmount: 0},
			{AccountIndex: 2, Mint: mintPEP, Owner: walletA, Amount: "5000000", Decimals: 6, HasAmount: true},
		},
		HasMeta: true,
	}

	event, err := c.Classify(context.Background(), payload, wallet, 0)
	if err != nil || event == nil {
		t.Fatalf("expected event despite zero price, got %v / %v", event, err)
	}
	if math.IsInf(event.SolAmount, 0) || math.IsNaN(event.SolAmount) {
		t.Fatalf("SolAmount must stay finite, got %f", event.SolAmount)
	}
	if math.Abs(event.SolAmount-2.0) > 1e-9 {
		t.Errorf("expected native-delta fallback of 2.0 SOL, got %f", event.SolAmount)
	}
}

func TestInvolves(t *testing.T) {
	payload := swapPayload(walletA, mintPEP, 1, 1, "0", "0")
	if !Involves(payload, walletA) {
		t.Error("expected wallet A to be involved")
	}
	if Involves(payload, walletB) {
		t.Error("wallet B must not be involved")
	}
}
