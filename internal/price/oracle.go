// internal/price/oracle.go
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Oracle returns the current USD price of SOL. Implementations may serve
// slightly stale values; callers treat the price as advisory.
type Oracle interface {
	SolPriceUSD(ctx context.Context) (float64, error)
}

const (
	defaultPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	refreshTimeout  = 8 * time.Second
	freshnessWindow = 60 * time.Second
)

// HTTPOracle fetches the SOL price over HTTP and caches it inside the
// freshness window. On refresh failure the last known price is returned.
type HTTPOracle struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

func NewHTTPOracle(url string, logger *zap.Logger) *HTTPOracle {
	if url == "" {
		url = defaultPriceURL
	}
	return &HTTPOracle{
		url:        url,
		httpClient: &http.Client{Timeout: refreshTimeout},
		logger:     logger.Named("price_oracle"),
	}
}

type priceResponse struct {
	Solana struct {
		USD float64 `json:"usd"`
	} `json:"solana"`
}

// SolPriceUSD returns the cached price when fresh, otherwise refreshes it.
func (o *HTTPOracle) SolPriceUSD(ctx context.Context) (float64, error) {
	o.mu.Lock()
	if o.price > 0 && time.Since(o.fetchedAt) < freshnessWindow {
		price := o.price
		o.mu.Unlock()
		return price, nil
	}
	o.mu.Unlock()

	price, err := o.fetch(ctx)
	if err != nil {
		o.mu.Lock()
		stale := o.price
		o.mu.Unlock()
		if stale > 0 {
			o.logger.Warn("Price refresh failed, serving stale price",
				zap.Float64("price", stale),
				zap.Error(err))
			return stale, nil
		}
		return 0, err
	}

	o.mu.Lock()
	o.price = price
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	return price, nil
}

func (o *HTTPOracle) fetch(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned status code: %d", resp.StatusCode)
	}

	var payload priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}
	if payload.Solana.USD <= 0 {
		return 0, fmt.Errorf("price API returned non-positive price")
	}

	return payload.Solana.USD, nil
}

// StaticOracle serves a fixed price. Used in tests and as a wired fallback
// when no price URL is configured.
type StaticOracle float64

func (s StaticOracle) SolPriceUSD(context.Context) (float64, error) {
	return float64(s), nil
}
