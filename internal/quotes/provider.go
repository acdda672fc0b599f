package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Quote is a point-in-time price for one symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"changePercent"`
	Name          string    `json:"name"`
	CachedAt      time.Time `json:"-"`
}

// Provider fetches quotes from the upstream market-data feed.
type Provider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// DefaultBaseURL is the Yahoo Finance v7 quote endpoint the game reads
// from by default.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// HTTPProvider reads quotes over HTTP. Every fetch runs under a circuit
// breaker and a shared rate limiter; a tripped breaker or exhausted
// budget is reported as an ordinary fetch error so the cache can degrade
// to synthetic data.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewHTTPProvider builds a provider against baseURL (DefaultBaseURL when
// empty) with the given per-fetch timeout and rate budget. Non-positive
// rate settings select 5 rps with a burst of 10.
func NewHTTPProvider(baseURL string, timeout time.Duration, ratePerSecond, burst int) *HTTPProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}

	settings := gobreaker.Settings{
		Name:        "quote-upstream",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (p *HTTPProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, symbol)
	})
	if err != nil {
		return Quote{}, err
	}
	return result.(Quote), nil
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			ShortName                  string  `json:"shortName"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (p *HTTPProvider) fetch(ctx context.Context, symbol string) (Quote, error) {
	u := fmt.Sprintf("%s?symbols=%s", p.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fetch quote %s: status %d", symbol, resp.StatusCode)
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Quote{}, fmt.Errorf("decode quote %s: %w", symbol, err)
	}

	results := decoded.QuoteResponse.Result
	if len(results) == 0 {
		return Quote{}, fmt.Errorf("no quote data for %s", symbol)
	}

	r := results[0]
	if r.RegularMarketPrice <= 0 {
		return Quote{}, fmt.Errorf("malformed quote for %s: price %f", symbol, r.RegularMarketPrice)
	}

	name := r.ShortName
	if name == "" {
		name = symbol
	}

	return Quote{
		Symbol:        symbol,
		Price:         r.RegularMarketPrice,
		ChangePercent: r.RegularMarketChangePercent,
		Name:          name,
	}, nil
}
