// Package quotes resolves symbols from the fixed game universe to
// near-real-time prices, caching aggressively and degrading to synthetic
// fallback data when the upstream feed is unavailable.
package quotes

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/metrics"
)

// ErrUnknownSymbol marks a ticker outside the static universe.
var ErrUnknownSymbol = errors.New("unknown symbol")

// DefaultTTL bounds how stale a served quote may be.
const DefaultTTL = 5 * time.Second

// Cache serves quotes from a short-TTL in-process cache. On upstream
// failure it synthesizes a plausible quote from the symbol's baseline
// price and caches that too, so a dead feed is retried at most once per
// TTL window per symbol.
type Cache struct {
	provider Provider
	session  *market.Session
	ttl      time.Duration
	mx       *metrics.Metrics

	now  func() time.Time
	rand func() float64 // uniform in [0,1)

	mu    sync.RWMutex
	items map[string]Quote
}

// NewCache wires the cache over a provider. A nil metrics handle is
// fine; ttl <= 0 selects DefaultTTL.
func NewCache(provider Provider, session *market.Session, ttl time.Duration, mx *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		provider: provider,
		session:  session,
		ttl:      ttl,
		mx:       mx,
		now:      time.Now,
		rand:     rand.Float64,
		items:    make(map[string]Quote),
	}
}

// Quote resolves symbol to a quote. Symbols outside the universe fail
// immediately; everything else always succeeds, falling back to
// synthetic data when the upstream fetch errors, times out, or returns
// garbage.
func (c *Cache) Quote(ctx context.Context, symbol string) (Quote, error) {
	if !Known(symbol) {
		return Quote{}, ErrUnknownSymbol
	}

	now := c.now()

	c.mu.RLock()
	cached, ok := c.items[symbol]
	c.mu.RUnlock()
	if ok && now.Sub(cached.CachedAt) < c.ttl {
		c.mx.QuoteCacheHit()
		return cached, nil
	}
	c.mx.QuoteCacheMiss()

	q, err := c.provider.Quote(ctx, symbol)
	if err != nil || q.Price <= 0 {
		if err == nil {
			err = errors.New("non-positive price")
		}
		log.Warn().Err(err).Str("symbol", symbol).Msg("upstream quote failed, serving fallback")
		q = c.fallback(symbol)
	}
	q.CachedAt = now

	c.mu.Lock()
	c.items[symbol] = q
	c.mu.Unlock()

	return q, nil
}

// fallback synthesizes a quote around the symbol's baseline: price
// jittered within ±1%, change percent uniform in ±2.5%.
func (c *Cache) fallback(symbol string) Quote {
	c.mx.FallbackQuote()
	base := Baseline(symbol)
	return Quote{
		Symbol:        symbol,
		Price:         base * (1 + (c.rand()*0.02 - 0.01)),
		ChangePercent: c.rand()*5 - 2.5,
		Name:          symbol,
	}
}

// Universe lists quotes for the requested slice of the symbol universe.
// Auto resolves to stocks while the equities session is open and crypto
// otherwise. Symbols fetch concurrently; there is no ordering
// requirement between fetches, but the returned slice keeps universe
// order.
func (c *Cache) Universe(ctx context.Context, rt RequestType) []Quote {
	if rt == RequestAuto {
		if c.session.EquitiesOpen() {
			rt = RequestStocks
		} else {
			rt = RequestCrypto
		}
	}

	var symbols []string
	if rt == RequestStocks || rt == RequestAll {
		symbols = append(symbols, Equities...)
	}
	if rt == RequestCrypto || rt == RequestAll {
		symbols = append(symbols, Crypto...)
	}

	results := make([]Quote, len(symbols))
	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			q, err := c.Quote(ctx, symbol)
			if err != nil {
				// Unreachable for universe symbols; fallback synthesis
				// absorbs upstream failure.
				log.Error().Err(err).Str("symbol", symbol).Msg("universe quote failed")
				return
			}
			results[i] = q
		}(i, symbol)
	}
	wg.Wait()

	quotes := make([]Quote, 0, len(results))
	for _, q := range results {
		if q.Symbol != "" {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// PriceMap returns current prices for the whole universe, used for
// portfolio valuation.
func (c *Cache) PriceMap(ctx context.Context) map[string]float64 {
	all := c.Universe(ctx, RequestAll)
	prices := make(map[string]float64, len(all))
	for _, q := range all {
		prices[q.Symbol] = q.Price
	}
	return prices
}
