// Package ledger owns per-user portfolio state and its mutation rules:
// lazy daily reset, buy, sell, and valuation. All mutations for a user
// are serialized through a per-user mutex; two concurrent trades can
// never lose an update.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/metrics"
	"github.com/stonkstreet/stonkstreet/internal/store"
)

// Result reports a trade attempt. Business-rule failures come back with
// Success false and a printable message, never as errors; the error
// return is reserved for persistence failures.
type Result struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Portfolio *Portfolio `json:"portfolio,omitempty"`
}

// HistoryClearer wipes a user's trade journal; invoked only from the
// reset path.
type HistoryClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Ledger mediates every portfolio read and write.
type Ledger struct {
	store   store.Store
	session *market.Session
	history HistoryClearer
	mx      *metrics.Metrics

	// locks retains one mutex per user ever seen; never evicted.
	locks sync.Map // userID -> *sync.Mutex
}

// New wires a ledger. history may be nil when no journal is attached.
func New(st store.Store, session *market.Session, history HistoryClearer, mx *metrics.Metrics) *Ledger {
	return &Ledger{store: st, session: session, history: history, mx: mx}
}

func portfolioKey(userID string) string {
	return "user:" + userID + ":portfolio"
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Portfolio loads the user's portfolio, creating it lazily on first
// access and applying the daily reset when one is due. The reset is
// idempotent per exchange date and never fires on weekends.
func (l *Ledger) Portfolio(ctx context.Context, userID string) (*Portfolio, error) {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return l.portfolioLocked(ctx, userID)
}

func (l *Ledger) portfolioLocked(ctx context.Context, userID string) (*Portfolio, error) {
	data, found, err := l.store.Get(ctx, portfolioKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}

	now := l.session.Now()
	today := l.session.DateAt(now)

	if !found {
		p := newPortfolio(today, now)
		if err := l.save(ctx, userID, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	p := new(Portfolio)
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode portfolio: %w", err)
	}
	if p.Assets == nil {
		p.Assets = make(map[string]decimal.Decimal)
	}

	if NeedsReset(p.LastResetDate, today, !l.session.WeekendAt(now)) {
		p.Cash = InitialStake
		p.Assets = make(map[string]decimal.Decimal)
		p.LastResetDate = today
		p.LastUpdated = now
		if err := l.save(ctx, userID, p); err != nil {
			return nil, err
		}
		if l.history != nil {
			if err := l.history.Clear(ctx, userID); err != nil {
				log.Error().Err(err).Str("user", userID).Msg("failed to clear history on reset")
			}
		}
		l.mx.ResetApplied()
		log.Info().Str("user", userID).Str("date", today).Msg("daily reset applied")
	}

	return p, nil
}

// Buy purchases quantity of ticker at price. Fails the trade when cash
// cannot cover the cost; cash is rounded to 2 decimals and floored at
// zero, the position to 8 decimals.
func (l *Ledger) Buy(ctx context.Context, userID, ticker string, price, quantity decimal.Decimal) (*Result, error) {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := l.portfolioLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	cost := price.Mul(quantity)
	if p.Cash.LessThan(cost) {
		return &Result{Success: false, Message: "Not enough cash!"}, nil
	}

	p.Cash = p.Cash.Sub(cost).Round(CashPrecision)
	if p.Cash.IsNegative() {
		p.Cash = decimal.Zero
	}
	p.Assets[ticker] = p.Quantity(ticker).Add(quantity).Round(AssetPrecision)
	p.LastUpdated = l.session.Now()

	if err := l.save(ctx, userID, p); err != nil {
		return nil, err
	}

	return &Result{
		Success:   true,
		Message:   fmt.Sprintf("Bought %s %s @ $%s", quantity, ticker, price),
		Portfolio: p,
	}, nil
}

// Sell disposes quantity of ticker at price. Fails the trade when the
// held quantity is short; a position whose remainder rounds to zero or
// below is removed rather than stored.
func (l *Ledger) Sell(ctx context.Context, userID, ticker string, price, quantity decimal.Decimal) (*Result, error) {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := l.portfolioLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	held := p.Quantity(ticker)
	if held.LessThan(quantity) {
		return &Result{Success: false, Message: "Not enough shares!"}, nil
	}

	p.Cash = p.Cash.Add(price.Mul(quantity)).Round(CashPrecision)

	remaining := held.Sub(quantity).Round(AssetPrecision)
	if remaining.Sign() <= 0 {
		delete(p.Assets, ticker)
	} else {
		p.Assets[ticker] = remaining
	}
	p.LastUpdated = l.session.Now()

	if err := l.save(ctx, userID, p); err != nil {
		return nil, err
	}

	return &Result{
		Success:   true,
		Message:   fmt.Sprintf("Sold %s %s @ $%s", quantity, ticker, price),
		Portfolio: p,
	}, nil
}

func (l *Ledger) save(ctx context.Context, userID string, p *Portfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode portfolio: %w", err)
	}
	if err := l.store.Set(ctx, portfolioKey(userID), data); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}
