package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonkstreet/stonkstreet/internal/history"
	"github.com/stonkstreet/stonkstreet/internal/leaderboard"
	"github.com/stonkstreet/stonkstreet/internal/ledger"
	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/quotes"
	"github.com/stonkstreet/stonkstreet/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// fixedQuoter serves static prices without any upstream dependency.
type fixedQuoter struct {
	prices map[string]float64
}

func (q *fixedQuoter) Quote(_ context.Context, symbol string) (quotes.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return quotes.Quote{}, quotes.ErrUnknownSymbol
	}
	return quotes.Quote{Symbol: symbol, Price: price, Name: symbol}, nil
}

func (q *fixedQuoter) Universe(_ context.Context, _ quotes.RequestType) []quotes.Quote {
	out := make([]quotes.Quote, 0, len(q.prices))
	for symbol, price := range q.prices {
		out = append(out, quotes.Quote{Symbol: symbol, Price: price, Name: symbol})
	}
	return out
}

func (q *fixedQuoter) PriceMap(context.Context) map[string]float64 {
	return q.prices
}

// marketOpen is a Wednesday at noon exchange time.
func marketOpen(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(market.ExchangeTimezone)
	require.NoError(t, err)
	return time.Date(2024, 3, 13, 12, 0, 0, 0, loc)
}

// marketClosed is the same Wednesday after the close.
func marketClosed(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(market.ExchangeTimezone)
	require.NoError(t, err)
	return time.Date(2024, 3, 13, 20, 0, 0, 0, loc)
}

func newTestService(t *testing.T, at time.Time) (*Service, *history.Log, *leaderboard.Board) {
	t.Helper()
	clock := &testClock{t: at}
	session, err := market.NewSession(clock)
	require.NoError(t, err)

	st := store.NewMemory()
	hist := history.NewLog(st)
	led := ledger.New(st, session, hist, nil)
	board := leaderboard.New(st, leaderboard.DefaultTopN)
	q := &fixedQuoter{prices: map[string]float64{
		"GME":     25.50,
		"TSLA":    185.00,
		"BTC-USD": 68000.00,
	}}

	// No runner: side effects run inline, so assertions see them
	// immediately.
	return New(q, led, hist, board, session, nil, nil), hist, board
}

func TestTradeValidation(t *testing.T) {
	s, _, _ := newTestService(t, marketOpen(t))
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	t.Run("invalid side", func(t *testing.T) {
		_, err := s.Trade(ctx, "u1", "GME", "short", one)
		assert.ErrorIs(t, err, ErrInvalidSide)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		_, err := s.Trade(ctx, "u1", "GME", SideBuy, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidQuantity)

		_, err = s.Trade(ctx, "u1", "GME", SideBuy, decimal.NewFromInt(-2))
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("unknown ticker", func(t *testing.T) {
		_, err := s.Trade(ctx, "u1", "ENRON", SideBuy, one)
		assert.ErrorIs(t, err, quotes.ErrUnknownSymbol)
	})
}

func TestTradeSessionGate(t *testing.T) {
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	t.Run("equity trades reject after the close", func(t *testing.T) {
		s, _, _ := newTestService(t, marketClosed(t))
		_, err := s.Trade(ctx, "u1", "GME", SideBuy, one)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("crypto trades around the clock", func(t *testing.T) {
		s, _, _ := newTestService(t, marketClosed(t))
		res, err := s.Trade(ctx, "u1", "BTC-USD", SideBuy, decimal.NewFromFloat(0.1))
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("equity trades pass while open", func(t *testing.T) {
		s, _, _ := newTestService(t, marketOpen(t))
		res, err := s.Trade(ctx, "u1", "GME", SideBuy, one)
		require.NoError(t, err)
		assert.True(t, res.Success)
	})
}

func TestTradeRecordsSideEffects(t *testing.T) {
	s, hist, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	res, err := s.Trade(ctx, "u1", "GME", SideBuy, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "9745.00", res.Portfolio.Cash.StringFixed(2))

	entries, err := hist.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "GME", entries[0].Ticker)
	assert.Equal(t, SideBuy, entries[0].Side)
	assert.Equal(t, "25.5", entries[0].Price.String())

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "u1", top[0].UserID)
	// 9745 cash + 10 * 25.50 marked to market.
	assert.InDelta(t, 10000.0, top[0].Score, 0.01)
}

func TestRejectedTradeLeavesNoTrace(t *testing.T) {
	s, hist, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	res, err := s.Trade(ctx, "u1", "BTC-USD", SideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.False(t, res.Success)
	assert.Equal(t, "Not enough cash!", res.Message)

	entries, err := hist.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestSellRoundTrip(t *testing.T) {
	s, hist, _ := newTestService(t, marketOpen(t))
	ctx := context.Background()
	qty := decimal.NewFromInt(5)

	_, err := s.Trade(ctx, "u1", "TSLA", SideBuy, qty)
	require.NoError(t, err)

	res, err := s.Trade(ctx, "u1", "TSLA", SideSell, qty)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "10000.00", res.Portfolio.Cash.StringFixed(2))
	assert.NotContains(t, res.Portfolio.Assets, "TSLA")

	entries, err := hist.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, SideSell, entries[0].Side, "journal is newest first")
}

func TestPortfolioMarksToMarket(t *testing.T) {
	s, _, _ := newTestService(t, marketOpen(t))
	ctx := context.Background()

	_, err := s.Trade(ctx, "u1", "GME", SideBuy, decimal.NewFromInt(4))
	require.NoError(t, err)

	view, err := s.Portfolio(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "9898.00", view.Portfolio.Cash.StringFixed(2))
	assert.InDelta(t, 10000.0, view.TotalValue, 0.01)
}

func TestPortfolioReadRefreshesLeaderboard(t *testing.T) {
	s, _, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	// A fresh user who never traded lands on the board from the read
	// alone.
	_, err := s.Portfolio(ctx, "u1")
	require.NoError(t, err)

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "u1", top[0].UserID)
	assert.InDelta(t, 10000.0, top[0].Score, 0.01)
}

func TestPortfolioReadTracksMarketMoves(t *testing.T) {
	s, _, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	_, err := s.Trade(ctx, "u1", "GME", SideBuy, decimal.NewFromInt(10))
	require.NoError(t, err)

	// The price doubles after the trade; the next read re-marks the
	// holding and the score moves without any new trade.
	s.quotes.(*fixedQuoter).prices["GME"] = 51.00

	view, err := s.Portfolio(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 10255.0, view.TotalValue, 0.01)

	top, err := board.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.InDelta(t, 10255.0, top[0].Score, 0.01)
}

func TestPreviousWinners(t *testing.T) {
	s, _, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	require.NoError(t, board.Update(ctx, "champ", 13000))
	require.NoError(t, board.ArchiveAndClear(ctx, "2024-03-12"))

	snap, found, err := s.PreviousWinners(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2024-03-12", snap.Date)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "champ", snap.Entries[0].UserID)

	t.Run("daysAgo below one clamps to yesterday", func(t *testing.T) {
		snap, found, err := s.PreviousWinners(ctx, 0)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "2024-03-12", snap.Date)
	})

	t.Run("absent day reports not found", func(t *testing.T) {
		_, found, err := s.PreviousWinners(ctx, 30)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestSyncUsername(t *testing.T) {
	s, _, board := newTestService(t, marketOpen(t))
	ctx := context.Background()

	require.NoError(t, s.SyncUsername(ctx, "t2_abc", "moon_boy"))
	require.NoError(t, board.Update(ctx, "t2_abc", 10000))

	top, err := s.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "moon_boy", top[0].Username)
}
