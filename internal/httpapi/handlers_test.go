package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonkstreet/stonkstreet/internal/game"
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

type stubQuoter struct {
	prices map[string]float64
}

func (q *stubQuoter) Quote(_ context.Context, symbol string) (quotes.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return quotes.Quote{}, quotes.ErrUnknownSymbol
	}
	return quotes.Quote{Symbol: symbol, Price: price, Name: symbol}, nil
}

func (q *stubQuoter) Universe(_ context.Context, _ quotes.RequestType) []quotes.Quote {
	out := make([]quotes.Quote, 0, len(q.prices))
	for symbol, price := range q.prices {
		out = append(out, quotes.Quote{Symbol: symbol, Price: price, Name: symbol})
	}
	return out
}

func (q *stubQuoter) PriceMap(context.Context) map[string]float64 {
	return q.prices
}

func newTestServer(t *testing.T, at time.Time) *Server {
	t.Helper()
	session, err := market.NewSession(&testClock{t: at})
	require.NoError(t, err)

	st := store.NewMemory()
	hist := history.NewLog(st)
	led := ledger.New(st, session, hist, nil)
	board := leaderboard.New(st, leaderboard.DefaultTopN)
	q := &stubQuoter{prices: map[string]float64{"GME": 25.50, "BTC-USD": 68000.00}}

	svc := game.New(q, led, hist, board, session, nil, nil)
	return NewServer(DefaultServerConfig(), svc, nil)
}

func openClock(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(market.ExchangeTimezone)
	require.NoError(t, err)
	return time.Date(2024, 3, 13, 12, 0, 0, 0, loc)
}

func closedClock(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(market.ExchangeTimezone)
	require.NoError(t, err)
	return time.Date(2024, 3, 13, 20, 0, 0, 0, loc)
}

func doRequest(s *Server, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, openClock(t))
	rec := doRequest(s, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUserRoutesRequireIdentity(t *testing.T) {
	s := newTestServer(t, openClock(t))

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/portfolio"},
		{"POST", "/api/trade"},
		{"GET", "/api/history"},
		{"POST", "/api/username/sync"},
	} {
		rec := doRequest(s, tc.method, tc.path, "", "{}")
		assert.Equalf(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestTradeSuccess(t *testing.T) {
	s := newTestServer(t, openClock(t))

	rec := doRequest(s, "POST", "/api/trade", "u1",
		`{"ticker":"GME","side":"buy","quantity":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res ledger.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "9745.00", res.Portfolio.Cash.StringFixed(2))

	t.Run("the trade lands in the journal", func(t *testing.T) {
		rec := doRequest(s, "GET", "/api/history", "u1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var entries []history.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "GME", entries[0].Ticker)
	})

	t.Run("the public journal route matches", func(t *testing.T) {
		rec := doRequest(s, "GET", "/api/users/u1/history", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var entries []history.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		assert.Len(t, entries, 1)
	})
}

func TestTradeErrorMapping(t *testing.T) {
	t.Run("closed session", func(t *testing.T) {
		s := newTestServer(t, closedClock(t))
		rec := doRequest(s, "POST", "/api/trade", "u1",
			`{"ticker":"GME","side":"buy","quantity":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Stock Market Closed!")
	})

	t.Run("unknown ticker", func(t *testing.T) {
		s := newTestServer(t, openClock(t))
		rec := doRequest(s, "POST", "/api/trade", "u1",
			`{"ticker":"ENRON","side":"buy","quantity":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid ticker")
	})

	t.Run("invalid side", func(t *testing.T) {
		s := newTestServer(t, openClock(t))
		rec := doRequest(s, "POST", "/api/trade", "u1",
			`{"ticker":"GME","side":"short","quantity":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t, openClock(t))
		rec := doRequest(s, "POST", "/api/trade", "u1", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("business rejection is still a 200", func(t *testing.T) {
		s := newTestServer(t, openClock(t))
		rec := doRequest(s, "POST", "/api/trade", "u1",
			`{"ticker":"BTC-USD","side":"buy","quantity":1}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res ledger.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, "Not enough cash!", res.Message)
	})
}

func TestPortfolioView(t *testing.T) {
	s := newTestServer(t, openClock(t))

	rec := doRequest(s, "GET", "/api/portfolio", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view game.PortfolioView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "10000", view.Portfolio.Cash.String())
	assert.InDelta(t, 10000.0, view.TotalValue, 0.01)
}

func TestLeaderboardRoutes(t *testing.T) {
	s := newTestServer(t, openClock(t))

	rec := doRequest(s, "POST", "/api/username/sync", "u1", `{"username":"moon_boy"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/trade", "u1",
		`{"ticker":"GME","side":"buy","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "GET", "/api/leaderboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []leaderboard.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "moon_boy", entries[0].Username)

	t.Run("bad limit rejects", func(t *testing.T) {
		rec := doRequest(s, "GET", "/api/leaderboard?limit=zero", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing archive is a 404", func(t *testing.T) {
		rec := doRequest(s, "GET", "/api/leaderboard/previous", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad daysAgo rejects", func(t *testing.T) {
		rec := doRequest(s, "GET", "/api/leaderboard/previous?daysAgo=-1", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUsernameHeaderSyncs(t *testing.T) {
	s := newTestServer(t, openClock(t))

	req := httptest.NewRequest("GET", "/api/portfolio", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-Username", "header_hero")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/trade", "u1",
		`{"ticker":"GME","side":"buy","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "GET", "/api/leaderboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []leaderboard.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "header_hero", entries[0].Username)
}

func TestStocksRoute(t *testing.T) {
	s := newTestServer(t, openClock(t))

	rec := doRequest(s, "GET", "/api/stocks?type=all", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var listed []quotes.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, openClock(t))
	rec := doRequest(s, "GET", "/health", "", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, openClock(t))
	rec := doRequest(s, "GET", "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
