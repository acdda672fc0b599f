// Package game is the orchestration layer: it composes the quote cache,
// ledger, trade journal and leaderboard into the operations the HTTP
// surface exposes. Trades respond as soon as the ledger commits; journal
// appends and leaderboard refreshes run as queued background tasks.
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stonkstreet/stonkstreet/internal/history"
	"github.com/stonkstreet/stonkstreet/internal/leaderboard"
	"github.com/stonkstreet/stonkstreet/internal/ledger"
	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/metrics"
	"github.com/stonkstreet/stonkstreet/internal/quotes"
	"github.com/stonkstreet/stonkstreet/internal/tasks"
)

var (
	// ErrSessionClosed rejects equity trades outside exchange hours.
	// Crypto trades never hit it.
	ErrSessionClosed = errors.New("equities session closed")
	// ErrInvalidSide rejects trade sides other than buy and sell.
	ErrInvalidSide = errors.New("invalid trade side")
	// ErrInvalidQuantity rejects non-positive trade quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Quoter is the slice of the quote cache the service needs.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (quotes.Quote, error)
	Universe(ctx context.Context, rt quotes.RequestType) []quotes.Quote
	PriceMap(ctx context.Context) map[string]float64
}

// Service exposes every game operation.
type Service struct {
	quotes  Quoter
	ledger  *ledger.Ledger
	history *history.Log
	board   *leaderboard.Board
	session *market.Session
	runner  tasks.Submitter
	mx      *metrics.Metrics
}

// New wires the service. runner may be nil, in which case side effects
// run inline on the request path.
func New(q Quoter, l *ledger.Ledger, h *history.Log, b *leaderboard.Board, session *market.Session, runner tasks.Submitter, mx *metrics.Metrics) *Service {
	return &Service{
		quotes:  q,
		ledger:  l,
		history: h,
		board:   b,
		session: session,
		runner:  runner,
		mx:      mx,
	}
}

// PortfolioView is a portfolio marked to market.
type PortfolioView struct {
	Portfolio  *ledger.Portfolio `json:"portfolio"`
	TotalValue float64           `json:"totalValue"`
}

// Trade executes a buy or sell for userID at the current cached price.
// Equity symbols require an open session; crypto trades around the
// clock. Insufficient funds or shares come back as an unsuccessful
// Result, not an error.
func (s *Service) Trade(ctx context.Context, userID, ticker, side string, quantity decimal.Decimal) (*ledger.Result, error) {
	if side != SideBuy && side != SideSell {
		return nil, ErrInvalidSide
	}
	if quantity.Sign() <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !quotes.Known(ticker) {
		return nil, quotes.ErrUnknownSymbol
	}
	if !quotes.IsCrypto(ticker) && !s.session.EquitiesOpen() {
		s.mx.TradeExecuted(side, "session_closed")
		return nil, ErrSessionClosed
	}

	q, err := s.quotes.Quote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", ticker, err)
	}
	price := decimal.NewFromFloat(q.Price)

	var res *ledger.Result
	switch side {
	case SideBuy:
		res, err = s.ledger.Buy(ctx, userID, ticker, price, quantity)
	case SideSell:
		res, err = s.ledger.Sell(ctx, userID, ticker, price, quantity)
	}
	if err != nil {
		s.mx.TradeExecuted(side, "error")
		return nil, err
	}
	if !res.Success {
		s.mx.TradeExecuted(side, "rejected")
		return res, nil
	}
	s.mx.TradeExecuted(side, "ok")

	entry := history.Entry{
		Ticker:    ticker,
		Quantity:  quantity,
		Price:     price,
		Side:      side,
		Timestamp: s.session.Now(),
	}
	s.submit("history.append", func(ctx context.Context) error {
		return s.history.Append(ctx, userID, entry)
	})
	s.submit("leaderboard.update", func(ctx context.Context) error {
		return s.refreshScore(ctx, userID)
	})

	return res, nil
}

// refreshScore marks the user's portfolio to market against the whole
// universe and upserts the result.
func (s *Service) refreshScore(ctx context.Context, userID string) error {
	p, err := s.ledger.Portfolio(ctx, userID)
	if err != nil {
		return err
	}
	prices := s.quotes.PriceMap(ctx)
	return s.board.Update(ctx, userID, ledger.TotalValue(p, prices))
}

// submit queues fn on the runner, or runs it inline when none is wired.
func (s *Service) submit(name string, fn func(ctx context.Context) error) {
	if s.runner != nil {
		s.runner.Submit(name, fn)
		return
	}
	_ = fn(context.Background())
}

// Portfolio returns the user's holdings marked to current prices. The
// read itself may apply the lazy daily reset, and it upserts the fresh
// valuation onto the leaderboard: players appear on the board without
// trading, and scores track market moves between trades.
func (s *Service) Portfolio(ctx context.Context, userID string) (*PortfolioView, error) {
	p, err := s.ledger.Portfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	total := ledger.TotalValue(p, s.quotes.PriceMap(ctx))

	s.submit("leaderboard.update", func(ctx context.Context) error {
		return s.board.Update(ctx, userID, total)
	})

	return &PortfolioView{Portfolio: p, TotalValue: total}, nil
}

// History returns the user's trade journal, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]history.Entry, error) {
	return s.history.List(ctx, userID)
}

// Leaderboard returns the current top standings.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	return s.board.Top(ctx, n)
}

// PreviousWinners loads the archived standings from daysAgo days before
// now. Absence is reported without error; the caller decides how to
// present an empty day.
func (s *Service) PreviousWinners(ctx context.Context, daysAgo int) (*leaderboard.Snapshot, bool, error) {
	if daysAgo < 1 {
		daysAgo = 1
	}
	dateKey := s.session.DateAt(s.session.Now().AddDate(0, 0, -daysAgo))
	return s.board.Archive(ctx, dateKey)
}

// Stocks lists quotes for the requested slice of the universe.
func (s *Service) Stocks(ctx context.Context, rt quotes.RequestType) []quotes.Quote {
	return s.quotes.Universe(ctx, rt)
}

// SyncUsername records the display name shown on the leaderboard.
func (s *Service) SyncUsername(ctx context.Context, userID, username string) error {
	return s.board.SetUsername(ctx, userID, username)
}
