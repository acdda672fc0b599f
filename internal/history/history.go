// Package history keeps an append-only, capped trade journal per user.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stonkstreet/stonkstreet/internal/store"
)

// MaxEntries caps the journal; older trades fall off the end.
const MaxEntries = 50

// Entry is one recorded trade.
type Entry struct {
	Ticker    string          `json:"ticker"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Side      string          `json:"side"` // buy or sell
	Timestamp time.Time       `json:"timestamp"`
}

// Log stores journals newest-first as one JSON list per user. Writes
// for a user are serialized through a per-user mutex; the append is a
// read-modify-write over the whole list and would otherwise lose
// entries under concurrent trades.
type Log struct {
	store store.Store

	// locks retains one mutex per user ever seen; never evicted.
	locks sync.Map // userID -> *sync.Mutex
}

func NewLog(st store.Store) *Log {
	return &Log{store: st}
}

func historyKey(userID string) string {
	return "user:" + userID + ":history"
}

func (l *Log) userLock(userID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append prepends entry and truncates the journal to MaxEntries.
func (l *Log) Append(ctx context.Context, userID string, entry Entry) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	entries, err := l.List(ctx, userID)
	if err != nil {
		return err
	}

	entries = append([]Entry{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := l.store.Set(ctx, historyKey(userID), data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// List returns the journal newest-first, empty when nothing is recorded.
func (l *Log) List(ctx context.Context, userID string) ([]Entry, error) {
	data, found, err := l.store.Get(ctx, historyKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !found {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}

// Clear wipes the journal. Invoked from the daily reset path. Takes
// the user lock so a concurrent append cannot resurrect cleared
// entries.
func (l *Log) Clear(ctx context.Context, userID string) error {
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := l.store.Delete(ctx, historyKey(userID)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
