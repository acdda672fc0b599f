// Package leaderboard ranks users by total portfolio valuation and
// archives the daily top standings before each reset.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stonkstreet/stonkstreet/internal/store"
)

const (
	setKey        = "leaderboard"
	usersHash     = "users:metadata"
	archivePrefix = "leaderboard:archive:"
)

// DefaultTopN is the archive snapshot size.
const DefaultTopN = 10

// Entry is one ranked row with its resolved display name.
type Entry struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Score    float64 `json:"score"`
}

// Snapshot is the immutable archive of one exchange day's final
// standings.
type Snapshot struct {
	Date       string    `json:"date"`
	ArchivedAt time.Time `json:"archivedAt"`
	Entries    []Entry   `json:"entries"`
}

// Board is the live ranked score store.
type Board struct {
	store store.Store
	topN  int
	now   func() time.Time
}

// New builds a board; topN <= 0 selects DefaultTopN.
func New(st store.Store, topN int) *Board {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Board{store: st, topN: topN, now: time.Now}
}

// Update upserts the user's latest total valuation. Scores overwrite,
// they never accumulate.
func (b *Board) Update(ctx context.Context, userID string, score float64) error {
	if err := b.store.SortedSetUpsert(ctx, setKey, userID, score); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	return nil
}

// Top returns the n highest-scoring entries, usernames resolved. Equal
// scores order deterministically (reverse-lexicographic member order,
// the substrate's tie-break).
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = b.topN
	}
	members, err := b.store.SortedSetRangeDesc(ctx, setKey, 0, int64(n)-1)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		username, err := b.Username(ctx, m.Member)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{UserID: m.Member, Username: username, Score: m.Score})
	}
	return entries, nil
}

// SetUsername records the display name for a user identity.
func (b *Board) SetUsername(ctx context.Context, userID, username string) error {
	if err := b.store.HashSet(ctx, usersHash, userID, username); err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

// Username resolves a display name, falling back to the raw identity.
func (b *Board) Username(ctx context.Context, userID string) (string, error) {
	username, found, err := b.store.HashGet(ctx, usersHash, userID)
	if err != nil {
		return "", fmt.Errorf("resolve username: %w", err)
	}
	if !found || username == "" {
		return userID, nil
	}
	return username, nil
}

// ArchiveAndClear snapshots the current top standings under dateKey and
// wipes the live board. The snapshot write is first-wins: calling twice
// with the same key stores exactly one snapshot. An update landing
// between the snapshot read and the clear can be lost; accepted as a
// best-effort boundary.
func (b *Board) ArchiveAndClear(ctx context.Context, dateKey string) error {
	entries, err := b.Top(ctx, b.topN)
	if err != nil {
		return err
	}

	snap := Snapshot{Date: dateKey, ArchivedAt: b.now(), Entries: entries}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	created, err := b.store.SetIfAbsent(ctx, archivePrefix+dateKey, data)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if !created {
		log.Info().Str("date", dateKey).Msg("snapshot already archived, clearing only")
	}

	if err := b.store.Delete(ctx, setKey); err != nil {
		return fmt.Errorf("clear leaderboard: %w", err)
	}

	log.Info().Str("date", dateKey).Int("entries", len(entries)).Msg("leaderboard archived and cleared")
	return nil
}

// Archive loads the snapshot for dateKey, reporting absence without
// error.
func (b *Board) Archive(ctx context.Context, dateKey string) (*Snapshot, bool, error) {
	data, found, err := b.store.Get(ctx, archivePrefix+dateKey)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	snap := new(Snapshot)
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
