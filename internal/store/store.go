// Package store defines the persistence substrate the game runs on: a
// key-value namespace, sorted sets for ranked scores, and hashes for
// identity-to-username resolution. Domain packages consume only the
// Store contract; Redis is the production implementation.
package store

import "context"

// ScoredMember is one entry of a sorted-set range.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the substrate contract.
type Store interface {
	// Get returns the value at key, reporting absence without error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes value at key unconditionally.
	Set(ctx context.Context, key string, value []byte) error
	// SetIfAbsent writes value only when key does not exist and reports
	// whether the write happened.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SortedSetUpsert inserts or overwrites member's score in set.
	SortedSetUpsert(ctx context.Context, set, member string, score float64) error
	// SortedSetRangeDesc returns members ordered by score descending,
	// start and stop being inclusive rank bounds. Equal scores order by
	// reverse-lexicographic member, matching Redis ZREVRANGE.
	SortedSetRangeDesc(ctx context.Context, set string, start, stop int64) ([]ScoredMember, error)

	// HashGet returns the field value, reporting absence without error.
	HashGet(ctx context.Context, hash, field string) (string, bool, error)
	// HashSet writes the field value.
	HashSet(ctx context.Context, hash, field, value string) error
}
