package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and by local development
// without a Redis instance. Sorted-set semantics mirror Redis, including
// the reverse-lexicographic ordering of equal scores.
type Memory struct {
	mu     sync.RWMutex
	kv     map[string][]byte
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:     make(map[string][]byte),
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.kv[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.kv[key] = cp
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.kv[key]; exists {
		return false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.kv[key] = cp
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	delete(m.zsets, key)
	return nil
}

func (m *Memory) SortedSetUpsert(_ context.Context, set, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	zset, ok := m.zsets[set]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[set] = zset
	}
	zset[member] = score
	return nil
}

func (m *Memory) SortedSetRangeDesc(_ context.Context, set string, start, stop int64) ([]ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zset := m.zsets[set]
	members := make([]ScoredMember, 0, len(zset))
	for member, score := range zset {
		members = append(members, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	if start < 0 {
		start = 0
	}
	if start >= int64(len(members)) {
		return nil, nil
	}
	if stop >= int64(len(members)) || stop < 0 {
		stop = int64(len(members)) - 1
	}
	if stop < start {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (m *Memory) HashGet(_ context.Context, hash, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.hashes[hash][field]
	return val, ok, nil
}

func (m *Memory) HashSet(_ context.Context, hash, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hash]
	if !ok {
		h = make(map[string]string)
		m.hashes[hash] = h
	}
	h[field] = value
	return nil
}
