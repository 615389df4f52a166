// Package cache provides the content-addressed store shared by all
// pipeline stages. Keys are stable hashes over stage inputs; values are
// immutable serialized artifacts evicted LRU under a byte budget.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrStore indicates a cache-level failure. Callers recover by bypassing
// the cache for that call; the underlying computation stays available.
var ErrStore = errors.New("cache store failed")

// KeyOf derives a stable cache key from a stage name and its semantic
// inputs. Inputs are serialized as canonical JSON and hashed, so any
// JSON-encodable value participates; timestamps and other ephemeral
// values must not be passed.
func KeyOf(stage string, inputs ...any) (string, error) {
	h := sha256.New()
	h.Write([]byte(stage))
	for _, in := range inputs {
		b, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("%w: unhashable input: %v", ErrStore, err)
		}
		h.Write([]byte{0})
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type entry struct {
	key       string
	value     []byte
	size      int64
	createdAt time.Time
}

// Store is a concurrency-safe, byte-budgeted LRU artifact store with an
// at-most-one-computation guarantee per key.
type Store struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	order   *list.List
	entries map[string]*list.Element

	flight singleflight.Group
	logger zerolog.Logger

	computes atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewStore creates a Store holding at most budget bytes of artifacts.
func NewStore(budget int64, logger zerolog.Logger) *Store {
	return &Store{
		budget:  budget,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		logger:  logger.With().Str("component", "cache").Logger(),
	}
}

// GetOrCompute returns the cached artifact for key, computing and storing
// it on a miss. Concurrent callers for the same key share one in-flight
// computation; a cancelled caller abandons the wait without disturbing
// other waiters. Failed computations are never cached. The returned
// bytes are shared and must not be modified.
func (s *Store) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := s.lookup(key); ok {
		s.hits.Add(1)
		return v, nil
	}
	s.misses.Add(1)

	// The computation is detached from this caller's cancellation so it
	// completes normally for concurrent waiters on the same key.
	ch := s.flight.DoChan(key, func() (any, error) {
		if v, ok := s.lookup(key); ok {
			return v, nil
		}
		s.computes.Add(1)
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.insert(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached artifact for key without computing.
func (s *Store) Get(key string) ([]byte, bool) {
	v, ok := s.lookup(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Put stores an artifact under key, replacing any existing entry.
func (s *Store) Put(key string, value []byte) {
	s.insert(key, value)
}

// Stats reports lifetime compute, hit, and miss counts.
func (s *Store) Stats() (computes, hits, misses int64) {
	return s.computes.Load(), s.hits.Load(), s.misses.Load()
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// UsedBytes reports the total size of stored artifacts.
func (s *Store) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Store) lookup(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	// Entries are immutable; a returned slice stays valid even if the
	// entry is evicted while the caller holds it.
	return el.Value.(*entry).value, true
}

func (s *Store) insert(key string, value []byte) {
	size := int64(len(value))
	if size > s.budget {
		s.logger.Warn().Str("key", key).Int64("size", size).Int64("budget", s.budget).Msg("Artifact exceeds cache budget, not stored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		old := el.Value.(*entry)
		s.used -= old.size
		s.order.Remove(el)
		delete(s.entries, key)
	}

	for s.used+size > s.budget {
		back := s.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*entry)
		s.order.Remove(back)
		delete(s.entries, victim.key)
		s.used -= victim.size
		s.logger.Debug().Str("key", victim.key).Int64("size", victim.size).Msg("Evicted cache entry")
	}

	e := &entry{key: key, value: value, size: size, createdAt: time.Now()}
	s.entries[key] = s.order.PushFront(e)
	s.used += size
}
