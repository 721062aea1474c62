// Package evict provides the bounded, TTL-aware table behind the rate
// limiter and the request-id tracker.
//
// Entries are kept in least-recently-touched order. Capacity is enforced on
// every Put by dropping the oldest entry; idle entries are dropped by Expire,
// which walks from the oldest end and stops at the first live entry. There
// is no background sweeper.
//
// A Table is not safe for concurrent use; owners guard it with their own
// mutex so that lookups and updates happen under one lock.
package evict

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry[V any] struct {
	value   V
	touched time.Time
}

type Table[V any] struct {
	lru     *simplelru.LRU[string, entry[V]]
	ttl     time.Duration
	evicted int
}

// NewTable returns a table holding at most maxEntries keys (at least one)
// that forgets keys not touched for longer than ttl. A non-positive ttl
// disables idle expiry.
func NewTable[V any](maxEntries int, ttl time.Duration) *Table[V] {
	lru, err := simplelru.NewLRU[string, entry[V]](max(maxEntries, 1), nil)
	if err != nil {
		// NewLRU only fails for a non-positive size.
		panic(err)
	}
	return &Table[V]{lru: lru, ttl: ttl}
}

// Peek returns the value for key without touching it.
func (t *Table[V]) Peek(key string) (V, bool) {
	e, ok := t.lru.Peek(key)
	return e.value, ok
}

// Put stores value under key, marks it as the most recently touched entry
// and evicts the oldest entry if the table is over capacity.
func (t *Table[V]) Put(key string, value V, now time.Time) {
	if t.lru.Add(key, entry[V]{value: value, touched: now}) {
		t.evicted++
	}
}

func (t *Table[V]) Remove(key string) bool {
	return t.lru.Remove(key)
}

func (t *Table[V]) Len() int {
	return t.lru.Len()
}

// Evicted reports how many entries were dropped for capacity or idleness.
func (t *Table[V]) Evicted() int {
	return t.evicted
}

// Expire drops entries idle for longer than the ttl, oldest first, and
// returns how many were removed.
func (t *Table[V]) Expire(now time.Time) int {
	if t.ttl <= 0 {
		return 0
	}

	removed := 0
	for {
		_, oldest, ok := t.lru.GetOldest()
		if !ok || now.Sub(oldest.touched) <= t.ttl {
			return removed
		}
		t.lru.RemoveOldest()
		t.evicted++
		removed++
	}
}
