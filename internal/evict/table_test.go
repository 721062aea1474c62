package evict

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTable_PutPeek(t *testing.T) {
	tbl := NewTable[int](10, time.Minute)

	tbl.Put("a", 1, t0)
	v, ok := tbl.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = tbl.Peek("missing")
	assert.False(t, ok)

	assert.True(t, tbl.Remove("a"))
	assert.False(t, tbl.Remove("a"))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_CapacityEvictsLeastRecentlyTouched(t *testing.T) {
	tbl := NewTable[int](3, time.Hour)

	tbl.Put("a", 1, t0)
	tbl.Put("b", 2, t0.Add(time.Second))
	tbl.Put("c", 3, t0.Add(2*time.Second))

	// Touching "a" makes "b" the oldest.
	tbl.Put("a", 1, t0.Add(3*time.Second))
	tbl.Put("d", 4, t0.Add(4*time.Second))

	assert.Equal(t, 3, tbl.Len())
	_, ok := tbl.Peek("b")
	assert.False(t, ok, "least recently touched key evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := tbl.Peek(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 1, tbl.Evicted())
}

func TestTable_Expire(t *testing.T) {
	tbl := NewTable[string](100, time.Minute)

	for i := range 5 {
		tbl.Put(fmt.Sprintf("k%d", i), "v", t0.Add(time.Duration(i)*10*time.Second))
	}

	// k0 (t0) and k1 (t0+10s) are idle for more than a minute at t0+75s.
	removed := tbl.Expire(t0.Add(75 * time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, tbl.Len())

	_, ok := tbl.Peek("k2")
	assert.True(t, ok)

	// Exactly ttl old is still live.
	assert.Equal(t, 0, tbl.Expire(t0.Add(80*time.Second)))
	assert.Equal(t, 3, tbl.Expire(t0.Add(time.Hour)))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_NoTTL(t *testing.T) {
	tbl := NewTable[int](0, 0)

	tbl.Put("a", 1, t0)
	assert.Equal(t, 0, tbl.Expire(t0.Add(24*time.Hour)))

	tbl.Put("b", 2, t0)
	assert.Equal(t, 1, tbl.Len(), "capacity is clamped to one")
}
