// Package ratelimit implements a per-client fixed-window request limiter.
//
// Time is cut into consecutive windows aligned to the Unix epoch. Each
// client gets a counter for the current window; once it reaches the limit
// further requests are rejected until the window rolls over. Idle clients
// are forgotten after a TTL and the table never holds more than MaxEntries
// clients, so memory stays bounded regardless of how many identities are
// seen.
//
// A request straddling a window boundary may see up to twice the limit in a
// short span. That is inherent to fixed windows and accepted here.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/zappro/internal/evict"
	"github.com/dmitrijs2005/zappro/internal/timex"
)

const (
	DefaultMaxRequests = 100
	DefaultWindow      = time.Minute
	DefaultMaxEntries  = 10_000
)

type Config struct {
	// MaxRequests per window. Zero or negative disables limiting.
	MaxRequests int
	Window      time.Duration
	// TTL after which an idle client's bucket is dropped. Defaults to two
	// windows and is never shorter than one window.
	TTL        time.Duration
	MaxEntries int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.TTL <= 0 {
		c.TTL = 2 * c.Window
	}
	if c.TTL < c.Window {
		c.TTL = c.Window
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the time left in the current window when the request
	// was rejected, zero otherwise.
	RetryAfter time.Duration
	Limit      int
	Remaining  int
	ResetAt    time.Time
	// Evicted counts the buckets dropped while handling this request.
	Evicted int
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one
// for a rejected request. It is the value sent in a Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

type bucket struct {
	windowStart int64
	count       int
}

type Limiter struct {
	cfg   Config
	clock timex.Clock

	mu      sync.Mutex
	buckets *evict.Table[*bucket]
}

type Option func(*Limiter)

func WithClock(c timex.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func New(cfg Config, opts ...Option) *Limiter {
	cfg = cfg.withDefaults()
	l := &Limiter{
		cfg:     cfg,
		buckets: evict.NewTable[*bucket](cfg.MaxEntries, cfg.TTL),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) Config() Config {
	return l.cfg
}

// Enabled reports whether the limiter rejects anything at all.
func (l *Limiter) Enabled() bool {
	return l.cfg.MaxRequests > 0
}

// Allow records one request from client and reports whether it is admitted.
// The lookup, the counter update and the eviction sweep happen under one
// lock so concurrent callers never lose increments.
func (l *Limiter) Allow(client string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}

	now := l.clock.Now()
	window := l.cfg.Window.Nanoseconds()
	nowNs := now.UnixNano()
	start := nowNs - floorMod(nowNs, window)
	resetAt := time.Unix(0, start+window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Peek(client)
	if !ok || b.windowStart != start {
		b = &bucket{windowStart: start}
	}

	d := Decision{Limit: l.cfg.MaxRequests, ResetAt: resetAt}
	if b.count >= l.cfg.MaxRequests {
		d.RetryAfter = resetAt.Sub(now)
	} else {
		b.count++
		d.Allowed = true
		d.Remaining = l.cfg.MaxRequests - b.count
	}

	before := l.buckets.Evicted()
	l.buckets.Put(client, b, now)
	l.buckets.Expire(now)
	d.Evicted = l.buckets.Evicted() - before
	return d
}

// Reset forgets everything known about client.
func (l *Limiter) Reset(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.Remove(client)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets.Len()
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
