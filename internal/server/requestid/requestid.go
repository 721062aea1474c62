// Package requestid assigns correlation ids to requests and remembers
// recently seen ids so collisions can be reported.
package requestid

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/evict"
	"github.com/dmitrijs2005/zappro/internal/timex"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 20_000

	generatedBytes = 16
)

var validID = regexp.MustCompile(`^[A-Fa-f0-9-]{16,128}$`)

// Valid reports whether id is acceptable as a client-supplied request id.
func Valid(id string) bool {
	return validID.MatchString(id)
}

// BuildID returns incoming when allowExisting is set and incoming is a
// well-formed id, or a fresh 32-character hex id otherwise.
func BuildID(incoming string, allowExisting bool) (string, error) {
	if allowExisting && Valid(incoming) {
		return incoming, nil
	}
	return common.MakeRandHexString(generatedBytes)
}

// Policy decides whether a client-supplied request id may be reused.
type Policy struct {
	trustClient bool
	hosts       map[string]struct{}
}

func NewPolicy(trustClient bool, trustedHosts []string) Policy {
	p := Policy{trustClient: trustClient, hosts: make(map[string]struct{}, len(trustedHosts))}
	for _, h := range trustedHosts {
		if h = strings.TrimSpace(h); h != "" {
			p.hosts[h] = struct{}{}
		}
	}
	return p
}

// AllowExisting reports whether requests from client may keep their own id.
func (p Policy) AllowExisting(client string) bool {
	if !p.trustClient {
		return false
	}
	_, ok := p.hosts[client]
	return ok
}

// Tracker remembers request ids for a limited time. It is safe for
// concurrent use.
type Tracker struct {
	clock timex.Clock

	mu   sync.Mutex
	seen *evict.Table[struct{}]
}

type Option func(*Tracker)

func WithClock(c timex.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// NewTracker returns a tracker keeping ids for ttl (at least one second) and
// at most maxEntries ids. Zero values select the defaults.
func NewTracker(ttl time.Duration, maxEntries int, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ttl = max(ttl, time.Second)
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	t := &Tracker{seen: evict.NewTable[struct{}](maxEntries, ttl)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Register records id as seen now and reports whether it was already seen
// within the ttl and not evicted for capacity.
func (t *Tracker) Register(id string) (duplicate bool) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seen.Expire(now)
	_, duplicate = t.seen.Peek(id)
	t.seen.Put(id, struct{}{}, now)
	return duplicate
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.Len()
}
