// Package edge runs the per-request admission steps shared by the HTTP and
// gRPC hosts: client identification, rate limiting and request-id
// assignment.
package edge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/clientip"
	"github.com/dmitrijs2005/zappro/internal/server/ratelimit"
	"github.com/dmitrijs2005/zappro/internal/server/requestid"
)

// Recorder receives edge decisions. *metrics.Metrics implements it.
type Recorder interface {
	RecordRateLimit(allowed bool, buckets int)
	RecordRateLimitEvictions(n int)
	RecordRequestIDCollision()
}

type nopRecorder struct{}

func (nopRecorder) RecordRateLimit(bool, int)    {}
func (nopRecorder) RecordRateLimitEvictions(int) {}
func (nopRecorder) RecordRequestIDCollision()    {}

// Admission is the outcome of Gate.Admit. RequestID is empty when the
// request was rejected.
type Admission struct {
	Client    string
	Decision  ratelimit.Decision
	RequestID string
	Duplicate bool
}

func (a Admission) Allowed() bool { return a.Decision.Allowed }

type Gate struct {
	resolver        *clientip.Resolver
	limiter         *ratelimit.Limiter
	tracker         *requestid.Tracker
	policy          requestid.Policy
	requestIDHeader string
	recorder        Recorder
	logger          logging.Logger
}

type Option func(*Gate)

func WithRecorder(r Recorder) Option {
	return func(g *Gate) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithRequestIDHeader overrides the header carrying client request ids.
func WithRequestIDHeader(name string) Option {
	return func(g *Gate) {
		if name != "" {
			g.requestIDHeader = name
		}
	}
}

func NewGate(resolver *clientip.Resolver, limiter *ratelimit.Limiter, tracker *requestid.Tracker,
	policy requestid.Policy, logger logging.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = logging.Nop{}
	}
	g := &Gate{
		resolver:        resolver,
		limiter:         limiter,
		tracker:         tracker,
		policy:          policy,
		requestIDHeader: common.RequestIDHeaderName,
		recorder:        nopRecorder{},
		logger:          logger.With("module", "edge"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gate) RequestIDHeader() string { return g.requestIDHeader }

// Admit identifies the client behind peer and headers, charges it against
// the rate limit and, when admitted, assigns a request id. Rejected
// requests get no id so a flood cannot push legitimate ids out of the
// tracker.
func (g *Gate) Admit(ctx context.Context, peer string, headers http.Header) (Admission, error) {
	client := g.resolver.Resolve(peer, headers)

	d := g.limiter.Allow(client)
	g.recorder.RecordRateLimit(d.Allowed, g.limiter.Len())
	if d.Evicted > 0 {
		g.recorder.RecordRateLimitEvictions(d.Evicted)
	}

	a := Admission{Client: client, Decision: d}
	if !d.Allowed {
		g.logger.Debug(ctx, "rate limit exceeded", "client", client, "retry_after", d.RetryAfterSeconds())
		return a, nil
	}

	incoming := headers.Get(g.requestIDHeader)
	trusted := incoming != "" && g.policy.AllowExisting(client)
	if incoming != "" && !trusted {
		g.logger.Debug(ctx, "ignoring external request id from untrusted source", "client", client)
	}

	id, err := requestid.BuildID(incoming, trusted)
	if err != nil {
		return a, fmt.Errorf("build request id: %w", err)
	}
	a.RequestID = id

	if a.Duplicate = g.tracker.Register(id); a.Duplicate {
		g.recorder.RecordRequestIDCollision()
		g.logger.Warn(ctx, "request id collision detected", "request_id", id, "client", client)
	}
	return a, nil
}
