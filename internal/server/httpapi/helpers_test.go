package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/zappro/internal/cryptox"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/auth"
	"github.com/dmitrijs2005/zappro/internal/server/clientip"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/metrics"
	"github.com/dmitrijs2005/zappro/internal/server/ratelimit"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/users"
	"github.com/dmitrijs2005/zappro/internal/server/requestid"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"github.com/dmitrijs2005/zappro/internal/timex"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	keyPair *auth.KeyPair
	keyErr  error
)

// limiterNow sits 30s into a window so a test never straddles a boundary.
var limiterNow = time.Unix(1_700_000_010, 0)

type apiOpts struct {
	rateLimit      int
	trustedProxies []string
	trustIDs       bool
	idHosts        []string
	security       SecurityHeaders
}

type testAPI struct {
	handler http.Handler
	users   *services.UserService
	tokens  *auth.Service
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func newBufferLogger() (logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return l, &buf
}

func newTestAPI(t *testing.T, o apiOpts) *testAPI {
	t.Helper()

	keyOnce.Do(func() { keyPair, keyErr = auth.GenerateKeyPair(2048) })
	require.NoError(t, keyErr)

	logger, buf := newBufferLogger()

	hasher, err := cryptox.NewHasher(
		cryptox.WithAlgorithm(cryptox.AlgArgon2ID),
		cryptox.WithArgon2Params(cryptox.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}),
	)
	require.NoError(t, err)

	m := metrics.New()
	tokens := auth.NewService(auth.NewStaticKeyProvider(keyPair), auth.Config{AccessTTL: 30 * time.Minute, RefreshTTL: time.Hour}, logger)
	svc, err := services.NewUserService(users.NewMemoryRepository(), tokens, hasher, logger, services.WithTokenObserver(m))
	require.NoError(t, err)

	gate := edge.NewGate(
		clientip.New(o.trustedProxies, "", logger),
		ratelimit.New(ratelimit.Config{MaxRequests: o.rateLimit, Window: time.Minute},
			ratelimit.WithClock(timex.NewManualClock(limiterNow).Now)),
		requestid.NewTracker(time.Minute, 1000),
		requestid.NewPolicy(o.trustIDs, o.idHosts),
		logger,
		edge.WithRecorder(m),
	)

	h := NewRouter(Deps{
		Gate:    gate,
		Users:   svc,
		Metrics: m,
		Logger:  logger,
		Headers: Headers{
			APIVersionHeader: "X-API-Version",
			Version:          "1.2.3",
			Security:         o.security,
		},
		RateLimit:       o.rateLimit,
		RateLimitWindow: time.Minute,
	})

	return &testAPI{handler: h, users: svc, tokens: tokens, metrics: m, logs: buf}
}

type call struct {
	method, path string
	body         any
	remote       string
	headers      map[string]string
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch b := c.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// registerAndLogin creates a user and returns its access and refresh tokens.
func (a *testAPI) registerAndLogin(t *testing.T, email, role string) (string, string) {
	t.Helper()

	rec := a.do(t, call{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"email": email, "name": "Test", "password": "correct horse", "role": role,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, call{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"email": email, "password": "correct horse",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[loginResponse](t, rec)
	return resp.AccessToken, resp.RefreshToken
}
