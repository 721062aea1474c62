package grpc

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/zappro/internal/cryptox"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/auth"
	"github.com/dmitrijs2005/zappro/internal/server/clientip"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/ratelimit"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/users"
	"github.com/dmitrijs2005/zappro/internal/server/requestid"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"github.com/dmitrijs2005/zappro/internal/timex"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

var (
	keyOnce sync.Once
	keyPair *auth.KeyPair
	keyErr  error
)

// 30s into a one-minute window.
var limiterNow = time.Unix(1_700_000_010, 0)

type fixture struct {
	server *GRPCServer
	users  *services.UserService
	tokens *auth.Service
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()

	keyOnce.Do(func() { keyPair, keyErr = auth.GenerateKeyPair(2048) })
	require.NoError(t, keyErr)

	var buf bytes.Buffer
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	hasher, err := cryptox.NewHasher(
		cryptox.WithAlgorithm(cryptox.AlgArgon2ID),
		cryptox.WithArgon2Params(cryptox.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}),
	)
	require.NoError(t, err)

	tokens := auth.NewService(auth.NewStaticKeyProvider(keyPair), auth.Config{}, logger)
	svc, err := services.NewUserService(users.NewMemoryRepository(), tokens, hasher, logger)
	require.NoError(t, err)

	gate := edge.NewGate(
		clientip.New(nil, "", logger),
		ratelimit.New(ratelimit.Config{MaxRequests: rateLimit, Window: time.Minute},
			ratelimit.WithClock(timex.NewManualClock(limiterNow).Now)),
		requestid.NewTracker(time.Minute, 100),
		requestid.NewPolicy(false, nil),
		logger,
	)

	return &fixture{
		server: NewGRPCServer("127.0.0.1:0", gate, svc, logger),
		users:  svc,
		tokens: tokens,
		logs:   &buf,
	}
}

// captureStream records what interceptors send as header and trailer.
type captureStream struct {
	header  metadata.MD
	trailer metadata.MD
}

func (c *captureStream) Method() string { return "/test.Service/Method" }

func (c *captureStream) SetHeader(md metadata.MD) error {
	c.header = metadata.Join(c.header, md)
	return nil
}

func (c *captureStream) SendHeader(md metadata.MD) error { return c.SetHeader(md) }

func (c *captureStream) SetTrailer(md metadata.MD) error {
	c.trailer = metadata.Join(c.trailer, md)
	return nil
}
