// Package server wires configuration, storage, the request edge and both
// transports into a runnable application.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/zappro/internal/buildinfo"
	"github.com/dmitrijs2005/zappro/internal/cryptox"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/auth"
	"github.com/dmitrijs2005/zappro/internal/server/clientip"
	"github.com/dmitrijs2005/zappro/internal/server/config"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/httpapi"
	"github.com/dmitrijs2005/zappro/internal/server/metrics"
	"github.com/dmitrijs2005/zappro/internal/server/ratelimit"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/users"
	"github.com/dmitrijs2005/zappro/internal/server/requestid"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/zappro/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

type AppOption func(*appOptions)

type appOptions struct {
	logOutput io.Writer
}

// WithLogOutput redirects the JSON log stream, stdout by default.
func WithLogOutput(w io.Writer) AppOption {
	return func(o *appOptions) { o.logOutput = w }
}

func NewApp(ctx context.Context, c *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.NewJSONLogger(o.logOutput, c.LogLevel)
	app := &App{config: c, logger: logger}

	if c.RateLimitBackend != config.BackendMemory {
		logger.Warn(ctx, "unsupported rate limit backend; falling back to memory", "backend", c.RateLimitBackend)
	}

	keys := auth.NewKeyProvider(auth.KeyConfig{
		PrivateKeyPEM:     c.JWTPrivateKey,
		PrivateKeyPath:    c.JWTPrivateKeyPath,
		PublicKeyPEM:      c.JWTPublicKey,
		PublicKeyPath:     c.JWTPublicKeyPath,
		RequireConfigured: c.JWTRequireKeys,
	}, logger)
	if _, err := keys.KeyPair(); err != nil {
		return nil, fmt.Errorf("jwt keys: %w", err)
	}

	hasher, err := cryptox.NewHasher(
		cryptox.WithAlgorithm(c.PasswordAlgorithm),
		cryptox.WithIterations(c.PasswordIterations),
	)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	repo, err := app.openUsers(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	tokens := auth.NewService(keys, auth.Config{AccessTTL: c.AccessTokenTTL, RefreshTTL: c.RefreshTokenTTL}, logger)
	us, err := services.NewUserService(repo, tokens, hasher, logger, services.WithTokenObserver(m))
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("user service: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: c.RateLimitMaxRequests,
		Window:      c.RateLimitWindow,
		TTL:         c.RateLimitTTL,
		MaxEntries:  c.RateLimitMaxEntries,
	})
	gate := edge.NewGate(
		clientip.New(c.TrustedProxies, c.ClientIPHeader, logger),
		limiter,
		requestid.NewTracker(c.RequestIDTTL, c.RequestIDMaxEntries),
		requestid.NewPolicy(c.TrustClientRequestID, c.RequestIDTrustedHosts),
		logger,
		edge.WithRecorder(m),
		edge.WithRequestIDHeader(c.RequestIDHeader),
	)

	security := httpapi.DefaultSecurityHeaders()
	security.Enabled = c.SecurityHeaders
	security.EnforceHTTPS = c.EnforceHTTPS
	security.HSTSMaxAge = c.HSTSMaxAge

	router := httpapi.NewRouter(httpapi.Deps{
		Gate:    gate,
		Users:   us,
		Metrics: m,
		Logger:  logger,
		Headers: httpapi.Headers{
			APIVersionHeader: c.APIVersionHeader,
			Version:          buildinfo.Version,
			Security:         security,
		},
		RateLimit:       limiter.Config().MaxRequests,
		RateLimitWindow: limiter.Config().Window,
	})

	app.httpServer = httpapi.NewServer(c.HTTPAddr, router, logger)
	app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, gate, us, logger)
	return app, nil
}

// openUsers picks the user store: Postgres when a DSN is configured, the
// in-memory repository otherwise.
func (app *App) openUsers(ctx context.Context) (users.Repository, error) {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database DSN configured; users are kept in memory")
		return users.NewMemoryRepository(), nil
	}

	m := repomanager.NewPostgresRepositoryManager()
	db, err := repomanager.Open(ctx, app.config.DatabaseDSN, m)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	return m.Users(db), nil
}

func (app *App) closeDB() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
	app.db = nil
}

// Run serves HTTP and gRPC until ctx is cancelled, a termination signal
// arrives or either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.closeDB()

	app.logger.Info(ctx, "Starting app...", "version", buildinfo.Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.httpServer.Run(gctx) })
	g.Go(func() error { return app.grpcServer.Run(gctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Error(ctx, "server stopped with error", "error", err)
		return err
	}

	app.logger.Info(ctx, "app stopped")
	return nil
}
