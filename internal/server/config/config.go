// Package config handles configuration for the server component,
// including defaults, a JSON or YAML file overlay, command-line flags and
// environment variables for key material.
package config

import (
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
)

// Config holds runtime settings for the ZapPro server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses of the HTTP API and the gRPC endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory user store.
//   - RateLimit*: fixed-window limiter settings. A zero TTL means two windows.
//   - TrustedProxies: IPs or CIDR blocks allowed to set ClientIPHeader.
//   - TrustClientRequestID / RequestIDTrustedHosts: who may supply their own request id.
//   - JWT*: RSA key material, inline PEM or file path. JWTRequireKeys refuses
//     the ephemeral development key pair.
//   - Password*: hashing scheme for stored credentials.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	DatabaseDSN string
	LogLevel    string

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitTTL         time.Duration
	RateLimitMaxEntries  int
	RateLimitBackend     string

	TrustedProxies []string
	ClientIPHeader string

	RequestIDHeader       string
	TrustClientRequestID  bool
	RequestIDTrustedHosts []string
	RequestIDTTL          time.Duration
	RequestIDMaxEntries   int

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	JWTPrivateKey     string
	JWTPrivateKeyPath string
	JWTPublicKey      string
	JWTPublicKeyPath  string
	JWTRequireKeys    bool

	PasswordAlgorithm  string
	PasswordIterations int

	SecurityHeaders  bool
	EnforceHTTPS     bool
	HSTSMaxAge       time.Duration
	APIVersionHeader string
}

// LoadDefaults populates Config with development defaults. The JWT keys are
// left empty, which makes the server generate a throwaway pair at startup.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.LogLevel = "info"

	c.RateLimitMaxRequests = 100
	c.RateLimitWindow = 60 * time.Second
	c.RateLimitTTL = 0
	c.RateLimitMaxEntries = 10_000
	c.RateLimitBackend = BackendMemory

	c.TrustedProxies = []string{}
	c.ClientIPHeader = common.ClientIPHeaderName

	c.RequestIDHeader = common.RequestIDHeaderName
	c.TrustClientRequestID = false
	c.RequestIDTrustedHosts = []string{}
	c.RequestIDTTL = 300 * time.Second
	c.RequestIDMaxEntries = 20_000

	c.AccessTokenTTL = 30 * time.Minute
	c.RefreshTokenTTL = 7 * 24 * time.Hour

	c.PasswordAlgorithm = "pbkdf2_sha256"
	c.PasswordIterations = 200_000

	c.SecurityHeaders = true
	c.EnforceHTTPS = false
	c.HSTSMaxAge = 365 * 24 * time.Hour
	c.APIVersionHeader = common.APIVersionHeaderName
}

// BackendMemory is the only rate-limit backend this server implements.
const BackendMemory = "memory"

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file, command-line flags and finally the
// environment.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	parseEnv(cfg)
	return cfg
}
