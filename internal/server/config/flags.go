package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/zappro/internal/flagx"
)

var serverFlags = []string{
	"-a", "-g", "-d", "-l",
	"-rate-limit", "-rate-window", "-rate-backend",
	"-trusted-proxies", "-trust-request-id", "-request-id-hosts",
	"-t", "-r",
	"-k", "-p", "-require-keys",
	"-https",
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string             HTTP bind address (e.g., ":8000")
//	-g string             gRPC bind address (e.g., ":50051")
//	-d string             PostgreSQL DSN
//	-l string             log level
//	-rate-limit int       requests per window, 0 disables limiting
//	-rate-window duration rate limit window (e.g., "1m")
//	-rate-backend string  rate limit backend
//	-trusted-proxies list proxies allowed to set the client ip header
//	-trust-request-id     accept client request ids from trusted hosts
//	-request-id-hosts list hosts whose request ids are kept
//	-t duration           access token lifetime
//	-r duration           refresh token lifetime
//	-k string             RSA private key PEM file
//	-p string             RSA public key PEM file
//	-require-keys         refuse to start without configured keys
//	-https                send HSTS headers
//
// Lists accept a JSON array or a comma-separated value. A list flag replaces
// the configured list instead of extending it.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.IntVar(&config.RateLimitMaxRequests, "rate-limit", config.RateLimitMaxRequests, "requests per window")
	fs.DurationVar(&config.RateLimitWindow, "rate-window", config.RateLimitWindow, "rate limit window")
	fs.StringVar(&config.RateLimitBackend, "rate-backend", config.RateLimitBackend, "rate limit backend")

	var proxies, hosts flagx.StringList
	fs.Var(&proxies, "trusted-proxies", "trusted proxy IPs or CIDRs")
	fs.BoolVar(&config.TrustClientRequestID, "trust-request-id", config.TrustClientRequestID, "trust client request ids")
	fs.Var(&hosts, "request-id-hosts", "hosts allowed to supply request ids")

	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenTTL, "r", config.RefreshTokenTTL, "refresh token lifetime")

	fs.StringVar(&config.JWTPrivateKeyPath, "k", config.JWTPrivateKeyPath, "RSA private key file")
	fs.StringVar(&config.JWTPublicKeyPath, "p", config.JWTPublicKeyPath, "RSA public key file")
	fs.BoolVar(&config.JWTRequireKeys, "require-keys", config.JWTRequireKeys, "require configured JWT keys")

	fs.BoolVar(&config.EnforceHTTPS, "https", config.EnforceHTTPS, "enforce HTTPS (HSTS)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "trusted-proxies":
			config.TrustedProxies = []string(proxies)
		case "request-id-hosts":
			config.RequestIDTrustedHosts = []string(hosts)
		}
	})
}
