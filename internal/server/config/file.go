package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/zappro/internal/flagx"
	"github.com/dmitrijs2005/zappro/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the server configuration. Durations
// are timex.Duration so files can say "90s" or give plain seconds. Pointer
// fields distinguish "unset" from an explicit zero or false.
type FileConfig struct {
	HTTPAddr    string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr    string `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`
	LogLevel    string `json:"log_level" yaml:"log_level"`

	RateLimitMaxRequests *int           `json:"rate_limit_max_requests" yaml:"rate_limit_max_requests"`
	RateLimitWindow      timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	RateLimitTTL         timex.Duration `json:"rate_limit_ttl" yaml:"rate_limit_ttl"`
	RateLimitMaxEntries  int            `json:"rate_limit_max_entries" yaml:"rate_limit_max_entries"`
	RateLimitBackend     string         `json:"rate_limit_backend" yaml:"rate_limit_backend"`

	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	ClientIPHeader string   `json:"client_ip_header" yaml:"client_ip_header"`

	RequestIDHeader       string         `json:"request_id_header" yaml:"request_id_header"`
	TrustClientRequestID  *bool          `json:"trust_client_request_id" yaml:"trust_client_request_id"`
	RequestIDTrustedHosts []string       `json:"request_id_trusted_hosts" yaml:"request_id_trusted_hosts"`
	RequestIDTTL          timex.Duration `json:"request_id_ttl" yaml:"request_id_ttl"`
	RequestIDMaxEntries   int            `json:"request_id_max_entries" yaml:"request_id_max_entries"`

	AccessTokenTTL  timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`

	JWTPrivateKey     string `json:"jwt_private_key" yaml:"jwt_private_key"`
	JWTPrivateKeyPath string `json:"jwt_private_key_path" yaml:"jwt_private_key_path"`
	JWTPublicKey      string `json:"jwt_public_key" yaml:"jwt_public_key"`
	JWTPublicKeyPath  string `json:"jwt_public_key_path" yaml:"jwt_public_key_path"`
	JWTRequireKeys    *bool  `json:"jwt_require_keys" yaml:"jwt_require_keys"`

	PasswordAlgorithm  string `json:"password_algorithm" yaml:"password_algorithm"`
	PasswordIterations int    `json:"password_iterations" yaml:"password_iterations"`

	SecurityHeaders  *bool          `json:"security_headers" yaml:"security_headers"`
	EnforceHTTPS     *bool          `json:"enforce_https" yaml:"enforce_https"`
	HSTSMaxAge       timex.Duration `json:"hsts_max_age" yaml:"hsts_max_age"`
	APIVersionHeader string         `json:"api_version_header" yaml:"api_version_header"`
}

// parseFile loads the file named by -c/-config into config. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON. Unset fields keep
// their current values. An unreadable or invalid file panics.
func parseFile(config *Config) {
	path := flagx.JsonConfigFlags()

	// nothing to load
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.GRPCAddr, fc.GRPCAddr)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.LogLevel, fc.LogLevel)

	if fc.RateLimitMaxRequests != nil {
		c.RateLimitMaxRequests = *fc.RateLimitMaxRequests
	}
	setDuration(&c.RateLimitWindow, fc.RateLimitWindow)
	setDuration(&c.RateLimitTTL, fc.RateLimitTTL)
	setInt(&c.RateLimitMaxEntries, fc.RateLimitMaxEntries)
	setString(&c.RateLimitBackend, fc.RateLimitBackend)

	if fc.TrustedProxies != nil {
		c.TrustedProxies = fc.TrustedProxies
	}
	setString(&c.ClientIPHeader, fc.ClientIPHeader)

	setString(&c.RequestIDHeader, fc.RequestIDHeader)
	setBool(&c.TrustClientRequestID, fc.TrustClientRequestID)
	if fc.RequestIDTrustedHosts != nil {
		c.RequestIDTrustedHosts = fc.RequestIDTrustedHosts
	}
	setDuration(&c.RequestIDTTL, fc.RequestIDTTL)
	setInt(&c.RequestIDMaxEntries, fc.RequestIDMaxEntries)

	setDuration(&c.AccessTokenTTL, fc.AccessTokenTTL)
	setDuration(&c.RefreshTokenTTL, fc.RefreshTokenTTL)

	setString(&c.JWTPrivateKey, fc.JWTPrivateKey)
	setString(&c.JWTPrivateKeyPath, fc.JWTPrivateKeyPath)
	setString(&c.JWTPublicKey, fc.JWTPublicKey)
	setString(&c.JWTPublicKeyPath, fc.JWTPublicKeyPath)
	setBool(&c.JWTRequireKeys, fc.JWTRequireKeys)

	setString(&c.PasswordAlgorithm, fc.PasswordAlgorithm)
	setInt(&c.PasswordIterations, fc.PasswordIterations)

	setBool(&c.SecurityHeaders, fc.SecurityHeaders)
	setBool(&c.EnforceHTTPS, fc.EnforceHTTPS)
	setDuration(&c.HSTSMaxAge, fc.HSTSMaxAge)
	setString(&c.APIVersionHeader, fc.APIVersionHeader)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
