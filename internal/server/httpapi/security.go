package httpapi

import (
	"fmt"
	"net/http"
	"time"
)

// SecurityHeaders describes the hardening headers added to every response.
type SecurityHeaders struct {
	Enabled               bool
	EnforceHTTPS          bool
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool

	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
	ExpectCT              string
}

func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		Enabled:               true,
		HSTSMaxAge:            365 * 24 * time.Hour,
		HSTSIncludeSubdomains: true,
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'; object-src 'none'; base-uri 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
		ExpectCT:              "max-age=86400, enforce",
	}
}

// Apply sets the headers that are not already present in h.
func (s SecurityHeaders) Apply(h http.Header) {
	if !s.Enabled {
		return
	}

	setDefault(h, "X-Content-Type-Options", "nosniff")
	setDefault(h, "X-Frame-Options", "DENY")
	setDefault(h, "X-XSS-Protection", "1; mode=block")
	setDefault(h, "Cache-Control", "no-store")
	setDefault(h, "Content-Security-Policy", s.ContentSecurityPolicy)
	setDefault(h, "Referrer-Policy", s.ReferrerPolicy)
	setDefault(h, "Permissions-Policy", s.PermissionsPolicy)

	if s.EnforceHTTPS {
		hsts := fmt.Sprintf("max-age=%d", int64(s.HSTSMaxAge/time.Second))
		if s.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		setDefault(h, "Strict-Transport-Security", hsts)
		setDefault(h, "Expect-CT", s.ExpectCT)
	}
}

func setDefault(h http.Header, key, value string) {
	if value == "" || h.Get(key) != "" {
		return
	}
	h.Set(key, value)
}
