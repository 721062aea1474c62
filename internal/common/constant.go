package common

// Default header names used by the HTTP and gRPC hosts.
const (
	AuthorizationHeaderName = "Authorization"
	RequestIDHeaderName     = "X-Request-ID"
	ClientIPHeaderName      = "X-Forwarded-For"
	APIVersionHeaderName    = "X-API-Version"
	RetryAfterHeaderName    = "Retry-After"

	// AnonymousClient identifies requests that carry no peer address.
	AnonymousClient = "anonymous"
)
