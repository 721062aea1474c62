package httpapi

import (
	"context"

	"github.com/dmitrijs2005/zappro/internal/server/models"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientKey
	userKey
)

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// ClientFromContext returns the resolved client identifier.
func ClientFromContext(ctx context.Context) string {
	s, _ := ctx.Value(clientKey).(string)
	return s
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}
