package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/metrics"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// edgeMiddleware admits requests through the gate. Version and security
// headers go on every response, including rejections.
func edgeMiddleware(g *edge.Gate, h Headers, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			hdr.Set(h.APIVersionHeader, h.Version)
			h.Security.Apply(hdr)

			a, err := g.Admit(r.Context(), r.RemoteAddr, r.Header)
			if err != nil {
				logger.Error(r.Context(), "admission failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			if !a.Allowed() {
				hdr.Set(common.RetryAfterHeaderName, strconv.Itoa(a.Decision.RetryAfterSeconds()))
				writeError(w, http.StatusTooManyRequests, "Too Many Requests")
				return
			}

			hdr.Set(g.RequestIDHeader(), a.RequestID)

			ctx := context.WithValue(r.Context(), requestIDKey, a.RequestID)
			ctx = context.WithValue(ctx, clientKey, a.Client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recoverMiddleware turns handler panics into a JSON 500.
func recoverMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), "unhandled panic",
					"panic", rec,
					"client", ClientFromContext(r.Context()),
					"request_id", RequestIDFromContext(r.Context()))
				if ww.Status() == 0 {
					writeError(ww, http.StatusInternalServerError, "Internal Server Error")
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// metricsMiddleware records status and latency per route pattern so that
// path parameters do not explode label cardinality.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(r.Method, route, status, time.Since(start))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get(common.AuthorizationHeaderName), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authenticate requires a valid access token and stores its user in the
// request context.
func authenticate(users *services.UserService, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Not authenticated")
				return
			}

			u, err := users.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, common.ErrInvalidToken) || errors.Is(err, common.ErrorUnauthorized) {
					unauthorized(w, common.ErrInvalidToken.Error())
					return
				}
				logger.Error(r.Context(), "authentication failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

func requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := services.RequireRole(UserFromContext(r.Context()), roles...); err != nil {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, detail)
}
