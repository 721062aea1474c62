// Package httpapi exposes the ZapPro HTTP API: health, metrics and the
// authentication endpoints, behind the request edge.
package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/metrics"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// Headers configures the response headers set by the edge middleware.
type Headers struct {
	APIVersionHeader string
	Version          string
	Security         SecurityHeaders
}

type Deps struct {
	Gate    *edge.Gate
	Users   *services.UserService
	Metrics *metrics.Metrics
	Logger  logging.Logger
	Headers Headers

	// Reported by /health.
	RateLimit       int
	RateLimitWindow time.Duration
}

// NewRouter builds the HTTP handler. Every route, /health and /metrics
// included, passes through the edge middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	logger = logger.With("module", "http")
	if d.Headers.APIVersionHeader == "" {
		d.Headers.APIVersionHeader = common.APIVersionHeaderName
	}

	h := &handlers{
		users:  d.Users,
		logger: logger,
		health: newHealthResponse(d.Headers.Version, d.RateLimit, d.RateLimitWindow),
	}

	r := chi.NewRouter()
	r.Use(
		metricsMiddleware(d.Metrics),
		edgeMiddleware(d.Gate, d.Headers, logger),
		recoverMiddleware(logger),
	)

	r.Get("/health", h.getHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/refresh", h.refresh)

			r.Group(func(r chi.Router) {
				r.Use(authenticate(d.Users, logger))
				r.Get("/me", h.me)
				r.Post("/password", h.changePassword)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate(d.Users, logger), requireRole(models.RoleAdmin))
			r.Get("/ping", h.adminPing)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
