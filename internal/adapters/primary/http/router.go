package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/ticket-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-collab/internal/auth"
	"github.com/lorrc/ticket-collab/internal/infrastructure/metrics"
)

// RouterConfig collects everything the gateway router mounts. Nil limiters
// disable rate limiting.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TokenManager   *auth.TokenManager
	AllowedOrigins []string

	Tickets   *TicketHandler
	Worklogs  *WorklogHandler
	SLA       *SLAHandler
	WebSocket http.Handler
	Health    *HealthHandler

	GeneralLimiter *mw.RateLimiter
	WorklogLimiter *mw.RateLimitByKey
}

// NewRouter builds the gateway's HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(mw.Metrics(cfg.Metrics))
	}

	// Health and metrics live outside /api/v1 for standard probe paths
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
			ExposedHeaders:   []string{mw.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		if cfg.GeneralLimiter != nil {
			r.Use(cfg.GeneralLimiter.Middleware)
		}

		// Authentication is handled inside the handler
		if cfg.WebSocket != nil {
			r.Get("/ws", cfg.WebSocket.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(cfg.TokenManager))

			r.Route("/tickets", cfg.Tickets.RegisterRoutes)
			r.Route("/worklogs", func(r chi.Router) {
				var limit func(http.Handler) http.Handler
				if cfg.WorklogLimiter != nil {
					limit = cfg.WorklogLimiter.Middleware
				}
				cfg.Worklogs.RegisterRoutes(r, limit)
			})
			r.Route("/sla", cfg.SLA.RegisterRoutes)
		})
	})

	return r
}

// allowedOrigins turns the configured hosts ("app.example.com",
// "*.example.com") into CORS origins for both schemes.
func allowedOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	origins := make([]string, 0, 2*len(configured))
	for _, host := range configured {
		if strings.Contains(host, "://") {
			origins = append(origins, host)
			continue
		}
		origins = append(origins, "https://"+host, "http://"+host)
	}
	return origins
}
