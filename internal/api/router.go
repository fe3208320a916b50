package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/supportdesk/internal/chat"
	"github.com/ashureev/supportdesk/internal/health"
	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/metrics"
	"github.com/ashureev/supportdesk/internal/middleware"
	"github.com/ashureev/supportdesk/internal/realtime"
	"github.com/ashureev/supportdesk/internal/store"
)

// RouterConfig collects everything the HTTP surface is built from.
type RouterConfig struct {
	Service        *chat.Service
	Repo           store.Repository
	Verifier       identity.Verifier
	Realtime       *realtime.Handler
	Checker        *health.Checker
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	// UploadsDir and UploadsPath serve locally stored attachments when both are set.
	UploadsDir  string
	UploadsPath string
	Logger      *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	base := NewHandler(cfg.Service, cfg.Repo, cfg.Logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(metrics.Middleware)

	if cfg.Checker != nil {
		NewHealthHandler(cfg.Checker).RegisterHealth(r)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/widget", func(r chi.Router) {
		r.Use(middleware.PublicCORS)
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		NewWidgetHandler(base).RegisterRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		r.Use(identity.Middleware(cfg.Repo, cfg.Verifier))
		r.Use(identity.RequireAgent)
		NewAgentHandler(base).RegisterRoutes(r)
	})

	if cfg.Realtime != nil {
		r.Route("/realtime", func(r chi.Router) {
			r.Use(middleware.CORS(cfg.AllowedOrigins))
			r.Use(identity.Middleware(cfg.Repo, cfg.Verifier))
			r.Post("/auth", cfg.Realtime.HandleAuth)
			r.Get("/sse", cfg.Realtime.HandleSSE)
			r.Get("/ws", cfg.Realtime.HandleWS)
		})
	}

	if cfg.UploadsDir != "" && strings.HasPrefix(cfg.UploadsPath, "/") {
		prefix := strings.TrimSuffix(cfg.UploadsPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.UploadsDir))))
	}

	return r
}
