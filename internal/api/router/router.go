package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/convia-ai/convia/internal/http/handlers"
	httpmiddleware "github.com/convia-ai/convia/internal/http/middleware"
	"github.com/convia-ai/convia/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Webhooks           *handlers.WebhookMessagesHandler
	AdminConversations *handlers.AdminConversationsHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Webhook rate limit, requests per second per IP. Zero disables it.
	WebhookRateLimit float64
	WebhookBurst     int
}

// New creates the Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.TenantHeader())
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health, metrics).
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			wh := public
			if cfg.WebhookRateLimit > 0 {
				wh = public.With(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookBurst))
			}
			wh.Post("/webhooks/messages", cfg.Webhooks.HandleInbound)
		}
	})

	// Admin endpoints behind JWT auth.
	if cfg.AdminConversations != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/buffer/status", cfg.AdminConversations.BufferStatus)
			admin.Route("/conversations/{tenantID}/{participantID}", func(c chi.Router) {
				c.Use(httpmiddleware.AdminTenantScope("tenantID"))
				c.Get("/", cfg.AdminConversations.GetState)
				c.Post("/flush", cfg.AdminConversations.ForceFlush)
			})
		})
	}

	return r
}
