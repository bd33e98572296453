package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/moto-assistant/internal/appointments"
	"github.com/wolfman30/moto-assistant/internal/archive"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
	httpmiddleware "github.com/wolfman30/moto-assistant/internal/http/middleware"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger          *logging.Logger
	Webhook         *whatsapp.WebhookHandler
	Correspondents  *correspondents.Handler
	History         *history.Handler
	Appointments    *appointments.Handler
	Archive         *archive.Handler
	Notifications   http.Handler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	MetricsGatherer prometheus.Gatherer

	// WebhookRateLimit is requests per second per IP; zero disables limiting.
	WebhookRateLimit float64
	WebhookRateBurst int

	// HealthCheck reports dependency health; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Route("/webhooks/whatsapp", func(wh chi.Router) {
				if cfg.WebhookRateLimit > 0 {
					wh.Use(httpmiddleware.RateLimit(httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)))
				}
				wh.Get("/", cfg.Webhook.HandleVerification)
				wh.Post("/", cfg.Webhook.HandleInbound)
			})
		}
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, logger))

		admin.Get("/stats", statsHandler(cfg.MetricsGatherer))
		if cfg.Correspondents != nil {
			admin.Get("/correspondents", cfg.Correspondents.List)
			admin.Get("/correspondents/{id}", cfg.Correspondents.Get)
		}
		if cfg.History != nil {
			admin.Get("/correspondents/{id}/turns", cfg.History.ListTurns)
		}
		if cfg.Appointments != nil {
			admin.Post("/appointments", cfg.Appointments.Create)
			admin.Patch("/appointments/{id}/status", cfg.Appointments.UpdateStatus)
			admin.Get("/correspondents/{id}/appointments", cfg.Appointments.ListForCorrespondent)
		}
		if cfg.Archive != nil {
			admin.Post("/correspondents/{id}/archive", cfg.Archive.Export)
		}
		if cfg.Notifications != nil {
			admin.Handle("/ws", cfg.Notifications)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func statsHandler(gatherer prometheus.Gatherer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.TakeSnapshot(gatherer))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
