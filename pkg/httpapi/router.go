// Package httpapi exposes the supervisor's read-only HTTP surface:
// liveness/status endpoints, the Prometheus scrape endpoint, and the
// websocket upgrade for pkg/eventbus. It carries no write endpoints —
// the supervisor is driven entirely by the telemetry feed, never by
// inbound HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aerocfi/cfi-supervisor/pkg/eventbus"
	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
	"github.com/aerocfi/cfi-supervisor/pkg/metrics"
)

// StatusProvider is implemented by the runtime supervisor so this
// package never imports it directly (supervisor already imports
// httpapi's dependents in the opposite direction would cycle).
type StatusProvider interface {
	Status() Status
}

// Status is the JSON body served at /status.
type Status struct {
	SessionID      string          `json:"session_id"`
	Running        bool            `json:"running"`
	Phase          flightmodel.Phase `json:"phase"`
	ShutdownLikely bool            `json:"shutdown_likely"`
	FlightStartedAt time.Time      `json:"flight_started_at,omitempty"`
	LastTickAt     time.Time       `json:"last_tick_at,omitempty"`
	TicksProcessed int64           `json:"ticks_processed"`
}

// Options configures NewRouter.
type Options struct {
	AllowedOrigins []string
	Hub            *eventbus.Hub
	Status         StatusProvider
	Registry       *prometheus.Registry
}

// NewRouter builds the chi router serving /healthz, /status,
// /metrics, and /events/ws.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.Status == nil {
			_ = json.NewEncoder(w).Encode(Status{})
			return
		}
		_ = json.NewEncoder(w).Encode(opts.Status.Status())
	})

	if opts.Registry != nil {
		r.Handle("/metrics", metrics.Handler(opts.Registry))
	}

	if opts.Hub != nil {
		r.Route("/events", func(r chi.Router) {
			r.Get("/ws", opts.Hub.ServeWS)
		})
	}

	return r
}
