// Package admin serves the HTTP side of a c2w server: health, a JSON
// snapshot of the directory, Prometheus metrics, and the WebSocket
// transport.
//
//	mux := admin.New(srv)
//	http.ListenAndServe(":8080", mux)
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/c2w-dev/c2w/pkg/server"
)

// Option configures the admin handler.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	started        time.Time
}

// WithLogger sets the request logger. Default: the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTracerProvider sets the provider for request spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// Health is the /healthz response body.
type Health struct {
	Status string `json:"status"`
	Peers  int    `json:"peers"`
	Users  int    `json:"users"`
	Uptime string `json:"uptime"`
}

// New returns the admin router for srv.
func New(srv *server.Server, opts ...Option) http.Handler {
	cfg := &config{started: time.Now()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = srv.Logger()
	}
	cfg.logger = cfg.logger.With("component", "admin")
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}

	m := newHTTPMetrics(srv.Registry())
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(cfg.logger, m, cfg.tracerProvider.Tracer(tracerName)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Health{
			Status: "ok",
			Peers:  srv.PeerCount(),
			Users:  len(srv.Directory().Users()),
			Uptime: time.Since(cfg.started).Round(time.Second).String(),
		})
	})
	r.Get("/directory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, srv.Directory().Snapshot())
	})
	r.Get("/directory/users/{name}", func(w http.ResponseWriter, r *http.Request) {
		u, ok := srv.Directory().User(chi.URLParam(r, "name"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown user"})
			return
		}
		writeJSON(w, http.StatusOK, u)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(srv.Registry(), promhttp.HandlerOpts{}))
	r.Get("/ws", srv.HandleWebSocket)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
