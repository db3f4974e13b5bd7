package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/c2w-dev/c2w/pkg/arq"
)

// Config holds tunables for the protocol server.
type Config struct {
	// RetransmitTimeout is the ARQ retransmission interval.
	// Default: 500ms.
	RetransmitTimeout time.Duration

	// MaxRetries is the number of retransmissions before a message is
	// abandoned. Default: 100.
	MaxRetries int

	// MailboxSize is the buffer of each peer's mailbox.
	// Default: 256.
	MailboxSize int

	// ReadBufferSize is the stream read chunk size.
	// Default: 4096.
	ReadBufferSize int

	// MaxDatagramSize bounds a received datagram.
	// Default: 65535.
	MaxDatagramSize int

	// CheckOrigin validates WebSocket upgrade requests.
	// Default: allows all origins.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns a Config with the protocol defaults.
func DefaultConfig() Config {
	return Config{
		RetransmitTimeout: arq.DefaultTimeout,
		MaxRetries:        arq.DefaultMaxRetries,
		MailboxSize:       256,
		ReadBufferSize:    4096,
		MaxDatagramSize:   65535,
		CheckOrigin:       func(*http.Request) bool { return true },
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.RetransmitTimeout <= 0 {
		c.RetransmitTimeout = d.RetransmitTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = d.MailboxSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = d.MaxDatagramSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
}

// Option configures a Server.
type Option func(*Server)

// WithConfig sets the server tunables. Zero fields take their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the Prometheus registry the server's metrics are
// registered with. Default: a fresh registry per server.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// WithScheduler sets the scheduler used for retransmission timers.
func WithScheduler(sched arq.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}
