package catalog

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LogStreamer stands in for the video streaming service: it logs every
// start-streaming signal and counts it per title.
type LogStreamer struct {
	logger *slog.Logger
	starts *prometheus.CounterVec
}

// NewLogStreamer registers its counter with reg. A nil reg uses a private
// registry.
func NewLogStreamer(logger *slog.Logger, reg prometheus.Registerer) *LogStreamer {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &LogStreamer{
		logger: logger.With("component", "streamer"),
		starts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "c2w",
			Subsystem: "catalog",
			Name:      "stream_starts_total",
			Help:      "Start-streaming signals sent, by movie title.",
		}, []string{"title"}),
	}
}

// StartStreaming implements directory.Streamer.
func (s *LogStreamer) StartStreaming(title string) {
	s.starts.WithLabelValues(title).Inc()
	s.logger.Info("start streaming", "title", title)
}
