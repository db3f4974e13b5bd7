package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "c2w"
	metricsSubsystem = "server"
)

// metrics holds the Prometheus metrics for a Server.
type metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	malformedFrames *prometheus.CounterVec
	retransmits     *prometheus.CounterVec
	exhausted       *prometheus.CounterVec
	logins          *prometheus.CounterVec
	activePeers     *prometheus.GaugeVec
	registeredUsers prometheus.Gauge
	mailboxDropped  prometheus.Counter
	chatRecipients  prometheus.Histogram
}

func newMetrics(registry prometheus.Registerer) *metrics {
	factory := promauto.With(registry)

	return &metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_received_total",
			Help:      "Frames received from peers, by message type",
		}, []string{"type"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "frames_sent_total",
			Help:      "Frames written to peers including retransmissions, by message type",
		}, []string{"type"}),

		malformedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "malformed_frames_total",
			Help:      "Frames dropped because they could not be decoded",
		}, []string{"transport"}),

		retransmits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "retransmits_total",
			Help:      "Retransmissions of unacknowledged messages, by message type",
		}, []string{"type"}),

		exhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "retry_exhausted_total",
			Help:      "Messages abandoned after the retry limit, by message type",
		}, []string{"type"}),

		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "logins_total",
			Help:      "Login requests by result",
		}, []string{"result"}),

		activePeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_peers",
			Help:      "Peer sessions currently open, by transport",
		}, []string{"transport"}),

		registeredUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "registered_users",
			Help:      "Users currently registered in the directory",
		}),

		mailboxDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "mailbox_dropped_total",
			Help:      "Datagrams dropped because a peer mailbox was full",
		}),

		chatRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "chat_recipients",
			Help:      "Number of users a chat message was relayed to",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
	}
}
