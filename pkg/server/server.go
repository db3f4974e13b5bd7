package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/c2w-dev/c2w/pkg/arq"
	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/protocol"
)

// Server is the c2w protocol server.
type Server struct {
	dir *directory.Directory
	cfg Config

	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *metrics
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	scheduler      arq.Scheduler
	upgrader       websocket.Upgrader

	mu        sync.RWMutex
	peers     map[string]*Peer
	listeners map[io.Closer]struct{}
	closed    bool

	// inline runs peer mailboxes on the caller's goroutine. Tests only.
	inline bool
}

// New creates a server backed by dir.
func New(dir *directory.Directory, opts ...Option) *Server {
	s := &Server{
		dir:       dir,
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		peers:     make(map[string]*Peer),
		listeners: make(map[io.Closer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.applyDefaults()

	s.logger = s.logger.With("component", "server")
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.registry)
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(defaultTracerName)
	if s.scheduler == nil {
		s.scheduler = arq.SystemScheduler{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.ReadBufferSize,
		CheckOrigin:     s.cfg.CheckOrigin,
	}
	return s
}

// Directory returns the server's directory.
func (s *Server) Directory() *directory.Directory {
	return s.dir
}

// Registry returns the registry holding the server's metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// PeerCount returns the number of open peer sessions.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// addPeer registers p under its identity and starts its mailbox loop.
// It returns false if the server is shutting down.
func (s *Server) addPeer(p *Peer) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.peers[p.identity] = p
	s.mu.Unlock()

	s.metrics.activePeers.WithLabelValues(p.transport).Inc()
	p.start()
	p.logger.Debug("peer opened")
	return true
}

// removePeer drops p from the registry if it is still the peer registered
// under its identity.
func (s *Server) removePeer(p *Peer) {
	s.mu.Lock()
	cur, ok := s.peers[p.identity]
	if ok && cur == p {
		delete(s.peers, p.identity)
	}
	s.mu.Unlock()
	if ok && cur == p {
		s.metrics.activePeers.WithLabelValues(p.transport).Dec()
		p.logger.Debug("peer removed")
	}
}

func (s *Server) peer(identity string) *Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peers[identity]
}

// deliver sends a copy of m to every recipient through its own peer.
func (s *Server) deliver(recipients []directory.Recipient, m *protocol.Message) {
	for _, r := range recipients {
		p := s.peer(r.Identity)
		if p == nil {
			s.logger.Warn("no peer for recipient", "user", r.Name, "identity", r.Identity)
			continue
		}
		msg := *m
		if err := p.enqueue(func() { p.send(&msg) }); err != nil {
			s.logger.Debug("delivery to closed peer", "user", r.Name, "type", m.Type, "error", err)
		}
	}
}

func (s *Server) trackListener(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[c] = struct{}{}
	return true
}

func (s *Server) untrackListener(c io.Closer) {
	s.mu.Lock()
	delete(s.listeners, c)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Shutdown stops accepting traffic, disconnects every peer and waits for
// their mailboxes to drain or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := make([]io.Closer, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	peers := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	for _, p := range peers {
		p.Disconnect()
	}
	for _, p := range peers {
		select {
		case <-p.Done():
		case <-ctx.Done():
			s.logger.Warn("shutdown timed out", "remaining_peers", s.PeerCount())
			return ctx.Err()
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
