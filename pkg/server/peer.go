package server

import (
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/c2w-dev/c2w/pkg/arq"
	"github.com/c2w-dev/c2w/pkg/protocol"
	"github.com/c2w-dev/c2w/pkg/session"
)

// Transport names used in peer identities, logs and metric labels.
const (
	TransportStream    = "tcp"
	TransportDatagram  = "udp"
	TransportWebSocket = "ws"
)

// Peer is the server side of one client session.
//
// Everything below the mailbox fields is owned by the mailbox loop and
// must only be touched from functions posted to it.
type Peer struct {
	srv       *Server
	id        string
	identity  string
	transport string
	conn      io.Closer
	write     func([]byte) error
	logger    *slog.Logger

	mailbox  chan func()
	done     chan struct{}
	stopOnce sync.Once

	// backlog holds work that must never be dropped: retransmission timer
	// expiries and deliveries from other peers. wake is signalled whenever
	// it becomes non-empty.
	backlogMu sync.Mutex
	backlog   []func()
	wake      chan struct{}

	engine  *arq.Engine
	machine *session.Machine
	name    string
}

// newPeer creates a peer for a client reachable at addr over transport.
// conn is closed when the peer disconnects; it is nil for datagram peers,
// which share the server's socket.
func (s *Server) newPeer(transport, addr string, write func([]byte) error, conn io.Closer) *Peer {
	p := &Peer{
		srv:       s,
		id:        uuid.NewString(),
		identity:  transport + "/" + addr,
		transport: transport,
		conn:      conn,
		write:     write,
		mailbox:   make(chan func(), s.cfg.MailboxSize),
		done:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
		machine:   session.NewMachine(session.RoleServer),
	}
	p.logger = s.logger.With("peer", p.id, "transport", transport, "remote", addr)
	p.engine = arq.New(p.writeFrame, arq.Options{
		Timeout:    s.cfg.RetransmitTimeout,
		MaxRetries: s.cfg.MaxRetries,
		Scheduler:  s.scheduler,
		Dispatch: func(f func()) {
			p.enqueue(f)
		},
		OnRetransmit: func(o *arq.Outgoing, attempt int) {
			s.metrics.retransmits.WithLabelValues(o.Type.String()).Inc()
			p.logger.Debug("retransmit", "type", o.Type, "seq", o.Seq, "attempt", attempt)
		},
		OnExhausted: func(o *arq.Outgoing, err error) {
			s.metrics.exhausted.WithLabelValues(o.Type.String()).Inc()
			p.logger.Warn("message abandoned", "type", o.Type, "seq", o.Seq, "error", err)
		},
		Logger: p.logger,
	})
	p.machine.Transition(session.Connecting)
	return p
}

// ID returns the peer's session id.
func (p *Peer) ID() string {
	return p.id
}

// Identity returns the transport identity, such as "udp/10.0.0.1:4000".
func (p *Peer) Identity() string {
	return p.identity
}

// Done returns a channel that's closed when the peer has shut down.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) start() {
	if p.srv.inline {
		return
	}
	go p.run()
}

func (p *Peer) run() {
	for {
		select {
		case fn := <-p.mailbox:
			p.exec(fn)
		case <-p.wake:
			p.drainBacklog()
		case <-p.done:
			return
		}
	}
}

// exec runs a mailbox function with panic recovery.
func (p *Peer) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("peer panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (p *Peer) drainBacklog() {
	p.backlogMu.Lock()
	work := p.backlog
	p.backlog = nil
	p.backlogMu.Unlock()
	for _, fn := range work {
		select {
		case <-p.done:
			return
		default:
		}
		p.exec(fn)
	}
}

// Post queues fn on the peer's mailbox without blocking. When the mailbox
// is full fn is dropped and ErrMailboxFull is returned. It is safe to call
// from any goroutine.
func (p *Peer) Post(fn func()) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if p.srv.inline {
		p.exec(fn)
		return nil
	}
	select {
	case p.mailbox <- fn:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		p.srv.metrics.mailboxDropped.Inc()
		p.logger.Debug("mailbox full, dropping event")
		return ErrMailboxFull
	}
}

// enqueue queues fn on the peer's backlog. It neither blocks nor drops, so
// it is safe to call from timers and from other peers' loops.
func (p *Peer) enqueue(fn func()) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if p.srv.inline {
		p.exec(fn)
		return nil
	}
	p.backlogMu.Lock()
	p.backlog = append(p.backlog, fn)
	p.backlogMu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// postWait queues fn, blocking while the mailbox is full. Transport read
// loops use it so a slow peer applies backpressure instead of losing frames.
func (p *Peer) postWait(fn func()) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if p.srv.inline {
		p.exec(fn)
		return nil
	}
	select {
	case p.mailbox <- fn:
		return nil
	case <-p.done:
		return ErrPeerClosed
	}
}

// Receive queues one complete frame for handling, waiting for room in the
// mailbox.
func (p *Peer) Receive(frame []byte) error {
	return p.postWait(func() { p.handleFrame(frame) })
}

// offer queues a datagram for handling, dropping it if the mailbox is full.
// Datagram peers share one read loop, and the sender retransmits anything
// that goes unacknowledged.
func (p *Peer) offer(frame []byte) error {
	return p.Post(func() { p.handleFrame(frame) })
}

// Disconnect queues an implicit leave followed by peer shutdown.
func (p *Peer) Disconnect() {
	p.postWait(p.disconnect)
}

func (p *Peer) disconnect() {
	p.leaveSystem("disconnect")
	p.engine.Close()
	p.transition(session.Disconnected)
	if p.conn != nil {
		p.conn.Close()
	}
	p.srv.removePeer(p)
	p.stop()
}

func (p *Peer) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.logger.Debug("peer closed")
	})
}

// send queues m for reliable delivery.
func (p *Peer) send(m *protocol.Message) {
	if err := p.engine.Send(m); err != nil {
		p.logger.Warn("send failed", "type", m.Type, "error", err)
	}
}

func (p *Peer) writeFrame(frame []byte) error {
	if h, err := protocol.ReadHeader(frame); err == nil {
		p.srv.metrics.framesSent.WithLabelValues(h.Type.String()).Inc()
	}
	if err := p.write(frame); err != nil {
		return &PeerError{Peer: p.identity, Op: "write", Err: err}
	}
	return nil
}

func (p *Peer) transition(to session.State) {
	if err := p.machine.Transition(to); err != nil {
		p.logger.Warn("unexpected state transition", "error", err)
	}
}
