// Package transport holds datagram decorators used to exercise the
// protocol's retransmission under packet loss.
package transport

import (
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
)

// Option configures a lossy decorator.
type Option func(*dropper)

// WithSeed makes the drop pattern reproducible.
func WithSeed(seed uint64) Option {
	return func(d *dropper) {
		d.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger logs every dropped datagram at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(d *dropper) {
		d.logger = l
	}
}

// dropper decides which outgoing datagrams are lost.
type dropper struct {
	rate    float64
	mu      sync.Mutex
	rng     *rand.Rand
	logger  *slog.Logger
	dropped atomic.Uint64
	sent    atomic.Uint64
}

func newDropper(rate float64, opts []Option) *dropper {
	d := &dropper{rate: min(max(rate, 0), 1)}
	for _, opt := range opts {
		opt(d)
	}
	if d.rng == nil {
		d.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return d
}

func (d *dropper) drop(n int, to string) bool {
	if d.rate == 0 {
		d.sent.Add(1)
		return false
	}
	d.mu.Lock()
	lost := d.rng.Float64() < d.rate
	d.mu.Unlock()
	if !lost {
		d.sent.Add(1)
		return false
	}
	d.dropped.Add(1)
	if d.logger != nil {
		d.logger.Debug("datagram dropped", "bytes", n, "to", to)
	}
	return true
}

// Dropped returns how many datagrams were discarded.
func (d *dropper) Dropped() uint64 { return d.dropped.Load() }

// Sent returns how many datagrams were passed through.
func (d *dropper) Sent() uint64 { return d.sent.Load() }

// LossyPacketConn drops outgoing datagrams with a fixed probability.
// Reads are untouched, and a dropped write still reports success, as a
// datagram lost on the network would.
type LossyPacketConn struct {
	net.PacketConn
	*dropper
}

// NewLossyPacketConn wraps pc. rate is clamped to [0, 1].
func NewLossyPacketConn(pc net.PacketConn, rate float64, opts ...Option) *LossyPacketConn {
	return &LossyPacketConn{PacketConn: pc, dropper: newDropper(rate, opts)}
}

// WriteTo implements net.PacketConn.
func (c *LossyPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.drop(len(p), addr.String()) {
		return len(p), nil
	}
	return c.PacketConn.WriteTo(p, addr)
}

// LossyConn is the connected-socket counterpart of LossyPacketConn.
type LossyConn struct {
	net.Conn
	*dropper
}

// NewLossyConn wraps a connected datagram conn.
func NewLossyConn(conn net.Conn, rate float64, opts ...Option) *LossyConn {
	return &LossyConn{Conn: conn, dropper: newDropper(rate, opts)}
}

// Write implements net.Conn.
func (c *LossyConn) Write(p []byte) (int, error) {
	if c.drop(len(p), c.RemoteAddr().String()) {
		return len(p), nil
	}
	return c.Conn.Write(p)
}
