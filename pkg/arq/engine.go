package arq

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// Defaults for retransmission.
const (
	DefaultTimeout    = 500 * time.Millisecond
	DefaultMaxRetries = 100
)

// Engine errors.
var (
	ErrClosed         = errors.New("arq: engine closed")
	ErrRetryExhausted = errors.New("arq: retry limit reached")
)

// Outgoing is a message that has been sequenced and encoded. Frame is
// never modified after creation, so every retransmission resends the
// exact same bytes.
type Outgoing struct {
	Seq   uint16
	Type  protocol.MsgType
	Frame []byte
}

// SendFunc writes one encoded frame to the transport.
type SendFunc func(frame []byte) error

// Options configures an Engine.
type Options struct {
	// Timeout is the retransmission interval. Default: DefaultTimeout.
	Timeout time.Duration

	// MaxRetries is the number of retransmissions before a message is
	// abandoned. Default: DefaultMaxRetries.
	MaxRetries int

	// Scheduler arms retransmission timers. Default: SystemScheduler.
	Scheduler Scheduler

	// Dispatch runs f inside the engine owner's serialized context.
	// Timer callbacks go through it. Default runs f directly, which is
	// only correct when timers fire on the owner's goroutine (tests).
	Dispatch func(f func())

	// OnRetransmit is called after each retransmission.
	OnRetransmit func(o *Outgoing, attempt int)

	// OnExhausted is called when a message is abandoned.
	OnExhausted func(o *Outgoing, err error)

	// Logger receives send failures. Default: slog.Default().
	Logger *slog.Logger
}

// Engine is the reliable delivery state of one peer.
// It is not safe for concurrent use.
type Engine struct {
	opts Options
	send SendFunc

	seq      uint16
	inflight *Outgoing
	queue    []*protocol.Message
	retries  int
	timer    Timer
	gen      uint64
	closed   bool
}

// New creates an engine that writes frames with send.
func New(send SendFunc, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(f func()) { f() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{opts: opts, send: send}
}

// Seq returns the sequence number the next new message will carry.
func (e *Engine) Seq() uint16 {
	return e.seq
}

// InFlight returns the unacknowledged message, or nil.
func (e *Engine) InFlight() *Outgoing {
	return e.inflight
}

// Pending returns the number of messages waiting behind the in-flight one.
func (e *Engine) Pending() int {
	return len(e.queue)
}

// Retries returns how many times the in-flight message has been resent.
func (e *Engine) Retries() int {
	return e.retries
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed
}

// Send queues m for reliable delivery. If nothing is in flight it is
// sequenced and transmitted immediately; otherwise it waits its turn.
// m.Seq is overwritten. The returned error reports an encoding failure or
// a failed first transmission; in the latter case the message stays in
// flight and is retried.
func (e *Engine) Send(m *protocol.Message) error {
	if e.closed {
		return ErrClosed
	}
	if m.Type == protocol.TypeAck {
		return fmt.Errorf("arq: acks are not sent reliably")
	}
	if e.inflight != nil {
		e.queue = append(e.queue, m)
		return nil
	}
	return e.transmit(m)
}

// SendAck acknowledges seq. Acks are sent once and never retransmitted.
func (e *Engine) SendAck(seq uint16) error {
	if e.closed {
		return ErrClosed
	}
	return e.send(protocol.EncodeAck(seq))
}

// Ack handles an ack for seq. If it matches the in-flight message, the
// timer is cancelled, the sequence advances, the next queued message is
// transmitted, and the acknowledged message is returned with ok=true.
// Acks that match nothing are ignored.
func (e *Engine) Ack(seq uint16) (acked *Outgoing, ok bool) {
	if e.closed || e.inflight == nil || e.inflight.Seq != seq {
		return nil, false
	}
	acked = e.inflight
	e.stopTimer()
	e.inflight = nil
	e.retries = 0
	e.seq = protocol.NextSeq(seq)
	e.drain()
	return acked, true
}

// Reset returns the engine to its initial state: sequence 0, no pending
// messages, no timer. A closed engine is reopened.
func (e *Engine) Reset() {
	e.stopTimer()
	e.seq = 0
	e.inflight = nil
	e.queue = nil
	e.retries = 0
	e.closed = false
}

// Close cancels the pending timer and discards queued messages. Further
// sends fail with ErrClosed.
func (e *Engine) Close() {
	e.stopTimer()
	e.inflight = nil
	e.queue = nil
	e.retries = 0
	e.closed = true
}

func (e *Engine) transmit(m *protocol.Message) error {
	m.Seq = e.seq
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	e.inflight = &Outgoing{Seq: m.Seq, Type: m.Type, Frame: frame}
	e.retries = 0
	e.arm()
	if err := e.send(frame); err != nil {
		return fmt.Errorf("arq: send %s seq %d: %w", m.Type, m.Seq, err)
	}
	return nil
}

// drain transmits queued messages until one is in flight.
func (e *Engine) drain() {
	for e.inflight == nil && len(e.queue) > 0 {
		m := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		if err := e.transmit(m); err != nil {
			e.opts.Logger.Warn("queued send failed", "type", m.Type, "error", err)
		}
	}
}

func (e *Engine) arm() {
	e.gen++
	gen := e.gen
	e.timer = e.opts.Scheduler.AfterFunc(e.opts.Timeout, func() {
		e.opts.Dispatch(func() { e.expire(gen) })
	})
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// Invalidate any expiry already queued in the owner's context.
	e.gen++
}

func (e *Engine) expire(gen uint64) {
	if gen != e.gen || e.closed || e.inflight == nil {
		return
	}
	o := e.inflight
	e.retries++
	if e.retries <= e.opts.MaxRetries {
		e.arm()
		if err := e.send(o.Frame); err != nil {
			e.opts.Logger.Warn("retransmit failed", "type", o.Type, "seq", o.Seq, "error", err)
		}
		if e.opts.OnRetransmit != nil {
			e.opts.OnRetransmit(o, e.retries)
		}
		return
	}

	// Abandon the message. The sequence number is not advanced since the
	// peer never acknowledged it.
	e.timer = nil
	e.inflight = nil
	e.retries = 0
	if e.opts.OnExhausted != nil {
		e.opts.OnExhausted(o, ErrRetryExhausted)
	}
	e.drain()
}
