package server

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/c2w-dev/c2w/pkg/arq"
	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// manualScheduler arms timers that only fire when the test says so.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f      func()
	active bool
}

func (t *manualTimer) Stop() bool {
	was := t.active
	t.active = false
	return was
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) arq.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f, active: true}
	s.timers = append(s.timers, t)
	return t
}

// fireAll runs every active timer once.
func (s *manualScheduler) fireAll() int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if t.active {
			t.active = false
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

type recordingStreamer struct {
	titles []string
}

func (r *recordingStreamer) StartStreaming(title string) {
	r.titles = append(r.titles, title)
}

type harness struct {
	t        *testing.T
	srv      *Server
	dir      *directory.Directory
	sched    *manualScheduler
	streamer *recordingStreamer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	streamer := &recordingStreamer{}
	dir := directory.New(directory.WithStreamer(streamer), directory.WithLogger(discardLogger()))
	for _, m := range []model.Movie{
		{ID: 1, Title: "Up", Addr: netip.MustParseAddrPort("127.0.0.1:2001")},
		{ID: 2, Title: "Heat", Addr: netip.MustParseAddrPort("127.0.0.1:2002")},
	} {
		if err := dir.AddMovie(m); err != nil {
			t.Fatalf("AddMovie() error = %v", err)
		}
	}
	sched := &manualScheduler{}
	srv := New(dir, WithLogger(discardLogger()), WithScheduler(sched))
	srv.inline = true
	return &harness{t: t, srv: srv, dir: dir, sched: sched, streamer: streamer}
}

// client is the test's view of one connected peer.
type client struct {
	h      *harness
	p      *Peer
	raw    [][]byte
	inbox  []*protocol.Message
	acked  int
	closed bool
	seq    uint16
}

func (h *harness) connect(transport, addr string) *client {
	c := &client{h: h}
	c.p = h.srv.newPeer(transport, addr, func(frame []byte) error {
		c.raw = append(c.raw, append([]byte(nil), frame...))
		m, err := protocol.Decode(frame)
		if err != nil {
			h.t.Fatalf("server wrote undecodable frame % x: %v", frame, err)
		}
		c.inbox = append(c.inbox, m)
		return nil
	}, closerFunc(func() error { c.closed = true; return nil }))
	if !h.srv.addPeer(c.p) {
		h.t.Fatal("addPeer() = false")
	}
	return c
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// send delivers m to the server with the client's next sequence number.
func (c *client) send(m *protocol.Message) {
	c.h.t.Helper()
	m.Seq = c.seq
	c.seq = protocol.NextSeq(c.seq)
	if err := c.p.Receive(protocol.MustEncode(m)); err != nil {
		c.h.t.Fatalf("Receive() error = %v", err)
	}
}

func (c *client) ack(seq uint16) {
	c.h.t.Helper()
	if err := c.p.Receive(protocol.EncodeAck(seq)); err != nil {
		c.h.t.Fatalf("Receive(ack) error = %v", err)
	}
}

// ackNew acknowledges every non-ack message not yet acknowledged. It
// reports whether anything was acknowledged.
func (c *client) ackNew() bool {
	progressed := false
	for c.acked < len(c.inbox) {
		m := c.inbox[c.acked]
		c.acked++
		if m.Type != protocol.TypeAck {
			c.ack(m.Seq)
			progressed = true
		}
	}
	return progressed
}

// settle acknowledges messages on all clients until nothing new arrives.
func settle(clients ...*client) {
	for {
		progressed := false
		for _, c := range clients {
			if c.ackNew() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (c *client) login(name string) {
	c.send(&protocol.Message{Type: protocol.TypeLogin, Body: &protocol.Login{Username: name}})
}

func (c *client) received(typ protocol.MsgType) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range c.inbox {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *client) reset() {
	c.raw = nil
	c.inbox = nil
	c.acked = 0
}
