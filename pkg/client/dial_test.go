package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/c2w-dev/c2w/pkg/directory"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/server"
	"github.com/c2w-dev/c2w/pkg/transport"
)

const e2eTimeout = 10 * time.Second

// chanProxy forwards events to channels so tests can wait on them.
type chanProxy struct {
	init    chan []model.User
	rooms   chan string
	chats   chan string
	joined  chan struct{}
	left    chan struct{}
	refused chan string
}

func newChanProxy() *chanProxy {
	return &chanProxy{
		init:    make(chan []model.User, 8),
		rooms:   make(chan string, 256),
		chats:   make(chan string, 256),
		joined:  make(chan struct{}, 8),
		left:    make(chan struct{}, 8),
		refused: make(chan string, 8),
	}
}

func (p *chanProxy) LoginRejected(reason string) { p.refused <- reason }
func (p *chanProxy) InitComplete(users []model.User, _ []model.Movie) {
	p.init <- users
}
func (p *chanProxy) UserRoomChanged(name string, room model.Room) {
	p.rooms <- name + "=" + room.String()
}
func (p *chanProxy) ChatReceived(name, text string) { p.chats <- name + ":" + text }
func (p *chanProxy) JoinRoomConfirmed()             { p.joined <- struct{}{} }
func (p *chanProxy) LeaveConfirmed()                { p.left <- struct{}{} }

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(e2eTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// waitFor reads ch until want arrives. Retransmitted messages are not
// deduplicated by the receiver, so lossy transports may repeat events.
func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(e2eTimeout)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T) *server.Server {
	t.Helper()
	dir := directory.New(directory.WithLogger(quietLogger()))
	if err := dir.AddMovie(model.Movie{ID: 1, Title: "Up", Addr: netip.MustParseAddrPort("127.0.0.1:2001")}); err != nil {
		t.Fatalf("AddMovie() error = %v", err)
	}
	cfg := server.DefaultConfig()
	cfg.RetransmitTimeout = 20 * time.Millisecond
	srv := server.New(dir, server.WithLogger(quietLogger()), server.WithConfig(cfg))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e2eTimeout)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

// runSession exercises login, chat, room change and leave between two
// clients produced by dial.
func runSession(t *testing.T, dial func(p Proxy) *Client) {
	ap, bp := newChanProxy(), newChanProxy()
	alice, bob := dial(ap), dial(bp)
	defer alice.Close()
	defer bob.Close()

	alice.Login("alice")
	wait(t, ap.init, "alice init")
	bob.Login("bob")
	users := wait(t, bp.init, "bob init")
	if len(users) != 2 {
		t.Errorf("bob sees %v, want alice and bob", users)
	}
	waitFor(t, ap.rooms, "bob=main")

	alice.SendChat("one")
	alice.SendChat("two")
	waitFor(t, bp.chats, "alice:one")
	waitFor(t, bp.chats, "alice:two")

	bob.JoinRoom(model.MovieRoom("Up"))
	wait(t, bp.joined, "join confirmed")
	waitFor(t, ap.rooms, "bob=movie:Up")

	bob.JoinRoom(model.MainRoom)
	wait(t, bp.joined, "main confirmed")
	waitFor(t, ap.rooms, "bob=main")

	bob.LeaveSystem()
	wait(t, bp.left, "leave confirmed")
	waitFor(t, ap.rooms, "bob=out-of-system")
}

func TestStreamSession(t *testing.T) {
	srv := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.ServeStream(context.Background(), ln)

	runSession(t, func(p Proxy) *Client {
		c, err := DialStream(context.Background(), ln.Addr().String(), p, Options{Logger: quietLogger()})
		if err != nil {
			t.Fatalf("DialStream() error = %v", err)
		}
		return c
	})
}

func TestLossyDatagramSession(t *testing.T) {
	srv := newServer(t)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	lossy := transport.NewLossyPacketConn(pc, 0.2, transport.WithSeed(7))
	go srv.ServeDatagram(context.Background(), lossy)

	runSession(t, func(p Proxy) *Client {
		conn, err := net.Dial("udp", pc.LocalAddr().String())
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		return NewDatagram(transport.NewLossyConn(conn, 0.2, transport.WithSeed(11)), p, Options{
			Timeout: 20 * time.Millisecond,
			Logger:  quietLogger(),
		})
	})
	if lossy.Dropped() == 0 {
		t.Log("no server datagrams were dropped")
	}
}

func TestWebSocketSession(t *testing.T) {
	srv := newServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	runSession(t, func(p Proxy) *Client {
		c, err := DialWebSocket(context.Background(), url, p, Options{Logger: quietLogger()})
		if err != nil {
			t.Fatalf("DialWebSocket() error = %v", err)
		}
		return c
	})
}

func TestLoginCollisionOverStream(t *testing.T) {
	srv := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.ServeStream(context.Background(), ln)

	dial := func(p Proxy) *Client {
		c, err := DialStream(context.Background(), ln.Addr().String(), p, Options{Logger: quietLogger()})
		if err != nil {
			t.Fatalf("DialStream() error = %v", err)
		}
		t.Cleanup(func() { c.Close() })
		return c
	}
	first, second := newChanProxy(), newChanProxy()
	dial(first).Login("alice")
	wait(t, first.init, "first init")
	dial(second).Login("alice")
	if got := wait(t, second.refused, "rejection"); got != RejectReason {
		t.Errorf("reason = %q, want %q", got, RejectReason)
	}
}

func TestStreamLostClosesClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := DialStream(context.Background(), ln.Addr().String(), nil, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("DialStream() error = %v", err)
	}
	wait(t, c.Done(), "client shutdown")
	if err := c.Login("alice"); err != ErrClosed {
		t.Errorf("Login() after loss error = %v, want ErrClosed", err)
	}
}
