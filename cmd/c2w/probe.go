package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/c2w-dev/c2w/internal/errors"
	"github.com/c2w-dev/c2w/pkg/client"
	"github.com/c2w-dev/c2w/pkg/model"
)

type probeOptions struct {
	transport string
	name      string
	room      string
	chat      string
	timeout   time.Duration
	retry     time.Duration
}

func probeCmd() *cobra.Command {
	opts := probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe ADDR",
		Short: "Log in to a server and report what it sees",
		Long: `Log in to a c2w server, print the user and movie lists, optionally
join a room and send a chat message, then leave.

ADDR is host:port for tcp and udp, and a ws:// URL for ws.

Examples:
  c2w probe localhost:1991
  c2w probe -t udp localhost:1992 --room "Big Buck Bunny" --chat hello
  c2w probe -t ws ws://localhost:8080/ws`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.name == "" {
				opts.name = "probe-" + uuid.NewString()[:8]
			}
			return runProbe(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.transport, "transport", "t", "tcp", "tcp, udp or ws")
	flags.StringVarP(&opts.name, "name", "n", "", "User name (default probe-<random>)")
	flags.StringVar(&opts.room, "room", "", "Movie room to join after login")
	flags.StringVar(&opts.chat, "chat", "", "Chat message to send")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Overall deadline")
	flags.DurationVar(&opts.retry, "retransmit", 500*time.Millisecond, "Retransmission interval")

	return cmd
}

// probeProxy turns client events into channel sends.
type probeProxy struct {
	rejected chan string
	ready    chan []model.User
	joined   chan struct{}
	left     chan struct{}
}

func newProbeProxy() *probeProxy {
	return &probeProxy{
		rejected: make(chan string, 1),
		ready:    make(chan []model.User, 1),
		joined:   make(chan struct{}, 1),
		left:     make(chan struct{}, 1),
	}
}

func (p *probeProxy) LoginRejected(reason string) { offer(p.rejected, reason) }

func (p *probeProxy) InitComplete(users []model.User, _ []model.Movie) { offer(p.ready, users) }

func (p *probeProxy) UserRoomChanged(name string, room model.Room) {
	info("%s → %s", name, room)
}

func (p *probeProxy) ChatReceived(name, text string) {
	info("<%s> %s", name, text)
}

func (p *probeProxy) JoinRoomConfirmed() { offer(p.joined, struct{}{}) }

func (p *probeProxy) LeaveConfirmed() { offer(p.left, struct{}{}) }

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func dial(ctx context.Context, addr string, proxy client.Proxy, opts probeOptions) (*client.Client, error) {
	copts := client.Options{Timeout: opts.retry}
	switch opts.transport {
	case "tcp":
		return client.DialStream(ctx, addr, proxy, copts)
	case "udp":
		return client.DialDatagram(ctx, addr, proxy, copts)
	case "ws":
		if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
			addr = "ws://" + addr + "/ws"
		}
		return client.DialWebSocket(ctx, addr, proxy, copts)
	}
	return nil, fmt.Errorf("unknown transport %q", opts.transport)
}

func runProbe(ctx context.Context, addr string, opts probeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	fail := func(step string, err error) error {
		return errors.New("C203").
			WithDetail(fmt.Sprintf("Step %q against %s over %s failed.", step, addr, opts.transport)).
			Wrap(err)
	}

	proxy := newProbeProxy()
	start := time.Now()
	c, err := dial(ctx, addr, proxy, opts)
	if err != nil {
		return fail("dial", err)
	}
	defer c.Close()

	wait := func(step string, ch <-chan struct{}) error {
		select {
		case <-ch:
			return nil
		case <-c.Done():
			return fail(step, client.ErrClosed)
		case <-ctx.Done():
			return fail(step, ctx.Err())
		}
	}

	if err := c.Login(opts.name); err != nil {
		return fail("login", err)
	}
	var users []model.User
	select {
	case users = <-proxy.ready:
	case reason := <-proxy.rejected:
		return fail("login", fmt.Errorf("%s: %s", opts.name, reason))
	case <-c.Done():
		return fail("login", client.ErrClosed)
	case <-ctx.Done():
		return fail("login", ctx.Err())
	}
	success("Logged in as %s over %s in %s", opts.name, opts.transport, time.Since(start).Round(time.Millisecond))

	info("Users (%d):", len(users))
	for _, u := range users {
		info("  %-20s %s", u.Name, u.Room)
	}
	movies := c.Movies()
	info("Movies (%d):", len(movies))
	for _, m := range movies {
		info("  %3d %-30s %s", m.ID, m.Title, m.Addr)
	}

	if opts.room != "" {
		room := model.MainRoom
		if opts.room != "main" {
			room = model.MovieRoom(opts.room)
		}
		if err := c.JoinRoom(room); err != nil {
			return fail("join", err)
		}
		if err := wait("join", proxy.joined); err != nil {
			return err
		}
		success("Joined %s", room)
	}

	if opts.chat != "" {
		if err := c.SendChat(opts.chat); err != nil {
			return fail("chat", err)
		}
	}

	if err := c.LeaveSystem(); err != nil {
		return fail("leave", err)
	}
	if err := wait("leave", proxy.left); err != nil {
		return err
	}
	success("Left after %s", time.Since(start).Round(time.Millisecond))
	return nil
}
