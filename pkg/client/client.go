package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/c2w-dev/c2w/pkg/arq"
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
	"github.com/c2w-dev/c2w/pkg/session"
)

// RejectReason is passed to Proxy.LoginRejected when the name is taken.
const RejectReason = "username unavailable"

// Client errors.
var (
	ErrClosed       = errors.New("client: closed")
	ErrNotInRoom    = errors.New("client: not in a room")
	ErrUnknownMovie = errors.New("client: unknown movie")
)

// Options configures a Client.
type Options struct {
	// Timeout is the retransmission interval. Default: arq.DefaultTimeout.
	Timeout time.Duration

	// MaxRetries bounds retransmissions. Default: arq.DefaultMaxRetries.
	MaxRetries int

	// Scheduler arms retransmission timers. Default: arq.SystemScheduler.
	Scheduler arq.Scheduler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is one user's session with a server. All methods are safe for
// concurrent use.
type Client struct {
	proxy  Proxy
	logger *slog.Logger
	write  func([]byte) error
	conn   io.Closer

	mu      sync.Mutex
	engine  *arq.Engine
	machine *session.Machine
	mirror  *mirror
	name    string
	room    model.Room
	pending model.Room
	listed  []protocol.UserEntry
	events  []func()
	closed  bool
	done    chan struct{}
}

// New creates a client that writes frames with write and reports events
// to proxy. conn, if not nil, is closed by Close.
func New(write func([]byte) error, conn io.Closer, proxy Proxy, opts Options) *Client {
	if proxy == nil {
		proxy = NopProxy{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		proxy:   proxy,
		logger:  opts.Logger.With("component", "client"),
		write:   write,
		conn:    conn,
		machine: session.NewMachine(session.RoleClient),
		mirror:  newMirror(),
		done:    make(chan struct{}),
	}
	c.engine = arq.New(c.write, arq.Options{
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
		Scheduler:  opts.Scheduler,
		Dispatch:   c.dispatch,
		Logger:     c.logger,
		OnExhausted: func(o *arq.Outgoing, err error) {
			c.logger.Warn("message abandoned", "type", o.Type, "seq", o.Seq, "error", err)
		},
	})
	return c
}

// dispatch runs a timer expiry under the client lock.
func (c *Client) dispatch(f func()) {
	c.mu.Lock()
	f()
	c.unlock()
}

// unlock releases the lock and then runs queued proxy callbacks.
func (c *Client) unlock() {
	events := c.events
	c.events = nil
	c.mu.Unlock()
	for _, ev := range events {
		ev()
	}
}

func (c *Client) emit(ev func()) {
	c.events = append(c.events, ev)
}

// Name returns the name of the last login request.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Room returns the local user's room.
func (c *Client) Room() model.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// State returns the session state.
func (c *Client) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Users returns the mirrored user list, local user included.
func (c *Client) Users() []model.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.users()
}

// Movies returns the mirrored movie list ordered by id.
func (c *Client) Movies() []model.Movie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.movieList()
}

// Done is closed when the client is closed or its transport fails.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Login starts a session as name. Any previous session state is dropped.
func (c *Client) Login(name string) error {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	c.engine.Reset()
	c.mirror.reset()
	c.listed = nil
	c.name = name
	c.room = model.OutOfSystem
	c.machine.Transition(session.Disconnected)
	c.transition(session.Connecting)
	return c.engine.Send(&protocol.Message{Type: protocol.TypeLogin, Body: &protocol.Login{Username: name}})
}

// SendChat sends text to the local user's room. It is queued behind any
// unacknowledged message.
func (c *Client) SendChat(text string) error {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	return c.engine.Send(&protocol.Message{Type: protocol.TypeChat, Body: &protocol.Chat{Text: text}})
}

// JoinRoom asks to move to room: the main room or a movie room. The move
// takes effect locally when the server acknowledges it.
func (c *Client) JoinRoom(room model.Room) error {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.machine.Is(session.InRoom) {
		return ErrNotInRoom
	}
	var id uint8
	switch {
	case room.IsMain():
	case room.IsMovie():
		mv, ok := c.mirror.movieByTitle(room.Title())
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMovie, room.Title())
		}
		id = mv.ID
	default:
		return fmt.Errorf("client: cannot join %s", room)
	}
	if err := c.engine.Send(&protocol.Message{Type: protocol.TypeJoinRoom, Body: &protocol.JoinRoom{MovieID: id}}); err != nil {
		return err
	}
	c.pending = room
	c.transition(session.ToRoomRequestPending)
	return nil
}

// LeaveSystem asks to leave. Proxy.LeaveConfirmed follows the ack.
func (c *Client) LeaveSystem() error {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.machine.Is(session.InRoom) {
		return ErrNotInRoom
	}
	if err := c.engine.Send(&protocol.Message{Type: protocol.TypeLeave}); err != nil {
		return err
	}
	c.transition(session.ToOutOfSystemPending)
	return nil
}

// Close stops retransmissions and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.shutdown()
	c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) shutdown() {
	c.closed = true
	c.engine.Close()
	c.transition(session.Disconnected)
	close(c.done)
}

// lost marks the client closed after its transport failed.
func (c *Client) lost(err error) {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.logger.Info("connection lost", "error", err)
	c.shutdown()
}

// Receive handles one frame from the server.
func (c *Client) Receive(frame []byte) {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return
	}

	m, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	if m.Type == protocol.TypeAck {
		c.onAck(m.Seq)
		return
	}
	if err := c.engine.SendAck(m.Seq); err != nil {
		c.logger.Warn("ack failed", "seq", m.Seq, "error", err)
	}

	switch m.Type {
	case protocol.TypeLoginOK:
		if !c.machine.Is(session.Connecting) {
			c.logger.Debug("login ok outside handshake", "state", c.machine.State())
			return
		}
		c.room = model.OutOfSystem
		c.mirror.set(c.name, c.room)
	case protocol.TypeLoginReject:
		c.transition(session.Disconnected)
		c.emit(func() { c.proxy.LoginRejected(RejectReason) })
	case protocol.TypeUserList:
		c.onUserList(m.Body.(*protocol.UserList))
	case protocol.TypeMovieList:
		c.onMovieList(m.Body.(*protocol.MovieList))
	case protocol.TypeJoinedMain, protocol.TypeLeftSystem, protocol.TypeToMainRoom, protocol.TypeToMovieRoom:
		c.onNotification(m.Type, m.Body.(*protocol.Notification))
	case protocol.TypeChatBroadcast:
		b := m.Body.(*protocol.ChatBroadcast)
		c.emit(func() { c.proxy.ChatReceived(b.Sender, b.Text) })
	default:
		c.logger.Debug("ignoring message", "type", m.Type, "seq", m.Seq)
	}
}

func (c *Client) onAck(seq uint16) {
	acked, ok := c.engine.Ack(seq)
	if !ok {
		c.logger.Debug("ack matches nothing in flight", "seq", seq)
		return
	}
	switch {
	case acked.Type == protocol.TypeJoinRoom && c.machine.Is(session.ToRoomRequestPending):
		c.room = c.pending
		c.mirror.set(c.name, c.room)
		c.transition(session.InRoom)
		c.emit(c.proxy.JoinRoomConfirmed)
	case acked.Type == protocol.TypeLeave && c.machine.Is(session.ToOutOfSystemPending):
		c.room = model.OutOfSystem
		c.mirror.reset()
		c.transition(session.Disconnected)
		c.emit(c.proxy.LeaveConfirmed)
	}
}

// onUserList records the other users. Their rooms are resolved once the
// movie list is known too.
func (c *Client) onUserList(l *protocol.UserList) {
	if !c.advanceHandshake(session.UserListReceived, session.MovieListReceived) {
		return
	}
	c.listed = c.listed[:0]
	for _, u := range l.Users {
		if u.Name == c.name {
			continue
		}
		c.listed = append(c.listed, u)
	}
	c.maybeInitialize()
}

func (c *Client) onMovieList(l *protocol.MovieList) {
	if !c.advanceHandshake(session.MovieListReceived, session.UserListReceived) {
		return
	}
	for _, e := range l.Movies {
		c.mirror.addMovie(e)
	}
	c.maybeInitialize()
}

// advanceHandshake moves to received, or to InitComplete if the other list
// already arrived. It reports false for a list outside the handshake.
func (c *Client) advanceHandshake(received, other session.State) bool {
	switch {
	case c.machine.Is(session.Connecting):
		c.transition(received)
	case c.machine.Is(other):
		c.transition(session.InitComplete)
	default:
		c.logger.Debug("list outside handshake", "state", c.machine.State(), "list", received)
		return false
	}
	return true
}

func (c *Client) maybeInitialize() {
	if !c.machine.Is(session.InitComplete) {
		return
	}
	for _, u := range c.listed {
		c.mirror.set(u.Name, c.mirror.room(u.RoomID))
	}
	c.listed = nil
	c.room = model.MainRoom
	c.mirror.set(c.name, c.room)
	c.transition(session.InRoom)

	users, movies := c.mirror.users(), c.mirror.movieList()
	c.logger.Info("initialization complete", "users", len(users), "movies", len(movies))
	c.emit(func() { c.proxy.InitComplete(users, movies) })
}

func (c *Client) onNotification(t protocol.MsgType, n *protocol.Notification) {
	var room model.Room
	switch t {
	case protocol.TypeJoinedMain, protocol.TypeToMainRoom:
		room = model.MainRoom
	case protocol.TypeLeftSystem:
		room = model.OutOfSystem
	case protocol.TypeToMovieRoom:
		room = c.mirror.room(n.MovieID)
		if room.IsMain() {
			c.logger.Warn("notification for unknown movie", "user", n.Username, "movie_id", n.MovieID)
		}
	}
	if room.IsOutOfSystem() {
		c.mirror.remove(n.Username)
	} else {
		c.mirror.set(n.Username, room)
	}
	name := n.Username
	c.emit(func() { c.proxy.UserRoomChanged(name, room) })
}

func (c *Client) transition(to session.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Warn("unexpected state transition", "error", err)
	}
}
