package server

import (
	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
	"github.com/c2w-dev/c2w/pkg/session"
)

// handleFrame decodes one frame and runs the matching handler.
// Every decodable non-ack message is acknowledged before it is processed.
func (p *Peer) handleFrame(frame []byte) {
	span := p.startFrameSpan()
	defer span.End()

	m, err := protocol.Decode(frame)
	if err != nil {
		p.srv.metrics.malformedFrames.WithLabelValues(p.transport).Inc()
		p.logger.Debug("dropping malformed frame", "error", err, "len", len(frame))
		recordSpanError(span, err)
		return
	}
	annotateFrame(span, m)
	p.srv.metrics.framesReceived.WithLabelValues(m.Type.String()).Inc()

	if m.Type == protocol.TypeAck {
		p.onAck(m.Seq)
		return
	}
	if err := p.engine.SendAck(m.Seq); err != nil {
		p.logger.Warn("ack failed", "seq", m.Seq, "error", err)
		recordSpanError(span, err)
	}

	switch body := m.Body.(type) {
	case *protocol.Login:
		p.onLogin(body.Username)
	case *protocol.JoinRoom:
		p.onJoinRoom(body.MovieID)
	case *protocol.Chat:
		p.onChat(body.Text)
	default:
		if m.Type == protocol.TypeLeave {
			p.onLeave()
			return
		}
		p.logger.Debug("ignoring message", "type", m.Type, "seq", m.Seq)
	}
}

func (p *Peer) onLogin(name string) {
	if p.name == name {
		// A retransmission of the login that registered this peer: its
		// ack was lost, and the handshake is already under way.
		p.logger.Debug("duplicate login", "user", name, "state", p.machine.State())
		return
	}
	// A different name retires the old one; the others see it leave.
	p.leaveSystem("relogin")
	p.engine.Reset()

	dir := p.srv.dir
	if err := dir.Register(name, model.OutOfSystem, p.identity); err != nil {
		p.transition(session.CorrectUsernamePending)
		p.srv.metrics.logins.WithLabelValues("rejected").Inc()
		p.logger.Info("login rejected", "user", name, "error", err)
		p.send(&protocol.Message{Type: protocol.TypeLoginReject})
		return
	}

	p.name = name
	p.transition(session.LoginOkPending)
	p.srv.metrics.logins.WithLabelValues("ok").Inc()
	p.srv.metrics.registeredUsers.Set(float64(len(dir.Users())))
	p.logger.Info("login accepted", "user", name)
	p.send(&protocol.Message{Type: protocol.TypeLoginOK})
}

// onAck advances the login handshake: each of login OK, user list and
// movie list must be acknowledged before the next step is sent.
func (p *Peer) onAck(seq uint16) {
	acked, ok := p.engine.Ack(seq)
	if !ok {
		p.logger.Debug("ack matches nothing in flight", "seq", seq)
		return
	}

	dir := p.srv.dir
	switch {
	case acked.Type == protocol.TypeLoginOK && p.machine.Is(session.LoginOkPending):
		p.transition(session.UserListPending)
		p.send(&protocol.Message{Type: protocol.TypeUserList, Body: dir.UserListFor(p.name)})

	case acked.Type == protocol.TypeUserList && p.machine.Is(session.UserListPending):
		list, err := dir.MovieList()
		if err != nil {
			p.logger.Error("movie list", "error", err)
			return
		}
		p.transition(session.MovieListPending)
		p.send(&protocol.Message{Type: protocol.TypeMovieList, Body: list})

	case acked.Type == protocol.TypeMovieList && p.machine.Is(session.MovieListPending):
		p.transition(session.InitComplete)
		if err := dir.UpdateRoom(p.name, model.MainRoom); err != nil {
			p.logger.Error("entering main room", "error", err)
			return
		}
		p.announce(true)
		p.transition(session.InRoom)
		p.logger.Info("initialization complete", "user", p.name)
	}
}

func (p *Peer) onJoinRoom(movieID uint8) {
	if p.name == "" || !p.machine.Is(session.InRoom) {
		p.logger.Debug("join before initialization", "state", p.machine.State())
		return
	}
	room, err := p.srv.dir.JoinMovie(p.name, movieID)
	if err != nil {
		p.logger.Warn("join room", "movie_id", movieID, "error", err)
		return
	}
	p.transition(session.InRoom)
	p.logger.Info("joined room", "user", p.name, "room", room)
	p.announce(false)
}

func (p *Peer) onLeave() {
	p.leaveSystem("leave")
	p.engine.Close()
	p.transition(session.Disconnected)
	if p.transport == TransportDatagram {
		// The socket is shared; the session slot is released with the user.
		p.srv.removePeer(p)
		p.stop()
	}
}

func (p *Peer) onChat(text string) {
	if p.name == "" {
		p.logger.Debug("chat before login")
		return
	}
	recipients := p.srv.dir.SameRoom(p.name)
	p.srv.metrics.chatRecipients.Observe(float64(len(recipients)))
	p.srv.deliver(recipients, &protocol.Message{
		Type: protocol.TypeChatBroadcast,
		Body: &protocol.ChatBroadcast{Sender: p.name, Text: text},
	})
}

// leaveSystem moves the peer's user out of the system, notifies everyone
// else, and removes the user from the directory.
func (p *Peer) leaveSystem(reason string) {
	if p.name == "" {
		return
	}
	name := p.name
	p.name = ""

	dir := p.srv.dir
	if err := dir.UpdateRoom(name, model.OutOfSystem); err != nil {
		p.logger.Warn("leaving system", "error", err)
	}
	msg, err := dir.Notification(name, false)
	if err == nil {
		p.srv.deliver(dir.Others(name), msg)
	}
	dir.Deregister(name)
	p.srv.metrics.registeredUsers.Set(float64(len(dir.Users())))
	p.logger.Info("user left", "user", name, "reason", reason)
}

// announce notifies every other user of this peer's current room.
func (p *Peer) announce(justInitialized bool) {
	dir := p.srv.dir
	msg, err := dir.Notification(p.name, justInitialized)
	if err != nil {
		p.logger.Warn("building notification", "error", err)
		return
	}
	p.srv.deliver(dir.Others(p.name), msg)
}
