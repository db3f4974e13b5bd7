package server

import (
	"context"
	"errors"
	"net"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// ServeDatagram serves every datagram peer over the single socket pc until
// ctx is done or the server shuts down. Peers are keyed by source address;
// a session is created by a login request from an unknown address.
func (s *Server) ServeDatagram(ctx context.Context, pc net.PacketConn) error {
	if !s.trackListener(pc) {
		return ErrServerClosed
	}
	defer s.untrackListener(pc)
	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()

	s.logger.Info("datagram transport listening", "addr", pc.LocalAddr().String())
	buf := make([]byte, s.cfg.MaxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(pc, addr, data)
	}
}

func (s *Server) handleDatagram(pc net.PacketConn, addr net.Addr, data []byte) {
	identity := TransportDatagram + "/" + addr.String()
	p := s.peer(identity)
	if p == nil {
		h, err := protocol.ReadHeader(data)
		if err != nil {
			s.metrics.malformedFrames.WithLabelValues(TransportDatagram).Inc()
			return
		}
		if h.Type != protocol.TypeLogin {
			s.orphanDatagram(pc, addr, h, data)
			return
		}
		p = s.newPeer(TransportDatagram, addr.String(), func(frame []byte) error {
			_, err := pc.WriteTo(frame, addr)
			return err
		}, nil)
		if !s.addPeer(p) {
			return
		}
	}
	if err := p.offer(data); err != nil {
		p.logger.Debug("datagram dropped", "error", err)
	}
}

// orphanDatagram handles a frame from an address without a session. It is
// acknowledged so the sender stops retransmitting, then dropped.
func (s *Server) orphanDatagram(pc net.PacketConn, addr net.Addr, h protocol.Header, data []byte) {
	if h.Type == protocol.TypeAck {
		return
	}
	if _, err := protocol.Decode(data); err != nil {
		s.metrics.malformedFrames.WithLabelValues(TransportDatagram).Inc()
		return
	}
	if _, err := pc.WriteTo(protocol.EncodeAck(h.Seq), addr); err != nil {
		s.logger.Debug("orphan ack failed", "remote", addr.String(), "error", err)
	}
	s.logger.Debug("datagram without session", "remote", addr.String(), "type", h.Type)
}
