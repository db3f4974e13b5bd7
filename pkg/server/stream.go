package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// ServeStream accepts stream connections on ln until ctx is done or the
// server shuts down. Each connection carries one peer session.
func (s *Server) ServeStream(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln) {
		return ErrServerClosed
	}
	defer s.untrackListener(ln)
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("stream transport listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
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
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	p := s.newPeer(TransportStream, conn.RemoteAddr().String(), func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	}, conn)
	if !s.addPeer(p) {
		conn.Close()
		return
	}
	s.readStream(p, conn)
}

// readStream feeds r through a framer into p until r fails. Losing the
// stream is an implicit leave.
func (s *Server) readStream(p *Peer, r io.Reader) {
	framer := protocol.NewFramer()
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
			if !s.drainFramer(p, framer) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				p.logger.Debug("stream read failed", "error", err)
			}
			p.Disconnect()
			return
		}
	}
}

// drainFramer hands every complete buffered frame to p. It returns false
// once p has shut down.
func (s *Server) drainFramer(p *Peer, framer *protocol.Framer) bool {
	for {
		frame, err := framer.Next()
		if err != nil {
			s.metrics.malformedFrames.WithLabelValues(p.transport).Inc()
			p.logger.Debug("dropping malformed prefix", "error", err)
			continue
		}
		if frame == nil {
			return true
		}
		if err := p.Receive(frame); err != nil {
			return false
		}
	}
}
