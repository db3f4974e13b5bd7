package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// HandleWebSocket upgrades the request and serves one peer over the
// connection. Each binary message may carry any number of whole or
// partial frames; text messages are ignored.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(int64(s.cfg.MaxDatagramSize))

	p := s.newPeer(TransportWebSocket, r.RemoteAddr, func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}, wsCloser{conn})
	if !s.addPeer(p) {
		conn.Close()
		return
	}

	framer := protocol.NewFramer()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				p.logger.Debug("websocket read failed", "error", err)
			}
			p.Disconnect()
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		framer.Feed(data)
		if !s.drainFramer(p, framer) {
			return
		}
	}
}

// wsCloser sends a close message before closing the connection.
type wsCloser struct {
	conn *websocket.Conn
}

func (c wsCloser) Close() error {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
