package client

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"

	"github.com/c2w-dev/c2w/pkg/protocol"
)

// DialStream connects to a stream (TCP) server.
func DialStream(ctx context.Context, addr string, proxy Proxy, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := New(func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	}, conn, proxy, opts)
	go c.readStream(conn)
	return c, nil
}

// DialDatagram connects to a datagram (UDP) server. Each datagram carries
// one frame.
func DialDatagram(ctx context.Context, addr string, proxy Proxy, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	return NewDatagram(conn, proxy, opts), nil
}

// NewDatagram runs a client over an already connected packet conn, such
// as one wrapped by transport.NewLossyConn.
func NewDatagram(conn net.Conn, proxy Proxy, opts Options) *Client {
	c := New(func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	}, conn, proxy, opts)
	go c.readDatagrams(conn)
	return c
}

// DialWebSocket connects to a server's websocket endpoint, e.g.
// "ws://127.0.0.1:8080/ws".
func DialWebSocket(ctx context.Context, url string, proxy Proxy, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := New(func(frame []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, frame)
	}, conn, proxy, opts)
	go c.readWebSocket(conn)
	return c, nil
}

func (c *Client) readStream(r io.Reader) {
	framer := protocol.NewFramer()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			framer.Feed(buf[:n])
			c.drain(framer)
		}
		if err != nil {
			c.lost(err)
			return
		}
	}
}

func (c *Client) readDatagrams(conn net.Conn) {
	buf := make([]byte, protocol.MaxFrameSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// Refused datagrams surface as read errors on a connected UDP
			// socket; the server may simply not be up yet.
			var oe *net.OpError
			if errors.As(err, &oe) && !errors.Is(err, net.ErrClosed) && !oe.Timeout() && oe.Op == "read" {
				c.logger.Debug("datagram read failed", "error", err)
				continue
			}
			c.lost(err)
			return
		}
		c.Receive(append([]byte(nil), buf[:n]...))
	}
}

func (c *Client) readWebSocket(conn *websocket.Conn) {
	framer := protocol.NewFramer()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		framer.Feed(data)
		c.drain(framer)
	}
}

func (c *Client) drain(framer *protocol.Framer) {
	for {
		frame, err := framer.Next()
		if err != nil {
			c.logger.Debug("dropping malformed prefix", "error", err)
			continue
		}
		if frame == nil {
			return
		}
		c.Receive(frame)
	}
}
