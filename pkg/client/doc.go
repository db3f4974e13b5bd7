// Package client implements the client role of the c2w protocol.
//
// A Client drives one session against a server: it sends the login,
// acknowledges the user and movie lists, keeps a local mirror of the
// directory, and reports everything the user interface needs through a
// Proxy. Outgoing requests go through the same reliable delivery engine
// as the server's, so chat messages sent while another message is
// unacknowledged wait their turn.
//
// A Client is transport agnostic. DialStream, DialDatagram and
// DialWebSocket connect one to a server and run its read loop.
//
//	c, err := client.DialStream(ctx, "127.0.0.1:1991", proxy, client.Options{})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	c.Login("alice")
package client
