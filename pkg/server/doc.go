// Package server implements the server role of the c2w protocol.
//
// A Server owns the directory and one Peer per connected client. Each Peer
// is an actor that runs its work one item at a time on its own goroutine,
// so a peer's handshake state and ARQ engine are never touched
// concurrently. Frames read from its transport go through a bounded
// mailbox. Retransmission timers and deliveries from other peers go
// through an unbounded backlog and are never dropped.
//
// Three transports feed the same peer logic:
//
//   - ServeStream: TCP, one peer per connection, frames reassembled with
//     protocol.Framer. A closed connection is an implicit leave.
//   - ServeDatagram: UDP, one socket, peers keyed by source address.
//   - HandleWebSocket: binary WebSocket messages fed through a Framer.
//
// # Usage
//
//	dir := directory.New()
//	srv := server.New(dir, server.WithLogger(logger))
//	ln, _ := net.Listen("tcp", ":1991")
//	go srv.ServeStream(ctx, ln)
package server
