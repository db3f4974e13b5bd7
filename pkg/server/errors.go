package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common peer and server error conditions.
var (
	// ErrServerClosed is returned by the Serve methods after Shutdown.
	ErrServerClosed = errors.New("server: closed")

	// ErrPeerClosed is returned when posting to a peer that has shut down.
	ErrPeerClosed = errors.New("server: peer closed")

	// ErrMailboxFull is returned when a peer's mailbox is full and the
	// event is dropped.
	ErrMailboxFull = errors.New("server: mailbox full")
)

// PeerError wraps an error with peer context for debugging.
type PeerError struct {
	Peer string // Peer identity
	Op   string // Operation that failed
	Err  error  // Underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: peer %s: %s: %v", e.Peer, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}
