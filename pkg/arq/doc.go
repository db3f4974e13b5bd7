// Package arq implements the per-peer reliable delivery layer of c2w.
//
// Every non-ack message is sent with the peer's current sequence number
// and retransmitted byte-for-byte every Timeout until acknowledged, up to
// MaxRetries times. At most one message is unacknowledged per peer; later
// sends wait in a FIFO queue and are sequenced when they reach the head.
// An ack for the in-flight sequence cancels its timer and advances the
// local sequence number by one.
//
// An Engine is owned by a single serialized context (an actor goroutine or
// a mutex). Timer expiries are handed back to that context through the
// Dispatch option, never run on the timer goroutine directly.
package arq
