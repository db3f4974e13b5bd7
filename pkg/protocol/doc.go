// Package protocol implements the c2w binary wire protocol.
//
// The protocol carries the chat/session directory traffic between one
// server and many clients. The same bytes are used over stream and
// datagram transports.
//
// # Wire Format
//
// Every message starts with a 2-byte big-endian header:
//
//	┌───────────────────────────────┬─────────────┐
//	│ Sequence Number (11 bits)     │ Type (5 b)  │
//	└───────────────────────────────┴─────────────┘
//
// Types 0 (ack), 5 (login OK) and 6 (login reject) are header-only and
// are exactly 2 bytes long. Every other type carries a 2-byte big-endian
// total length after the header, counting the 4-byte prefix itself:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Header      │ Length       │ Payload (Length - 4 bytes)    │
//	│ (2 bytes)   │ (2 bytes)    │                               │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// An ack carries the sequence number of the message it acknowledges.
//
// # Stream Transport
//
// Stream transports deliver arbitrary chunks. Framer buffers them and
// yields complete frames one at a time; datagram transports pass each
// datagram to Decode directly.
package protocol
