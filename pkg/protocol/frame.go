package protocol

import (
	"errors"
	"io"
)

// Frame constants.
const (
	// HeaderSize is the size of the sequence/type header in bytes.
	HeaderSize = 2

	// PrefixSize is the size of the header plus the length field.
	PrefixSize = 4

	// MaxFrameSize is the largest total length the length field can carry.
	MaxFrameSize = 65535

	// SeqModulus is the number of distinct sequence numbers (11 bits).
	SeqModulus = 1 << 11

	seqMask  = SeqModulus - 1
	typeMask = 0x1F
)

// MsgType identifies the type of a message (5 bits on the wire).
type MsgType uint8

const (
	TypeAck           MsgType = 0  // Acknowledgment, both directions
	TypeLogin         MsgType = 1  // C→S login request
	TypeLeave         MsgType = 2  // C→S leave system
	TypeJoinRoom      MsgType = 3  // C→S join room
	TypeLoginOK       MsgType = 5  // S→C login accepted
	TypeLoginReject   MsgType = 6  // S→C login rejected
	TypeUserList      MsgType = 7  // S→C user list
	TypeMovieList     MsgType = 8  // S→C movie list
	TypeJoinedMain    MsgType = 9  // S→C user entered main room after init
	TypeLeftSystem    MsgType = 10 // S→C user left the system
	TypeToMainRoom    MsgType = 11 // S→C user moved to main room
	TypeToMovieRoom   MsgType = 12 // S→C user moved to a movie room
	TypeChat          MsgType = 13 // C→S chat message
	TypeChatBroadcast MsgType = 14 // S→C chat message from another user
)

// String returns the string representation of the message type.
func (t MsgType) String() string {
	switch t {
	case TypeAck:
		return "Ack"
	case TypeLogin:
		return "Login"
	case TypeLeave:
		return "Leave"
	case TypeJoinRoom:
		return "JoinRoom"
	case TypeLoginOK:
		return "LoginOK"
	case TypeLoginReject:
		return "LoginReject"
	case TypeUserList:
		return "UserList"
	case TypeMovieList:
		return "MovieList"
	case TypeJoinedMain:
		return "JoinedMain"
	case TypeLeftSystem:
		return "LeftSystem"
	case TypeToMainRoom:
		return "ToMainRoom"
	case TypeToMovieRoom:
		return "ToMovieRoom"
	case TypeChat:
		return "Chat"
	case TypeChatBroadcast:
		return "ChatBroadcast"
	default:
		return "Unknown"
	}
}

// HeaderOnly reports whether frames of this type consist of the 2-byte
// header alone.
func (t MsgType) HeaderOnly() bool {
	return t == TypeAck || t == TypeLoginOK || t == TypeLoginReject
}

// IsNotification reports whether t is one of the room-change notifications.
func (t MsgType) IsNotification() bool {
	return t >= TypeJoinedMain && t <= TypeToMovieRoom
}

// Frame errors.
var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
)

// Header is the decoded 2-byte message header.
type Header struct {
	Seq  uint16
	Type MsgType
}

// EncodeHeader packs seq and type into the 16-bit header value.
// Seq is taken modulo 2048 and type modulo 32.
func EncodeHeader(h Header) uint16 {
	return (h.Seq&seqMask)<<5 | uint16(h.Type&typeMask)
}

// DecodeHeader unpacks a 16-bit header value.
func DecodeHeader(v uint16) Header {
	return Header{
		Seq:  v >> 5,
		Type: MsgType(v & typeMask),
	}
}

// ReadHeader decodes the header at the start of buf.
func ReadHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, io.ErrUnexpectedEOF
	}
	return DecodeHeader(uint16(buf[0])<<8 | uint16(buf[1])), nil
}

// NextSeq returns the sequence number following seq, wrapping at 2048.
func NextSeq(seq uint16) uint16 {
	return (seq + 1) & seqMask
}

// FrameSize reports the total length of the frame starting at buf.
// It returns ok=false when buf does not yet hold enough bytes to know.
// A length-prefixed frame declaring fewer than PrefixSize bytes yields
// ErrMalformedFrame.
func FrameSize(buf []byte) (size int, ok bool, err error) {
	h, err := ReadHeader(buf)
	if err != nil {
		return 0, false, nil
	}
	if h.Type.HeaderOnly() {
		return HeaderSize, true, nil
	}
	if len(buf) < PrefixSize {
		return 0, false, nil
	}
	size = int(buf[2])<<8 | int(buf[3])
	if size < PrefixSize {
		return 0, false, ErrMalformedFrame
	}
	return size, true, nil
}
