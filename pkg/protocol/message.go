package protocol

import (
	"fmt"
)

// Message is a decoded c2w message.
//
// Body is nil for types without a payload (ack, leave, login OK, login
// reject). For the other types it holds the matching body struct.
type Message struct {
	Seq  uint16
	Type MsgType
	Body Body
}

// Body is the type-specific payload of a message.
type Body interface {
	encodeTo(e *Encoder)
}

// Login is the payload of a login request.
type Login struct {
	Username string
}

// JoinRoom is the payload of a join room request. MovieID 0 is the main room.
type JoinRoom struct {
	MovieID uint8
}

// UserEntry is one user in a user list.
type UserEntry struct {
	// RoomID is the id of the movie the user is watching, or 0 for the
	// main room.
	RoomID uint8
	Name   string
}

// UserList is the payload of a user list.
type UserList struct {
	Users []UserEntry
}

// MovieEntry is one movie in a movie list.
type MovieEntry struct {
	ID    uint8
	Addr  [4]byte
	Port  uint16
	Title string
}

// MovieList is the payload of a movie list.
type MovieList struct {
	Movies []MovieEntry
}

// Notification is the payload shared by message types 9 to 12.
type Notification struct {
	MovieID  uint8
	Username string
}

// Chat is the payload of a chat message sent by a client.
type Chat struct {
	Text string
}

// ChatBroadcast is the payload of a chat message relayed by the server.
type ChatBroadcast struct {
	Sender string
	Text   string
}

// Unknown carries the raw payload of a message type this package does not
// interpret.
type Unknown struct {
	Payload []byte
}

func (b *Login) encodeTo(e *Encoder)    { e.WriteRaw(b.Username) }
func (b *JoinRoom) encodeTo(e *Encoder) { e.WriteByte(b.MovieID) }
func (b *Chat) encodeTo(e *Encoder)     { e.WriteRaw(b.Text) }
func (b *Unknown) encodeTo(e *Encoder)  { e.WriteBytes(b.Payload) }

func (b *UserList) encodeTo(e *Encoder) {
	for _, u := range b.Users {
		e.WriteByte(u.RoomID)
		e.WriteString16(u.Name)
	}
}

func (b *MovieList) encodeTo(e *Encoder) {
	for _, m := range b.Movies {
		e.WriteByte(m.ID)
		e.WriteBytes(m.Addr[:])
		e.WriteUint16(m.Port)
		e.WriteString16(m.Title)
	}
}

func (b *Notification) encodeTo(e *Encoder) {
	e.WriteByte(b.MovieID)
	e.WriteRaw(b.Username)
}

func (b *ChatBroadcast) encodeTo(e *Encoder) {
	e.WriteString16(b.Sender)
	e.WriteRaw(b.Text)
}

// Encode encodes m into a complete frame.
//
// Header-only types ignore Body. For all other types the length field is
// computed from the encoded body; a frame longer than MaxFrameSize, or a
// list entry whose string does not fit its 2-byte length, fails with
// ErrFrameTooLarge.
func Encode(m *Message) ([]byte, error) {
	e := NewEncoderWithCap(PrefixSize + 16)
	e.WriteUint16(EncodeHeader(Header{Seq: m.Seq, Type: m.Type}))
	if m.Type.HeaderOnly() {
		return e.Bytes(), nil
	}
	if err := checkFieldSizes(m.Body); err != nil {
		return nil, err
	}

	e.WriteUint16(0)
	if m.Body != nil {
		m.Body.encodeTo(e)
	}
	if e.Len() > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFrameTooLarge, m.Type, e.Len())
	}
	e.PutUint16At(HeaderSize, uint16(e.Len()))
	return e.Bytes(), nil
}

func checkFieldSizes(b Body) error {
	switch b := b.(type) {
	case *UserList:
		for _, u := range b.Users {
			if len(u.Name) > MaxFrameSize {
				return fmt.Errorf("%w: user name", ErrFrameTooLarge)
			}
		}
	case *MovieList:
		for _, m := range b.Movies {
			if len(m.Title) > MaxFrameSize {
				return fmt.Errorf("%w: movie title", ErrFrameTooLarge)
			}
		}
	case *ChatBroadcast:
		if len(b.Sender) > MaxFrameSize {
			return fmt.Errorf("%w: sender name", ErrFrameTooLarge)
		}
	}
	return nil
}

// MustEncode is like Encode but panics on error. It is meant for tests and
// for messages whose size is bounded by construction, such as acks.
func MustEncode(m *Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// EncodeAck returns the 2-byte ack frame acknowledging seq.
func EncodeAck(seq uint16) []byte {
	v := EncodeHeader(Header{Seq: seq, Type: TypeAck})
	return []byte{byte(v >> 8), byte(v)}
}

// Decode decodes one complete frame.
//
// Only the declared frame length is consumed; bytes after it are ignored,
// which lets a datagram be decoded as-is. Errors wrap ErrMalformedFrame.
func Decode(frame []byte) (*Message, error) {
	h, err := ReadHeader(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: short header", ErrMalformedFrame)
	}
	m := &Message{Seq: h.Seq, Type: h.Type}
	if h.Type.HeaderOnly() {
		return m, nil
	}

	size, ok, err := FrameSize(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %s declares length below %d", ErrMalformedFrame, h.Type, PrefixSize)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s missing length field", ErrMalformedFrame, h.Type)
	}
	if size > len(frame) {
		return nil, fmt.Errorf("%w: %s declares %d bytes, have %d", ErrMalformedFrame, h.Type, size, len(frame))
	}

	body, err := decodeBody(h.Type, NewDecoder(frame[PrefixSize:size]))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, h.Type, err)
	}
	m.Body = body
	return m, nil
}

func decodeBody(t MsgType, d *Decoder) (Body, error) {
	switch t {
	case TypeLeave:
		return nil, nil

	case TypeLogin:
		return &Login{Username: d.ReadRest()}, nil

	case TypeJoinRoom:
		id, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		return &JoinRoom{MovieID: id}, nil

	case TypeUserList:
		b := &UserList{}
		for !d.EOF() {
			var u UserEntry
			var err error
			if u.RoomID, err = d.ReadByte(); err != nil {
				return nil, err
			}
			if u.Name, err = d.ReadString16(); err != nil {
				return nil, err
			}
			b.Users = append(b.Users, u)
		}
		return b, nil

	case TypeMovieList:
		b := &MovieList{}
		for !d.EOF() {
			var m MovieEntry
			var err error
			if m.ID, err = d.ReadByte(); err != nil {
				return nil, err
			}
			addr, err := d.ReadBytes(4)
			if err != nil {
				return nil, err
			}
			copy(m.Addr[:], addr)
			if m.Port, err = d.ReadUint16(); err != nil {
				return nil, err
			}
			if m.Title, err = d.ReadString16(); err != nil {
				return nil, err
			}
			b.Movies = append(b.Movies, m)
		}
		return b, nil

	case TypeJoinedMain, TypeLeftSystem, TypeToMainRoom, TypeToMovieRoom:
		id, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		return &Notification{MovieID: id, Username: d.ReadRest()}, nil

	case TypeChat:
		return &Chat{Text: d.ReadRest()}, nil

	case TypeChatBroadcast:
		sender, err := d.ReadString16()
		if err != nil {
			return nil, err
		}
		return &ChatBroadcast{Sender: sender, Text: d.ReadRest()}, nil

	default:
		if d.EOF() {
			return &Unknown{}, nil
		}
		payload, _ := d.ReadBytes(d.Remaining())
		return &Unknown{Payload: append([]byte(nil), payload...)}, nil
	}
}
