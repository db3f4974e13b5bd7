package protocol

// Encoder is a big-endian binary encoder that appends to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoderWithCap creates a new encoder with the specified initial capacity.
func NewEncoderWithCap(cap int) *Encoder {
	return &Encoder{
		buf: make([]byte, 0, cap),
	}
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next Write method.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends a single byte. Unlike io.ByteWriter it cannot fail.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteRaw appends the bytes of s without a length prefix.
func (e *Encoder) WriteRaw(s string) {
	e.buf = append(e.buf, s...)
}

// WriteString16 appends a string prefixed with its 2-byte big-endian length.
// Callers must ensure len(s) fits in 16 bits.
func (e *Encoder) WriteString16(s string) {
	e.WriteUint16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

// PutUint16At overwrites two bytes at pos with v in big-endian byte order.
// It is used to backpatch length fields once the payload is known.
func (e *Encoder) PutUint16At(pos int, v uint16) {
	e.buf[pos] = byte(v >> 8)
	e.buf[pos+1] = byte(v)
}
