package protocol

// Framer reassembles frames from a byte stream.
//
// Feed appends received bytes; Next extracts one complete frame at a time.
// Bytes are only consumed once a whole frame is available, so a frame may
// span any number of Feed calls and one Feed may carry several frames.
// A Framer is not safe for concurrent use.
type Framer struct {
	buf []byte
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends p to the receive buffer.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Buffered returns the number of bytes waiting for a complete frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Next returns the next complete frame, or nil if more bytes are needed.
//
// The returned slice is owned by the caller. If the buffered prefix
// declares a length that can never form a frame, the 4-byte prefix is
// dropped and ErrMalformedFrame is returned; calling Next again resumes
// with the bytes after it.
func (f *Framer) Next() ([]byte, error) {
	size, ok, err := FrameSize(f.buf)
	if err != nil {
		f.consume(PrefixSize)
		return nil, err
	}
	if !ok || len(f.buf) < size {
		return nil, nil
	}
	frame := make([]byte, size)
	copy(frame, f.buf[:size])
	f.consume(size)
	return frame, nil
}

func (f *Framer) consume(n int) {
	rest := copy(f.buf, f.buf[n:])
	f.buf = f.buf[:rest]
}
