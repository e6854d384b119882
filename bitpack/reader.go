package bitpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// ErrBadFrame indicates a frame whose length header does not match its size.
var ErrBadFrame = errors.New("malformed frame")

// Unframe validates the length header of frame and returns its payload.
func Unframe(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadFrame)
	}
	if int(frame[0]) != len(frame) {
		return nil, fmt.Errorf("%w: header %d, frame length %d", ErrBadFrame, frame[0], len(frame))
	}
	return frame[1:], nil
}

// Reader reads fixed-width fields from a payload, bounded by its length.
type Reader struct {
	r         *bitio.Reader
	remaining int
}

// NewReader returns a reader over payload, which must have been produced
// with the given bit order.
func NewReader(payload []byte, order Order) *Reader {
	src := payload
	if order == LSBFirst {
		src = append([]byte(nil), payload...)
		reverseBytes(src)
	}
	return &Reader{
		r:         bitio.NewReader(bytes.NewReader(src)),
		remaining: len(src) * 8,
	}
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return r.remaining
}

// Read returns the next width bits as an unsigned value, high bit first.
func (r *Reader) Read(width uint8) (uint64, error) {
	if width > maxFieldWidth {
		return 0, fmt.Errorf("%w: %d", ErrFieldWidth, width)
	}
	if int(width) > r.remaining {
		return 0, io.ErrUnexpectedEOF
	}
	if width == 0 {
		return 0, nil
	}
	v, err := r.r.ReadBits(width)
	if err != nil {
		return 0, err
	}
	r.remaining -= int(width)
	return v, nil
}
