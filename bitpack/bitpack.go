// Package bitpack builds byte-aligned, length-framed bit sequences.
//
// Fields are written most significant bit first. A finished sequence is
// materialised as a frame: one length byte (1 + payload bytes) followed by
// the payload, which is the form consumed by the downstream decoder.
package bitpack

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/icza/bitio"
)

const (
	// MaxFrameLen is the largest value the one-byte length header can carry.
	MaxFrameLen = 255
	// MaxPayloadLen is the largest payload that fits behind the header.
	MaxPayloadLen = MaxFrameLen - 1

	maxFieldWidth = 64
	minPadWidth   = 7
)

var (
	// ErrTooLong indicates the payload cannot be framed by a single length byte.
	ErrTooLong = errors.New("frame too long")
	// ErrClosed indicates a write after the packer was framed.
	ErrClosed = errors.New("packer closed")
	// ErrFieldWidth indicates a field width outside [0, 64].
	ErrFieldWidth = errors.New("invalid field width")
	// ErrPadWidth indicates filler fields too narrow to reach a byte boundary.
	ErrPadWidth = errors.New("padding fields too narrow")
)

// Order selects how bits are laid out inside each materialised byte.
type Order uint8

const (
	// MSBFirst places the first written bit in bit 7 of each byte.
	MSBFirst Order = iota
	// LSBFirst places the first written bit in bit 0 of each byte.
	LSBFirst
)

func (o Order) String() string {
	switch o {
	case MSBFirst:
		return "msb"
	case LSBFirst:
		return "lsb"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// ParseOrder parses "msb" or "lsb" (case-insensitive). The empty string is MSBFirst.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "msb", "msb-first":
		return MSBFirst, nil
	case "lsb", "lsb-first":
		return LSBFirst, nil
	default:
		return 0, fmt.Errorf("unknown bit order %q", s)
	}
}

// Packer accumulates fixed-width fields into a bit sequence.
// The zero value is not usable; call New.
type Packer struct {
	buf    bytes.Buffer
	w      *bitio.Writer
	nbits  int
	closed bool
}

// New returns an empty packer.
func New() *Packer {
	p := &Packer{}
	p.w = bitio.NewWriter(&p.buf)
	return p
}

// Len returns the number of bits written so far.
func (p *Packer) Len() int {
	return p.nbits
}

// Aligned reports whether the sequence ends on a byte boundary.
func (p *Packer) Aligned() bool {
	return p.nbits%8 == 0
}

// Append writes the low width bits of value, high bit first.
func (p *Packer) Append(width uint8, value uint64) error {
	if p.closed {
		return ErrClosed
	}
	if width > maxFieldWidth {
		return fmt.Errorf("%w: %d", ErrFieldWidth, width)
	}
	if width == 0 {
		return nil
	}
	if err := p.w.WriteBits(lowBits(value, width), width); err != nil {
		return err
	}
	p.nbits += int(width)
	return nil
}

// Pad terminates the sequence on a byte boundary.
//
// When the sequence is already aligned Pad does nothing. Otherwise the
// remaining bits of the last byte are filled with the leading bits of
// value1 (width1 bits wide) followed, if that is not enough, by the leading
// bits of value2 (width2 bits wide). Filler bits beyond the boundary are
// discarded, so the result is the same as appending both fields and
// truncating to the byte count the sequence occupied before padding.
func (p *Packer) Pad(width1 uint8, value1 uint64, width2 uint8, value2 uint64) error {
	if int(width1)+int(width2) < minPadWidth {
		return fmt.Errorf("%w: %d+%d bits", ErrPadWidth, width1, width2)
	}
	if width1 > maxFieldWidth || width2 > maxFieldWidth {
		return fmt.Errorf("%w: %d/%d", ErrFieldWidth, width1, width2)
	}
	if p.Aligned() {
		return nil
	}

	need := uint8(8 - p.nbits%8)
	value1 = lowBits(value1, width1)
	if need <= width1 {
		return p.Append(need, value1>>(width1-need))
	}
	if err := p.Append(width1, value1); err != nil {
		return err
	}
	need -= width1
	value2 = lowBits(value2, width2)
	return p.Append(need, value2>>(width2-need))
}

// Frame closes the packer and returns the length header followed by the
// payload bytes. A trailing partial byte is zero filled. Frame fails with
// ErrTooLong, and returns no bytes, when the header would exceed 255.
func (p *Packer) Frame(order Order) ([]byte, error) {
	if !p.closed {
		if _, err := p.w.Align(); err != nil {
			return nil, err
		}
		if err := p.w.Close(); err != nil {
			return nil, err
		}
		p.closed = true
	}

	payload := p.buf.Bytes()
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d payload bytes (%d bits), header would be %d",
			ErrTooLong, len(payload), p.nbits, len(payload)+1)
	}

	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(len(payload)+1))
	frame = append(frame, payload...)
	if order == LSBFirst {
		reverseBytes(frame[1:])
	}
	return frame, nil
}

func lowBits(v uint64, width uint8) uint64 {
	if width >= 64 {
		return v
	}
	return v & (1<<width - 1)
}

func reverseBytes(b []byte) {
	for i, c := range b {
		b[i] = bits.Reverse8(c)
	}
}
