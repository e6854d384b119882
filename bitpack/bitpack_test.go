package bitpack

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type field struct {
	width uint8
	value uint64
}

func mustPack(t *testing.T, fields ...field) *Packer {
	t.Helper()
	p := New()
	for _, f := range fields {
		if err := p.Append(f.width, f.value); err != nil {
			t.Fatalf("Append(%d, %d): %v", f.width, f.value, err)
		}
	}
	return p
}

func TestAppendMSBFirst(t *testing.T) {
	p := mustPack(t, field{5, 0b10110}, field{3, 0b011})
	frame, err := p.Frame(MSBFirst)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	want := []byte{2, 0b10110011}
	if !bytes.Equal(frame, want) {
		t.Errorf("expected %08b, got %08b", want, frame)
	}
}

func TestAppendIgnoresHighBits(t *testing.T) {
	p := mustPack(t, field{4, 0xFA}, field{4, 0x01})
	frame, err := p.Frame(MSBFirst)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if frame[1] != 0xA1 {
		t.Errorf("expected 0xA1, got %#x", frame[1])
	}
}

func TestPadAlreadyAligned(t *testing.T) {
	p := mustPack(t, field{8, 0x42})
	if err := p.Pad(5, 30, 7, 0); err != nil {
		t.Fatalf("Pad failed: %v", err)
	}
	if p.Len() != 8 {
		t.Errorf("expected 8 bits, got %d", p.Len())
	}
}

func TestPadCases(t *testing.T) {
	tests := []struct {
		name     string
		prefix   uint8 // bits already written (all zero)
		wantTail uint8 // expected low bits of the last byte
	}{
		// 3 bits missing: leading 3 bits of 11110.
		{name: "need3", prefix: 5, wantTail: 0b111},
		// 5 bits missing: exactly the sentinel.
		{name: "need5", prefix: 3, wantTail: 0b11110},
		// 7 bits missing: sentinel then two zero bits of the second field.
		{name: "need7", prefix: 1, wantTail: 0b1111000},
		// 1 bit missing.
		{name: "need1", prefix: 7, wantTail: 0b1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPack(t, field{tt.prefix, 0})
			if err := p.Pad(5, 30, 7, 0); err != nil {
				t.Fatalf("Pad failed: %v", err)
			}
			if !p.Aligned() || p.Len() != 8 {
				t.Fatalf("expected 8 aligned bits, got %d", p.Len())
			}
			frame, err := p.Frame(MSBFirst)
			if err != nil {
				t.Fatalf("Frame failed: %v", err)
			}
			if frame[1] != tt.wantTail {
				t.Errorf("expected %08b, got %08b", tt.wantTail, frame[1])
			}
		})
	}
}

func TestPadMatchesAppendAndTruncate(t *testing.T) {
	// Reference behaviour: append both fillers, keep only the bytes the
	// sequence occupied before padding.
	for prefix := uint8(1); prefix < 24; prefix++ {
		if prefix%8 == 0 {
			continue
		}
		p := mustPack(t, field{prefix, 0x5A5A5A})
		if err := p.Pad(5, 30, 7, 0x55); err != nil {
			t.Fatalf("Pad failed: %v", err)
		}
		got, err := p.Frame(MSBFirst)
		if err != nil {
			t.Fatalf("Frame failed: %v", err)
		}

		ref := mustPack(t, field{prefix, 0x5A5A5A}, field{5, 30}, field{7, 0x55})
		refFrame, err := ref.Frame(MSBFirst)
		if err != nil {
			t.Fatalf("Frame failed: %v", err)
		}
		targetBytes := (int(prefix) + 7) / 8
		if !bytes.Equal(got[1:], refFrame[1:1+targetBytes]) {
			t.Errorf("prefix %d: expected %08b, got %08b", prefix, refFrame[1:1+targetBytes], got[1:])
		}
		if int(got[0]) != targetBytes+1 {
			t.Errorf("prefix %d: expected header %d, got %d", prefix, targetBytes+1, got[0])
		}
	}
}

func TestPadRejectsNarrowFillers(t *testing.T) {
	p := mustPack(t, field{3, 0})
	if err := p.Pad(3, 1, 3, 1); !errors.Is(err, ErrPadWidth) {
		t.Errorf("expected ErrPadWidth, got %v", err)
	}
}

func TestFrameHeaderBound(t *testing.T) {
	p := New()
	for i := 0; i < MaxPayloadLen; i++ {
		if err := p.Append(8, uint64(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	frame, err := p.Frame(MSBFirst)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if frame[0] != MaxFrameLen || len(frame) != MaxFrameLen {
		t.Errorf("expected header %d and length %d, got %d and %d", MaxFrameLen, MaxFrameLen, frame[0], len(frame))
	}

	p = New()
	for i := 0; i < MaxPayloadLen; i++ {
		if err := p.Append(8, 0); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := p.Append(1, 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	frame, err = p.Frame(MSBFirst)
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
	if frame != nil {
		t.Errorf("expected no bytes on error, got %d", len(frame))
	}
}

func TestEmptyFrame(t *testing.T) {
	frame, err := New().Frame(MSBFirst)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if !bytes.Equal(frame, []byte{1}) {
		t.Errorf("expected [1], got %v", frame)
	}
}

func TestAppendAfterFrame(t *testing.T) {
	p := mustPack(t, field{8, 1})
	if _, err := p.Frame(MSBFirst); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if err := p.Append(1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestLSBFirstFrame(t *testing.T) {
	p := mustPack(t, field{3, 0b110}, field{5, 0b00001})
	frame, err := p.Frame(LSBFirst)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	// First written bit lands in bit 0.
	if frame[0] != 2 || frame[1] != 0b10000011 {
		t.Errorf("expected [2 10000011], got %08b", frame)
	}
}

func TestReaderRoundTrip(t *testing.T) {
	fields := []field{{5, 29}, {7, 100}, {5, 3}, {5, 31}, {5, 1}}
	for _, order := range []Order{MSBFirst, LSBFirst} {
		t.Run(order.String(), func(t *testing.T) {
			p := mustPack(t, fields...)
			if err := p.Pad(5, 30, 7, 0); err != nil {
				t.Fatalf("Pad failed: %v", err)
			}
			frame, err := p.Frame(order)
			if err != nil {
				t.Fatalf("Frame failed: %v", err)
			}
			payload, err := Unframe(frame)
			if err != nil {
				t.Fatalf("Unframe failed: %v", err)
			}
			r := NewReader(payload, order)
			for i, f := range fields {
				v, err := r.Read(f.width)
				if err != nil {
					t.Fatalf("field %d: %v", i, err)
				}
				if v != f.value {
					t.Errorf("field %d: expected %d, got %d", i, f.value, v)
				}
			}
			if r.Remaining() >= 8 {
				t.Errorf("expected less than a byte of padding, got %d bits", r.Remaining())
			}
			if _, err := r.Read(8); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
			}
		})
	}
}

func TestUnframeMismatch(t *testing.T) {
	if _, err := Unframe([]byte{3, 1}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
	if _, err := Unframe(nil); !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"": MSBFirst, "MSB": MSBFirst, "lsb": LSBFirst, "lsb-first": LSBFirst} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseOrder(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOrder("middle"); err == nil {
		t.Error("expected error for unknown order")
	}
}
