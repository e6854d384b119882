package textpack

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seiflotfy/textpack/bitpack"
	"github.com/seiflotfy/textpack/corpus"
)

// Fuzz test for encode/decode of repeated entries
func FuzzEncodeRoundTrip(f *testing.F) {
	f.Add("hello", false)
	f.Add("user_000001", true)
	f.Add("", false)
	f.Add("a", true)
	f.Add("abcdefghijklmnopqrstuvwxyz", false)
	f.Add("tab\there", true)
	f.Add("null\x00byte\x7f", false)

	f.Fuzz(func(t *testing.T, input string, lsb bool) {
		// Repeat the input so that runs can be tokenized
		c := corpus.FromStrings("a", input, "b", input, "c", input+input)
		order := bitpack.MSBFirst
		if lsb {
			order = bitpack.LSBFirst
		}

		archive, err := Encode(c, WithBitOrder(order))
		if err != nil {
			if errors.Is(err, ErrNonLiteral) || errors.Is(err, ErrOversize) {
				return
			}
			t.Fatalf("Encode failed: %v", err)
		}

		buffer := make([]byte, 2*len(input))
		for i, entry := range c.Entries() {
			size, err := archive.DecompressString(i, buffer)
			if err != nil {
				t.Fatalf("DecompressString(%d) failed: %v", i, err)
			}
			if !bytes.Equal(buffer[:size], entry.Data) {
				t.Errorf("entry %d: expected %q, got %q", i, entry.Data, buffer[:size])
			}
		}
	})
}

// Fuzz test for decoding arbitrary frames
func FuzzDecodeSymbols(f *testing.F) {
	f.Add([]byte{1})
	f.Add([]byte{5, 248, 0, 31, 131})
	f.Add([]byte{2, 0xE8})

	table := BuildCodeTable([][]byte{[]byte("etaoin shrdlu")})
	f.Fuzz(func(t *testing.T, frame []byte) {
		symbols, err := decodeSymbols(table, frame, bitpack.MSBFirst)
		if err != nil {
			return
		}
		// Anything that decodes re-encodes to a frame that decodes the same.
		again, err := encodeSymbols(table, symbols, 160, bitpack.MSBFirst)
		if err != nil {
			t.Fatalf("encodeSymbols failed: %v", err)
		}
		got, err := decodeSymbols(table, again, bitpack.MSBFirst)
		if err != nil {
			t.Fatalf("decodeSymbols of re-encoded frame failed: %v", err)
		}
		if !bytes.Equal(got, symbols) {
			t.Errorf("expected %v, got %v", symbols, got)
		}
	})
}
