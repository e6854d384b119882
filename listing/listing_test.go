package listing

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/seiflotfy/textpack"
	"github.com/seiflotfy/textpack/corpus"
)

func TestWriteListing(t *testing.T) {
	c := corpus.FromStrings("greet", "Hi")
	a, err := textpack.Encode(c, textpack.WithTokenLimit(128))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, a); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// H=code 0, i=code 1: 00000 00001, then 11110 and one filler bit.
	want := fmt.Sprintf("%-40s = 0\n", "greet") +
		"\ntext_header_data\n" +
		fmt.Sprintf("    !byte %-20d; 'H':   1, 0\n", 72) +
		fmt.Sprintf("    !byte %-20d; 'i':   1, 1\n", 105) +
		"\ntext_data\n" +
		";greet\n" +
		"    !byte 3\n" +
		"    !byte 0\n" +
		"    !byte 124\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected listing:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteListingTokens(t *testing.T) {
	c := corpus.FromStrings("a", "Hello, Hello", "b", "Hello there")
	a, err := textpack.Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, a); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	for _, section := range []string{"text_header_data\n", "text_data\n", "text_token_data\n", ";token 128\n", ";a\n", ";b\n"} {
		if !strings.Contains(out, section) {
			t.Errorf("listing missing %q:\n%s", section, out)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := map[byte]string{'A': "'A'", ' ': "' '", 13: " 13", 127: "127"}
	for lit, want := range tests {
		if got := describe(lit); got != want {
			t.Errorf("describe(%d) = %q, want %q", lit, got, want)
		}
	}
}
