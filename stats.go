package textpack

import (
	"io"

	"github.com/seiflotfy/textpack/grammar"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stats summarises an archive.
type Stats struct {
	Entries      int
	InputBytes   int // decoded size of all entries
	FramedBytes  int // entry frames including length bytes
	TokenBytes   int // token frames including length bytes
	HeaderBytes  int // one byte per code table literal
	Tokens       int
	TokenLimit   int
	TableCodes   int
	CodedSymbols int // literals written with a table code
	Escaped      int // literals written with an escape
	TokenRefs    int // token references
}

// Stats decodes every entry and collects size and symbol statistics.
func (a *Archive) Stats() (Stats, error) {
	s := Stats{
		Entries:     a.Rows(),
		FramedBytes: a.FramedSize(),
		HeaderBytes: a.CodeTable.Len(),
		Tokens:      a.Dictionary.Len(),
		TokenLimit:  a.TokenLimit,
		TableCodes:  a.CodeTable.Len(),
	}

	tokenFrames, err := a.TokenFrames()
	if err != nil {
		return s, err
	}
	for _, f := range tokenFrames {
		s.TokenBytes += len(f)
	}

	var row []byte
	for i := range a.Frames {
		symbols, err := a.Symbols(i)
		if err != nil {
			return s, err
		}
		for _, sym := range symbols {
			switch classify(a.CodeTable, sym) {
			case classCoded:
				s.CodedSymbols++
			case classToken:
				s.TokenRefs++
			default:
				s.Escaped++
			}
		}
		row, err = a.Dictionary.Expand(row[:0], symbols)
		if err != nil {
			return s, err
		}
		s.InputBytes += len(row)
	}
	return s, nil
}

// OutputBytes is the total a decoder has to store.
func (s Stats) OutputBytes() int {
	return s.FramedBytes + s.TokenBytes + s.HeaderBytes
}

// Ratio is input size over output size.
func (s Stats) Ratio() float64 {
	if s.OutputBytes() == 0 {
		return 0
	}
	return float64(s.InputBytes) / float64(s.OutputBytes())
}

// WriteTo renders the summary as text.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	p := message.NewPrinter(language.English) // For commas between thousands
	var total int64
	lines := []struct {
		format string
		args   []any
	}{
		{"Entries:        %d\n", []any{s.Entries}},
		{"Input:          %d bytes\n", []any{s.InputBytes}},
		{"Output:         %d bytes (entries %d, tokens %d, header %d)\n", []any{s.OutputBytes(), s.FramedBytes, s.TokenBytes, s.HeaderBytes}},
		{"Ratio:          %.3f\n", []any{s.Ratio()}},
		{"Tokens:         %d of %d\n", []any{s.Tokens, s.TokenLimit - grammar.FirstToken}},
		{"Table codes:    %d\n", []any{s.TableCodes}},
		{"Symbols:        %d coded, %d escaped, %d token refs\n", []any{s.CodedSymbols, s.Escaped, s.TokenRefs}},
	}
	for _, l := range lines {
		n, err := p.Fprintf(w, l.format, l.args...)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
