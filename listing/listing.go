// Package listing renders an archive as an assembler source listing.
//
// The listing has four parts: one "label = index" assignment per entry,
// the code table under text_header_data, every entry frame under
// text_data and every token frame under text_token_data.
package listing

import (
	"bufio"
	"fmt"
	"io"

	"github.com/seiflotfy/textpack"
)

const (
	labelWidth   = 40
	literalWidth = 20
)

// Write renders a to w.
func Write(w io.Writer, a *textpack.Archive) error {
	tokenFrames, err := a.TokenFrames()
	if err != nil {
		return err
	}

	lw := &lineWriter{w: bufio.NewWriter(w)}
	for i, label := range a.Labels {
		lw.printf("%-*s = %d\n", labelWidth, label, i)
	}

	lw.printf("\ntext_header_data\n")
	for _, e := range a.CodeTable.Entries() {
		lw.printf("    !byte %-*d; %s: %3d, %d\n", literalWidth, e.Literal, describe(e.Literal), e.Count, e.Code)
	}

	lw.printf("\ntext_data\n")
	for i, frame := range a.Frames {
		lw.printf(";%s\n", a.Labels[i])
		writeBytes(lw, frame)
	}

	if len(tokenFrames) > 0 {
		lw.printf("\ntext_token_data\n")
		for i, frame := range tokenFrames {
			lw.printf(";token %d\n", a.Dictionary.Rules()[i].ID)
			writeBytes(lw, frame)
		}
	}
	return lw.flush()
}

func writeBytes(lw *lineWriter, frame []byte) {
	for _, b := range frame {
		lw.printf("    !byte %d\n", b)
	}
}

// describe shows printable literals as characters and the rest as numbers.
func describe(lit byte) string {
	if lit >= 32 && lit < 127 {
		return fmt.Sprintf("'%c'", lit)
	}
	return fmt.Sprintf("%3d", lit)
}

// lineWriter keeps the first write error and ignores later writes.
type lineWriter struct {
	w   *bufio.Writer
	err error
}

func (lw *lineWriter) printf(format string, args ...any) {
	if lw.err != nil {
		return
	}
	_, lw.err = fmt.Fprintf(lw.w, format, args...)
}

func (lw *lineWriter) flush() error {
	if lw.err != nil {
		return lw.err
	}
	return lw.w.Flush()
}
