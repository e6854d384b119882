package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax indicates source text that cannot be parsed.
var ErrSyntax = errors.New("syntax error")

const (
	directiveText = "!text"
	directiveByte = "!byte"
)

// Parse reads entries from the assembler-style source format:
//
//	; comment
//	label_name
//	    !text "Hello, ", 34, "world", $22
//	    !byte 13, 0
//
// An unindented line starts a new entry. Indented lines carry !text or
// !byte directives whose operands are decimal numbers, $-prefixed hex
// numbers or double-quoted strings, where \ takes the next character
// literally. Bytes from all directives of an entry are concatenated.
func Parse(r io.Reader) (*Corpus, error) {
	c := New()
	scanner := bufio.NewScanner(r)

	var (
		label   string
		data    []byte
		haveLbl bool
		lineNo  int
	)
	flush := func() {
		if haveLbl {
			c.Set(label, data)
		}
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimRight(stripComment(raw), " \t\r")
		if line == "" {
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			flush()
			label, data, haveLbl = line, nil, true
			continue
		}

		line = strings.TrimSpace(line)
		operands, ok := cutDirective(line)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: cannot understand %q", ErrSyntax, lineNo, line)
		}
		if !haveLbl {
			return nil, fmt.Errorf("%w: line %d: data before first label", ErrSyntax, lineNo)
		}
		var err error
		data, err = parseOperands(data, operands)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return c, nil
}

// stripComment removes a ; comment that is not inside a quoted string.
func stripComment(line string) string {
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case inString && line[i] == '\\':
			escaped = true
		case line[i] == '"':
			inString = !inString
		case line[i] == ';' && !inString:
			return line[:i]
		}
	}
	return line
}

func cutDirective(line string) (string, bool) {
	for _, d := range []string{directiveText, directiveByte} {
		if rest, ok := strings.CutPrefix(line, d); ok {
			if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
				return strings.TrimSpace(rest), true
			}
		}
	}
	return "", false
}

func parseOperands(dst []byte, s string) ([]byte, error) {
	for s != "" {
		var err error
		if s[0] == '"' {
			dst, s, err = parseString(dst, s)
		} else {
			dst, s, err = parseNumber(dst, s)
		}
		if err != nil {
			return dst, err
		}
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}
		if s[0] != ',' {
			return dst, fmt.Errorf("expected ',' before %q", s)
		}
		s = strings.TrimLeft(s[1:], " \t")
		if s == "" {
			return dst, errors.New("trailing ','")
		}
	}
	return dst, nil
}

func parseString(dst []byte, s string) ([]byte, string, error) {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return dst, "", errors.New("unterminated escape")
			}
			i++
			dst = append(dst, s[i])
		case '"':
			return dst, s[i+1:], nil
		default:
			dst = append(dst, s[i])
		}
	}
	return dst, "", errors.New("unterminated string")
}

func parseNumber(dst []byte, s string) ([]byte, string, error) {
	base, digits := 10, s
	if s[0] == '$' {
		base, digits = 16, s[1:]
	}
	end := 0
	for end < len(digits) && isDigit(digits[end], base) {
		end++
	}
	if end == 0 {
		return dst, "", fmt.Errorf("expected number at %q", s)
	}
	v, err := strconv.ParseUint(digits[:end], base, 8)
	if err != nil {
		return dst, "", fmt.Errorf("byte value %q out of range", digits[:end])
	}
	return append(dst, byte(v)), digits[end:], nil
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f', base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}
