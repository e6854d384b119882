package textpack

import (
	"fmt"

	"github.com/seiflotfy/textpack/bitpack"
	"github.com/seiflotfy/textpack/grammar"
)

// Symbol codes:
//
//	literal with a table code   5 bits: code (0..28)
//	literal below 32            5 bits: 30, 5 bits: literal
//	other literal               5 bits: 29, 7 bits: literal
//	token                       5 bits: 31, 5 bits: id & 31
//
// A stream ends with Pad(5, 30, 7, 0) and is framed with a length byte.

type symbolClass uint8

const (
	classCoded symbolClass = iota
	classControl
	classPrintable
	classToken
)

func classify(table *CodeTable, sym byte) symbolClass {
	switch {
	case grammar.IsToken(sym):
		return classToken
	case table != nil && table.codes[sym] >= 0:
		return classCoded
	case sym < controlLimit:
		return classControl
	default:
		return classPrintable
	}
}

// encodeSymbols packs one entry and returns its frame.
func encodeSymbols(table *CodeTable, symbols []byte, tokenLimit int, order bitpack.Order) ([]byte, error) {
	p := bitpack.New()
	for i, sym := range symbols {
		var err error
		switch classify(table, sym) {
		case classCoded:
			err = p.Append(codeWidth, uint64(table.codes[sym]))
		case classControl:
			if err = p.Append(codeWidth, escapeControl); err == nil {
				err = p.Append(controlWidth, uint64(sym))
			}
		case classPrintable:
			if err = p.Append(codeWidth, escapePrintable); err == nil {
				err = p.Append(printableWidth, uint64(sym))
			}
		case classToken:
			if int(sym) >= tokenLimit {
				return nil, fmt.Errorf("%w: symbol %d is token %d, limit %d", grammar.ErrMalformedEntry, i, sym, tokenLimit)
			}
			if err = p.Append(codeWidth, escapeToken); err == nil {
				err = p.Append(tokenIndexWidth, uint64(sym&tokenIndexMask))
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err := p.Pad(codeWidth, escapeControl, padFillerWidth, padFillerValue); err != nil {
		return nil, err
	}
	return p.Frame(order)
}

// decodeSymbols is the inverse of encodeSymbols. Decoding is bounded by the
// frame length: it stops when less than one code remains, or when the
// control escape is not followed by a full literal, which is the padding
// sentinel.
func decodeSymbols(table *CodeTable, frame []byte, order bitpack.Order) ([]byte, error) {
	payload, err := bitpack.Unframe(frame)
	if err != nil {
		return nil, err
	}

	r := bitpack.NewReader(payload, order)
	symbols := make([]byte, 0, len(payload)*8/int(codeWidth))
	for r.Remaining() >= int(codeWidth) {
		code, err := r.Read(codeWidth)
		if err != nil {
			return nil, err
		}
		switch {
		case code == escapeControl:
			if r.Remaining() < int(controlWidth) {
				return symbols, nil
			}
			v, err := r.Read(controlWidth)
			if err != nil {
				return nil, err
			}
			symbols = append(symbols, byte(v))
		case code == escapePrintable:
			v, err := r.Read(printableWidth)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated literal after %d symbols", ErrCorruptFrame, len(symbols))
			}
			symbols = append(symbols, byte(v))
		case code == escapeToken:
			v, err := r.Read(tokenIndexWidth)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated token after %d symbols", ErrCorruptFrame, len(symbols))
			}
			symbols = append(symbols, byte(grammar.FirstToken+v))
		default:
			lit, ok := table.Literal(uint8(code))
			if !ok {
				return nil, fmt.Errorf("%w: code %d not in table of %d", ErrCorruptFrame, code, table.Len())
			}
			symbols = append(symbols, lit)
		}
	}
	return symbols, nil
}
