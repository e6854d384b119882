package textpack

import (
	"fmt"
	"sort"
)

// CodeEntry is one literal with a short code.
type CodeEntry struct {
	Literal byte
	Count   int   // occurrences in the tokenized corpus
	Code    uint8 // 5-bit code, 0..28
}

// CodeTable assigns 5-bit codes to the most frequent literals.
// It is immutable once built.
type CodeTable struct {
	entries []CodeEntry
	codes   [literalLimit]int8 // literal -> code, -1 when absent
}

func newCodeTable(entries []CodeEntry) *CodeTable {
	t := &CodeTable{entries: entries}
	for i := range t.codes {
		t.codes[i] = -1
	}
	for _, e := range entries {
		t.codes[e.Literal] = int8(e.Code)
	}
	return t
}

// BuildCodeTable counts literal symbols across entries and gives codes
// 0..28 to the 29 most frequent, most frequent first. Equal counts keep the
// order in which the literals were first seen. Tokens are not counted.
func BuildCodeTable(entries [][]byte) *CodeTable {
	var counts [literalLimit]int
	seen := make([]byte, 0, literalLimit)
	for _, e := range entries {
		for _, sym := range e {
			if sym >= literalLimit {
				continue
			}
			if counts[sym] == 0 {
				seen = append(seen, sym)
			}
			counts[sym]++
		}
	}

	sort.SliceStable(seen, func(i, j int) bool {
		return counts[seen[i]] > counts[seen[j]]
	})
	if len(seen) > maxCodes {
		seen = seen[:maxCodes]
	}

	table := make([]CodeEntry, len(seen))
	for i, lit := range seen {
		table[i] = CodeEntry{Literal: lit, Count: counts[lit], Code: uint8(i)}
	}
	return newCodeTable(table)
}

// NewCodeTable rebuilds a table from entries in code order, as stored in an archive.
func NewCodeTable(entries []CodeEntry) (*CodeTable, error) {
	if len(entries) > maxCodes {
		return nil, fmt.Errorf("code table has %d entries, max %d", len(entries), maxCodes)
	}
	var dup [literalLimit]bool
	for i, e := range entries {
		if int(e.Code) != i {
			return nil, fmt.Errorf("code table entry %d has code %d", i, e.Code)
		}
		if e.Literal >= literalLimit {
			return nil, fmt.Errorf("code table entry %d holds non-literal %d", i, e.Literal)
		}
		if dup[e.Literal] {
			return nil, fmt.Errorf("code table lists literal %d twice", e.Literal)
		}
		dup[e.Literal] = true
	}
	return newCodeTable(append([]CodeEntry(nil), entries...)), nil
}

// Len returns the number of coded literals.
func (t *CodeTable) Len() int {
	return len(t.entries)
}

// Entries returns the table in code order. The slice is shared.
func (t *CodeTable) Entries() []CodeEntry {
	return t.entries
}

// Code returns the code assigned to lit.
func (t *CodeTable) Code(lit byte) (uint8, bool) {
	if lit >= literalLimit || t.codes[lit] < 0 {
		return 0, false
	}
	return uint8(t.codes[lit]), true
}

// Literal returns the literal carrying code.
func (t *CodeTable) Literal(code uint8) (byte, bool) {
	if int(code) >= len(t.entries) {
		return 0, false
	}
	return t.entries[code].Literal, true
}
