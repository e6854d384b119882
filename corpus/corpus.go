// Package corpus holds named byte strings and parses them from the
// assembler-style source format used for game text.
package corpus

// Entry is one named byte string.
type Entry struct {
	Label string
	Data  []byte
}

// Corpus is an ordered collection of entries with unique labels.
// Order is insertion order; it determines the index each entry is emitted with.
type Corpus struct {
	entries []Entry
	index   map[string]int
}

// New returns an empty corpus.
func New() *Corpus {
	return &Corpus{index: make(map[string]int)}
}

// FromStrings builds a corpus from label/text pairs given in order.
// It panics if pairs has odd length.
func FromStrings(pairs ...string) *Corpus {
	if len(pairs)%2 != 0 {
		panic("corpus: FromStrings needs label/text pairs")
	}
	c := New()
	for i := 0; i < len(pairs); i += 2 {
		c.Set(pairs[i], []byte(pairs[i+1]))
	}
	return c
}

// Set stores data under label. Redefining a label replaces its data but
// keeps its original position.
func (c *Corpus) Set(label string, data []byte) {
	if i, ok := c.index[label]; ok {
		c.entries[i].Data = data
		return
	}
	c.index[label] = len(c.entries)
	c.entries = append(c.entries, Entry{Label: label, Data: data})
}

// Lookup returns the data stored under label.
func (c *Corpus) Lookup(label string) ([]byte, bool) {
	i, ok := c.index[label]
	if !ok {
		return nil, false
	}
	return c.entries[i].Data, true
}

// Len returns the number of entries.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Entries returns the entries in order. The slice is shared.
func (c *Corpus) Entries() []Entry {
	return c.entries
}

// Labels returns the labels in order.
func (c *Corpus) Labels() []string {
	labels := make([]string, len(c.entries))
	for i, e := range c.entries {
		labels[i] = e.Label
	}
	return labels
}

// Data returns every entry's bytes in order. The byte slices are shared.
func (c *Corpus) Data() [][]byte {
	data := make([][]byte, len(c.entries))
	for i, e := range c.entries {
		data[i] = e.Data
	}
	return data
}

// Size returns the total number of bytes across all entries.
func (c *Corpus) Size() int {
	n := 0
	for _, e := range c.entries {
		n += len(e.Data)
	}
	return n
}
