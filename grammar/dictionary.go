package grammar

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrMalformedEntry indicates a run or token reference that cannot be
	// resolved. It is fatal: encoded output would not decode.
	ErrMalformedEntry = errors.New("malformed corpus entry")
	// ErrCycle indicates a token whose expansion refers back to itself.
	ErrCycle = errors.New("token expansion cycle")
)

// Rule is one dictionary entry: a token id and the run it stands for.
// A run holds literals and, possibly, tokens minted before it.
type Rule struct {
	ID          byte
	Run         []byte
	Occurrences int // instances counted when the token was minted
	Saving      int // cost saving computed when the token was minted
}

// Dictionary maps token ids to runs. Token id t lives in slot t-FirstToken;
// rules never point at each other directly.
type Dictionary struct {
	rules     []Rule
	limit     int
	cache     *lru.Cache[byte, []byte]
	validated atomic.Bool
}

func newDictionary(limit, cacheSize int) *Dictionary {
	if cacheSize <= 0 {
		cacheSize = MaxTokenLimit - FirstToken
	}
	cache, err := lru.New[byte, []byte](cacheSize)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(fmt.Sprintf("grammar: expansion cache: %v", err))
	}
	d := &Dictionary{limit: limit, cache: cache}
	d.validated.Store(true)
	return d
}

// NewDictionary rebuilds a dictionary from runs, assigning ids from
// FirstToken in order. The result is validated before it is returned.
func NewDictionary(limit int, runs [][]byte, opts ...Option) (*Dictionary, error) {
	cfg := resolveConfig(append([]Option{WithTokenLimit(limit)}, opts...))
	d := newDictionary(cfg.TokenLimit, cfg.CacheSize)
	for _, run := range runs {
		d.rules = append(d.rules, Rule{
			ID:  byte(FirstToken + len(d.rules)),
			Run: append([]byte(nil), run...),
		})
	}
	d.validated.Store(false)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the number of tokens.
func (d *Dictionary) Len() int {
	return len(d.rules)
}

// Limit returns the exclusive upper bound on token ids.
func (d *Dictionary) Limit() int {
	return d.limit
}

// Rules returns the rules in id order. The slice is shared; do not modify it.
func (d *Dictionary) Rules() []Rule {
	return d.rules
}

// Rule returns the rule for token id.
func (d *Dictionary) Rule(id byte) (Rule, bool) {
	slot := int(id) - FirstToken
	if slot < 0 || slot >= len(d.rules) {
		return Rule{}, false
	}
	return d.rules[slot], true
}

// Runs returns a copy of every rule's run in id order.
func (d *Dictionary) Runs() [][]byte {
	runs := make([][]byte, len(d.rules))
	for i, r := range d.rules {
		runs[i] = append([]byte(nil), r.Run...)
	}
	return runs
}

func (d *Dictionary) add(run []byte, occurrences, saving int) byte {
	id := byte(FirstToken + len(d.rules))
	d.rules = append(d.rules, Rule{
		ID:          id,
		Run:         append([]byte(nil), run...),
		Occurrences: occurrences,
		Saving:      saving,
	})
	d.validated.Store(false)
	return id
}

// Validate checks that ids are dense from FirstToken and below the limit,
// that every token reference resolves, and that no expansion is cyclic.
func (d *Dictionary) Validate() error {
	if d.validated.Load() {
		return nil
	}
	for i, r := range d.rules {
		if int(r.ID) != FirstToken+i {
			return fmt.Errorf("%w: slot %d holds token %d", ErrMalformedEntry, i, r.ID)
		}
		if int(r.ID) >= d.limit {
			return fmt.Errorf("%w: token %d at or above limit %d", ErrMalformedEntry, r.ID, d.limit)
		}
		if len(r.Run) < 2 {
			return fmt.Errorf("%w: token %d has run of length %d", ErrMalformedEntry, r.ID, len(r.Run))
		}
		for _, sym := range r.Run {
			if IsToken(sym) && int(sym)-FirstToken >= len(d.rules) {
				return fmt.Errorf("%w: token %d refers to undefined token %d", ErrMalformedEntry, r.ID, sym)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	colour := make([]uint8, len(d.rules))
	var visit func(slot int) error
	visit = func(slot int) error {
		switch colour[slot] {
		case grey:
			return fmt.Errorf("%w: through token %d", ErrCycle, FirstToken+slot)
		case black:
			return nil
		}
		colour[slot] = grey
		for _, sym := range d.rules[slot].Run {
			if IsToken(sym) {
				if err := visit(int(sym) - FirstToken); err != nil {
					return err
				}
			}
		}
		colour[slot] = black
		return nil
	}
	for slot := range d.rules {
		if err := visit(slot); err != nil {
			return err
		}
	}

	d.validated.Store(true)
	return nil
}

// ExpandToken returns the literal bytes token id stands for.
// The returned slice is shared with the cache; do not modify it.
func (d *Dictionary) ExpandToken(id byte) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d.expandToken(id)
}

func (d *Dictionary) expandToken(id byte) ([]byte, error) {
	if cached, ok := d.cache.Get(id); ok {
		return cached, nil
	}
	r, ok := d.Rule(id)
	if !ok {
		return nil, fmt.Errorf("%w: undefined token %d", ErrMalformedEntry, id)
	}
	out := make([]byte, 0, len(r.Run)*2)
	for _, sym := range r.Run {
		if !IsToken(sym) {
			out = append(out, sym)
			continue
		}
		sub, err := d.expandToken(sym)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	d.cache.Add(id, out)
	return out, nil
}

// Expand appends the literal expansion of symbols to dst.
func (d *Dictionary) Expand(dst, symbols []byte) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return dst, err
	}
	for i, sym := range symbols {
		if !IsToken(sym) {
			dst = append(dst, sym)
			continue
		}
		sub, err := d.expandToken(sym)
		if err != nil {
			return dst, fmt.Errorf("symbol %d: %w", i, err)
		}
		dst = append(dst, sub...)
	}
	return dst, nil
}
