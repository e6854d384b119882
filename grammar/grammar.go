// Package grammar induces a token dictionary over a corpus of short byte
// strings.
//
// Each round finds the repeated run whose replacement saves the most,
// mints a token for it and rewrites the corpus. Rounds stop when nothing
// saves anything or when the token alphabet is used up.
package grammar

import (
	"bytes"
	"fmt"

	"github.com/tliron/commonlog"
)

const (
	// FirstToken is the id of the first minted token. Smaller symbols are literals.
	FirstToken = 128
	// MaxTokenLimit is the largest supported token limit (32 tokens).
	MaxTokenLimit = 160
	// DefaultTokenLimit is used when no limit is configured.
	DefaultTokenLimit = MaxTokenLimit
)

var log = commonlog.GetLogger("textpack.grammar")

// IsToken reports whether sym is a token rather than a literal.
func IsToken(sym byte) bool {
	return sym >= FirstToken
}

// Config holds tokenizer settings.
type Config struct {
	TokenLimit int // Exclusive upper bound on token ids (0 = default 160)
	Workers    int // Parallel scan workers (0 or 1 = sequential)
	CacheSize  int // Expansion cache entries (0 = one per possible token)
}

// Option is a functional option for configuring the tokenizer.
type Option func(*Config)

// WithTokenLimit sets the exclusive upper bound on token ids.
// Values are clamped to [FirstToken, MaxTokenLimit]; FirstToken disables tokenizing.
func WithTokenLimit(limit int) Option {
	return func(c *Config) {
		c.TokenLimit = limit
	}
}

// WithWorkers sets how many goroutines scan entries for runs.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithCacheSize sets the number of token expansions kept in memory.
func WithCacheSize(n int) Option {
	return func(c *Config) {
		c.CacheSize = n
	}
}

func resolveConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.TokenLimit = ResolveTokenLimit(cfg.TokenLimit)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg
}

// ResolveTokenLimit applies the default and clamps limit to the supported range.
func ResolveTokenLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultTokenLimit
	case limit < FirstToken:
		return FirstToken
	case limit > MaxTokenLimit:
		return MaxTokenLimit
	default:
		return limit
	}
}

// Result is the outcome of Tokenize.
type Result struct {
	Entries    [][]byte    // Rewritten entries, in input order
	Dictionary *Dictionary // Minted tokens
	// Exhausted is set when the alphabet ran out while a run with a positive
	// saving was still available.
	Exhausted bool
}

// Tokenize rewrites entries with repeated runs replaced by tokens.
//
// The entries are copied first, so the caller's slices are never modified
// or aliased by the result. Entries must hold literals only.
func Tokenize(entries [][]byte, opts ...Option) (*Result, error) {
	cfg := resolveConfig(opts)

	work := make([][]byte, len(entries))
	for i, e := range entries {
		for j, sym := range e {
			if IsToken(sym) {
				return nil, fmt.Errorf("%w: entry %d position %d holds non-literal %d", ErrMalformedEntry, i, j, sym)
			}
		}
		work[i] = append([]byte(nil), e...)
	}

	dict := newDictionary(cfg.TokenLimit, cfg.CacheSize)
	res := &Result{Entries: work, Dictionary: dict}

	nextID := FirstToken
	for {
		best, err := selectRun(work, cfg.Workers)
		if err != nil {
			return nil, err
		}
		if best == nil || best.saving <= 0 {
			break
		}
		if nextID >= cfg.TokenLimit {
			res.Exhausted = true
			log.Noticef("token alphabet exhausted at %d with saving %d still available", cfg.TokenLimit, best.saving)
			break
		}

		run := []byte(best.run)
		id := dict.add(run, len(best.sites), best.saving)
		if err := rewrite(work, best, id); err != nil {
			return nil, err
		}
		log.Debugf("minted token %d for run %v (occurrences=%d saving=%d)", id, run, len(best.sites), best.saving)
		nextID++
	}

	if err := dict.Validate(); err != nil {
		return nil, err
	}
	log.Infof("tokenized %d entries: %d tokens minted", len(work), dict.Len())
	return res, nil
}

// rewrite replaces every non-overlapping leftmost occurrence of best.run with
// token in each entry. Every entry the run was found in must change.
func rewrite(entries [][]byte, best *candidate, token byte) error {
	run := []byte(best.run)
	expected := make(map[int32]bool, len(best.sites))
	for _, s := range best.sites {
		expected[s.entry] = true
	}

	for i, e := range entries {
		out, n := replaceRun(e, run, token)
		if n == 0 && expected[int32(i)] {
			return fmt.Errorf("%w: run %v selected for token %d not found in entry %d", ErrMalformedEntry, run, token, i)
		}
		entries[i] = out
	}
	return nil
}

func replaceRun(entry, run []byte, token byte) ([]byte, int) {
	if len(run) == 0 || len(entry) < len(run) {
		return entry, 0
	}
	var (
		out  []byte
		rest = entry
		n    int
	)
	for {
		i := bytes.Index(rest, run)
		if i < 0 {
			break
		}
		if out == nil {
			out = make([]byte, 0, len(entry))
		}
		out = append(out, rest[:i]...)
		out = append(out, token)
		rest = rest[i+len(run):]
		n++
	}
	if n == 0 {
		return entry, 0
	}
	return append(out, rest...), n
}
