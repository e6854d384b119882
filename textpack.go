// Package textpack compresses a corpus of short text strings for a small
// fixed decoder.
//
// Encoding runs in three steps: repeated runs are replaced by tokens
// (package grammar), the most frequent remaining literals get 5-bit codes,
// and every entry is written as its own length-framed bit stream
// (package bitpack).
package textpack

import (
	"errors"
	"fmt"

	"github.com/seiflotfy/textpack/bitpack"
	"github.com/seiflotfy/textpack/corpus"
	"github.com/seiflotfy/textpack/grammar"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

const (
	literalLimit = grammar.FirstToken // literals are symbols below this value
	maxCodes     = 29                 // table codes 0..28

	codeWidth       = uint8(5)
	escapePrintable = 29 // followed by 7 bits of literal
	escapeControl   = 30 // followed by 5 bits of literal; also the pad sentinel
	escapeToken     = 31 // followed by the low 5 bits of the token id
	printableWidth  = uint8(7)
	controlWidth    = uint8(5)
	tokenIndexWidth = uint8(5)
	tokenIndexMask  = 31
	controlLimit    = 32
	padFillerWidth  = uint8(7)
	padFillerValue  = 0
)

var log = commonlog.GetLogger("textpack")

var (
	// ErrNonLiteral indicates an input byte at or above 128.
	ErrNonLiteral = errors.New("non-literal byte in input")
	// ErrOversize indicates an entry whose encoded form exceeds the length header.
	ErrOversize = errors.New("entry too long to frame")
	// ErrShortBuffer indicates the provided destination buffer is too small.
	ErrShortBuffer = errors.New("short buffer")
	// ErrCorruptFrame indicates a frame that does not decode.
	ErrCorruptFrame = errors.New("corrupt frame")
)

// Config holds configuration for the encoder.
type Config struct {
	TokenLimit int           // Exclusive upper bound on token ids (0 = default 160, max 160)
	Workers    int           // Goroutines for scanning and encoding (0 = 1)
	BitOrder   bitpack.Order // Bit order within output bytes
	CacheSize  int           // Token expansion cache entries (0 = default)
}

// Option is a functional option for configuring the encoder.
type Option func(*Config)

// WithTokenLimit sets the exclusive upper bound on token ids.
// Valid range is [128, 160]; 128 disables tokenizing. Values outside the
// range are clamped.
func WithTokenLimit(limit int) Option {
	return func(c *Config) {
		c.TokenLimit = limit
	}
}

// WithWorkers sets the number of goroutines used for the run scan and for
// encoding entries.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithBitOrder selects the bit order inside output bytes.
func WithBitOrder(order bitpack.Order) Option {
	return func(c *Config) {
		c.BitOrder = order
	}
}

// WithExpansionCacheSize sets how many token expansions are cached for decoding.
func WithExpansionCacheSize(n int) Option {
	return func(c *Config) {
		c.CacheSize = n
	}
}

// Encoder tokenizes and packs a corpus.
type Encoder struct {
	config Config
}

// NewEncoder creates a new encoder with the given options.
func NewEncoder(opts ...Option) *Encoder {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.TokenLimit = grammar.ResolveTokenLimit(cfg.TokenLimit)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Encoder{config: cfg}
}

// Config returns the resolved configuration.
func (e *Encoder) Config() Config {
	return e.config
}

// Encode compresses every entry of c into an Archive.
//
// Any entry that cannot be encoded aborts the whole run; no archive is
// returned in that case.
func (e *Encoder) Encode(c *corpus.Corpus) (*Archive, error) {
	entries := c.Entries()
	for _, entry := range entries {
		for pos, b := range entry.Data {
			if b >= literalLimit {
				return nil, fmt.Errorf("%w: entry %q position %d: %d", ErrNonLiteral, entry.Label, pos, b)
			}
		}
	}

	res, err := grammar.Tokenize(c.Data(),
		grammar.WithTokenLimit(e.config.TokenLimit),
		grammar.WithWorkers(e.config.Workers),
		grammar.WithCacheSize(e.config.CacheSize),
	)
	if err != nil {
		return nil, err
	}

	table := BuildCodeTable(res.Entries)

	frames := make([][]byte, len(res.Entries))
	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for i, symbols := range res.Entries {
		g.Go(func() error {
			frame, err := encodeSymbols(table, symbols, e.config.TokenLimit, e.config.BitOrder)
			if err != nil {
				if errors.Is(err, bitpack.ErrTooLong) {
					return fmt.Errorf("%w: entry %q: %w", ErrOversize, entries[i].Label, err)
				}
				return fmt.Errorf("encode entry %q: %w", entries[i].Label, err)
			}
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Archive{
		Labels:     c.Labels(),
		Frames:     frames,
		CodeTable:  table,
		Dictionary: res.Dictionary,
		TokenLimit: e.config.TokenLimit,
		BitOrder:   e.config.BitOrder,
	}
	log.Infof("encoded %d entries: %d tokens, %d table codes, %d bytes", a.Rows(), res.Dictionary.Len(), table.Len(), a.FramedSize())
	return a, nil
}

// Encode compresses c with a default encoder configured by opts.
func Encode(c *corpus.Corpus, opts ...Option) (*Archive, error) {
	return NewEncoder(opts...).Encode(c)
}
