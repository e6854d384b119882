// Package config loads textpack settings from a TOML or YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/seiflotfy/textpack"
	"github.com/seiflotfy/textpack/bitpack"
	"github.com/seiflotfy/textpack/grammar"
	"gopkg.in/yaml.v3"
)

// Config holds encoder and logging settings.
type Config struct {
	TokenLimit int    `toml:"token_limit" yaml:"token_limit"`
	Workers    int    `toml:"workers" yaml:"workers"`
	BitOrder   string `toml:"bit_order" yaml:"bit_order"`
	CacheSize  int    `toml:"cache_size" yaml:"cache_size"`
	Verbosity  int    `toml:"verbosity" yaml:"verbosity"`
	LogFile    string `toml:"log_file" yaml:"log_file"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		TokenLimit: grammar.DefaultTokenLimit,
		Workers:    runtime.NumCPU(),
		BitOrder:   bitpack.MSBFirst.String(),
	}
}

// Load reads a configuration file. The format follows the extension:
// .toml, or .yaml/.yml. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format ("toml", "yaml", "yml", with or
// without a leading dot) over the defaults.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys: %v", undecoded)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges that the encoder would otherwise clamp silently.
func (c Config) Validate() error {
	if c.TokenLimit != 0 && (c.TokenLimit < grammar.FirstToken || c.TokenLimit > grammar.MaxTokenLimit) {
		return fmt.Errorf("token_limit %d outside [%d, %d]", c.TokenLimit, grammar.FirstToken, grammar.MaxTokenLimit)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative: %d", c.CacheSize)
	}
	if _, err := bitpack.ParseOrder(c.BitOrder); err != nil {
		return err
	}
	return nil
}

// Options converts the settings to encoder options.
func (c Config) Options() ([]textpack.Option, error) {
	order, err := bitpack.ParseOrder(c.BitOrder)
	if err != nil {
		return nil, err
	}
	return []textpack.Option{
		textpack.WithTokenLimit(c.TokenLimit),
		textpack.WithWorkers(c.Workers),
		textpack.WithBitOrder(order),
		textpack.WithExpansionCacheSize(c.CacheSize),
	}, nil
}
