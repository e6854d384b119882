// Command textpack compresses a corpus of labelled text strings into an
// assembler listing for a small fixed decoder.
//
// Usage:
//
//	textpack -input text.a -output text_data.a [-config textpack.toml]
//	         [-archive text.txpk] [-token-limit 160] [-bit-order msb] [-stats]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/seiflotfy/textpack"
	"github.com/seiflotfy/textpack/config"
	"github.com/seiflotfy/textpack/corpus"
	"github.com/seiflotfy/textpack/listing"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("textpack.cli")

func main() {
	input := flag.String("input", "-", "Corpus source file (- for stdin)")
	output := flag.String("output", "-", "Listing output file (- for stdout)")
	configPath := flag.String("config", "", "TOML or YAML configuration file")
	archivePath := flag.String("archive", "", "Also write a binary archive to this file")
	tokenLimit := flag.Int("token-limit", 0, "Exclusive upper bound on token ids, 128..160 (128 disables tokens)")
	bitOrder := flag.String("bit-order", "", "Bit order within output bytes: msb or lsb")
	workers := flag.Int("workers", 0, "Goroutines for scanning and encoding")
	verbose := flag.Int("v", 0, "Log verbosity (0 = notices, 1 = info, 2 = debug)")
	showStats := flag.Bool("stats", false, "Print compression statistics to stderr")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "token-limit":
			cfg.TokenLimit = *tokenLimit
		case "bit-order":
			cfg.BitOrder = *bitOrder
		case "workers":
			cfg.Workers = *workers
		case "v":
			cfg.Verbosity = *verbose
		}
	})

	var logPath *string
	if cfg.LogFile != "" {
		logPath = &cfg.LogFile
	}
	commonlog.Configure(cfg.Verbosity, logPath)

	if err := run(cfg, *input, *output, *archivePath, *showStats); err != nil {
		log.Errorf("%s", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, input, output, archivePath string, showStats bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	c, err := readCorpus(input)
	if err != nil {
		return err
	}
	log.Infof("read %d entries, %d bytes from %s", c.Len(), c.Size(), input)

	archive, err := textpack.Encode(c, opts...)
	if err != nil {
		return err
	}

	if err := writeFile(output, func(w io.Writer) error {
		return listing.Write(w, archive)
	}); err != nil {
		return err
	}

	if archivePath != "" {
		if err := writeFile(archivePath, func(w io.Writer) error {
			_, err := archive.WriteTo(w)
			return err
		}); err != nil {
			return err
		}
		log.Infof("wrote archive %s", archivePath)
	}

	if showStats {
		s, err := archive.Stats()
		if err != nil {
			return err
		}
		if _, err := s.WriteTo(os.Stderr); err != nil {
			return err
		}
	}
	return nil
}

func readCorpus(path string) (*corpus.Corpus, error) {
	if path == "-" {
		return corpus.Parse(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := corpus.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
