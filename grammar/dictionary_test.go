package grammar

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestNewDictionaryExpand(t *testing.T) {
	d, err := NewDictionary(160, [][]byte{
		[]byte("ab"),
		{128, 'c'},
		{129, 129},
	})
	if err != nil {
		t.Fatalf("NewDictionary failed: %v", err)
	}

	got, err := d.ExpandToken(130)
	if err != nil {
		t.Fatalf("ExpandToken failed: %v", err)
	}
	if string(got) != "abcabc" {
		t.Errorf("expected %q, got %q", "abcabc", got)
	}

	got, err = d.Expand([]byte("<"), []byte{'x', 129, 'y'})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if string(got) != "<xabcy" {
		t.Errorf("expected %q, got %q", "<xabcy", got)
	}
}

func TestDictionaryCycle(t *testing.T) {
	tests := []struct {
		name string
		runs [][]byte
	}{
		{name: "self", runs: [][]byte{{'a', 128}}},
		{name: "mutual", runs: [][]byte{{'a', 129}, {128, 'b'}}},
		{name: "long", runs: [][]byte{{'a', 129}, {'b', 130}, {'c', 128}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDictionary(160, tt.runs)
			if !errors.Is(err, ErrCycle) {
				t.Errorf("expected ErrCycle, got %v", err)
			}
		})
	}
}

func TestDictionaryMalformed(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		runs  [][]byte
	}{
		{name: "dangling", limit: 160, runs: [][]byte{{'a', 140}}},
		{name: "short", limit: 160, runs: [][]byte{{'a'}}},
		{name: "over limit", limit: 129, runs: [][]byte{[]byte("ab"), []byte("cd")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDictionary(tt.limit, tt.runs)
			if !errors.Is(err, ErrMalformedEntry) {
				t.Errorf("expected ErrMalformedEntry, got %v", err)
			}
		})
	}
}

func TestDictionaryUndefinedToken(t *testing.T) {
	d, err := NewDictionary(160, [][]byte{[]byte("ab")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Expand(nil, []byte{'a', 131}); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("expected ErrMalformedEntry, got %v", err)
	}
	if _, ok := d.Rule(131); ok {
		t.Error("expected token 131 to be undefined")
	}
	if _, ok := d.Rule('a'); ok {
		t.Error("literal must not resolve to a rule")
	}
}

func TestDictionaryRunsCopy(t *testing.T) {
	d, err := NewDictionary(160, [][]byte{[]byte("ab")})
	if err != nil {
		t.Fatal(err)
	}
	runs := d.Runs()
	runs[0][0] = 'z'
	if r, _ := d.Rule(128); !bytes.Equal(r.Run, []byte("ab")) {
		t.Errorf("Runs leaked internal storage: %q", r.Run)
	}
}

func TestDictionarySmallCache(t *testing.T) {
	d, err := NewDictionary(160, [][]byte{[]byte("ab"), {128, 128}, {129, 129}}, WithCacheSize(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		got, err := d.ExpandToken(130)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "abababab" {
			t.Errorf("expected %q, got %q", "abababab", got)
		}
	}
}

func TestDictionaryConcurrentExpand(t *testing.T) {
	entries := randomCorpus(9, 60)
	res := mustTokenize(t, entries)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, e := range res.Entries {
				got, err := res.Dictionary.Expand(nil, e)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, entries[i]) {
					errs <- errors.New("expansion mismatch")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
