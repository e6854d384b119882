package grammar

import (
	"golang.org/x/sync/errgroup"
)

// site is one occurrence of a run: entry index and start offset.
type site struct {
	entry int32
	start int32
}

// candidate is a run together with every place it occurs.
type candidate struct {
	run    string
	sites  []site
	saving int
}

// runTable groups sites by run value, keeping runs in first-discovery order.
type runTable struct {
	index map[string]int
	runs  []*candidate
}

func newRunTable(capacity int) *runTable {
	return &runTable{index: make(map[string]int, capacity)}
}

func (t *runTable) add(run []byte, s site) {
	if i, ok := t.index[string(run)]; ok {
		c := t.runs[i]
		c.sites = append(c.sites, s)
		return
	}
	key := string(run)
	t.index[key] = len(t.runs)
	t.runs = append(t.runs, &candidate{run: key, sites: []site{s}})
}

// merge appends other's runs and sites after t's, preserving order.
func (t *runTable) merge(other *runTable) {
	for _, c := range other.runs {
		if i, ok := t.index[c.run]; ok {
			t.runs[i].sites = append(t.runs[i].sites, c.sites...)
			continue
		}
		t.index[c.run] = len(t.runs)
		t.runs = append(t.runs, c)
	}
}

// repeated drops runs seen only once.
func (t *runTable) repeated() *runTable {
	out := newRunTable(len(t.runs) / 2)
	for _, c := range t.runs {
		if len(c.sites) < 2 {
			continue
		}
		out.index[c.run] = len(out.runs)
		out.runs = append(out.runs, c)
	}
	return out
}

// scanPairs builds the length-2 table. With more than one worker, entries
// are split into contiguous shards whose tables are merged in entry order,
// which yields the same table as a sequential scan.
func scanPairs(entries [][]byte, workers int) (*runTable, error) {
	if workers <= 1 || len(entries) < 2*workers {
		return scanShard(entries, 0, len(entries)), nil
	}

	shardSize := (len(entries) + workers - 1) / workers
	shards := make([]*runTable, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * shardSize
		hi := min(lo+shardSize, len(entries))
		if lo >= hi {
			shards[w] = newRunTable(0)
			continue
		}
		g.Go(func() error {
			shards[w] = scanShard(entries, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := shards[0]
	for _, shard := range shards[1:] {
		table.merge(shard)
	}
	return table, nil
}

func scanShard(entries [][]byte, lo, hi int) *runTable {
	t := newRunTable(256)
	for e := lo; e < hi; e++ {
		entry := entries[e]
		for i := 0; i+2 <= len(entry); i++ {
			t.add(entry[i:i+2], site{entry: int32(e), start: int32(i)})
		}
	}
	return t
}

// extend grows every repeated run of length n-1 by the symbol after it.
func extend(entries [][]byte, prev *runTable, n int) *runTable {
	t := newRunTable(len(prev.runs))
	for _, c := range prev.runs {
		for _, s := range c.sites {
			entry := entries[s.entry]
			end := int(s.start) + n
			if end > len(entry) {
				continue
			}
			t.add(entry[s.start:end], s)
		}
	}
	return t
}

// runSaving is the cost saving of replacing k occurrences of a run of
// length n by one token each plus a dictionary entry of n+1 units.
func runSaving(n, k int) int {
	oldCost := k * n
	newCost := (n + 1) + k
	return oldCost - newCost
}

// selectRun returns the repeated run with the largest saving, or nil when
// no run occurs twice. Ties go to the run examined last: longer runs are
// examined after shorter ones.
func selectRun(entries [][]byte, workers int) (*candidate, error) {
	pairs, err := scanPairs(entries, workers)
	if err != nil {
		return nil, err
	}

	var best *candidate
	table := pairs.repeated()
	for n := 2; len(table.runs) > 0; n++ {
		for _, c := range table.runs {
			c.saving = runSaving(n, len(c.sites))
			if best == nil || c.saving >= best.saving {
				best = c
			}
		}
		table = extend(entries, table, n+1).repeated()
	}
	return best, nil
}
