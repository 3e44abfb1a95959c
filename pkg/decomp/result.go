package decomp

import "sync"

// Entry is one named decomposition result, the unit Table stores —
// adapted from the teacher's mutex-protected rule table: a goroutine-safe
// collector multiple solver workers can append to concurrently.
type Entry struct {
	Mnemonic string
	Solution Solution
}

// Table collects decomposition results from however many solver workers
// ran concurrently, returning them sorted by objective (best first) on
// read.
type Table struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTable returns an empty Table.
func NewTable() *Table { return &Table{} }

// Add records one result. Safe for concurrent use.
func (t *Table) Add(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// Entries returns every recorded result, sorted by Solution.Objective
// ascending (lowest/best first).
func (t *Table) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Solution.Objective < out[j-1].Solution.Objective; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Len reports the number of recorded results.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
