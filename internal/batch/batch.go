// Package batch splits an entry sequence into bounded work units.
package batch

import (
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

// Batch is a slice of entries submitted to a backend in one call.
// Batches produced by the Planner are contiguous; Sub may build a
// non-contiguous one for targeted retries.
type Batch struct {
	StartID int
	Entries []subtitle.Entry
}

// New wraps entries into a Batch.
func New(entries []subtitle.Entry) Batch {
	b := Batch{Entries: entries}
	if len(entries) > 0 {
		b.StartID = entries[0].ID
	}
	return b
}

// Len returns the number of entries.
func (b Batch) Len() int { return len(b.Entries) }

// EndID returns the id of the last entry, or StartID-1 when empty.
func (b Batch) EndID() int {
	if len(b.Entries) == 0 {
		return b.StartID - 1
	}
	return b.Entries[len(b.Entries)-1].ID
}

// Split halves the batch at its midpoint.
func (b Batch) Split() (Batch, Batch) {
	mid := len(b.Entries) / 2
	return New(b.Entries[:mid]), New(b.Entries[mid:])
}

// Sub returns a batch with the entries at the given positions, in order.
func (b Batch) Sub(positions []int) Batch {
	entries := make([]subtitle.Entry, 0, len(positions))
	for _, p := range positions {
		if p >= 0 && p < len(b.Entries) {
			entries = append(entries, b.Entries[p])
		}
	}
	return New(entries)
}

// IndexOf returns the position of the entry with the given id.
func (b Batch) IndexOf(id int) (int, bool) {
	// fast path for contiguous batches
	if pos := id - b.StartID; pos >= 0 && pos < len(b.Entries) && b.Entries[pos].ID == id {
		return pos, true
	}
	for i, e := range b.Entries {
		if e.ID == id {
			return i, true
		}
	}
	return 0, false
}
