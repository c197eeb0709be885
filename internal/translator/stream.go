package translator

import (
	"sync"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

// aggregator owns the committed output of a run and turns commits and
// streamed partials into Progress snapshots. Emission is serialized so
// sequence numbers reach the callback in order.
type aggregator struct {
	mu        sync.Mutex
	jobID     string
	total     int
	seq       uint64
	completed int
	committed []subtitle.Entry
	fn        ProgressFunc
}

func newAggregator(jobID string, total int, fn ProgressFunc) *aggregator {
	return &aggregator{
		jobID:     jobID,
		total:     total,
		committed: make([]subtitle.Entry, 0, total),
		fn:        fn,
	}
}

// commit appends a finished batch and emits a snapshot.
func (a *aggregator) commit(entries []subtitle.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.committed = append(a.committed, entries...)
	a.completed = max(a.completed, len(a.committed))
	a.emitLocked(a.committed, false)
}

// partial merges the entries parsed from a streamed prefix of b's response.
// Positions are mapped to absolute ids through b.
func (a *aggregator) partial(b batch.Batch, parsed []format.TranslatedEntry) {
	if len(parsed) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := make([]subtitle.Entry, len(a.committed), len(a.committed)+len(parsed))
	copy(snapshot, a.committed)
	for _, p := range parsed {
		orig := b.Entries[p.Index]
		snapshot = append(snapshot, subtitle.Entry{ID: orig.ID, Timecode: orig.Timecode, Text: p.Text})
	}

	// a streamed prefix can only grow; never report fewer than before
	if len(snapshot) <= a.completed {
		return
	}
	a.completed = len(snapshot)
	a.emitLocked(snapshot, true)
}

func (a *aggregator) emitLocked(entries []subtitle.Entry, partial bool) {
	if a.fn == nil {
		return
	}
	a.seq++
	a.fn(Progress{
		JobID:     a.jobID,
		Entries:   entries[:len(entries):len(entries)],
		Completed: a.completed,
		Total:     a.total,
		Sequence:  a.seq,
		Partial:   partial,
	})
}

// output returns the committed entries.
func (a *aggregator) output() []subtitle.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// tail returns the last n committed entries.
func (a *aggregator) tail(n int) []subtitle.Entry {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	start := max(len(a.committed)-n, 0)
	return append([]subtitle.Entry(nil), a.committed[start:]...)
}
