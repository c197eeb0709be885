package translator

import (
	"context"
	"time"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// alignment holds one slot per batch position.
type alignment struct {
	batch    batch.Batch
	slots    []*format.TranslatedEntry
	degraded []bool
	stats    MismatchStats
	provider string
}

func newAlignment(b batch.Batch) *alignment {
	return &alignment{
		batch:    b,
		slots:    make([]*format.TranslatedEntry, b.Len()),
		degraded: make([]bool, b.Len()),
	}
}

// fill places parsed entries into empty slots and returns how many landed.
func (a *alignment) fill(parsed []format.TranslatedEntry) int {
	n := 0
	for _, p := range parsed {
		if p.Index < 0 || p.Index >= len(a.slots) || a.slots[p.Index] != nil {
			continue
		}
		e := p
		a.slots[p.Index] = &e
		n++
	}
	return n
}

// fillAt places entries parsed from a sub-batch built from positions.
func (a *alignment) fillAt(positions []int, parsed []format.TranslatedEntry) int {
	mapped := make([]format.TranslatedEntry, 0, len(parsed))
	for _, p := range parsed {
		if p.Index >= 0 && p.Index < len(positions) {
			p.Index = positions[p.Index]
			mapped = append(mapped, p)
		}
	}
	return a.fill(mapped)
}

func (a *alignment) missing() []int {
	var ret []int
	for i, s := range a.slots {
		if s == nil {
			ret = append(ret, i)
		}
	}
	return ret
}

// degrade fills every empty slot with the marked original text.
func (a *alignment) degrade() int {
	n := 0
	for _, i := range a.missing() {
		a.slots[i] = &format.TranslatedEntry{Index: i, Text: MissingSentinel + a.batch.Entries[i].Text}
		a.degraded[i] = true
		n++
	}
	return n
}

// concat joins the alignments of consecutive halves of one batch.
func concat(b batch.Batch, parts ...*alignment) *alignment {
	ret := newAlignment(b)
	ret.slots = ret.slots[:0]
	ret.degraded = ret.degraded[:0]
	for _, p := range parts {
		for i, s := range p.slots {
			e := *s
			e.Index = len(ret.slots)
			ret.slots = append(ret.slots, &e)
			ret.degraded = append(ret.degraded, p.degraded[i])
		}
		ret.stats.add(p.stats)
		if ret.provider == "" {
			ret.provider = p.provider
		}
	}
	return ret
}

// missingThreshold is the largest hole count still repaired with a
// targeted request: ceil(0.3 * n).
func missingThreshold(n int) int {
	return (3*n + 9) / 10
}

// recover parses raw against b and repairs holes according to the
// backend's retry policy. Every slot is filled on return.
func (w *workerContext) recover(ctx context.Context, be backend.Backend, b batch.Batch, window requestWindow, raw string) (*alignment, error) {
	f := w.run.formatter
	n := b.Len()

	al := newAlignment(b)
	al.provider = be.Name()
	parsed := f.Parse(raw, b)
	al.fill(parsed)
	al.stats = MismatchStats{Expected: n, Parsed: len(parsed), State: StateOK}

	missing := al.missing()
	al.stats.Missing = len(missing)
	if len(missing) == 0 {
		w.seen.add(al.stats)
		return al, nil
	}

	log.Warn("Batch %d-%d: %v", b.StartID, b.EndID(), backend.Mismatch(be.Name(), n, len(parsed)))

	switch {
	case be.RetryPolicy() == backend.RetryNone:
		// deterministic backends are padded, never asked again
	case len(missing) <= missingThreshold(n):
		al.stats.State = StatePartialMissing
		if err := w.targetedRetry(ctx, be, al, missing); err != nil {
			return nil, err
		}
	default:
		al.stats.State = StateHeavyMissing
		if err := w.fullRetries(ctx, be, al, window); err != nil {
			return nil, err
		}
	}

	if degraded := al.degrade(); degraded > 0 {
		al.stats.Degraded = degraded
		al.stats.State = StateDegraded
		log.Warn("Batch %d-%d: %d of %d entries left untranslated", b.StartID, b.EndID(), degraded, n)
	}
	al.stats.Recovered = al.stats.Missing - al.stats.Degraded
	w.seen.add(al.stats)
	return al, nil
}

// targetedRetry sends one request with only the missing entries. A failed
// request leaves the holes for degradation; only cancellation aborts.
func (w *workerContext) targetedRetry(ctx context.Context, be backend.Backend, al *alignment, missing []int) error {
	sub := al.batch.Sub(missing)
	log.Info("Batch %d-%d: requesting %d missing entries", al.batch.StartID, al.batch.EndID(), sub.Len())

	raw, err := w.send(ctx, be, w.request(sub, requestWindow{}, false), sub, false)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Batch %d-%d: targeted retry failed: %v", al.batch.StartID, al.batch.EndID(), err)
		return nil
	}
	al.fillAt(missing, w.run.formatter.Parse(raw, sub))
	return nil
}

// fullRetries resends the whole batch up to the job's mismatch budget. A
// complete answer replaces the result; otherwise its entries fill holes.
func (w *workerContext) fullRetries(ctx context.Context, be backend.Backend, al *alignment, window requestWindow) error {
	b := al.batch
	req := w.request(b, window, false)

	for attempt := 1; attempt <= w.run.job.MismatchRetries; attempt++ {
		if err := sleepCtx(ctx, time.Duration(attempt)*w.run.engine.recoveryBackoff); err != nil {
			return err
		}
		log.Info("Batch %d-%d: full retry %d/%d after heavy mismatch", b.StartID, b.EndID(), attempt, w.run.job.MismatchRetries)

		raw, err := w.send(ctx, be, req, b, false)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("Batch %d-%d: full retry %d failed: %v", b.StartID, b.EndID(), attempt, err)
			continue
		}

		parsed := w.run.formatter.Parse(raw, b)
		if len(parsed) == b.Len() {
			fresh := newAlignment(b)
			fresh.fill(parsed)
			al.slots = fresh.slots
			return nil
		}
		al.fill(parsed)
		if len(al.missing()) == 0 {
			return nil
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
