package translator

import (
	"context"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/cache"
	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// requestWindow is the context shown before a batch.
type requestWindow struct {
	entries []subtitle.Entry
}

// workerContext is the mutable state of one worker. It references the run
// read-only and owns its rotator and counters, so concurrent workers never
// write shared fields.
type workerContext struct {
	run     *run
	rotator *credentials.Rotator
	cred    credentials.Binding
	stats   BatchStats
	// seen sums the mismatch stats of every response parsed for the
	// current batch, so a failed batch can still report them
	seen MismatchStats
}

type batchOutput struct {
	entries []subtitle.Entry
	stats   BatchStats
}

func (r *run) newWorker(offset int) *workerContext {
	return &workerContext{
		run:     r,
		rotator: r.engine.credentials.NewRotator(offset),
	}
}

// process translates batch index of the run. Checkpointed batches and
// cached entries are reused; the rest goes to the backends.
func (w *workerContext) process(ctx context.Context, index int, b batch.Batch, stream bool) (batchOutput, error) {
	w.cred = w.rotator.Next()
	w.stats = BatchStats{Index: index, StartID: b.StartID, EndID: b.EndID()}
	w.seen = MismatchStats{}

	if cp := w.run.hooks.Checkpoints; cp != nil {
		if entries, ok := cp.Load(b.StartID, b.EndID()); ok && len(entries) == b.Len() {
			log.Info("Batch %d (%d-%d) restored from checkpoint", index, b.StartID, b.EndID())
			w.stats.FromCheckpoint = true
			w.stats.Mismatch = restoredStats(entries)
			return batchOutput{entries: entries, stats: w.stats}, nil
		}
	}

	n := b.Len()
	texts := make([]string, n)
	timecodes := make([]string, n)
	degraded := make([]bool, n)
	for i, e := range b.Entries {
		timecodes[i] = e.Timecode
	}

	misses := w.pending(ctx, b, texts)
	if len(misses) > 0 {
		sub := b
		if len(misses) < n {
			sub = b.Sub(misses)
		}

		al, err := w.translate(ctx, sub, w.run.window(index), stream)
		if err != nil {
			w.stats.Mismatch = w.seen
			return batchOutput{stats: w.stats}, err
		}

		resupply := w.run.formatter.ResuppliesTiming()
		for k, pos := range misses {
			slot := al.slots[k]
			texts[pos] = slot.Text
			degraded[pos] = al.degraded[k]
			if resupply && slot.Timecode != "" && !al.degraded[k] {
				timecodes[pos] = slot.Timecode
			}
		}
		w.stats.Provider = al.provider
		w.stats.Mismatch = al.stats
		w.storeCache(ctx, b, misses, texts, degraded)
	}

	entries := make([]subtitle.Entry, n)
	for i, e := range b.Entries {
		entries[i] = subtitle.Entry{ID: e.ID, Timecode: timecodes[i], Text: texts[i]}
	}
	return batchOutput{entries: entries, stats: w.stats}, nil
}

// pending fills texts for blank entries, which pass through unchanged,
// and for cached ones. It returns the positions that still need translating.
func (w *workerContext) pending(ctx context.Context, b batch.Batch, texts []string) []int {
	c := w.run.engine.cache
	var misses []int
	for i, e := range b.Entries {
		if strings.TrimSpace(e.Text) == "" {
			texts[i] = e.Text
			continue
		}
		if c != nil {
			if v, ok := c.Get(ctx, w.run.cacheKey(e.Text)); ok {
				texts[i] = v
				w.stats.CacheHits++
				continue
			}
		}
		misses = append(misses, i)
	}
	return misses
}

func (w *workerContext) storeCache(ctx context.Context, b batch.Batch, positions []int, texts []string, degraded []bool) {
	c := w.run.engine.cache
	if c == nil {
		return
	}
	for _, pos := range positions {
		if degraded[pos] {
			continue
		}
		c.Put(ctx, w.run.cacheKey(b.Entries[pos].Text), texts[pos])
	}
}

// translate runs the primary backend with its error handling and falls
// back to the secondary once when that fails.
func (w *workerContext) translate(ctx context.Context, b batch.Batch, window requestWindow, stream bool) (*alignment, error) {
	e := w.run.engine
	al, err := w.attempt(ctx, e.primary, b, window, stream, 0, batch.MaxSplitDepth(b.Len()))
	if err == nil {
		return al, nil
	}
	if e.secondary == nil || ctx.Err() != nil {
		return nil, err
	}

	log.Warn("Batch %d-%d: %s failed (%s), falling back to %s: %v",
		b.StartID, b.EndID(), e.primary.Name(), backend.KindOf(err), e.secondary.Name(), err)
	w.stats.Fallback = true

	req := w.request(b, window, false)
	// the credential set belongs to the primary
	req.Credential = credentials.Binding{}
	raw, ferr := w.send(ctx, e.secondary, req, b, stream)
	if ferr == nil {
		return w.recover(ctx, e.secondary, b, window, raw)
	}
	return nil, &FallbackError{
		Primary:           err,
		Secondary:         ferr,
		PrimaryProvider:   e.primary.Name(),
		SecondaryProvider: e.secondary.Name(),
	}
}

// attempt sends b to be and handles the error kinds that have a local
// remedy: content policy refusals get one softened retry, token limit
// errors split the batch in halves down to maxDepth.
func (w *workerContext) attempt(
	ctx context.Context,
	be backend.Backend,
	b batch.Batch,
	window requestWindow,
	stream bool,
	depth, maxDepth int,
) (*alignment, error) {
	raw, err := w.send(ctx, be, w.request(b, window, false), b, stream)
	if err == nil {
		return w.recover(ctx, be, b, window, raw)
	}

	switch backend.KindOf(err) {
	case backend.KindContentPolicy:
		log.Warn("Batch %d-%d: %s refused content, retrying with softened prompt", b.StartID, b.EndID(), be.Name())
		raw, err = w.send(ctx, be, w.request(b, window, true), b, stream)
		if err == nil {
			return w.recover(ctx, be, b, window, raw)
		}

	case backend.KindTokenLimitExceeded:
		if b.Len() > 1 && depth < maxDepth {
			log.Warn("Batch %d-%d: token limit exceeded, splitting %d entries", b.StartID, b.EndID(), b.Len())
			left, right := b.Split()
			la, err := w.attempt(ctx, be, left, window, stream, depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			ra, err := w.attempt(ctx, be, right, window, stream, depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			return concat(b, la, ra), nil
		}
		if b.Len() == 1 {
			log.Warn("Batch %d: token limit exceeded on a single entry, retrying once", b.StartID)
			raw, err = w.send(ctx, be, w.request(b, window, false), b, stream)
			if err == nil {
				return w.recover(ctx, be, b, window, raw)
			}
		}
	}
	return nil, err
}

func (w *workerContext) request(b batch.Batch, window requestWindow, softened bool) backend.Request {
	job := w.run.job
	f := w.run.formatter

	req := backend.Request{
		Content:        f.Format(b, window.entries),
		TargetLanguage: job.TargetLanguage.String(),
		Prompt: f.Instructions(format.InstructionRequest{
			TargetLanguage: job.TargetLanguage,
			SourceHint:     job.SourceHint,
			Custom:         job.Instructions,
			ExpectedCount:  b.Len(),
			HasContext:     len(window.entries) > 0,
			Softened:       softened,
		}),
		Credential: w.cred,
	}
	if !isUnd(job.SourceHint) {
		req.SourceHint = job.SourceHint.String()
	}
	return req
}

// send performs one backend call. Streamed partials are parsed against b
// and handed to the run's aggregator.
func (w *workerContext) send(ctx context.Context, be backend.Backend, req backend.Request, b batch.Batch, stream bool) (string, error) {
	w.stats.Requests++
	if !stream {
		return be.Translate(ctx, req)
	}
	f := w.run.formatter
	return be.StreamTranslate(ctx, req, func(cumulative string) {
		w.run.agg.partial(b, f.Parse(cumulative, b))
	})
}

// restoredStats counts the entries of a checkpointed batch that were
// stored with the missing sentinel.
func restoredStats(entries []subtitle.Entry) MismatchStats {
	s := MismatchStats{Expected: len(entries), Parsed: len(entries), State: StateOK}
	for _, e := range entries {
		if strings.HasPrefix(e.Text, MissingSentinel) {
			s.Degraded++
		}
	}
	if s.Degraded > 0 {
		s.Parsed -= s.Degraded
		s.Missing = s.Degraded
		s.State = StateDegraded
	}
	return s
}

func (r *run) cacheKey(text string) string {
	return cache.Key(text, r.job.TargetLanguage.String(), r.promptKey)
}
