// Package translator orchestrates batch translation of subtitle entries:
// planning, per-batch translation with recovery and fallback, and ordered
// commit of concurrently processed batches.
package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/cache"
	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

const defaultRecoveryBackoff = 500 * time.Millisecond

// PlanConfig controls how a job is cut into batches. A zero BatchSize
// uses the format mode's default.
type PlanConfig struct {
	BatchSize    int
	SingleUnit   bool
	TokenCeiling int
}

type Option func(*Engine)

// WithFallback sets the backend tried once when the primary fails a batch.
func WithFallback(b backend.Backend) Option {
	return func(e *Engine) { e.secondary = b }
}

func WithCredentials(store *credentials.Store) Option {
	return func(e *Engine) { e.credentials = store }
}

func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithPlan(cfg PlanConfig) Option {
	return func(e *Engine) { e.plan = cfg }
}

// WithRecoveryBackoff sets the base delay between full-batch retries.
func WithRecoveryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.recoveryBackoff = d }
}

// Engine holds the configuration shared by all jobs. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	primary         backend.Backend
	secondary       backend.Backend
	credentials     *credentials.Store
	cache           *cache.Cache
	plan            PlanConfig
	recoveryBackoff time.Duration
}

func NewEngine(primary backend.Backend, opts ...Option) (*Engine, error) {
	if primary == nil {
		return nil, errors.New("primary backend is required")
	}
	e := &Engine{
		primary:         primary,
		recoveryBackoff: defaultRecoveryBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Primary returns the name of the primary backend.
func (e *Engine) Primary() string {
	return e.primary.Name()
}

// run is the state of one Run call.
type run struct {
	id        string
	engine    *Engine
	job       Job
	formatter format.Formatter
	hooks     Hooks
	promptKey string

	entries    []subtitle.Entry
	batches    []batch.Batch
	offsets    []int
	sequential bool
	agg        *aggregator
}

// Run translates entries and returns the reconstituted sequence. It either
// returns every entry, in order, or an error; there is no partial result.
func (e *Engine) Run(ctx context.Context, job Job, entries []subtitle.Entry, hooks Hooks) (*Result, error) {
	job = job.normalized()
	r := &run{
		id:        uuid.New().String(),
		engine:    e,
		job:       job,
		formatter: format.For(job.Mode),
		hooks:     hooks,
		promptKey: fmt.Sprintf("%s|%s|%s", e.primary.Name(), job.Mode, job.Instructions),
		entries:   entries,
	}
	if job.ID == "" {
		r.job.ID = r.id
	}
	r.agg = newAggregator(r.job.ID, len(entries), hooks.OnProgress)

	if len(entries) == 0 {
		return &Result{RunID: r.id}, nil
	}

	r.plan(ctx)
	r.sequential = job.Concurrency <= 1 || len(r.batches) == 1
	log.Info("Job %s: %d entries in %d batches (mode=%s, concurrency=%d, streaming=%v, backend=%s)",
		r.job.ID, len(entries), len(r.batches), job.Mode, job.Concurrency, job.Streaming, e.primary.Name())

	stats := make([]BatchStats, 0, len(r.batches))
	commit := func(i int, out batchOutput) {
		r.agg.commit(out.entries)
		stats = append(stats, out.stats)
		r.saveCheckpoint(ctx, out)
	}

	var err error
	if r.sequential {
		err = r.runSequential(ctx, commit)
	} else {
		err = runOrdered(ctx, len(r.batches), job.Concurrency, func(ctx context.Context, i int) (batchOutput, error) {
			w := r.newWorker(i)
			out, err := w.process(ctx, i, r.batches[i], job.Streaming && i == 0)
			if err != nil {
				return out, r.batchError(i, err, out.stats.Mismatch)
			}
			return out, nil
		}, commit)
		if err != nil && !IsErrorType(err, ErrBatch) {
			err = NewErrorWithCause(ErrCanceled, "job canceled", err).WithContext("job", r.job.ID)
		}
	}
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: r.id, Entries: r.agg.output(), Batches: stats}
	for _, s := range stats {
		result.Degraded += s.Mismatch.Degraded
	}
	log.Info("Job %s: finished %d entries, %d degraded", r.job.ID, len(result.Entries), result.Degraded)
	return result, nil
}

// runSequential uses one worker for all batches, so each batch sees the
// translated tail of its predecessor as context and may stream.
func (r *run) runSequential(ctx context.Context, commit func(int, batchOutput)) error {
	w := r.newWorker(0)
	for i, b := range r.batches {
		if err := ctx.Err(); err != nil {
			return NewErrorWithCause(ErrCanceled, "job canceled", err).WithContext("batch", i)
		}
		out, err := w.process(ctx, i, b, r.job.Streaming)
		if err != nil {
			return r.batchError(i, err, out.stats.Mismatch)
		}
		commit(i, out)
	}
	return nil
}

func (r *run) plan(ctx context.Context) {
	cfg := r.engine.plan
	size := cfg.BatchSize
	if size <= 0 {
		size = r.job.Mode.DefaultBatchSize()
	}
	planner := batch.NewPlanner(batch.Config{
		BatchSize:    size,
		SingleUnit:   cfg.SingleUnit,
		TokenCeiling: cfg.TokenCeiling,
	}, r.measure)
	r.batches = planner.Plan(ctx, r.entries)

	r.offsets = make([]int, len(r.batches))
	off := 0
	for i, b := range r.batches {
		r.offsets[i] = off
		off += b.Len()
	}
}

// measure estimates the token cost of sending b: the backend's counter if
// it has one, else its estimator, else the length heuristic.
func (r *run) measure(ctx context.Context, b batch.Batch) int {
	be := r.engine.primary
	w := &workerContext{run: r}
	req := w.request(b, requestWindow{}, false)

	n, err := be.CountTokens(ctx, req)
	if err == nil && n > 0 {
		return n
	}
	if err != nil && !errors.Is(err, backend.ErrTokenCountUnsupported) {
		log.Debug("Token count from %s failed, estimating: %v", be.Name(), err)
	}
	if n := be.EstimateTokenCount(req.Prompt + req.Content); n > 0 {
		return n
	}
	return batch.HeuristicTokens(req.Prompt + req.Content)
}

// window returns the context entries shown before batch index. Sequential
// runs use translated output, concurrent runs the originals since earlier
// batches may not be done yet.
func (r *run) window(index int) requestWindow {
	n := r.job.ContextWindow
	if n <= 0 || index == 0 {
		return requestWindow{}
	}
	if r.sequential {
		return requestWindow{entries: r.agg.tail(n)}
	}
	end := r.offsets[index]
	start := max(end-n, 0)
	return requestWindow{entries: r.entries[start:end]}
}

func (r *run) saveCheckpoint(ctx context.Context, out batchOutput) {
	cp := r.hooks.Checkpoints
	if cp == nil || out.stats.FromCheckpoint {
		return
	}
	if err := cp.Save(ctx, out.stats.StartID, out.stats.EndID, out.entries); err != nil {
		log.Warn("Job %s: failed to checkpoint batch %d-%d: %v", r.job.ID, out.stats.StartID, out.stats.EndID, err)
	}
}

func (r *run) batchError(index int, err error, mismatch MismatchStats) error {
	b := r.batches[index]
	ret := NewErrorWithCause(ErrBatch, "batch translation failed", err).
		WithContext("job", r.job.ID).
		WithContext("batch", index).
		WithContext("ids", fmt.Sprintf("%d-%d", b.StartID, b.EndID())).
		WithContext("kind", backend.KindOf(err).String())
	if mismatch.Expected > 0 {
		ret = ret.WithContext("mismatch", mismatch.String())
	}
	return ret
}

func isUnd(tag language.Tag) bool {
	return tag == language.Und
}
