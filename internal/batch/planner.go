package batch

import (
	"context"
	"math/bits"

	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// Measure estimates the token cost of sending a batch.
type Measure func(ctx context.Context, b Batch) int

// Config controls how the Planner cuts a sequence.
type Config struct {
	// BatchSize is the entry-count target per batch.
	BatchSize int
	// SingleUnit plans the whole sequence as one batch before splitting.
	SingleUnit bool
	// TokenCeiling is the per-batch token limit; 0 disables splitting.
	TokenCeiling int
}

// Planner turns an entry sequence into batches.
type Planner struct {
	cfg     Config
	measure Measure
}

// NewPlanner creates a planner. A nil measure uses HeuristicTokens over the
// joined entry text.
func NewPlanner(cfg Config, measure Measure) *Planner {
	if measure == nil {
		measure = func(_ context.Context, b Batch) int {
			return HeuristicTokens(joinText(b))
		}
	}
	return &Planner{cfg: cfg, measure: measure}
}

// Plan partitions entries into batches without gaps or overlaps.
func (p *Planner) Plan(ctx context.Context, entries []subtitle.Entry) []Batch {
	if len(entries) == 0 {
		return nil
	}

	size := p.cfg.BatchSize
	if p.cfg.SingleUnit || size <= 0 || size > len(entries) {
		size = len(entries)
	}

	var ret []Batch
	for i := 0; i < len(entries); i += size {
		end := min(i+size, len(entries))
		ret = append(ret, p.Fit(ctx, New(entries[i:end]))...)
	}
	return ret
}

// Fit splits b at its midpoint until every piece fits the token ceiling
// or is a single entry. Splitting depth never exceeds MaxSplitDepth(b.Len()).
func (p *Planner) Fit(ctx context.Context, b Batch) []Batch {
	if p.cfg.TokenCeiling <= 0 || b.Len() <= 1 {
		return []Batch{b}
	}

	type item struct {
		batch Batch
		depth int
	}
	maxDepth := MaxSplitDepth(b.Len())

	var ret []Batch
	// explicit stack, right half pushed first so output stays in order
	stack := []item{{batch: b}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.batch.Len() > 1 && cur.depth < maxDepth {
			if est := p.measure(ctx, cur.batch); est > p.cfg.TokenCeiling {
				left, right := cur.batch.Split()
				log.Debug("Batch %d-%d estimated %d tokens > %d, splitting", cur.batch.StartID, cur.batch.EndID(), est, p.cfg.TokenCeiling)
				stack = append(stack, item{right, cur.depth + 1}, item{left, cur.depth + 1})
				continue
			}
		}
		ret = append(ret, cur.batch)
	}
	return ret
}

// MaxSplitDepth returns ceil(log2(n)), the number of halvings needed to
// reduce n entries to single-entry batches.
func MaxSplitDepth(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// HeuristicTokens approximates a token count as ceil(runes/4) scaled up by 10%.
func HeuristicTokens(text string) int {
	runes := len([]rune(text))
	if runes == 0 {
		return 0
	}
	base := (runes + 3) / 4
	return (base*11 + 9) / 10
}

func joinText(b Batch) string {
	n := 0
	for _, e := range b.Entries {
		n += len(e.Text) + 1
	}
	buf := make([]byte, 0, n)
	for _, e := range b.Entries {
		buf = append(buf, e.Text...)
		buf = append(buf, '\n')
	}
	return string(buf)
}
