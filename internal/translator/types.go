package translator

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

// MissingSentinel prefixes the original text of entries whose translation
// could not be recovered.
const MissingSentinel = "[UNTRANSLATED] "

const (
	MaxConcurrency     = 5
	MaxMismatchRetries = 3
)

// Job is one translation request. It is read-only while the engine runs.
type Job struct {
	ID             string       `json:"id"`
	TargetLanguage language.Tag `json:"target_language"`
	SourceHint     language.Tag `json:"source_hint"`
	Instructions   string       `json:"instructions,omitempty"`
	Mode           format.Mode  `json:"mode"`
	Concurrency    int          `json:"concurrency"`
	Streaming      bool         `json:"streaming"`
	ContextWindow  int          `json:"context_window"`
	// MismatchRetries bounds full-batch retries after a heavy mismatch.
	MismatchRetries int `json:"mismatch_retries"`
}

func (j Job) normalized() Job {
	j.Concurrency = min(max(j.Concurrency, 1), MaxConcurrency)
	j.MismatchRetries = min(max(j.MismatchRetries, 0), MaxMismatchRetries)
	j.ContextWindow = max(j.ContextWindow, 0)
	if _, err := format.ParseMode(string(j.Mode)); err != nil || j.Mode == "" {
		j.Mode = format.ModePlain
	}
	return j
}

// Progress is a snapshot of the translated output so far. Sequence grows
// strictly across all snapshots of a job; consumers drop anything older
// than what they have already shown.
type Progress struct {
	JobID     string           `json:"job_id"`
	Entries   []subtitle.Entry `json:"entries"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Sequence  uint64           `json:"sequence"`
	// Partial is set for snapshots taken mid-batch while streaming.
	Partial bool `json:"partial"`
}

type ProgressFunc func(Progress)

// Checkpoints persists committed batches by entry id range so an
// interrupted job can resume.
type Checkpoints interface {
	Load(startID, endID int) ([]subtitle.Entry, bool)
	Save(ctx context.Context, startID, endID int, entries []subtitle.Entry) error
}

// Hooks are the optional per-run collaborators.
type Hooks struct {
	OnProgress  ProgressFunc
	Checkpoints Checkpoints
}

type RecoveryState string

const (
	StateOK             RecoveryState = "ok"
	StatePartialMissing RecoveryState = "partial-missing"
	StateHeavyMissing   RecoveryState = "heavy-missing"
	StateDegraded       RecoveryState = "degraded"
)

// MismatchStats describes how one batch response lined up with its request.
type MismatchStats struct {
	Expected  int           `json:"expected"`
	Parsed    int           `json:"parsed"`
	Missing   int           `json:"missing"`
	Recovered int           `json:"recovered"`
	Degraded  int           `json:"degraded"`
	State     RecoveryState `json:"state"`
}

func (s *MismatchStats) add(o MismatchStats) {
	s.Expected += o.Expected
	s.Parsed += o.Parsed
	s.Missing += o.Missing
	s.Recovered += o.Recovered
	s.Degraded += o.Degraded
	if rank(o.State) > rank(s.State) {
		s.State = o.State
	}
}

func (s MismatchStats) String() string {
	state := s.State
	if state == "" {
		state = StateOK
	}
	return fmt.Sprintf("expected=%d parsed=%d missing=%d recovered=%d degraded=%d state=%s",
		s.Expected, s.Parsed, s.Missing, s.Recovered, s.Degraded, state)
}

func rank(s RecoveryState) int {
	switch s {
	case StatePartialMissing:
		return 1
	case StateHeavyMissing:
		return 2
	case StateDegraded:
		return 3
	default:
		return 0
	}
}

// BatchStats is recorded for every committed batch.
type BatchStats struct {
	Index          int           `json:"index"`
	StartID        int           `json:"start_id"`
	EndID          int           `json:"end_id"`
	Provider       string        `json:"provider,omitempty"`
	Requests       int           `json:"requests"`
	CacheHits      int           `json:"cache_hits"`
	FromCheckpoint bool          `json:"from_checkpoint"`
	Fallback       bool          `json:"fallback"`
	Mismatch       MismatchStats `json:"mismatch"`
}

// Result is the reconstituted sequence of a finished job.
type Result struct {
	RunID    string           `json:"run_id"`
	Entries  []subtitle.Entry `json:"entries"`
	Batches  []BatchStats     `json:"batches"`
	Degraded int              `json:"degraded"`
}
