package persistence

import (
	"time"

	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

// BatchCheckpoint is one committed batch of a job, keyed by its id range.
type BatchCheckpoint struct {
	JobID      string
	BatchStart int
	BatchEnd   int
	Entries    []subtitle.Entry
	UpdatedAt  time.Time
}
