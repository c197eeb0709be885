package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether a job in status s will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload names the subtitle file to translate and where to write it.
type JobPayload struct {
	SubtitleFile   string `json:"subtitle_file"`
	OutputFile     string `json:"output_file"`
	TargetLanguage string `json:"target_language"`
	Mode           string `json:"mode,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
}

// DedupeKey identifies jobs that would produce the same output. Custom
// instructions change the output, so they take part as a short hash.
func (p JobPayload) DedupeKey() string {
	parts := []string{p.SubtitleFile, p.OutputFile, p.TargetLanguage, p.Mode}
	if p.Instructions != "" {
		sum := sha256.Sum256([]byte(p.Instructions))
		parts = append(parts, hex.EncodeToString(sum[:8]))
	}
	return strings.Join(parts, "|")
}

// JobProgress is the latest progress snapshot of a running job.
type JobProgress struct {
	Sequence  uint64    `json:"sequence"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Partial   bool      `json:"partial"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Percent returns the completed share in [0, 100].
func (p JobProgress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

type TranslationJob struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	DedupeKey string      `json:"dedupe_key"`
	Payload   JobPayload  `json:"payload"`
	Status    Status      `json:"status"`
	Progress  JobProgress `json:"progress"`
	Degraded  int         `json:"degraded"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
