// Package format renders batches into backend wire formats and parses the
// responses back into positional entries.
package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

type Mode string

const (
	ModePlain     Mode = "plain"
	ModeTimestamp Mode = "timestamp"
	ModeTagged    Mode = "tagged"
)

// ParseMode maps a case-insensitive mode name to a Mode.
// An empty name selects ModePlain.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeTimestamp:
		return ModeTimestamp, nil
	case ModeTagged:
		return ModeTagged, nil
	default:
		return "", fmt.Errorf("unknown format mode %q", s)
	}
}

// DefaultBatchSize is the entry-count target used when none is configured.
func (m Mode) DefaultBatchSize() int {
	switch m {
	case ModeTimestamp:
		return 150
	case ModeTagged:
		return 400
	default:
		return 200
	}
}

// TranslatedEntry is one parsed response entry. Index is the 0-based
// position inside the batch that was sent.
type TranslatedEntry struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Timecode string `json:"timecode,omitempty"`
}

// InstructionRequest carries the inputs of the backend prompt.
type InstructionRequest struct {
	TargetLanguage language.Tag
	SourceHint     language.Tag
	Custom         string
	ExpectedCount  int
	HasContext     bool
	// Softened asks the backend to tone down wording it would otherwise refuse.
	Softened bool
}

// Formatter is a serialization strategy for one Mode.
type Formatter interface {
	Mode() Mode
	// Format renders b for the backend. window holds preceding entries that
	// are shown as context only.
	Format(b batch.Batch, window []subtitle.Entry) string
	// Parse never fails; unusable fragments are dropped and surface as
	// missing positions.
	Parse(raw string, b batch.Batch) []TranslatedEntry
	Instructions(req InstructionRequest) string
	ResuppliesTiming() bool
}

// For returns the formatter of mode m. Unknown modes fall back to plain.
func For(m Mode) Formatter {
	switch m {
	case ModeTimestamp:
		return timestampFormatter{}
	case ModeTagged:
		return taggedFormatter{}
	default:
		return plainFormatter{}
	}
}
