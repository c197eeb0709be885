package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

// timestampFormatter renders SRT-like blocks numbered inside the batch and
// lets the backend return repaired timing.
type timestampFormatter struct{}

func (timestampFormatter) Mode() Mode { return ModeTimestamp }

func (timestampFormatter) ResuppliesTiming() bool { return true }

func (timestampFormatter) Format(b batch.Batch, window []subtitle.Entry) string {
	var sb strings.Builder
	writeQuotedContext(&sb, window)
	for i, e := range b.Entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d\n%s\n%s", i+1, e.Timecode, e.Text)
	}
	return sb.String()
}

func (timestampFormatter) Parse(raw string, b batch.Batch) []TranslatedEntry {
	c := newCollector(b.Len())

	var block []string
	flush := func() {
		if e, ok := parseTimedBlock(block); ok {
			c.add(e)
		}
		block = block[:0]
	}

	for _, line := range responseLines(raw) {
		if isContextLine(line) {
			flush()
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return c.result()
}

func parseTimedBlock(lines []string) (TranslatedEntry, bool) {
	if len(lines) == 0 {
		return TranslatedEntry{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return TranslatedEntry{}, false
	}

	e := TranslatedEntry{Index: n - 1}
	rest := lines[1:]
	if len(rest) > 0 && strings.Contains(rest[0], "-->") {
		e.Timecode = strings.TrimSpace(rest[0])
		rest = rest[1:]
	}
	e.Text = strings.Join(rest, "\n")
	return e, true
}

func (timestampFormatter) Instructions(req InstructionRequest) string {
	return buildInstructions(req, []string{
		"Entries are blocks of: number line, timing line, text lines; blocks are separated by a blank line.",
		"Return the same blocks with the same numbers and timing lines; only translate the text lines.",
		"If a timing line is malformed you may repair it, otherwise copy it unchanged.",
	})
}
