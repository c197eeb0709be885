package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

const (
	contextQuote  = ">"
	contextHeader = "> [context only, do not translate]"
)

var numberedLine = regexp.MustCompile(`^\s*(\d+)[.)]\s?(.*)$`)

// plainFormatter renders entries as "N. text" blocks with N counting from 1
// inside the batch.
type plainFormatter struct{}

func (plainFormatter) Mode() Mode { return ModePlain }

func (plainFormatter) ResuppliesTiming() bool { return false }

func (plainFormatter) Format(b batch.Batch, window []subtitle.Entry) string {
	var sb strings.Builder
	writeQuotedContext(&sb, window)
	for i, e := range b.Entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, e.Text)
	}
	return sb.String()
}

func (plainFormatter) Parse(raw string, b batch.Batch) []TranslatedEntry {
	c := newCollector(b.Len())

	var (
		cur     *TranslatedEntry
		atBlock = true
	)
	flush := func() {
		if cur != nil {
			c.add(*cur)
			cur = nil
		}
	}

	for _, line := range responseLines(raw) {
		if strings.TrimSpace(line) == "" {
			atBlock = true
			continue
		}
		if isContextLine(line) {
			flush()
			atBlock = true
			continue
		}
		// entries are separated by blank lines, so a numbered line inside a
		// block belongs to the entry text ("Rules:\n2. Never lie")
		if atBlock || cur == nil {
			if m := numberedLine.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[1])
				flush()
				cur = &TranslatedEntry{Index: n - 1, Text: m[2]}
				atBlock = false
				continue
			}
		}
		atBlock = false
		if cur == nil {
			continue
		}
		if cur.Text == "" {
			cur.Text = line
		} else {
			cur.Text += "\n" + line
		}
	}
	flush()
	return c.result()
}

func (plainFormatter) Instructions(req InstructionRequest) string {
	return buildInstructions(req, []string{
		"Each entry starts with its number followed by a dot, for example \"3. text\".",
		"Keep every number exactly as given and separate entries with a blank line.",
		"Keep line breaks inside an entry.",
	})
}

func writeQuotedContext(sb *strings.Builder, window []subtitle.Entry) {
	if len(window) == 0 {
		return
	}
	sb.WriteString(contextHeader)
	sb.WriteString("\n")
	for _, e := range window {
		for _, line := range strings.Split(e.Text, "\n") {
			sb.WriteString(contextQuote + " " + line + "\n")
		}
	}
	sb.WriteString("\n")
}
