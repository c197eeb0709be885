package format

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

var segmentTag = regexp.MustCompile(`(?s)<s\s+id\s*=\s*["']?(\d+)["']?\s*>(.*?)</s>`)

// taggedFormatter wraps every entry in an id-bearing <s> element using the
// absolute entry id, so alignment survives reordering and dropped entries.
type taggedFormatter struct{}

func (taggedFormatter) Mode() Mode { return ModeTagged }

func (taggedFormatter) ResuppliesTiming() bool { return false }

func (taggedFormatter) Format(b batch.Batch, window []subtitle.Entry) string {
	var sb strings.Builder
	for _, e := range window {
		fmt.Fprintf(&sb, "<ctx id=\"%d\">%s</ctx>\n", e.ID, html.EscapeString(e.Text))
	}
	for i, e := range b.Entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "<s id=\"%d\">%s</s>", e.ID, html.EscapeString(e.Text))
	}
	return sb.String()
}

func (taggedFormatter) Parse(raw string, b batch.Batch) []TranslatedEntry {
	c := newCollector(b.Len())
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, m := range segmentTag.FindAllStringSubmatch(raw, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pos, ok := b.IndexOf(id)
		if !ok {
			continue
		}
		c.add(TranslatedEntry{Index: pos, Text: html.UnescapeString(m[2])})
	}
	return c.result()
}

func (taggedFormatter) Instructions(req InstructionRequest) string {
	return buildInstructions(req, []string{
		"Each entry is wrapped as <s id=\"N\">text</s>.",
		"Return every <s> element with its id unchanged and only the text translated.",
		"Never return <ctx> elements.",
	})
}
