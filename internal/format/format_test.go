package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/batch"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

func sampleBatch() batch.Batch {
	return batch.New([]subtitle.Entry{
		{ID: 11, Timecode: "00:00:01,000 --> 00:00:02,000", Text: "Hello there."},
		{ID: 12, Timecode: "00:00:02,500 --> 00:00:04,000", Text: "Two lines\nof text"},
		{ID: 13, Timecode: "00:00:05,000 --> 00:00:06,000", Text: "Tom & \"Jerry\" <3"},
	})
}

func texts(entries []TranslatedEntry) []string {
	ret := make([]string, len(entries))
	for i, e := range entries {
		ret[i] = e.Text
	}
	return ret
}

func TestFormatters_IdentityRoundTrip(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	for _, mode := range []Mode{ModePlain, ModeTimestamp, ModeTagged} {
		t.Run(string(mode), func(t *testing.T) {
			f := For(mode)
			assert.Equal(t, mode, f.Mode())

			parsed := f.Parse(f.Format(b, nil), b)
			require.Len(t, parsed, 3)
			for i, e := range parsed {
				assert.Equal(t, i, e.Index)
				assert.Equal(t, b.Entries[i].Text, e.Text)
			}
		})
	}
}

func TestFormatters_ContextNeverParsed(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	window := []subtitle.Entry{
		{ID: 9, Text: "1. previous"},
		{ID: 10, Text: "earlier line"},
	}
	for _, mode := range []Mode{ModePlain, ModeTimestamp, ModeTagged} {
		t.Run(string(mode), func(t *testing.T) {
			f := For(mode)
			content := f.Format(b, window)
			assert.Contains(t, content, "earlier line")

			parsed := f.Parse(content, b)
			require.Len(t, parsed, 3)
			assert.Equal(t, []string{"Hello there.", "Two lines\nof text", "Tom & \"Jerry\" <3"}, texts(parsed))
		})
	}
}

func TestPlainParse_DropsOutOfRangeAndDuplicates(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	raw := "```\n3. third\n\n1. first\n\n1. again\n\n7. extra\n\nnoise without number\n```"

	parsed := For(ModePlain).Parse(raw, b)

	require.Len(t, parsed, 2)
	assert.Equal(t, 0, parsed[0].Index)
	assert.Equal(t, "first", parsed[0].Text)
	assert.Equal(t, 2, parsed[1].Index)
	assert.Equal(t, "third", parsed[1].Text)
}

func TestPlainParse_NumberInsideText(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	raw := "1. It happened in\n1999. Really.\n\n2. ok\n\n3. done"

	parsed := For(ModePlain).Parse(raw, b)

	require.Len(t, parsed, 3)
	assert.Equal(t, "It happened in\n1999. Really.", parsed[0].Text)
}

func TestPlainParse_NumberedLineInsideEntry(t *testing.T) {
	t.Parallel()

	b := batch.New([]subtitle.Entry{
		{ID: 1, Text: "Rules:\n2. Never lie"},
		{ID: 2, Text: "line 2"},
		{ID: 3, Text: "line 3"},
	})
	f := For(ModePlain)

	parsed := f.Parse(f.Format(b, nil), b)

	require.Len(t, parsed, 3)
	assert.Equal(t, []string{"Rules:\n2. Never lie", "line 2", "line 3"}, texts(parsed))
}

func TestPlainParse_EntriesWithoutBlankLinesMerge(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	parsed := For(ModePlain).Parse("1. a\n2. b\n\n3. c", b)

	// the merged entry leaves a hole for recovery instead of shifting text
	require.Len(t, parsed, 2)
	assert.Equal(t, 0, parsed[0].Index)
	assert.Equal(t, "a\n2. b", parsed[0].Text)
	assert.Equal(t, 2, parsed[1].Index)
}

func TestPlainParse_PartialStream(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	parsed := For(ModePlain).Parse("1. Hal", b)

	require.Len(t, parsed, 1)
	assert.Equal(t, "Hal", parsed[0].Text)
}

func TestTimestampParse_ResuppliedTiming(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	raw := "1\n00:00:01,000 --> 00:00:02,100\nHallo.\n\n2\nZwei Zeilen\nText\n\nbroken block\n"

	f := For(ModeTimestamp)
	assert.True(t, f.ResuppliesTiming())
	parsed := f.Parse(raw, b)

	require.Len(t, parsed, 2)
	assert.Equal(t, "00:00:01,000 --> 00:00:02,100", parsed[0].Timecode)
	assert.Equal(t, "Hallo.", parsed[0].Text)
	assert.Empty(t, parsed[1].Timecode)
	assert.Equal(t, "Zwei Zeilen\nText", parsed[1].Text)
}

func TestTaggedParse_ReorderedAndForeignIDs(t *testing.T) {
	t.Parallel()

	b := sampleBatch()
	raw := `<s id="13">drei</s> <s id="99">foreign</s>
<s id='11'>eins</s><ctx id="10">ctx</ctx>`

	parsed := For(ModeTagged).Parse(raw, b)

	require.Len(t, parsed, 2)
	assert.Equal(t, TranslatedEntry{Index: 0, Text: "eins"}, parsed[0])
	assert.Equal(t, TranslatedEntry{Index: 2, Text: "drei"}, parsed[1])
}

func TestTaggedParse_SubBatch(t *testing.T) {
	t.Parallel()

	sub := sampleBatch().Sub([]int{2})
	parsed := For(ModeTagged).Parse(`<s id="13">drei</s><s id="11">eins</s>`, sub)

	require.Len(t, parsed, 1)
	assert.Equal(t, 0, parsed[0].Index)
	assert.Equal(t, "drei", parsed[0].Text)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode(" Tagged ")
	require.NoError(t, err)
	assert.Equal(t, ModeTagged, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePlain, m)

	_, err = ParseMode("xml")
	assert.Error(t, err)

	assert.Equal(t, 200, ModePlain.DefaultBatchSize())
	assert.Equal(t, 150, ModeTimestamp.DefaultBatchSize())
	assert.Equal(t, 400, ModeTagged.DefaultBatchSize())
}

func TestInstructions(t *testing.T) {
	t.Parallel()

	prompt := For(ModePlain).Instructions(InstructionRequest{
		TargetLanguage: language.German,
		SourceHint:     language.Japanese,
		Custom:         "Keep honorifics.",
		ExpectedCount:  42,
		HasContext:     true,
		Softened:       true,
	})

	assert.Contains(t, prompt, "from Japanese into German (de)")
	assert.Contains(t, prompt, "exactly 42 entries")
	assert.Contains(t, prompt, "Keep honorifics.")
	assert.Contains(t, prompt, "=== CONTEXT ===")
	assert.Contains(t, prompt, "neutral")

	plain := For(ModeTagged).Instructions(InstructionRequest{TargetLanguage: language.Und, ExpectedCount: 1})
	assert.Contains(t, plain, "into the target language.")
	assert.False(t, strings.Contains(plain, "=== CONTEXT ==="))
}
