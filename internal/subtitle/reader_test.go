package subtitle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nWorld\nagain\n"

func TestParseSequence(t *testing.T) {
	t.Parallel()

	entries, err := ParseSequence(sampleSRT)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{ID: 1, Timecode: "00:00:01,000 --> 00:00:02,000", Text: "Hello"}, entries[0])
	assert.Equal(t, Entry{ID: 2, Timecode: "00:00:03,000 --> 00:00:04,000", Text: "World\nagain"}, entries[1])
}

func TestParseSequence_RenumbersByPosition(t *testing.T) {
	t.Parallel()

	raw := "\uFEFF7\r\n00:00:01,000 --> 00:00:02,000\r\nA\r\n\r\n9\r\n00:00:03,000 --> 00:00:04,000\r\nB\r\n"
	entries, err := ParseSequence(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].ID)
	assert.Equal(t, 2, entries[1].ID)
	assert.Equal(t, "B", entries[1].Text)
}

func TestParseSequence_InvalidTiming(t *testing.T) {
	t.Parallel()

	_, err := ParseSequence("1\nnot a timing line\nHello\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time format")
}

func TestSerializeSequence_RoundTrip(t *testing.T) {
	t.Parallel()

	entries, err := ParseSequence(sampleSRT)
	require.NoError(t, err)

	again, err := ParseSequence(SerializeSequence(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestReaderWriter_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "episode.srt")
	require.NoError(t, os.WriteFile(in, []byte(sampleSRT), 0o644))

	file, err := NewReader().Read(in)
	require.NoError(t, err)
	assert.Equal(t, "SRT", file.Format)
	assert.Equal(t, in, file.Path)
	require.Len(t, file.Entries, 2)

	out := filepath.Join(dir, "out", "episode.zh.srt")
	require.NoError(t, NewWriter().Write(out, file))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, SerializeSequence(file.Entries), string(written))
}

func TestReader_RejectsNonSRT(t *testing.T) {
	t.Parallel()

	_, err := NewReader().Read("/tmp/episode.ass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SRT")
}

func TestDetectLanguage(t *testing.T) {
	entries := []Entry{
		{Text: "Hello, world!"},
		{Text: "こんにちは、世界!"},
		{Text: "こんにちは、世界!"},
		{Text: "Привет, мир!"},
	}
	lang := DetectLanguage(entries)
	if lang != language.Japanese {
		t.Errorf("expected ja, got %s", lang)
	}
}

func TestDetectLanguage_Empty(t *testing.T) {
	assert.Equal(t, language.Und, DetectLanguage(nil))
}
