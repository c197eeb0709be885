package glossary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		source   language.Tag
		target   language.Tag
		expected string
	}{
		{"simple codes", language.English, language.German, "glossary.en-de.json"},
		{"regional tags", language.MustParse("zh-CN"), language.AmericanEnglish, "glossary.zh-en.json"},
		{"Japanese", language.English, language.Japanese, "glossary.en-ja.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Filename(tt.source, tt.target))
		})
	}
}

func TestFind(t *testing.T) {
	// root/
	//   glossary.en-de.json
	//   season1/
	//     episode1/
	root := t.TempDir()
	season1 := filepath.Join(root, "season1")
	episode1 := filepath.Join(season1, "episode1")
	require.NoError(t, os.MkdirAll(episode1, 0o755))

	path := filepath.Join(root, "glossary.en-de.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hello":"hallo"}`), 0o644))

	assert.Equal(t, path, Find(episode1, language.English, language.German))
	assert.Equal(t, path, Find(season1, language.English, language.German))
	assert.Empty(t, Find(episode1, language.English, language.French))
}

func TestFind_NearestWins(t *testing.T) {
	root := t.TempDir()
	season := filepath.Join(root, "season2")
	require.NoError(t, os.MkdirAll(season, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "glossary.en-de.json"), []byte(`{}`), 0o644))
	near := filepath.Join(season, "glossary.en-de.json")
	require.NoError(t, os.WriteFile(near, []byte(`{}`), 0o644))

	assert.Equal(t, near, Find(season, language.English, language.German))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glossary.en-de.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Momo Ayase":"Momo Ayase","Turbo Granny":"Turbo-Oma"}`), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Glossary{"Momo Ayase": "Momo Ayase", "Turbo Granny": "Turbo-Oma"}, g)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`["not", "an", "object"]`), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestMatch(t *testing.T) {
	g := Glossary{
		"Okarun":       "Okarun",
		"Turbo Granny": "Turbo-Oma",
		"Serpo":        "Serpo",
		"okarun":       "never",
		"":             "empty",
	}
	texts := []string{
		"Turbo Granny is coming!",
		"Okarun, run.",
		"A regular line.",
	}

	assert.Equal(t, []Term{
		{Source: "Okarun", Target: "Okarun"},
		{Source: "Turbo Granny", Target: "Turbo-Oma"},
	}, Match(g, texts))
	assert.Empty(t, Match(Glossary{}, texts))
	assert.Empty(t, Match(g, nil))
}

func TestInstructions(t *testing.T) {
	assert.Empty(t, Instructions(nil))
	assert.Equal(t,
		"Always translate these terms as given:\n- Okarun => Okarun\n- Turbo Granny => Turbo-Oma",
		Instructions([]Term{{"Okarun", "Okarun"}, {"Turbo Granny", "Turbo-Oma"}}))
}
