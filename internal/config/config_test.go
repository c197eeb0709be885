package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/credentials"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"test-key"}, cfg.LLM.APIKeys)
	assert.Equal(t, language.Chinese, cfg.Translate.TargetLanguage)
	assert.Equal(t, format.ModePlain, cfg.Translate.FormatMode())
	assert.Equal(t, 1, cfg.Translate.Concurrency)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/app/data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/app/data", "subbatch.db"), cfg.DBPath())
	assert.False(t, cfg.Fallback.Enabled())
}

func TestNewFromEnv_EnvOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "k1, k2,,k3")
	t.Setenv("LLM_API_URL", "http://localhost:9000/v1/")
	t.Setenv("TARGET_LANGUAGE", "pt-BR")
	t.Setenv("FORMAT_MODE", "Tagged")
	t.Setenv("CONCURRENCY", "3")
	t.Setenv("STREAMING", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("DATA_DIR", "/tmp/subbatch")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.LLM.APIKeys)
	assert.Equal(t, "http://localhost:9000/v1", cfg.LLM.APIURL)
	assert.Equal(t, language.BrazilianPortuguese, cfg.Translate.TargetLanguage)
	assert.Equal(t, format.ModeTagged, cfg.Translate.FormatMode())
	assert.Equal(t, 3, cfg.Translate.Concurrency)
	assert.True(t, cfg.Translate.Streaming)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, filepath.Join("/tmp/subbatch", "subbatch.lock"), cfg.LockPath())

	store := cfg.Credentials()
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, credentials.RotatePerBatch, store.Mode())
}

func TestNewFromEnv_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subbatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[llm]
api_keys = ["file-key"]
model = "file-model"

[translate]
target_language = "ja"
batch_size = 50
mismatch_retries = 1

[fallback]
provider = "DeepL"
api_key = "dl-key"
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"file-key"}, cfg.LLM.APIKeys)
	assert.Equal(t, "env-model", cfg.LLM.Model, "environment wins over the file")
	assert.Equal(t, language.Japanese, cfg.Translate.TargetLanguage)
	assert.Equal(t, 50, cfg.Translate.BatchSize)
	assert.Equal(t, 1, cfg.Translate.MismatchRetries)
	assert.True(t, cfg.Fallback.Enabled())
	assert.Equal(t, "deepl", cfg.Fallback.Provider)
}

func TestNewFromEnv_ConfigFileUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm]\nmodle = \"typo\"\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_API_KEY", "k")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestNewFromEnv_Options(t *testing.T) {
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("TARGET_LANGUAGE", "fr")

	cfg, err := NewFromEnv(
		WithTargetLanguage(language.German),
		WithFormatMode(format.ModeTimestamp),
		WithConcurrency(5),
		WithStreaming(true),
		WithDataDir("/srv/subbatch"),
	)
	require.NoError(t, err)

	assert.Equal(t, language.German, cfg.Translate.TargetLanguage)
	assert.Equal(t, format.ModeTimestamp, cfg.Translate.FormatMode())
	assert.Equal(t, 5, cfg.Translate.Concurrency)
	assert.True(t, cfg.Translate.Streaming)
	assert.Equal(t, "/srv/subbatch", cfg.System.DataDir)
}

func TestNewFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing key", env: map[string]string{"LLM_API_KEY": ""}, wantErr: "LLM_API_KEY"},
		{name: "concurrency too high", env: map[string]string{"CONCURRENCY": "6"}, wantErr: "CONCURRENCY"},
		{name: "concurrency zero", env: map[string]string{"CONCURRENCY": "0"}, wantErr: "CONCURRENCY"},
		{name: "mismatch retries", env: map[string]string{"MISMATCH_RETRIES": "4"}, wantErr: "MISMATCH_RETRIES"},
		{name: "format mode", env: map[string]string{"FORMAT_MODE": "json"}, wantErr: "format mode"},
		{name: "rotation", env: map[string]string{"LLM_KEY_ROTATION": "random"}, wantErr: "rotation"},
		{name: "language", env: map[string]string{"TARGET_LANGUAGE": "not a language"}, wantErr: "TARGET_LANGUAGE"},
		{name: "fallback provider", env: map[string]string{"FALLBACK_PROVIDER": "babelfish"}, wantErr: "FALLBACK_PROVIDER"},
		{name: "fallback key", env: map[string]string{"FALLBACK_PROVIDER": "deepl"}, wantErr: "FALLBACK_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_API_KEY", "k")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUBBATCH_DOTENV_PROBE=from-file\nSUBBATCH_DOTENV_SET=from-file\n"), 0o644))
	t.Setenv("SUBBATCH_DOTENV_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("SUBBATCH_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("SUBBATCH_DOTENV_PROBE"))
	assert.Equal(t, "from-env", os.Getenv("SUBBATCH_DOTENV_SET"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
