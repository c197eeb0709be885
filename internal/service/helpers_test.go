package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
Hello there.

2
00:00:03,000 --> 00:00:04,500
How are you today?

3
00:00:05,000 --> 00:00:06,000
I am fine, thank you.
`

func writeSRT(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.APIKeys = []string{"k1", "k2"}
	cfg.Translate.TargetLanguage = language.German
	cfg.Translate.Language = "de"
	cfg.Cache.Size = 0
	cfg.System.DataDir = t.TempDir()
	return &cfg
}

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Run(ctx context.Context, job translator.Job, entries []subtitle.Entry, hooks translator.Hooks) (*translator.Result, error) {
	args := m.Called(ctx, job, entries, hooks)
	if fn, ok := args.Get(0).(func([]subtitle.Entry) *translator.Result); ok {
		return fn(entries), args.Error(1)
	}
	res, _ := args.Get(0).(*translator.Result)
	return res, args.Error(1)
}

func (m *mockEngine) Primary() string { return "mock" }

// prefixResult answers every entry with "de:" prepended.
func prefixResult(entries []subtitle.Entry) *translator.Result {
	out := make([]subtitle.Entry, len(entries))
	for i, e := range entries {
		out[i] = subtitle.Entry{ID: e.ID, Timecode: e.Timecode, Text: "de:" + e.Text}
	}
	return &translator.Result{
		RunID:   "run-1",
		Entries: out,
		Batches: []translator.BatchStats{{Index: 0, StartID: 1, EndID: len(entries), Provider: "mock", Requests: 1}},
	}
}

var plainEntry = regexp.MustCompile(`(?m)^(\d+)\. (.*)$`)

// chatServer is an OpenAI compatible endpoint translating plain-mode
// requests by prefixing "de:".
func chatServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer k"))

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var user string
		for _, m := range req.Messages {
			if m.Role == "user" {
				user = m.Content
			}
		}
		var blocks []string
		for _, m := range plainEntry.FindAllStringSubmatch(user, -1) {
			blocks = append(blocks, fmt.Sprintf("%s. de:%s", m[1], m[2]))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": strings.Join(blocks, "\n\n")},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}
