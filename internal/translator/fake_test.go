package translator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/backend"
	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

type call struct {
	req    backend.Request
	stream bool
}

// fakeBackend answers through respond and records every request.
type fakeBackend struct {
	name    string
	policy  backend.RetryPolicy
	respond func(n int, req backend.Request) (string, error)
	// tokens, when set, backs CountTokens
	tokens func(req backend.Request) int

	mu    sync.Mutex
	calls []call
}

func newFake(name string, respond func(n int, req backend.Request) (string, error)) *fakeBackend {
	return &fakeBackend{name: name, respond: respond}
}

func (f *fakeBackend) record(req backend.Request, stream bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{req: req, stream: stream})
	return len(f.calls) - 1
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Translate(_ context.Context, req backend.Request) (string, error) {
	return f.respond(f.record(req, false), req)
}

// StreamTranslate reports the answer block by block as cumulative partials.
func (f *fakeBackend) StreamTranslate(_ context.Context, req backend.Request, onPartial func(string)) (string, error) {
	out, err := f.respond(f.record(req, true), req)
	if err != nil {
		return "", err
	}
	blocks := strings.Split(out, "\n\n")
	for i := range blocks {
		onPartial(strings.Join(blocks[:i+1], "\n\n"))
	}
	return out, nil
}

func (f *fakeBackend) CountTokens(_ context.Context, req backend.Request) (int, error) {
	if f.tokens != nil {
		return f.tokens(req), nil
	}
	return 0, backend.ErrTokenCountUnsupported
}

func (f *fakeBackend) EstimateTokenCount(text string) int { return len([]rune(text)) / 4 }

func (f *fakeBackend) RetryPolicy() backend.RetryPolicy { return f.policy }

var (
	numberedEntry = regexp.MustCompile(`^(\d+)\. (.*)$`)
	lineID        = regexp.MustCompile(`line (\d+)`)
)

// translatePlain answers a plain-mode request, prefixing every entry text
// with "de:" and leaving out the local numbers in drop.
func translatePlain(content string, drop ...int) string {
	skip := map[int]bool{}
	for _, n := range drop {
		skip[n] = true
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, ">") {
			continue
		}
		m := numberedEntry.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if skip[n] {
			continue
		}
		out = append(out, fmt.Sprintf("%s. de:%s", m[1], m[2]))
	}
	return strings.Join(out, "\n\n")
}

// entryCount counts the numbered entries of a plain-mode request.
func entryCount(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if numberedEntry.MatchString(line) {
			n++
		}
	}
	return n
}

// firstID returns the id of the first "line N" text in content.
func firstID(t *testing.T, content string) int {
	t.Helper()
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, ">") {
			continue
		}
		if m := lineID.FindStringSubmatch(line); m != nil {
			id, err := strconv.Atoi(m[1])
			require.NoError(t, err)
			return id
		}
	}
	t.Fatalf("no entry in %q", content)
	return 0
}

func makeEntries(n int) []subtitle.Entry {
	ret := make([]subtitle.Entry, n)
	for i := range ret {
		ret[i] = subtitle.Entry{
			ID:       i + 1,
			Timecode: fmt.Sprintf("00:00:%02d,000 --> 00:00:%02d,900", i, i),
			Text:     fmt.Sprintf("line %d", i+1),
		}
	}
	return ret
}

func plainJob() Job {
	return Job{
		TargetLanguage:  language.German,
		Mode:            format.ModePlain,
		Concurrency:     1,
		MismatchRetries: 1,
	}
}

func newTestEngine(t *testing.T, primary backend.Backend, batchSize int, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithPlan(PlanConfig{BatchSize: batchSize}), WithRecoveryBackoff(0)}, opts...)
	e, err := NewEngine(primary, opts...)
	require.NoError(t, err)
	return e
}

func texts(entries []subtitle.Entry) []string {
	ret := make([]string, len(entries))
	for i, e := range entries {
		ret[i] = e.Text
	}
	return ret
}
