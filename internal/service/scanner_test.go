package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/icron"
)

type recordingQueue struct {
	mu   sync.Mutex
	seen map[string]bool
	reqs []jobs.EnqueueRequest
}

func (q *recordingQueue) Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen == nil {
		q.seen = map[string]bool{}
	}
	job := &jobs.TranslationJob{ID: req.DedupeKey, Source: req.Source, Payload: req.Payload}
	if q.seen[req.DedupeKey] {
		return job, false
	}
	q.seen[req.DedupeKey] = true
	q.reqs = append(q.reqs, req)
	return job, true
}

func (q *recordingQueue) files() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ret []string
	for _, r := range q.reqs {
		ret = append(ret, filepath.Base(r.Payload.SubtitleFile))
	}
	return ret
}

func TestInboxScanner_Scan(t *testing.T) {
	inbox := t.TempDir()
	writeSRT(t, inbox, "a.srt")
	writeSRT(t, inbox, filepath.Join("season1", "b.srt"))
	writeSRT(t, inbox, "a.de.srt") // a translation, never a source
	writeSRT(t, inbox, "done.srt")
	writeSRT(t, inbox, "done.de.srt")
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "notes.txt"), []byte("x"), 0o644))

	cfg := testConfig(t)
	cfg.Schedule.InboxDir = inbox
	queue := &recordingQueue{}
	scanner := NewInboxScanner(cfg, queue, icron.New())

	n, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a.srt", "b.srt"}, queue.files())
	assert.False(t, scanner.LastScan().IsZero())

	req := queue.reqs[0]
	assert.Equal(t, "cron", req.Source)
	assert.Equal(t, "de", req.Payload.TargetLanguage)
	assert.Equal(t, "plain", req.Payload.Mode)
	assert.Equal(t, filepath.Join(inbox, "a.de.srt"), req.Payload.OutputFile)
	assert.Equal(t, req.Payload.DedupeKey(), req.DedupeKey)

	// only files changed since the last scan are picked up again
	fresh := writeSRT(t, inbox, "c.srt")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(fresh, future, future))

	n, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a.srt", "b.srt", "c.srt"}, queue.files())
}

func TestInboxScanner_OutputDir(t *testing.T) {
	inbox, out := t.TempDir(), t.TempDir()
	writeSRT(t, inbox, "movie.srt")
	writeSRT(t, out, "skip.de.srt")
	writeSRT(t, inbox, "skip.srt")

	cfg := testConfig(t)
	cfg.Schedule.InboxDir = inbox
	cfg.Schedule.OutputDir = out
	queue := &recordingQueue{}

	n, err := NewInboxScanner(cfg, queue, icron.New()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, queue.reqs, 1)
	assert.Equal(t, filepath.Join(out, "movie.de.srt"), queue.reqs[0].Payload.OutputFile)
}

func TestInboxScanner_MissingInbox(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.InboxDir = filepath.Join(t.TempDir(), "missing")

	_, err := NewInboxScanner(cfg, &recordingQueue{}, icron.New()).Scan(context.Background())
	assert.True(t, IsErrorType(err, ErrFileNotFound))
}

func TestInboxScanner_Schedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.InboxDir = t.TempDir()
	c := icron.New()

	scanner := NewInboxScanner(cfg, &recordingQueue{}, c)
	require.NoError(t, scanner.Schedule(context.Background()))
	assert.Len(t, c.Entries(), 1)

	info, err := scanner.TriggerInfo(time.Now())
	require.NoError(t, err)
	assert.NotNil(t, info)

	cfg.Schedule.CronExpr = "not a cron"
	err = scanner.Schedule(context.Background())
	assert.True(t, IsErrorType(err, ErrConfig))
	assert.Len(t, c.Entries(), 1)
}
