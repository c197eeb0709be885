package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/file"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/icron"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// initialLookback bounds how old files the first scan after start picks up.
const initialLookback = 7 * 24 * time.Hour

// Enqueuer is the part of jobs.Queue the scanner needs.
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool)
}

// InboxScanner periodically queues translation jobs for new SRT files in
// the inbox directory.
type InboxScanner struct {
	cfg   *config.Config
	queue Enqueuer
	cron  *cron.Cron
	group singleflight.Group

	mu       sync.Mutex
	lastScan time.Time
}

func NewInboxScanner(cfg *config.Config, queue Enqueuer, c *cron.Cron) *InboxScanner {
	return &InboxScanner{
		cfg:   cfg,
		queue: queue,
		cron:  c,
	}
}

// Schedule registers the scan with the cron runner.
func (s *InboxScanner) Schedule(ctx context.Context) error {
	if _, err := icron.Parse(s.cfg.Schedule.CronExpr); err != nil {
		return NewErrorWithCause(ErrConfig, "invalid cron expression", err).WithContext("expr", s.cfg.Schedule.CronExpr)
	}
	_, err := s.cron.AddFunc(s.cfg.Schedule.CronExpr, func() {
		if _, err := s.Scan(ctx); err != nil {
			log.Error("Inbox scan of %s failed: %v", s.cfg.Schedule.InboxDir, err)
		}
	})
	if err != nil {
		return NewErrorWithCause(ErrConfig, "failed to schedule inbox scan", err)
	}
	log.Info("Scanning %s on schedule %q", s.cfg.Schedule.InboxDir, s.cfg.Schedule.CronExpr)
	return nil
}

// TriggerInfo describes the scan schedule relative to now.
func (s *InboxScanner) TriggerInfo(now time.Time) (*icron.TriggerInfo, error) {
	return icron.GetTriggerInfo(s.cfg.Schedule.CronExpr, now)
}

// LastScan returns when the last scan finished.
func (s *InboxScanner) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// Scan queues every new untranslated SRT file and returns how many jobs
// it created. Concurrent calls share one scan.
func (s *InboxScanner) Scan(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		return s.scan(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *InboxScanner) scan(ctx context.Context) (int, error) {
	dir := s.cfg.Schedule.InboxDir
	if _, err := os.Stat(dir); err != nil {
		return 0, NewErrorWithCause(ErrFileNotFound, "inbox directory is not accessible", err).WithContext("dir", dir)
	}

	now := time.Now()
	since := s.startTime(now)
	log.Info("Searching %s for subtitles modified after %v", dir, since.Format(time.RFC3339))

	recent, err := file.FindRecent(dir, since, ".srt")
	if err != nil {
		return 0, fmt.Errorf("failed to find recent files: %w", err)
	}

	created := 0
	for _, path := range s.candidates(recent) {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		payload := jobs.JobPayload{
			SubtitleFile:   path,
			OutputFile:     OutputPath(path, s.cfg.Schedule.OutputDir, s.cfg.Translate.TargetLanguage),
			TargetLanguage: s.cfg.Translate.TargetLanguage.String(),
			Mode:           string(s.cfg.Translate.FormatMode()),
		}
		if _, err := os.Stat(payload.OutputFile); err == nil {
			continue
		}
		job, isNew := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    "cron",
			DedupeKey: payload.DedupeKey(),
			Payload:   payload,
		})
		if isNew {
			created++
			log.Info("Queued %s as %s", path, job.ID)
		}
	}

	s.mu.Lock()
	s.lastScan = now
	s.mu.Unlock()
	log.Info("Inbox scan queued %d new jobs", created)
	return created, nil
}

// candidates drops files that are already translations into the target
// language, e.g. "movie.de.srt".
func (s *InboxScanner) candidates(paths []string) []string {
	target := s.cfg.Translate.TargetLanguage.String()
	var ret []string
	for _, path := range paths {
		if file.IsLanguageVariant(path, target) {
			continue
		}
		ret = append(ret, path)
	}
	return ret
}

func (s *InboxScanner) startTime(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastScan.IsZero() {
		return now.Add(-initialLookback)
	}
	return s.lastScan
}
