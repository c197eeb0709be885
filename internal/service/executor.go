package service

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/subtitle-batch-translator/internal/format"
	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/internal/translator"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// progressSink receives job progress; *jobs.Queue implements it.
type progressSink interface {
	UpdateProgress(id string, p jobs.JobProgress) bool
	SetDegraded(id string, n int)
}

// jobDataCleaner drops a finished job's checkpoints.
type jobDataCleaner interface {
	DeleteJobData(ctx context.Context, jobID string) error
}

// NewExecutor returns the queue executor that runs a job through the
// runner, forwarding progress to sink. Checkpoints of successful jobs are
// removed through cleaner when it is not nil.
func NewExecutor(r *Runner, sink progressSink, cleaner jobDataCleaner) jobs.Executor {
	return func(ctx context.Context, job *jobs.TranslationJob) error {
		req, err := fileRequest(job)
		if err != nil {
			return err
		}
		req.OnProgress = func(p translator.Progress) {
			sink.UpdateProgress(job.ID, jobs.JobProgress{
				Sequence:  p.Sequence,
				Completed: p.Completed,
				Total:     p.Total,
				Partial:   p.Partial,
			})
		}

		report, err := r.TranslateFile(ctx, req)
		if err != nil {
			LogError(err)
			return err
		}
		sink.SetDegraded(job.ID, report.Degraded)

		if cleaner != nil {
			if err := cleaner.DeleteJobData(ctx, job.ID); err != nil {
				log.Warn("Job %s: failed to drop checkpoints: %v", job.ID, err)
			}
		}
		return nil
	}
}

func fileRequest(job *jobs.TranslationJob) (FileRequest, error) {
	req := FileRequest{
		InputPath:    job.Payload.SubtitleFile,
		OutputPath:   job.Payload.OutputFile,
		Instructions: job.Payload.Instructions,
		JobID:        job.ID,
	}
	if job.Payload.TargetLanguage != "" {
		tag, err := language.Parse(job.Payload.TargetLanguage)
		if err != nil {
			return req, NewErrorWithCause(ErrValidation, fmt.Sprintf("invalid target language %q", job.Payload.TargetLanguage), err)
		}
		req.TargetLanguage = tag
	}
	if job.Payload.Mode != "" {
		mode, err := format.ParseMode(job.Payload.Mode)
		if err != nil {
			return req, NewErrorWithCause(ErrValidation, "invalid format mode", err)
		}
		req.Mode = mode
	}
	return req, nil
}
