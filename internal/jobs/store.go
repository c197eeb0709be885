package jobs

import "context"

// Store persists jobs so a restarted queue can resume them. A queue built
// with a nil Store keeps its jobs in memory only.
type Store interface {
	LoadJobs(ctx context.Context) ([]*TranslationJob, error)
	UpsertJob(ctx context.Context, job *TranslationJob) error

	// DeleteJob forgets a pruned job. DeleteJobData drops the batch
	// checkpoints written while it ran.
	DeleteJob(ctx context.Context, jobID string) error
	DeleteJobData(ctx context.Context, jobID string) error
}
