package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/subtitle-batch-translator/internal/persistence"
	"github.com/MimeLyc/subtitle-batch-translator/internal/subtitle"
)

type checkpointBackend interface {
	LoadBatchCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
	SaveBatchCheckpoint(ctx context.Context, jobID string, batchStart int, batchEnd int, entries []subtitle.Entry) error
}

// persistentCheckpointStore serves one job's checkpoints from memory and
// writes new ones through to the database.
type persistentCheckpointStore struct {
	store checkpointBackend
	jobID string

	mu     sync.RWMutex
	cached map[string][]subtitle.Entry
}

func newPersistentCheckpointStore(ctx context.Context, store checkpointBackend, jobID string) (*persistentCheckpointStore, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job id is empty")
	}

	checkpoints, err := store.LoadBatchCheckpoints(ctx, jobID)
	if err != nil {
		return nil, err
	}

	cached := make(map[string][]subtitle.Entry, len(checkpoints))
	for _, cp := range checkpoints {
		cached[batchKey(cp.BatchStart, cp.BatchEnd)] = cp.Entries
	}

	return &persistentCheckpointStore{
		store:  store,
		jobID:  jobID,
		cached: cached,
	}, nil
}

func (s *persistentCheckpointStore) Load(start, end int) ([]subtitle.Entry, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret, ok := s.cached[batchKey(start, end)]
	if !ok {
		return nil, false
	}
	return append([]subtitle.Entry(nil), ret...), true
}

func (s *persistentCheckpointStore) Save(ctx context.Context, start, end int, entries []subtitle.Entry) error {
	if s == nil {
		return nil
	}
	copyData := append([]subtitle.Entry(nil), entries...)
	if err := s.store.SaveBatchCheckpoint(ctx, s.jobID, start, end, copyData); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached[batchKey(start, end)] = copyData
	s.mu.Unlock()
	return nil
}

// Len returns the number of checkpointed batches.
func (s *persistentCheckpointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cached)
}

func batchKey(start, end int) string {
	return fmt.Sprintf("%d:%d", start, end)
}
