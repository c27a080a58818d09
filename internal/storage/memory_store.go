package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// MemoryStore keeps encoded records in maps. Useful for tests and single-process runs.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string][]byte
	jobs     map[string][]byte
	refs     map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string][]byte),
		jobs:     make(map[string][]byte),
		refs:     make(map[string]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveStatus(_ context.Context, s *domain.PublishingStatus) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("status id is required")
	}
	raw, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.statuses[s.ID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetStatus(_ context.Context, id string) (*domain.PublishingStatus, error) {
	m.mu.RLock()
	raw, ok := m.statuses[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("status %q: %w", id, domain.ErrNotFound)
	}
	return decodeStatus(raw)
}

func (m *MemoryStore) ListStatuses(_ context.Context, articleID string) ([]domain.PublishingStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.PublishingStatus
	for _, raw := range m.statuses {
		s, err := decodeStatus(raw)
		if err != nil {
			return nil, err
		}
		if s.ArticleID == articleID {
			out = append(out, *s)
		}
	}
	sortStatuses(out)
	return out, nil
}

func (m *MemoryStore) SaveJob(_ context.Context, j *domain.QueueJob) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	raw, err := encode(j)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.jobs[j.ID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*domain.QueueJob, error) {
	m.mu.RLock()
	raw, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("job %q: %w", id, domain.ErrNotFound)
	}
	return decodeJob(raw)
}

func (m *MemoryStore) DueJobs(_ context.Context, now time.Time, limit int) ([]domain.QueueJob, error) {
	jobs, err := m.allJobs()
	if err != nil {
		return nil, err
	}
	due := jobs[:0]
	for _, j := range jobs {
		if j.Due(now) {
			due = append(due, j)
		}
	}
	return sortDue(due, limit), nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeletePendingJobs(_ context.Context, articleID string) (int, error) {
	return m.deleteJobsWhere(func(j *domain.QueueJob) bool {
		return j.ArticleID == articleID && j.Status == domain.JobPending
	})
}

func (m *MemoryStore) PurgeCompleted(_ context.Context, before time.Time) (int, error) {
	return m.deleteJobsWhere(func(j *domain.QueueJob) bool {
		return purgeable(j, before)
	})
}

func (m *MemoryStore) RequeueStale(_ context.Context, leasedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for id, raw := range m.jobs {
		j, err := decodeJob(raw)
		if err != nil {
			return requeued, err
		}
		if !stale(j, leasedBefore) {
			continue
		}
		release(j)
		if raw, err = encode(j); err != nil {
			return requeued, err
		}
		m.jobs[id] = raw
		requeued++
	}
	return requeued, nil
}

func (m *MemoryStore) JobStats(_ context.Context) (domain.QueueStats, error) {
	var stats domain.QueueStats
	jobs, err := m.allJobs()
	if err != nil {
		return stats, err
	}
	for _, j := range jobs {
		countJob(&stats, j.Status)
	}
	return stats, nil
}

func (m *MemoryStore) allJobs() ([]domain.QueueJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.QueueJob, 0, len(m.jobs))
	for _, raw := range m.jobs {
		j, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *MemoryStore) deleteJobsWhere(match func(j *domain.QueueJob) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for id, raw := range m.jobs {
		j, err := decodeJob(raw)
		if err != nil {
			return deleted, err
		}
		if match(j) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) GetRef(_ context.Context, destination, articleID string) (string, bool, error) {
	m.mu.RLock()
	ref, ok := m.refs[refKey(destination, articleID)]
	m.mu.RUnlock()
	return ref, ok, nil
}

func (m *MemoryStore) PutRef(_ context.Context, destination, articleID, remoteID string) error {
	m.mu.Lock()
	m.refs[refKey(destination, articleID)] = remoteID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteRef(_ context.Context, destination, articleID string) error {
	m.mu.Lock()
	delete(m.refs, refKey(destination, articleID))
	m.mu.Unlock()
	return nil
}
