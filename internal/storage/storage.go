package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// Package storage persists publishing statuses, queue jobs and adapter remote references.

// StatusStore is the durable record of publishing runs.
type StatusStore interface {
	SaveStatus(ctx context.Context, s *domain.PublishingStatus) error
	GetStatus(ctx context.Context, id string) (*domain.PublishingStatus, error)
	ListStatuses(ctx context.Context, articleID string) ([]domain.PublishingStatus, error)
}

// JobStore is the durable ordered job table consumed by the queue worker.
type JobStore interface {
	SaveJob(ctx context.Context, j *domain.QueueJob) error
	GetJob(ctx context.Context, id string) (*domain.QueueJob, error)
	DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.QueueJob, error)
	DeleteJob(ctx context.Context, id string) error
	DeletePendingJobs(ctx context.Context, articleID string) (int, error)
	PurgeCompleted(ctx context.Context, before time.Time) (int, error)
	// RequeueStale returns processing jobs leased before leasedBefore to pending.
	RequeueStale(ctx context.Context, leasedBefore time.Time) (int, error)
	JobStats(ctx context.Context) (domain.QueueStats, error)
}

// RefStore keeps the remote id a destination assigned to an article.
type RefStore interface {
	GetRef(ctx context.Context, destination, articleID string) (string, bool, error)
	PutRef(ctx context.Context, destination, articleID, remoteID string) error
	DeleteRef(ctx context.Context, destination, articleID string) error
}

// Store bundles every persistence concern behind one backend.
type Store interface {
	StatusStore
	JobStore
	RefStore
	Close() error
}

const (
	TypeBBolt    = "bbolt"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// Options selects and configures a concrete backend.
type Options struct {
	BBoltPath   string
	PostgresDSN string
}

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeBBolt:
		if strings.TrimSpace(opts.BBoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BBoltPath)
	case TypePostgres:
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// refDestination is the canonical destination key for remote references.
func refDestination(destination string) string {
	return strings.ToLower(strings.TrimSpace(destination))
}

func refKey(destination, articleID string) string {
	return refDestination(destination) + ":" + articleID
}

// sortDue orders jobs by priority desc, then createdAt asc, and truncates to limit.
func sortDue(jobs []domain.QueueJob, limit int) []domain.QueueJob {
	sort.SliceStable(jobs, func(i, j int) bool {
		ri, rj := jobs[i].Priority.Rank(), jobs[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

func countJob(stats *domain.QueueStats, status domain.JobStatus) {
	stats.Total++
	switch status {
	case domain.JobPending:
		stats.Pending++
	case domain.JobProcessing:
		stats.Processing++
	case domain.JobCompleted:
		stats.Completed++
	case domain.JobFailed:
		stats.Failed++
	}
}

// purgeable reports whether a completed job fell out of the retention window.
func purgeable(j *domain.QueueJob, before time.Time) bool {
	if j.Status != domain.JobCompleted {
		return false
	}
	ts := j.CreatedAt
	if j.CompletedAt != nil {
		ts = *j.CompletedAt
	}
	return ts.Before(before)
}

// stale reports whether a processing job's lease started before the cutoff.
func stale(j *domain.QueueJob, leasedBefore time.Time) bool {
	if j.Status != domain.JobProcessing {
		return false
	}
	return j.StartedAt == nil || j.StartedAt.Before(leasedBefore)
}

// release drops a lease without charging an attempt.
func release(j *domain.QueueJob) {
	j.Status = domain.JobPending
	j.StartedAt = nil
}

func encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

func decodeStatus(raw []byte) (*domain.PublishingStatus, error) {
	var s domain.PublishingStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &s, nil
}

func decodeJob(raw []byte) (*domain.QueueJob, error) {
	var j domain.QueueJob
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &j, nil
}

func sortStatuses(list []domain.PublishingStatus) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
