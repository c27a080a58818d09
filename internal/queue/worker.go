package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/internal/logger"
	"github.com/samvad-hq/samvad-publisher/internal/metrics"
	"github.com/samvad-hq/samvad-publisher/internal/storage"
)

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultCleanupInterval = time.Hour
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultBatchSize       = 10
	DefaultConcurrency     = 4
	DefaultLeaseTimeout    = 10 * time.Minute
)

var (
	// ErrAlreadyRunning is returned by Start on a worker that has not been stopped.
	ErrAlreadyRunning = errors.New("queue worker already running")
	// ErrTickInProgress is returned by Tick while a previous tick is still running.
	ErrTickInProgress = errors.New("queue tick already in progress")
)

// Executor runs one job and returns the resulting status.
type Executor interface {
	ExecuteJob(ctx context.Context, job *domain.QueueJob) (*domain.PublishingStatus, error)
}

// Options tune the worker. Zero values fall back to the defaults above.
type Options struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
	BatchSize       int
	Concurrency     int
	// LeaseTimeout is how long a processing job may stay leased before Start
	// hands it back to pending.
	LeaseTimeout time.Duration
	Now             func() time.Time
	Log             logger.Logger
}

// Worker polls the job table for due jobs and hands them to the executor.
// A job in the processing state is leased to the tick that picked it up.
type Worker struct {
	jobs storage.JobStore
	exec Executor
	log  logger.Logger
	now  func() time.Time

	poll        time.Duration
	cleanup     time.Duration
	retention   time.Duration
	batch       int
	concurrency int
	lease       time.Duration

	ticking sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker wires a worker over the job store and executor.
func NewWorker(jobs storage.JobStore, exec Executor, opts Options) (*Worker, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job store must not be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("executor must not be nil")
	}

	w := &Worker{
		jobs:        jobs,
		exec:        exec,
		log:         logger.Ensure(opts.Log),
		now:         opts.Now,
		poll:        opts.PollInterval,
		cleanup:     opts.CleanupInterval,
		retention:   opts.Retention,
		batch:       opts.BatchSize,
		concurrency: opts.Concurrency,
		lease:       opts.LeaseTimeout,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.poll <= 0 {
		w.poll = DefaultPollInterval
	}
	if w.cleanup <= 0 {
		w.cleanup = DefaultCleanupInterval
	}
	if w.retention <= 0 {
		w.retention = DefaultRetention
	}
	if w.batch <= 0 {
		w.batch = DefaultBatchSize
	}
	if w.concurrency <= 0 {
		w.concurrency = DefaultConcurrency
	}
	if w.lease <= 0 {
		w.lease = DefaultLeaseTimeout
	}
	return w, nil
}

// Start releases stale leases, then launches the poll and sweep loops. They
// stop when ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyRunning
	}

	if _, err := w.RequeueStale(ctx); err != nil {
		w.log.ErrorObj("queue lease recovery failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	w.log.InfoObj("queue worker starting", "queue_state", map[string]any{
		"poll_interval":    w.poll.String(),
		"cleanup_interval": w.cleanup.String(),
		"retention":        w.retention.String(),
		"batch_size":       w.batch,
		"concurrency":      w.concurrency,
		"lease_timeout":    w.lease.String(),
	})
	go w.loop(runCtx, w.done)
	return nil
}

// Stop cancels the loops and waits up to timeout for the in-flight tick to
// return. Jobs already leased run to completion; unstarted ones stay pending.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		w.log.InfoObj("queue worker stopped", "queue_state", "stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue worker did not stop within %s", timeout)
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	poll := time.NewTicker(w.poll)
	defer poll.Stop()
	sweep := time.NewTicker(w.cleanup)
	defer sweep.Stop()

	w.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.InfoObj("queue loop exiting", "reason", ctx.Err())
			return
		case <-poll.C:
			w.runTick(ctx)
		case <-sweep.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.log.ErrorObj("queue sweep failed", "error", err)
			}
		}
	}
}

func (w *Worker) runTick(ctx context.Context) {
	_, err := w.Tick(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		w.log.DebugObj("queue tick skipped", "reason", err.Error())
	default:
		w.log.ErrorObj("queue tick failed", "error", err)
	}
}

// Tick processes one batch of due jobs and returns how many were picked up.
// Leased jobs run detached from ctx cancellation so a shutdown never charges
// them a failed attempt; adapter timeouts bound them instead.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	if !w.ticking.TryLock() {
		metrics.IncQueueTickSkipped()
		return 0, ErrTickInProgress
	}
	defer w.ticking.Unlock()

	start := time.Now()
	defer func() { metrics.ObserveQueueTick(time.Since(start)) }()

	jobs, err := w.jobs.DueJobs(ctx, w.now(), w.batch)
	if err != nil {
		return 0, fmt.Errorf("load due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	runCtx := context.WithoutCancel(ctx)
	var (
		g       errgroup.Group
		mu      sync.Mutex
		started int
	)
	g.SetLimit(w.concurrency)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			mu.Lock()
			started++
			mu.Unlock()
			return w.process(runCtx, job)
		})
	}
	err = g.Wait()

	w.refreshGauges(runCtx)
	return started, err
}

// process leases one job, executes it and records the outcome.
func (w *Worker) process(ctx context.Context, job *domain.QueueJob) error {
	started := w.now().UTC()
	job.Status = domain.JobProcessing
	job.StartedAt = &started
	if err := w.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("lease job %s: %w", job.ID, err)
	}
	metrics.IncQueueTransition("processing")

	status, execErr := w.exec.ExecuteJob(ctx, job)
	now := w.now().UTC()

	switch {
	case errors.Is(execErr, domain.ErrInvalidState):
		job.Error = execErr.Error()
		job.Status = domain.JobFailed
		metrics.IncQueueTransition("failed")
		w.log.ErrorObj("queue job refused by executor", "queue_job", jobFields(job))

	case execErr == nil && status != nil && status.OverallStatus == domain.StatusCancelled:
		if err := w.jobs.DeleteJob(ctx, job.ID); err != nil {
			return fmt.Errorf("delete cancelled job %s: %w", job.ID, err)
		}
		metrics.IncQueueTransition("cancelled")
		w.log.InfoObj("queue job dropped; status cancelled", "queue_job", jobFields(job))
		return nil

	case execErr == nil && status != nil && status.OverallStatus == domain.StatusPublished:
		job.Status = domain.JobCompleted
		job.CompletedAt = &now
		job.Error = ""
		metrics.IncQueueTransition("completed")
		w.log.InfoObj("queue job completed", "queue_job", jobFields(job))

	default:
		job.Error = failureMessage(status, execErr)
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			next := now.Add(Backoff(job.RetryCount))
			job.Status = domain.JobPending
			job.ScheduledFor = &next
			metrics.IncQueueTransition("retried")
			w.log.WarnObj("queue job failed; retry scheduled", "queue_job", jobFields(job))
		} else {
			job.Status = domain.JobFailed
			metrics.IncQueueTransition("failed")
			w.log.ErrorObj("queue job failed permanently", "queue_job", jobFields(job))
		}
	}

	if err := w.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Backoff is the delay before attempt n of a failed job: 2^n minutes.
func Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(math.Pow(2, float64(n))) * time.Minute
}

func failureMessage(status *domain.PublishingStatus, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case status != nil && status.Error != "":
		return status.Error
	case status != nil:
		return fmt.Sprintf("publishing ended %s", status.OverallStatus)
	default:
		return "publishing returned no status"
	}
}

// Sweep removes completed jobs that fell out of the retention window.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-w.retention)
	n, err := w.jobs.PurgeCompleted(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge completed jobs: %w", err)
	}
	metrics.AddQueuePurged(n)
	if n > 0 {
		w.log.InfoObj("completed jobs purged", "queue_sweep", map[string]any{
			"purged": n,
			"before": cutoff,
		})
	}
	w.refreshGauges(ctx)
	return n, nil
}

// RequeueStale hands processing jobs whose lease outlived the lease timeout
// back to pending. The attempt is not charged.
func (w *Worker) RequeueStale(ctx context.Context) (int, error) {
	cutoff := w.now().UTC().Add(-w.lease)
	n, err := w.jobs.RequeueStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	for i := 0; i < n; i++ {
		metrics.IncQueueTransition("requeued")
	}
	if n > 0 {
		w.log.WarnObj("stale queue leases released", "queue_lease", map[string]any{
			"requeued":      n,
			"leased_before": cutoff,
		})
	}
	return n, nil
}

// Stats returns the job table aggregate.
func (w *Worker) Stats(ctx context.Context) (domain.QueueStats, error) {
	return w.jobs.JobStats(ctx)
}

func (w *Worker) refreshGauges(ctx context.Context) {
	stats, err := w.jobs.JobStats(ctx)
	if err != nil {
		w.log.WarnObj("queue stats unavailable", "error", err)
		return
	}
	metrics.SetQueueJobs(string(domain.JobPending), stats.Pending)
	metrics.SetQueueJobs(string(domain.JobProcessing), stats.Processing)
	metrics.SetQueueJobs(string(domain.JobCompleted), stats.Completed)
	metrics.SetQueueJobs(string(domain.JobFailed), stats.Failed)
}

func jobFields(job *domain.QueueJob) map[string]any {
	fields := map[string]any{
		"job_id":      job.ID,
		"article_id":  job.ArticleID,
		"status_id":   job.StatusID,
		"status":      job.Status,
		"retry_count": job.RetryCount,
		"max_retries": job.MaxRetries,
	}
	if job.Error != "" {
		fields["error"] = job.Error
	}
	if job.ScheduledFor != nil {
		fields["scheduled_for"] = job.ScheduledFor
	}
	return fields
}
