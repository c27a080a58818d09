package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/internal/logger"
	"github.com/samvad-hq/samvad-publisher/internal/storage"
	"github.com/samvad-hq/samvad-publisher/pkg/adapters"
	"github.com/samvad-hq/samvad-publisher/pkg/content"
	"github.com/samvad-hq/samvad-publisher/pkg/notifiers"
)

const (
	DefaultTimeout = 30 * time.Second

	articlePublished   = "published"
	articleUnpublished = "unpublished"
)

// Notifier receives an event for every terminal status transition.
type Notifier interface {
	Notify(ctx context.Context, evt notifiers.Event) (int, error)
}

// Deps are the collaborators an Orchestrator is built from.
type Deps struct {
	Content  content.Store
	Statuses storage.StatusStore
	Jobs     storage.JobStore
	// Adapters is keyed by destination name; keys are matched case-insensitively.
	Adapters map[string]adapters.Adapter
	Notifier Notifier
	Log      logger.Logger
}

// Options tune the orchestrator. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Now        func() time.Time
	NewID      func() string
}

// Orchestrator fans publishing operations out to destination adapters and
// records the outcome as a PublishingStatus.
type Orchestrator struct {
	content    content.Store
	statuses   storage.StatusStore
	jobs       storage.JobStore
	adapters   map[string]adapters.Adapter
	notifier   Notifier
	log        logger.Logger
	timeout    time.Duration
	maxRetries int
	now        func() time.Time
	newID      func() string
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Content == nil {
		return nil, fmt.Errorf("content store must not be nil")
	}
	if deps.Statuses == nil {
		return nil, fmt.Errorf("status store must not be nil")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job store must not be nil")
	}

	o := &Orchestrator{
		content:    deps.Content,
		statuses:   deps.Statuses,
		jobs:       deps.Jobs,
		adapters:   make(map[string]adapters.Adapter, len(deps.Adapters)),
		notifier:   deps.Notifier,
		log:        logger.Ensure(deps.Log),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	for name, a := range deps.Adapters {
		if a == nil {
			continue
		}
		o.adapters[normalize(name)] = a
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.maxRetries <= 0 {
		o.maxRetries = domain.DefaultMaxRetries
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// AdapterMap keys adapters by their Name.
func AdapterMap(list []adapters.Adapter) map[string]adapters.Adapter {
	out := make(map[string]adapters.Adapter, len(list))
	for _, a := range list {
		if a != nil {
			out[normalize(a.Name())] = a
		}
	}
	return out
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (o *Orchestrator) adapter(name string) (adapters.Adapter, bool) {
	a, ok := o.adapters[normalize(name)]
	return a, ok
}

// Destinations lists the registered destination names in sorted order.
func (o *Orchestrator) Destinations() []string {
	out := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Publish fans the article out to the requested destinations.
func (o *Orchestrator) Publish(ctx context.Context, articleID string, req domain.PublishRequest) (*domain.PublishingStatus, error) {
	return o.start(ctx, articleID, req, domain.OperationPublish)
}

// Update pushes the current article revision to destinations that support it.
func (o *Orchestrator) Update(ctx context.Context, articleID string, req domain.PublishRequest) (*domain.PublishingStatus, error) {
	return o.start(ctx, articleID, req, domain.OperationUpdate)
}

// Unpublish removes the article from destinations that support deletion.
func (o *Orchestrator) Unpublish(ctx context.Context, articleID string, req domain.PublishRequest) (*domain.PublishingStatus, error) {
	return o.start(ctx, articleID, req, domain.OperationDelete)
}

func (o *Orchestrator) start(ctx context.Context, articleID string, req domain.PublishRequest, op domain.Operation) (*domain.PublishingStatus, error) {
	article, err := o.article(ctx, articleID)
	if err != nil {
		return nil, err
	}

	specs := o.resolve(req)
	if len(specs) == 0 {
		o.log.InfoObj("no enabled destinations; nothing to do", "publish_request", map[string]any{
			"article_id": articleID,
			"operation":  op,
		})
		return o.draft(articleID, op, req.Options), nil
	}

	status := o.newStatus(articleID, op, specs, req.Options, domain.StatusPublishing)
	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}
	return o.run(ctx, status, article, false)
}

// Schedule records a scheduled status and a queue job snapshot for later execution.
// A past when is accepted and becomes due on the next worker tick.
func (o *Orchestrator) Schedule(ctx context.Context, articleID string, req domain.PublishRequest, when time.Time) (*domain.PublishingStatus, error) {
	if _, err := o.article(ctx, articleID); err != nil {
		return nil, err
	}

	specs := o.resolve(req)
	if len(specs) == 0 {
		return o.draft(articleID, domain.OperationPublish, req.Options), nil
	}

	when = when.UTC()
	status := o.newStatus(articleID, domain.OperationPublish, specs, req.Options, domain.StatusScheduled)
	status.ScheduledFor = &when
	status.Options.ScheduledFor = &when

	maxRetries := req.Options.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.maxRetries
	}
	priority := req.Options.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	scheduled := when
	job := &domain.QueueJob{
		ID:           o.newID(),
		ArticleID:    articleID,
		StatusID:     status.ID,
		Destinations: domain.CopySpecs(specs),
		Options:      status.Options,
		Status:       domain.JobPending,
		Priority:     priority,
		ScheduledFor: &scheduled,
		CreatedAt:    o.now().UTC(),
		MaxRetries:   maxRetries,
	}

	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}
	if err := o.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	o.log.InfoObj("publish scheduled", "schedule_meta", map[string]any{
		"status_id":     status.ID,
		"job_id":        job.ID,
		"article_id":    articleID,
		"scheduled_for": when,
		"destinations":  len(specs),
	})
	return status, nil
}

// Cancel moves a non-terminal status to cancelled and drops the article's pending jobs.
// Cancelling a terminal status is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, statusID string) error {
	status, err := o.statuses.GetStatus(ctx, statusID)
	if err != nil {
		return err
	}
	if status.OverallStatus.Terminal() {
		return nil
	}

	status.OverallStatus = domain.StatusCancelled
	status.UpdatedAt = o.now().UTC()
	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("save status: %w", err)
	}

	removed, err := o.jobs.DeletePendingJobs(ctx, status.ArticleID)
	if err != nil {
		return fmt.Errorf("delete pending jobs: %w", err)
	}

	o.log.InfoObj("publishing cancelled", "cancel_meta", map[string]any{
		"status_id":    status.ID,
		"article_id":   status.ArticleID,
		"jobs_removed": removed,
	})
	o.notify(ctx, status)
	return nil
}

// Retry re-runs every recorded destination of a failed status.
func (o *Orchestrator) Retry(ctx context.Context, statusID string) (*domain.PublishingStatus, error) {
	status, err := o.statuses.GetStatus(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if status.OverallStatus != domain.StatusFailed {
		return nil, fmt.Errorf("retry status %s in state %s: %w", statusID, status.OverallStatus, domain.ErrInvalidState)
	}

	article, err := o.article(ctx, status.ArticleID)
	if err != nil {
		return nil, err
	}

	status.RetryCount++
	o.reset(status, status.Specs())
	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}
	return o.run(ctx, status, article, false)
}

// ExecuteJob runs a queue job against its linked status, creating one when
// the link is missing. A cancelled or published status is returned untouched.
// A failed status is only re-run through Retry, so ExecuteJob refuses it with
// domain.ErrInvalidState. While the job has retries left a failed run leaves
// the status scheduled.
func (o *Orchestrator) ExecuteJob(ctx context.Context, job *domain.QueueJob) (*domain.PublishingStatus, error) {
	if job == nil {
		return nil, fmt.Errorf("job must not be nil")
	}

	status, err := o.linkedStatus(ctx, job)
	if err != nil {
		return nil, err
	}
	if status != nil {
		switch status.OverallStatus {
		case domain.StatusCancelled, domain.StatusPublished:
			return status, nil
		case domain.StatusFailed:
			return status, fmt.Errorf("job %s: status %s is %s: %w", job.ID, status.ID, status.OverallStatus, domain.ErrInvalidState)
		}
	}

	article, err := o.article(ctx, job.ArticleID)
	if err != nil {
		return nil, err
	}

	specs := enabledSpecs(job.Destinations)
	if status == nil {
		status = o.newStatus(job.ArticleID, domain.OperationPublish, specs, job.Options, domain.StatusPublishing)
		job.StatusID = status.ID
	} else {
		// A Cancel may have landed since the first read.
		current, err := o.statuses.GetStatus(ctx, status.ID)
		if err != nil {
			return nil, fmt.Errorf("reload status: %w", err)
		}
		if current.OverallStatus == domain.StatusCancelled {
			return current, nil
		}
		status = current
		o.reset(status, specs)
	}
	status.RetryCount = job.RetryCount
	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}
	return o.run(ctx, status, article, job.RetryCount < job.MaxRetries)
}

// linkedStatus loads the job's status. A dangling link yields nil.
func (o *Orchestrator) linkedStatus(ctx context.Context, job *domain.QueueJob) (*domain.PublishingStatus, error) {
	if job.StatusID == "" {
		return nil, nil
	}
	s, err := o.statuses.GetStatus(ctx, job.StatusID)
	switch {
	case err == nil:
		return s, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*domain.PublishingStatus, error) {
	return o.statuses.GetStatus(ctx, id)
}

// ListStatuses returns every run recorded for the article, oldest first.
func (o *Orchestrator) ListStatuses(ctx context.Context, articleID string) ([]domain.PublishingStatus, error) {
	return o.statuses.ListStatuses(ctx, articleID)
}

// GetAnalytics delegates to the named destination's adapter.
func (o *Orchestrator) GetAnalytics(ctx context.Context, articleID, destinationName string) (domain.AnalyticsSnapshot, error) {
	a, ok := o.adapter(destinationName)
	if !ok {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("destination %q: %w", destinationName, domain.ErrNotFound)
	}
	return a.Analytics(ctx, articleID)
}

func (o *Orchestrator) GetStats(ctx context.Context) (domain.QueueStats, error) {
	return o.jobs.JobStats(ctx)
}

// DestinationValidation is the validation outcome for one requested destination.
type DestinationValidation struct {
	DestinationID   string                    `json:"destination_id"`
	DestinationName string                    `json:"destination_name"`
	Result          adapters.ValidationResult `json:"result"`
}

// ValidateDestinations checks every requested destination's settings without
// network I/O. The error wraps domain.ErrValidationFailed when any is invalid.
func (o *Orchestrator) ValidateDestinations(req domain.PublishRequest) ([]DestinationValidation, error) {
	out := make([]DestinationValidation, 0, len(req.Destinations))
	invalid := 0
	for _, spec := range req.Destinations {
		v := DestinationValidation{DestinationID: specID(spec), DestinationName: spec.DestinationName}
		if a, ok := o.adapter(spec.DestinationName); ok {
			v.Result = a.Validate(domain.CopySettings(spec.Settings))
		} else {
			v.Result = adapters.ValidationResult{Errors: []string{fmt.Sprintf("no adapter registered for %q", spec.DestinationName)}}
		}
		if !v.Result.IsValid {
			invalid++
		}
		out = append(out, v)
	}
	if invalid > 0 {
		return out, fmt.Errorf("%d of %d destinations invalid: %w", invalid, len(out), domain.ErrValidationFailed)
	}
	return out, nil
}

func (o *Orchestrator) article(ctx context.Context, id string) (*domain.Article, error) {
	article, err := o.content.GetArticle(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return article, nil
}

// resolve keeps enabled destinations and appends auto-share destinations
// for registered adapters not already requested.
func (o *Orchestrator) resolve(req domain.PublishRequest) []domain.DestinationSpec {
	specs := enabledSpecs(req.Destinations)

	present := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		present[normalize(s.DestinationName)] = struct{}{}
	}
	names := make([]string, 0, len(req.Options.AutoShare))
	for name, on := range req.Options.AutoShare {
		if on {
			names = append(names, normalize(name))
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, dup := present[name]; dup {
			continue
		}
		if _, ok := o.adapter(name); !ok {
			continue
		}
		present[name] = struct{}{}
		specs = append(specs, domain.DestinationSpec{ID: name, DestinationName: name, Enabled: true})
	}
	return specs
}

func enabledSpecs(in []domain.DestinationSpec) []domain.DestinationSpec {
	out := make([]domain.DestinationSpec, 0, len(in))
	for _, s := range domain.CopySpecs(in) {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func specID(s domain.DestinationSpec) string {
	if s.ID != "" {
		return s.ID
	}
	return s.DestinationName
}

func (o *Orchestrator) draft(articleID string, op domain.Operation, opts domain.PublishOptions) *domain.PublishingStatus {
	now := o.now().UTC()
	return &domain.PublishingStatus{
		ID:            o.newID(),
		ArticleID:     articleID,
		OverallStatus: domain.StatusDraft,
		Operation:     op,
		Destinations:  []domain.DestinationResult{},
		Options:       opts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (o *Orchestrator) newStatus(articleID string, op domain.Operation, specs []domain.DestinationSpec, opts domain.PublishOptions, overall domain.OverallStatus) *domain.PublishingStatus {
	now := o.now().UTC()
	return &domain.PublishingStatus{
		ID:            o.newID(),
		ArticleID:     articleID,
		OverallStatus: overall,
		Operation:     op,
		Destinations:  pendingResults(specs),
		Options:       opts,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledFor:  opts.ScheduledFor,
	}
}

// reset returns a status to publishing with fresh pending results.
func (o *Orchestrator) reset(status *domain.PublishingStatus, specs []domain.DestinationSpec) {
	status.OverallStatus = domain.StatusPublishing
	status.Error = ""
	status.Destinations = pendingResults(specs)
	status.UpdatedAt = o.now().UTC()
}

func pendingResults(specs []domain.DestinationSpec) []domain.DestinationResult {
	out := make([]domain.DestinationResult, 0, len(specs))
	for _, s := range specs {
		out = append(out, domain.DestinationResult{
			DestinationID:   specID(s),
			DestinationName: s.DestinationName,
			Enabled:         s.Enabled,
			Status:          domain.DestinationPending,
			Settings:        domain.CopySettings(s.Settings),
		})
	}
	return out
}
