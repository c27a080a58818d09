package domain

import "time"

// Domain contains core models shared by the orchestrator, the queue and the adapters.

// Article is the canonical content item read from the content store.
type Article struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	ContentFormat string     `json:"content_format"`
	Excerpt       string     `json:"excerpt"`
	Slug          string     `json:"slug"`
	Tags          []string   `json:"tags"`
	CoverImage    string     `json:"cover_image"`
	Author        Author     `json:"author"`
	SEO           SEO        `json:"seo"`
	Status        string     `json:"status"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
}

type Author struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileURL string `json:"profile_url"`
}

type SEO struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	CanonicalURL    string   `json:"canonical_url"`
	Keywords        []string `json:"keywords"`
}

const (
	ContentFormatMarkdown = "markdown"
	ContentFormatHTML     = "html"
)

// Overall statuses of a PublishingStatus.
type OverallStatus string

const (
	StatusDraft      OverallStatus = "draft"
	StatusScheduled  OverallStatus = "scheduled"
	StatusPublishing OverallStatus = "publishing"
	StatusPublished  OverallStatus = "published"
	StatusFailed     OverallStatus = "failed"
	StatusCancelled  OverallStatus = "cancelled"
)

// Terminal reports whether no further automatic transition is expected.
func (s OverallStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

// DestinationState is the status of one destination within a publishing run.
type DestinationState string

const (
	DestinationPending    DestinationState = "pending"
	DestinationPublishing DestinationState = "publishing"
	DestinationPublished  DestinationState = "published"
	DestinationFailed     DestinationState = "failed"
)

// Operation is the fan-out operation applied to each destination.
type Operation string

const (
	OperationPublish Operation = "publish"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities; unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// DestinationSpec is one requested destination together with its settings.
type DestinationSpec struct {
	ID              string         `json:"id"`
	DestinationName string         `json:"destination_name"`
	Enabled         bool           `json:"enabled"`
	Settings        map[string]any `json:"settings,omitempty"`
}

// SEOOverrides replace the article's SEO fields for one request when non-empty.
type SEOOverrides struct {
	MetaTitle       string   `json:"meta_title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	CanonicalURL    string   `json:"canonical_url,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

// PublishOptions are the cross-cutting options of a publish request.
type PublishOptions struct {
	Tags         []string        `json:"tags,omitempty"`
	SEO          *SEOOverrides   `json:"seo,omitempty"`
	AutoShare    map[string]bool `json:"auto_share,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	Priority     Priority        `json:"priority,omitempty"`
	MaxRetries   int             `json:"max_retries,omitempty"`
}

// PublishRequest is the argument shape for publish and schedule calls.
type PublishRequest struct {
	Destinations []DestinationSpec `json:"destinations"`
	Options      PublishOptions    `json:"options"`
}

// DestinationResult is one destination's outcome within a PublishingStatus.
type DestinationResult struct {
	DestinationID   string           `json:"destination_id"`
	DestinationName string           `json:"destination_name"`
	Enabled         bool             `json:"enabled"`
	Status          DestinationState `json:"status"`
	URL             string           `json:"url,omitempty"`
	PublishedAt     *time.Time       `json:"published_at,omitempty"`
	Error           string           `json:"error,omitempty"`
	Settings        map[string]any   `json:"settings,omitempty"`
}

// PublishingStatus is the durable record of one orchestration run.
type PublishingStatus struct {
	ID            string              `json:"id"`
	ArticleID     string              `json:"article_id"`
	OverallStatus OverallStatus       `json:"overall_status"`
	Operation     Operation           `json:"operation"`
	Destinations  []DestinationResult `json:"destinations"`
	Options       PublishOptions      `json:"options"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	PublishedAt   *time.Time          `json:"published_at,omitempty"`
	ScheduledFor  *time.Time          `json:"scheduled_for,omitempty"`
	Error         string              `json:"error,omitempty"`
	RetryCount    int                 `json:"retry_count"`
}

// Aggregate derives the overall status from the enabled destination results.
// It returns publishing while any enabled destination has not resolved yet.
func (s *PublishingStatus) Aggregate() OverallStatus {
	enabled := 0
	published := 0
	pending := false
	for _, d := range s.Destinations {
		if !d.Enabled {
			continue
		}
		enabled++
		switch d.Status {
		case DestinationFailed:
			return StatusFailed
		case DestinationPublished:
			published++
		default:
			pending = true
		}
	}
	if pending {
		return StatusPublishing
	}
	if enabled == 0 {
		return StatusDraft
	}
	return StatusPublished
}

// Specs rebuilds the destination specs recorded in the status, used for replay.
func (s *PublishingStatus) Specs() []DestinationSpec {
	out := make([]DestinationSpec, 0, len(s.Destinations))
	for _, d := range s.Destinations {
		out = append(out, DestinationSpec{
			ID:              d.DestinationID,
			DestinationName: d.DestinationName,
			Enabled:         d.Enabled,
			Settings:        CopySettings(d.Settings),
		})
	}
	return out
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DefaultMaxRetries is applied to jobs created without an explicit ceiling.
const DefaultMaxRetries = 3

// QueueJob is a durable, schedulable unit of publishing work.
type QueueJob struct {
	ID           string            `json:"id"`
	ArticleID    string            `json:"article_id"`
	StatusID     string            `json:"status_id,omitempty"`
	Destinations []DestinationSpec `json:"destinations"`
	Options      PublishOptions    `json:"options"`
	Status       JobStatus         `json:"status"`
	Priority     Priority          `json:"priority"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Error        string            `json:"error,omitempty"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
}

// Due reports whether a pending job may be picked up at now.
func (j *QueueJob) Due(now time.Time) bool {
	if j.Status != JobPending {
		return false
	}
	return j.ScheduledFor == nil || !j.ScheduledFor.After(now)
}

// QueueStats is a read-only aggregate over the job table.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// AnalyticsSnapshot is the normalized analytics shape every destination reports.
type AnalyticsSnapshot struct {
	Views      int64            `json:"views"`
	Likes      int64            `json:"likes"`
	Shares     int64            `json:"shares"`
	Comments   int64            `json:"comments"`
	Engagement float64          `json:"engagement"`
	Metrics    AnalyticsMetrics `json:"metrics"`
}

type AnalyticsMetrics struct {
	ClickThroughRate float64 `json:"click_through_rate"`
	BounceRate       float64 `json:"bounce_rate"`
	TimeOnPage       float64 `json:"time_on_page"`
	ConversionRate   float64 `json:"conversion_rate"`
}

// CopySettings returns a shallow copy so snapshots never alias caller maps.
func CopySettings(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CopySpecs snapshots a destination list.
func CopySpecs(in []DestinationSpec) []DestinationSpec {
	if in == nil {
		return nil
	}
	out := make([]DestinationSpec, len(in))
	for i, s := range in {
		s.Settings = CopySettings(s.Settings)
		out[i] = s
	}
	return out
}
