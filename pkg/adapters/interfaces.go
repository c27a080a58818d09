package adapters

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// Adapter is the capability contract every publishing destination satisfies.
// Update and Delete may fail with an error matching domain.ErrUnsupportedOperation.
type Adapter interface {
	Name() string
	Type() string
	Publish(ctx context.Context, post Post) (PublishResult, error)
	Update(ctx context.Context, post Post) (UpdateResult, error)
	Delete(ctx context.Context, articleID string) error
	Analytics(ctx context.Context, articleID string) (domain.AnalyticsSnapshot, error)
	Validate(settings map[string]any) ValidationResult
}

type PublishResult struct {
	URL         string
	PublishedAt time.Time
	RemoteID    string
}

type UpdateResult struct {
	URL       string
	UpdatedAt time.Time
}

type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// RefStore persists the remote id a destination assigned to an article so
// repeated publishes update instead of creating duplicates.
type RefStore interface {
	GetRef(ctx context.Context, destination, articleID string) (string, bool, error)
	PutRef(ctx context.Context, destination, articleID, remoteID string) error
	DeleteRef(ctx context.Context, destination, articleID string) error
}

func validation(errs []string) ValidationResult {
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
