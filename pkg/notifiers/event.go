package notifiers

import (
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
)

// EventStatusChanged is emitted whenever a publishing status reaches a terminal state.
const EventStatusChanged = "publishing.status_changed"

// Event represents the payload delivered to downstream sinks.
type Event struct {
	Type          string               `json:"type"`
	StatusID      string               `json:"status_id"`
	ArticleID     string               `json:"article_id"`
	Operation     domain.Operation     `json:"operation"`
	OverallStatus domain.OverallStatus `json:"overall_status"`
	Destinations  []DestinationOutcome `json:"destinations"`
	RetryCount    int                  `json:"retry_count"`
	Error         string               `json:"error,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// DestinationOutcome is the per-destination slice of an Event. Destination
// settings are never included.
type DestinationOutcome struct {
	ID     string                  `json:"id"`
	Name   string                  `json:"name"`
	Status domain.DestinationState `json:"status"`
	URL    string                  `json:"url,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

// NewStatusEvent snapshots a publishing status into an Event.
func NewStatusEvent(s *domain.PublishingStatus, at time.Time) Event {
	evt := Event{
		Type:          EventStatusChanged,
		StatusID:      s.ID,
		ArticleID:     s.ArticleID,
		Operation:     s.Operation,
		OverallStatus: s.OverallStatus,
		RetryCount:    s.RetryCount,
		Error:         s.Error,
		OccurredAt:    at.UTC(),
	}
	for _, d := range s.Destinations {
		evt.Destinations = append(evt.Destinations, DestinationOutcome{
			ID:     d.DestinationID,
			Name:   d.DestinationName,
			Status: d.Status,
			URL:    d.URL,
			Error:  d.Error,
		})
	}
	return evt
}

// attributes are the routing attributes attached to broker messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type":     e.Type,
		"article_id":     e.ArticleID,
		"overall_status": string(e.OverallStatus),
	}
}
