package notifiers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/internal/logger"
)

type stubNotifier struct {
	id     string
	typ    string
	err    error
	calls  int
	closed bool
}

func (s *stubNotifier) ID() string   { return s.id }
func (s *stubNotifier) Type() string { return s.typ }
func (s *stubNotifier) Notify(context.Context, Event) error {
	s.calls++
	return s.err
}
func (s *stubNotifier) Close() error {
	s.closed = true
	return nil
}

func TestFanoutNotifyAggregatesErrors(t *testing.T) {
	ok := &stubNotifier{id: "ok", typ: "http"}
	bad := &stubNotifier{id: "bad", typ: "http", err: errors.New("failed")}
	fanout := NewFanout([]Notifier{ok, nil, bad})

	if fanout.Size() != 2 {
		t.Fatalf("expected nil notifiers to be dropped, size %d", fanout.Size())
	}
	count, err := fanout.Notify(context.Background(), Event{})
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("expected every notifier to be called once")
	}
	if err := fanout.Close(); err != nil || !ok.closed || !bad.closed {
		t.Fatalf("Close: %v", err)
	}
}

func TestNilFanoutIsNoop(t *testing.T) {
	var f *Fanout
	if n, err := f.Notify(context.Background(), Event{}); n != 0 || err != nil {
		t.Fatalf("expected noop, got %d %v", n, err)
	}
}

func TestNewStatusEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("IST", 19800))
	evt := NewStatusEvent(&domain.PublishingStatus{
		ID:            "s1",
		ArticleID:     "a1",
		OverallStatus: domain.StatusFailed,
		Operation:     domain.OperationPublish,
		Destinations: []domain.DestinationResult{
			{DestinationID: "d1", DestinationName: "devto", Status: domain.DestinationFailed, Error: "API key not configured",
				Settings: map[string]any{"api_key": "x"}},
		},
	}, at)

	if evt.Type != EventStatusChanged || evt.StatusID != "s1" || evt.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected event %+v", evt)
	}
	if len(evt.Destinations) != 1 || evt.Destinations[0].Error != "API key not configured" {
		t.Fatalf("unexpected destinations %+v", evt.Destinations)
	}
	if evt.attributes()["overall_status"] != "failed" {
		t.Fatalf("unexpected attributes %v", evt.attributes())
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	ns, err := BuildAll(context.Background(), DefaultRegistry(), []NotifierConfig{
		{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: "https://example.com", Method: "POST", TimeoutSeconds: 1}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(ns) != 1 || ns[0].Type() != TypeHTTP {
		t.Fatalf("unexpected notifiers %v", ns)
	}

	if _, err := BuildAll(context.Background(), DefaultRegistry(), []NotifierConfig{{ID: "x", Type: "kafka"}}, nil); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestRegistryBuildValidatesConfig(t *testing.T) {
	_, err := DefaultRegistry().Build(context.Background(), NotifierConfig{ID: "ps", Type: TypePubSub, PubSub: &PubSubConfig{ProjectID: "p"}}, nil)
	if err == nil || err.Error() != `gcp_pubsub.project_id and gcp_pubsub.topic required for notifier "ps"` {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestBuildAllSkipsDisabledAndClosesOnFailure(t *testing.T) {
	off := false
	built := &stubNotifier{id: "first", typ: TypeHTTP}
	reg := Registry{
		TypeHTTP: func(context.Context, NotifierConfig, logger.Logger) (Notifier, error) { return built, nil },
		TypeSNS: func(context.Context, NotifierConfig, logger.Logger) (Notifier, error) {
			return nil, errors.New("no credentials")
		},
	}
	hook := NotifierConfig{ID: "first", Type: TypeHTTP, HTTP: &HTTPConfig{URL: "https://example.com"}}
	topic := NotifierConfig{ID: "topic", Type: TypeSNS, SNS: &SNSConfig{TopicARN: "arn:t", Region: "us-east-1"}}

	disabled := topic
	disabled.Enabled = &off
	ns, err := BuildAll(context.Background(), reg, []NotifierConfig{hook, disabled}, nil)
	if err != nil || len(ns) != 1 {
		t.Fatalf("BuildAll = %v, %v", ns, err)
	}

	_, err = BuildAll(context.Background(), reg, []NotifierConfig{hook, topic}, nil)
	if err == nil || !strings.Contains(err.Error(), `build notifier "topic": no credentials`) {
		t.Fatalf("unexpected error %v", err)
	}
	if !built.closed {
		t.Fatalf("sinks built before the failure must be closed")
	}
}
