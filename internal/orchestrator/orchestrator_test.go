package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/internal/storage"
	"github.com/samvad-hq/samvad-publisher/pkg/adapters"
	"github.com/samvad-hq/samvad-publisher/pkg/notifiers"
)

var testNow = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

type fakeContent struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	updates  []string
}

func newFakeContent(ids ...string) *fakeContent {
	c := &fakeContent{articles: make(map[string]domain.Article)}
	for _, id := range ids {
		c.articles[id] = domain.Article{ID: id, Title: "Title " + id, Content: "body of " + id, Slug: id, Tags: []string{"go"}}
	}
	return c
}

func (c *fakeContent) GetArticle(_ context.Context, id string) (*domain.Article, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (c *fakeContent) UpdateArticleStatus(_ context.Context, id, status string, _ *time.Time) error {
	c.mu.Lock()
	c.updates = append(c.updates, id+"="+status)
	c.mu.Unlock()
	return nil
}

type fakeAdapter struct {
	name       string
	mu         sync.Mutex
	calls      int
	posts      []adapters.Post
	publish    func(ctx context.Context, post adapters.Post) (adapters.PublishResult, error)
	snapshot   domain.AnalyticsSnapshot
	analytics  error
	validation adapters.ValidationResult
}

func okAdapter(name, url string) *fakeAdapter {
	return &fakeAdapter{name: name, publish: func(context.Context, adapters.Post) (adapters.PublishResult, error) {
		return adapters.PublishResult{URL: url, PublishedAt: testNow}, nil
	}, validation: adapters.ValidationResult{IsValid: true}}
}

func failingAdapter(name, msg string) *fakeAdapter {
	return &fakeAdapter{name: name, publish: func(context.Context, adapters.Post) (adapters.PublishResult, error) {
		return adapters.PublishResult{}, errors.New(msg)
	}}
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Type() string { return "fake" }

func (f *fakeAdapter) Publish(ctx context.Context, post adapters.Post) (adapters.PublishResult, error) {
	f.mu.Lock()
	f.calls++
	f.posts = append(f.posts, post)
	fn := f.publish
	f.mu.Unlock()
	return fn(ctx, post)
}

func (f *fakeAdapter) Update(context.Context, adapters.Post) (adapters.UpdateResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return adapters.UpdateResult{}, &adapters.Unsupported{Destination: f.name, Operation: domain.OperationUpdate}
}

func (f *fakeAdapter) Delete(context.Context, string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Analytics(context.Context, string) (domain.AnalyticsSnapshot, error) {
	return f.snapshot, f.analytics
}

func (f *fakeAdapter) Validate(map[string]any) adapters.ValidationResult { return f.validation }

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiers.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notifiers.Event) (int, error) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return 1, nil
}

type harness struct {
	orch    *Orchestrator
	store   *storage.MemoryStore
	content *fakeContent
	events  *recordingNotifier
}

func newHarness(t *testing.T, timeout time.Duration, list ...adapters.Adapter) harness {
	t.Helper()
	store := storage.NewMemoryStore()
	content := newFakeContent("a", "b")
	events := &recordingNotifier{}
	orch, err := New(Deps{
		Content:  content,
		Statuses: store,
		Jobs:     store,
		Adapters: AdapterMap(list),
		Notifier: events,
	}, Options{Timeout: timeout, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return harness{orch: orch, store: store, content: content, events: events}
}

func dest(name string, enabled bool) domain.DestinationSpec {
	return domain.DestinationSpec{ID: name + "-id", DestinationName: name, Enabled: enabled}
}

func request(specs ...domain.DestinationSpec) domain.PublishRequest {
	return domain.PublishRequest{Destinations: specs}
}

func TestPublishZeroEnabledDestinationsIsDraft(t *testing.T) {
	dash := okAdapter("dashboard", "https://site/blog/a")
	h := newHarness(t, time.Second, dash)

	status, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", false)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if status.OverallStatus != domain.StatusDraft || len(status.Destinations) != 0 {
		t.Fatalf("expected empty draft, got %+v", status)
	}
	if dash.callCount() != 0 {
		t.Fatalf("adapter must not be called")
	}
	if list, _ := h.store.ListStatuses(context.Background(), "a"); len(list) != 0 {
		t.Fatalf("draft must not be persisted, got %d records", len(list))
	}
}

func TestPublishUnknownArticle(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	_, err := h.orch.Publish(context.Background(), "missing", request(dest("dashboard", true)))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPublishAllSucceed(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "https://site/blog/a"), okAdapter("hashnode", "https://hn/a"))

	status, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", true), dest("hashnode", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if status.OverallStatus != domain.StatusPublished || status.PublishedAt == nil {
		t.Fatalf("expected published, got %+v", status)
	}
	for _, d := range status.Destinations {
		if d.Status != domain.DestinationPublished || d.URL == "" {
			t.Fatalf("unexpected destination %+v", d)
		}
	}

	stored, err := h.store.GetStatus(context.Background(), status.ID)
	if err != nil || stored.OverallStatus != domain.StatusPublished {
		t.Fatalf("stored status = %+v err=%v", stored, err)
	}
	if len(h.content.updates) != 1 || h.content.updates[0] != "a=published" {
		t.Fatalf("content store not updated: %v", h.content.updates)
	}
	if len(h.events.events) != 1 || h.events.events[0].OverallStatus != domain.StatusPublished {
		t.Fatalf("expected one published event, got %+v", h.events.events)
	}
}

// Dashboard succeeds against a live site while devto has no API key.
func TestPublishPartialFailureKeepsSuccessfulDestinations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://site/blog/a"}`))
	}))
	defer srv.Close()

	built, err := adapters.BuildAll(adapters.DefaultRegistry(), []adapters.DestinationConfig{
		{ID: "dashboard", Type: adapters.TypeDashboard, BaseURL: srv.URL},
		{ID: "devto", Type: adapters.TypeDevto},
	}, adapters.Deps{Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	h := newHarness(t, 2*time.Second, built...)

	status, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", true), dest("devto", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if status.OverallStatus != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", status.OverallStatus)
	}
	dash, devto := status.Destinations[0], status.Destinations[1]
	if dash.DestinationName != "dashboard" || dash.Status != domain.DestinationPublished || dash.URL != "https://site/blog/a" {
		t.Fatalf("unexpected dashboard result %+v", dash)
	}
	if devto.DestinationName != "devto" || devto.Status != domain.DestinationFailed || devto.Error != "API key not configured" {
		t.Fatalf("unexpected devto result %+v", devto)
	}
	if len(h.content.updates) != 0 {
		t.Fatalf("content must not be marked published on failure")
	}
}

func TestPublishTimeoutAndPanicAreIsolated(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	hung := &fakeAdapter{name: "medium", publish: func(context.Context, adapters.Post) (adapters.PublishResult, error) {
		<-release
		return adapters.PublishResult{}, nil
	}}
	panicky := &fakeAdapter{name: "linkedin", publish: func(context.Context, adapters.Post) (adapters.PublishResult, error) {
		panic("boom")
	}}
	h := newHarness(t, 50*time.Millisecond, okAdapter("dashboard", "https://site/blog/a"), hung, panicky)

	start := time.Now()
	status, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", true), dest("medium", true), dest("linkedin", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("hung adapter stalled the fan-out")
	}
	want := map[string]string{"dashboard": "", "medium": "timed out after 50ms", "linkedin": "panic: boom"}
	for _, d := range status.Destinations {
		if d.Error != want[d.DestinationName] {
			t.Errorf("%s error = %q, want %q", d.DestinationName, d.Error, want[d.DestinationName])
		}
	}
	if status.Destinations[0].Status != domain.DestinationPublished {
		t.Fatalf("dashboard should still publish, got %+v", status.Destinations[0])
	}
}

func TestPublishUnknownDestinationFailsOnlyThatDestination(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	status, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", true), dest("myspace", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if status.Destinations[0].Status != domain.DestinationPublished || status.Destinations[1].Status != domain.DestinationFailed {
		t.Fatalf("unexpected results %+v", status.Destinations)
	}
}

func TestPublishAutoShareAddsRegisteredDestinations(t *testing.T) {
	li := okAdapter("linkedin", "https://li/1")
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"), li)

	req := request(dest("dashboard", true))
	req.Options.AutoShare = map[string]bool{"linkedin": true, "dashboard": true, "twitter": true, "medium": false}
	status, err := h.orch.Publish(context.Background(), "a", req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(status.Destinations) != 2 || status.Destinations[1].DestinationName != "linkedin" {
		t.Fatalf("expected dashboard + linkedin, got %+v", status.Destinations)
	}
	if li.callCount() != 1 {
		t.Fatalf("linkedin should be called once, got %d", li.callCount())
	}
}

func TestPublishWritesPublishingStatusBeforeAdapterCalls(t *testing.T) {
	var h harness
	var seen domain.OverallStatus
	dashboard := &fakeAdapter{name: "dashboard", publish: func(ctx context.Context, post adapters.Post) (adapters.PublishResult, error) {
		list, _ := h.store.ListStatuses(ctx, post.ArticleID)
		if len(list) == 1 {
			seen = list[0].OverallStatus
		}
		return adapters.PublishResult{URL: "u"}, nil
	}}
	h = newHarness(t, time.Second, dashboard)

	if _, err := h.orch.Publish(context.Background(), "a", request(dest("dashboard", true))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if seen != domain.StatusPublishing {
		t.Fatalf("expected publishing status during fan-out, saw %q", seen)
	}
}

func TestRetryIncrementsByOneAndRequiresFailed(t *testing.T) {
	devto := failingAdapter("devto", "API key not configured")
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"), devto)
	ctx := context.Background()

	status, err := h.orch.Publish(ctx, "a", request(dest("dashboard", true), dest("devto", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for want := 1; want <= 2; want++ {
		retried, err := h.orch.Retry(ctx, status.ID)
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if retried.RetryCount != want || retried.ID != status.ID {
			t.Fatalf("retry #%d: count=%d id=%s", want, retried.RetryCount, retried.ID)
		}
		if retried.OverallStatus != domain.StatusFailed {
			t.Fatalf("expected failed after retry, got %s", retried.OverallStatus)
		}
	}
	if devto.callCount() != 3 {
		t.Fatalf("expected full fan-out on each retry, devto calls = %d", devto.callCount())
	}
	if list, _ := h.store.ListStatuses(ctx, "a"); len(list) != 1 {
		t.Fatalf("retry must reuse the status record, got %d", len(list))
	}

	devto.mu.Lock()
	devto.publish = okAdapter("devto", "https://dev.to/a").publish
	devto.mu.Unlock()
	retried, err := h.orch.Retry(ctx, status.ID)
	if err != nil || retried.OverallStatus != domain.StatusPublished || retried.Error != "" {
		t.Fatalf("expected published after fix, got %+v err=%v", retried, err)
	}

	if _, err := h.orch.Retry(ctx, status.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState retrying a published status, got %v", err)
	}
	if _, err := h.orch.Retry(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleCreatesStatusAndSnapshotJob(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	ctx := context.Background()

	spec := dest("dashboard", true)
	spec.Settings = map[string]any{"series": "one"}
	req := request(spec, dest("devto", false))
	req.Options.Priority = domain.PriorityHigh
	when := testNow.Add(-time.Hour)

	status, err := h.orch.Schedule(ctx, "b", req, when)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if status.OverallStatus != domain.StatusScheduled || status.ScheduledFor == nil || !status.ScheduledFor.Equal(when) {
		t.Fatalf("unexpected status %+v", status)
	}

	spec.Settings["series"] = "changed"
	jobs, err := h.store.DueJobs(ctx, testNow, 10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one due job, got %d err=%v", len(jobs), err)
	}
	job := jobs[0]
	if job.StatusID != status.ID || job.Priority != domain.PriorityHigh || job.MaxRetries != domain.DefaultMaxRetries {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(job.Destinations) != 1 || job.Destinations[0].Settings["series"] != "one" {
		t.Fatalf("job must hold a snapshot of enabled destinations, got %+v", job.Destinations)
	}

	if _, err := h.orch.Schedule(ctx, "missing", req, when); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelScheduled(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	ctx := context.Background()

	if err := h.orch.Cancel(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	status, err := h.orch.Schedule(ctx, "b", request(dest("dashboard", true)), testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := h.orch.Cancel(ctx, status.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := h.orch.Cancel(ctx, status.ID); err != nil {
		t.Fatalf("second Cancel should be a no-op: %v", err)
	}

	got, _ := h.orch.GetStatus(ctx, status.ID)
	if got.OverallStatus != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.OverallStatus)
	}
	stats, _ := h.orch.GetStats(ctx)
	if stats.Total != 0 {
		t.Fatalf("pending job must be removed, stats %+v", stats)
	}
	if n := len(h.events.events); n != 1 {
		t.Fatalf("expected one cancel event, got %d", n)
	}
}

func TestCancelTerminalIsNoop(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	ctx := context.Background()

	status, err := h.orch.Publish(ctx, "a", request(dest("dashboard", true)))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := h.orch.Cancel(ctx, status.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := h.orch.GetStatus(ctx, status.ID)
	if got.OverallStatus != domain.StatusPublished {
		t.Fatalf("terminal status must not change, got %s", got.OverallStatus)
	}
}

func TestLateCompletionAfterCancelIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeAdapter{name: "dashboard", publish: func(context.Context, adapters.Post) (adapters.PublishResult, error) {
		close(entered)
		<-release
		return adapters.PublishResult{URL: "https://site/blog/a"}, nil
	}}
	h := newHarness(t, 5*time.Second, slow)
	ctx := context.Background()

	type result struct {
		status *domain.PublishingStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := h.orch.Publish(ctx, "a", request(dest("dashboard", true)))
		done <- result{s, err}
	}()

	<-entered
	list, _ := h.store.ListStatuses(ctx, "a")
	if len(list) != 1 {
		t.Fatalf("expected in-flight status, got %d", len(list))
	}
	if err := h.orch.Cancel(ctx, list[0].ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Publish: %v", res.err)
	}
	if res.status.OverallStatus != domain.StatusCancelled {
		t.Fatalf("expected cancelled result, got %s", res.status.OverallStatus)
	}
	stored, _ := h.store.GetStatus(ctx, list[0].ID)
	if stored.OverallStatus != domain.StatusCancelled || stored.Destinations[0].Status != domain.DestinationPending {
		t.Fatalf("late completion resurrected the status: %+v", stored)
	}
	if len(h.content.updates) != 0 {
		t.Fatalf("content must not be updated for a cancelled run")
	}
}

func TestExecuteJobReusesLinkedStatus(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	ctx := context.Background()

	status, err := h.orch.Schedule(ctx, "b", request(dest("dashboard", true)), testNow)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	jobs, _ := h.store.DueJobs(ctx, testNow, 10)

	got, err := h.orch.ExecuteJob(ctx, &jobs[0])
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if got.ID != status.ID || got.OverallStatus != domain.StatusPublished {
		t.Fatalf("expected linked status to be published, got %+v", got)
	}

	orphan := domain.QueueJob{ID: "j2", ArticleID: "a", Destinations: []domain.DestinationSpec{dest("dashboard", true)}}
	created, err := h.orch.ExecuteJob(ctx, &orphan)
	if err != nil {
		t.Fatalf("ExecuteJob orphan: %v", err)
	}
	if orphan.StatusID != created.ID || created.OverallStatus != domain.StatusPublished {
		t.Fatalf("expected new linked status, got %+v job=%+v", created, orphan)
	}
}

func TestUpdateUnsupportedIsPerDestinationFailure(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("medium", "u"))
	status, err := h.orch.Update(context.Background(), "a", request(dest("medium", true)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if status.OverallStatus != domain.StatusFailed || status.Destinations[0].Error != "update is not supported by medium" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.Operation != domain.OperationUpdate {
		t.Fatalf("operation = %s", status.Operation)
	}
}

func TestUnpublishMarksArticle(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"))
	status, err := h.orch.Unpublish(context.Background(), "a", request(dest("dashboard", true)))
	if err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if status.OverallStatus != domain.StatusPublished || status.Operation != domain.OperationDelete {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(h.content.updates) != 1 || h.content.updates[0] != "a=unpublished" {
		t.Fatalf("unexpected content updates %v", h.content.updates)
	}
}

func TestGetAnalytics(t *testing.T) {
	zero := okAdapter("medium", "u")
	broken := okAdapter("devto", "u")
	broken.analytics = errors.New("not published to devto yet")
	h := newHarness(t, time.Second, zero, broken)
	ctx := context.Background()

	snap, err := h.orch.GetAnalytics(ctx, "a", "Medium")
	if err != nil {
		t.Fatalf("GetAnalytics: %v", err)
	}
	if snap != (domain.AnalyticsSnapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
	if _, err := h.orch.GetAnalytics(ctx, "a", "devto"); err == nil || err.Error() != "not published to devto yet" {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if _, err := h.orch.GetAnalytics(ctx, "a", "myspace"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateDestinations(t *testing.T) {
	bad := okAdapter("devto", "u")
	bad.validation = adapters.ValidationResult{Errors: []string{"API key not configured"}}
	h := newHarness(t, time.Second, okAdapter("dashboard", "u"), bad)

	out, err := h.orch.ValidateDestinations(request(dest("dashboard", true), dest("devto", true), dest("myspace", true)))
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if len(out) != 3 || !out[0].Result.IsValid || out[1].Result.IsValid || out[2].Result.IsValid {
		t.Fatalf("unexpected results %+v", out)
	}

	if _, err := h.orch.ValidateDestinations(request(dest("dashboard", true))); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestNewRequiresStores(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func TestListStatusesReturnsEveryRun(t *testing.T) {
	h := newHarness(t, time.Second, okAdapter("dashboard", "https://site/blog/a"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.orch.Publish(ctx, "a", request(dest("dashboard", true))); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if _, err := h.orch.Publish(ctx, "b", request(dest("dashboard", true))); err != nil {
		t.Fatalf("Publish b: %v", err)
	}

	list, err := h.orch.ListStatuses(ctx, "a")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListStatuses = %d records, err=%v", len(list), err)
	}
	for _, s := range list {
		if s.ArticleID != "a" {
			t.Fatalf("unexpected article %q", s.ArticleID)
		}
	}
}

func TestExecuteJobKeepsStatusScheduledUntilLastAttempt(t *testing.T) {
	site := failingAdapter("dashboard", "site unavailable")
	h := newHarness(t, time.Second, site)
	ctx := context.Background()

	status, err := h.orch.Schedule(ctx, "a", request(dest("dashboard", true)), testNow)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	jobs, _ := h.store.DueJobs(ctx, testNow, 10)
	job := &jobs[0]

	got, err := h.orch.ExecuteJob(ctx, job)
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if got.OverallStatus != domain.StatusScheduled || got.Error != "dashboard: site unavailable" {
		t.Fatalf("status with retries left = %s %q", got.OverallStatus, got.Error)
	}
	if len(h.events.events) != 0 {
		t.Fatalf("no terminal event expected yet, got %d", len(h.events.events))
	}

	job.RetryCount = job.MaxRetries
	got, err = h.orch.ExecuteJob(ctx, job)
	if err != nil {
		t.Fatalf("ExecuteJob last attempt: %v", err)
	}
	if got.OverallStatus != domain.StatusFailed || got.RetryCount != job.MaxRetries {
		t.Fatalf("status after last attempt = %+v", got)
	}
	if len(h.events.events) != 1 || h.events.events[0].OverallStatus != domain.StatusFailed {
		t.Fatalf("expected one failed event, got %+v", h.events.events)
	}

	if _, err := h.orch.ExecuteJob(ctx, job); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a failed status, got %v", err)
	}
	if site.callCount() != 2 {
		t.Fatalf("adapter calls = %d, want 2", site.callCount())
	}
	stored, _ := h.store.GetStatus(ctx, status.ID)
	if stored.OverallStatus != domain.StatusFailed {
		t.Fatalf("stored status = %s", stored.OverallStatus)
	}
}

// cancelOnRead cancels the status in the backing store right after the next read.
type cancelOnRead struct {
	*storage.MemoryStore
	armed bool
}

func (s *cancelOnRead) GetStatus(ctx context.Context, id string) (*domain.PublishingStatus, error) {
	st, err := s.MemoryStore.GetStatus(ctx, id)
	if err == nil && s.armed {
		s.armed = false
		cancelled := *st
		cancelled.OverallStatus = domain.StatusCancelled
		if err := s.MemoryStore.SaveStatus(ctx, &cancelled); err != nil {
			return nil, err
		}
	}
	return st, err
}

func TestExecuteJobHonoursCancelAfterFirstRead(t *testing.T) {
	site := okAdapter("dashboard", "https://site/blog/a")
	mem := storage.NewMemoryStore()
	statuses := &cancelOnRead{MemoryStore: mem}
	orch, err := New(Deps{
		Content:  newFakeContent("a"),
		Statuses: statuses,
		Jobs:     mem,
		Adapters: AdapterMap([]adapters.Adapter{site}),
	}, Options{Timeout: time.Second, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	status, err := orch.Schedule(ctx, "a", request(dest("dashboard", true)), testNow)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	jobs, _ := mem.DueJobs(ctx, testNow, 10)

	statuses.armed = true
	got, err := orch.ExecuteJob(ctx, &jobs[0])
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if got.OverallStatus != domain.StatusCancelled || site.callCount() != 0 {
		t.Fatalf("cancel was overwritten: status=%s calls=%d", got.OverallStatus, site.callCount())
	}
	stored, _ := mem.GetStatus(ctx, status.ID)
	if stored.OverallStatus != domain.StatusCancelled {
		t.Fatalf("stored status = %s", stored.OverallStatus)
	}
}
