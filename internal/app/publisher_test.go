package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dests := filepath.Join(dir, "destinations.yaml")
	body := `
destinations:
  - id: dashboard
    type: dashboard
    base_url: http://127.0.0.1:1
  - id: medium
    type: medium
    enabled: false
`
	if err := os.WriteFile(dests, []byte(body), 0o600); err != nil {
		t.Fatalf("write destinations: %v", err)
	}
	return &config.Config{
		AppName:              "samvad-publisher",
		DestinationsFile:     dests,
		StorageType:          "bbolt",
		BBoltPath:            filepath.Join(dir, "publisher.db"),
		ContentAPIURL:        "http://127.0.0.1:1/api",
		DestinationTimeout:   time.Second,
		QueueEnabled:         true,
		QueuePollInterval:    time.Hour,
		QueueCleanupInterval: time.Hour,
		QueueRetention:       7 * 24 * time.Hour,
		QueueLeaseTimeout:    10 * time.Minute,
		QueueBatchSize:       10,
		QueueConcurrency:     2,
		QueueMaxRetries:      3,
	}
}

func TestNewPublisherWiresEnabledDestinations(t *testing.T) {
	p, err := NewPublisher(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer p.Close()

	got := p.Orchestrator().Destinations()
	if len(got) != 1 || got[0] != "dashboard" {
		t.Fatalf("destinations = %v", got)
	}
	stats, err := p.Worker().Stats(context.Background())
	if err != nil || stats.Total != 0 {
		t.Fatalf("stats = %+v err=%v", stats, err)
	}
}

func TestNewPublisherRejectsMissingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.DestinationsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewPublisher(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for missing destinations file")
	}

	cfg = testConfig(t)
	cfg.NotifiersFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewPublisher(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for missing notifiers file")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsAddr = "127.0.0.1:0"
	p, err := NewPublisher(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRunRequiresInit(t *testing.T) {
	var p *Publisher
	if err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}
