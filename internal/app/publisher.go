package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/config"
	"github.com/samvad-hq/samvad-publisher/internal/logger"
	"github.com/samvad-hq/samvad-publisher/internal/metrics"
	"github.com/samvad-hq/samvad-publisher/internal/orchestrator"
	"github.com/samvad-hq/samvad-publisher/internal/queue"
	"github.com/samvad-hq/samvad-publisher/internal/storage"
	"github.com/samvad-hq/samvad-publisher/pkg/adapters"
	"github.com/samvad-hq/samvad-publisher/pkg/content"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
	"github.com/samvad-hq/samvad-publisher/pkg/notifiers"
)

const shutdownTimeout = 10 * time.Second

// Publisher is the host runtime. It owns the storage backend, the
// orchestrator, the queue worker and the metrics endpoint.
type Publisher struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	worker   *queue.Worker
	notifier *notifiers.Fanout
	store    storage.Store
	log      logger.Logger
}

// NewPublisher builds the runtime from config files.
func NewPublisher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	destReg, err := adapters.LoadRegistry(cfg.DestinationsFile)
	if err != nil {
		return nil, fmt.Errorf("load destinations registry: %w", err)
	}
	enabled := destReg.Enabled()
	summaries := make([]map[string]string, 0, len(enabled))
	for _, d := range enabled {
		summaries = append(summaries, map[string]string{"id": d.ID, "type": d.Type})
	}
	log.InfoObj("destinations registry loaded", "destinations_meta", map[string]any{
		"count":        len(summaries),
		"destinations": summaries,
	})

	store, err := storage.NewStore(ctx, cfg.StorageType, storage.Options{
		BBoltPath:   cfg.BBoltPath,
		PostgresDSN: cfg.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	p := &Publisher{cfg: cfg, store: store, log: log}
	if err := p.wire(ctx, enabled); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) wire(ctx context.Context, enabled []adapters.DestinationConfig) error {
	cfg := p.cfg

	built, err := adapters.BuildAll(adapters.DefaultRegistry(), enabled, adapters.Deps{Refs: p.store})
	if err != nil {
		return fmt.Errorf("build destinations: %w", err)
	}

	var list []notifiers.Notifier
	if cfg.NotifiersFile != "" {
		notifierReg, err := notifiers.LoadRegistry(cfg.NotifiersFile)
		if err != nil {
			return fmt.Errorf("load notifiers registry: %w", err)
		}
		list, err = notifiers.BuildAll(ctx, notifiers.DefaultRegistry(), notifierReg.Enabled(), p.log)
		if err != nil {
			return fmt.Errorf("build notifiers: %w", err)
		}
	}
	p.notifier = notifiers.NewFanout(list)
	p.log.InfoObj("notifiers loaded", "notifiers_meta", map[string]any{
		"count": p.notifier.Size(),
		"file":  cfg.NotifiersFile,
	})

	contentStore, err := content.NewHTTPStore(cfg.ContentAPIURL, cfg.ContentAPIToken, httpclient.NewRestyClient(cfg.DestinationTimeout))
	if err != nil {
		return fmt.Errorf("init content store: %w", err)
	}

	p.orch, err = orchestrator.New(orchestrator.Deps{
		Content:  contentStore,
		Statuses: p.store,
		Jobs:     p.store,
		Adapters: orchestrator.AdapterMap(built),
		Notifier: p.notifier,
		Log:      p.log,
	}, orchestrator.Options{
		Timeout:    cfg.DestinationTimeout,
		MaxRetries: cfg.QueueMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	p.worker, err = queue.NewWorker(p.store, p.orch, queue.Options{
		PollInterval:    cfg.QueuePollInterval,
		CleanupInterval: cfg.QueueCleanupInterval,
		Retention:       cfg.QueueRetention,
		LeaseTimeout:    cfg.QueueLeaseTimeout,
		BatchSize:       cfg.QueueBatchSize,
		Concurrency:     cfg.QueueConcurrency,
		Log:             p.log,
	})
	if err != nil {
		return fmt.Errorf("init queue worker: %w", err)
	}

	metrics.Register()
	return nil
}

// Orchestrator exposes the publishing operations to embedding callers.
func (p *Publisher) Orchestrator() *orchestrator.Orchestrator { return p.orch }

// Worker exposes the queue worker.
func (p *Publisher) Worker() *queue.Worker { return p.worker }

// Run starts the queue worker and the metrics endpoint and blocks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if p == nil || p.orch == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	defer func() {
		if err := p.Close(); err != nil {
			p.log.ErrorObj("shutdown failed", "error", err)
		}
	}()

	p.log.InfoObj("publisher starting", "publisher_state", map[string]any{
		"destinations":  p.orch.Destinations(),
		"notifiers":     p.notifier.Size(),
		"queue_enabled": p.cfg.QueueEnabled,
		"metrics_addr":  p.cfg.MetricsAddr,
	})

	if p.cfg.QueueEnabled {
		if err := p.worker.Start(ctx); err != nil {
			return fmt.Errorf("start queue worker: %w", err)
		}
	}

	var srv *http.Server
	if p.cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", p.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.log.ErrorObj("metrics server failed", "error", err)
			}
		}()
		p.log.InfoObj("metrics endpoint listening", "metrics_addr", ln.Addr().String())
	}

	<-ctx.Done()
	p.log.InfoObj("publisher exiting", "reason", ctx.Err())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.log.ErrorObj("metrics server shutdown failed", "error", err)
		}
	}
	if err := p.worker.Stop(shutdownTimeout); err != nil {
		p.log.ErrorObj("queue worker stop failed", "error", err)
	}
	return nil
}

// Close releases notifier clients and the storage backend.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.notifier != nil {
		if err := p.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifiers: %w", err))
		}
		p.notifier = nil
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		p.store = nil
	}
	return errors.Join(errs...)
}
