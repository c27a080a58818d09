package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/domain"
	"github.com/samvad-hq/samvad-publisher/internal/metrics"
	"github.com/samvad-hq/samvad-publisher/pkg/adapters"
	"github.com/samvad-hq/samvad-publisher/pkg/notifiers"
)

// outcome is what one adapter call produced.
type outcome struct {
	url string
	at  time.Time
	err error
}

// run executes the fan-out for status and performs the single aggregate write.
// With retryPending set, a failed aggregate is recorded as scheduled so the
// status stays cancellable until the queue gives up on the job.
func (o *Orchestrator) run(ctx context.Context, status *domain.PublishingStatus, article *domain.Article, retryPending bool) (*domain.PublishingStatus, error) {
	start := o.now()
	results := o.fanOut(ctx, status.Operation, *article, status.Destinations, status.Options)

	current, err := o.statuses.GetStatus(ctx, status.ID)
	if err != nil {
		return nil, fmt.Errorf("reload status: %w", err)
	}
	if current.OverallStatus == domain.StatusCancelled {
		o.log.WarnObj("status cancelled during fan-out; discarding results", "publish_result", map[string]any{
			"status_id":  status.ID,
			"article_id": status.ArticleID,
		})
		return current, nil
	}

	now := o.now().UTC()
	status.Destinations = results
	status.OverallStatus = status.Aggregate()
	status.UpdatedAt = now
	status.Error = failureSummary(results)
	if status.OverallStatus == domain.StatusPublished {
		status.PublishedAt = &now
	}
	if status.OverallStatus == domain.StatusFailed && retryPending {
		status.OverallStatus = domain.StatusScheduled
	}
	if err := o.statuses.SaveStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}

	o.log.InfoObj("publishing run finished", "publish_result", map[string]any{
		"status_id":      status.ID,
		"article_id":     status.ArticleID,
		"operation":      status.Operation,
		"overall_status": status.OverallStatus,
		"destinations":   len(results),
		"retry_count":    status.RetryCount,
		"elapsed_ms":     o.now().Sub(start).Milliseconds(),
	})

	if status.OverallStatus == domain.StatusPublished {
		o.syncArticle(ctx, status, now)
	}
	if status.OverallStatus.Terminal() {
		o.notify(ctx, status)
	}
	return status, nil
}

// fanOut runs one goroutine per destination and waits for every result.
// Results keep the order of the input.
func (o *Orchestrator) fanOut(ctx context.Context, op domain.Operation, article domain.Article, dests []domain.DestinationResult, opts domain.PublishOptions) []domain.DestinationResult {
	results := make([]domain.DestinationResult, len(dests))
	var wg sync.WaitGroup
	for i, d := range dests {
		results[i] = d
		if !d.Enabled {
			continue
		}
		wg.Add(1)
		go func(i int, d domain.DestinationResult) {
			defer wg.Done()
			results[i] = o.dispatch(ctx, op, article, d, opts)
		}(i, d)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) dispatch(ctx context.Context, op domain.Operation, article domain.Article, d domain.DestinationResult, opts domain.PublishOptions) domain.DestinationResult {
	res := d
	a, ok := o.adapter(d.DestinationName)
	if !ok {
		res.Status = domain.DestinationFailed
		res.Error = fmt.Sprintf("no adapter registered for %q", d.DestinationName)
		return res
	}

	spec := domain.DestinationSpec{
		ID:              d.DestinationID,
		DestinationName: d.DestinationName,
		Enabled:         d.Enabled,
		Settings:        domain.CopySettings(d.Settings),
	}
	post := adapters.Transform(article, spec, opts)

	start := time.Now()
	out := o.invoke(ctx, a, op, post)
	elapsed := time.Since(start)

	if out.err != nil {
		res.Status = domain.DestinationFailed
		res.Error = out.err.Error()
		res.URL = ""
		metrics.ObserveDestinationCall(a.Name(), string(op), "failed", elapsed)
		o.log.WarnObj("destination failed", "destination_error", map[string]any{
			"destination": d.DestinationName,
			"article_id":  article.ID,
			"operation":   op,
			"error":       res.Error,
		})
		return res
	}

	res.Status = domain.DestinationPublished
	res.Error = ""
	res.URL = out.url
	if !out.at.IsZero() {
		at := out.at.UTC()
		res.PublishedAt = &at
	}
	metrics.ObserveDestinationCall(a.Name(), string(op), "published", elapsed)
	return res
}

// invoke bounds one adapter call by the per-destination timeout. An adapter
// that ignores its context is abandoned once the deadline passes.
func (o *Orchestrator) invoke(parent context.Context, a adapters.Adapter, op domain.Operation, post adapters.Post) outcome {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- o.call(ctx, a, op, post)
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.err = o.timeoutErr()
		}
		return out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome{err: o.timeoutErr()}
		}
		return outcome{err: ctx.Err()}
	}
}

func (o *Orchestrator) timeoutErr() error {
	return fmt.Errorf("timed out after %s", o.timeout)
}

func (o *Orchestrator) call(ctx context.Context, a adapters.Adapter, op domain.Operation, post adapters.Post) outcome {
	switch op {
	case domain.OperationUpdate:
		res, err := a.Update(ctx, post)
		return outcome{url: res.URL, at: res.UpdatedAt, err: err}
	case domain.OperationDelete:
		if err := a.Delete(ctx, post.ArticleID); err != nil {
			return outcome{err: err}
		}
		return outcome{at: o.now()}
	default:
		res, err := a.Publish(ctx, post)
		return outcome{url: res.URL, at: res.PublishedAt, err: err}
	}
}

func failureSummary(results []domain.DestinationResult) string {
	var parts []string
	for _, r := range results {
		if r.Enabled && r.Status == domain.DestinationFailed {
			parts = append(parts, r.DestinationName+": "+r.Error)
		}
	}
	return strings.Join(parts, "; ")
}

// syncArticle mirrors a successful run back to the content store. Failures are logged only.
func (o *Orchestrator) syncArticle(ctx context.Context, status *domain.PublishingStatus, at time.Time) {
	var err error
	switch status.Operation {
	case domain.OperationPublish:
		err = o.content.UpdateArticleStatus(ctx, status.ArticleID, articlePublished, &at)
	case domain.OperationDelete:
		err = o.content.UpdateArticleStatus(ctx, status.ArticleID, articleUnpublished, nil)
	default:
		return
	}
	if err != nil {
		o.log.ErrorObj("content status update failed", "content_error", map[string]any{
			"article_id": status.ArticleID,
			"status_id":  status.ID,
			"error":      err.Error(),
		})
	}
}

func (o *Orchestrator) notify(ctx context.Context, status *domain.PublishingStatus) {
	metrics.IncStatus(string(status.OverallStatus))
	if o.notifier == nil {
		return
	}
	if _, err := o.notifier.Notify(ctx, notifiers.NewStatusEvent(status, o.now())); err != nil {
		o.log.ErrorObj("status notification failed", "notifier_error", map[string]any{
			"status_id": status.ID,
			"error":     err.Error(),
		})
	}
}
