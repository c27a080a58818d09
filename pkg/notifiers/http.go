package notifiers

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-publisher/internal/logger"
	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

type httpNotifier struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  httpclient.Client
	log     logger.Logger
}

func newHTTPNotifier(_ context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("notifier %q missing http configuration", cfg.ID)
	}

	return &httpNotifier{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:     logger.Ensure(log),
	}, nil
}

func (h *httpNotifier) ID() string   { return h.id }
func (h *httpNotifier) Type() string { return TypeHTTP }

func (h *httpNotifier) Notify(ctx context.Context, evt Event) error {
	resp, err := h.client.Do(ctx, httpclient.Request{
		Method:  h.method,
		URL:     h.url,
		Headers: h.headers,
		Body:    evt,
	})
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if !httpclient.IsSuccess(resp) {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}
	h.log.DebugObj("http notifier delivered event", "notifier_http_delivery", map[string]any{
		"notifier_id": h.id,
		"status_id":   evt.StatusID,
	})
	return nil
}
