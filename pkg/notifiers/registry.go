package notifiers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samvad-hq/samvad-publisher/internal/logger"
)

// Builder creates a Notifier from a validated config entry.
type Builder func(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error)

// Registry resolves a sink type to its builder. Keys are lowercase types.
type Registry map[string]Builder

// DefaultRegistry knows every sink this service ships.
func DefaultRegistry() Registry {
	return Registry{
		TypeHTTP:   newHTTPNotifier,
		TypeSQS:    newSQSNotifier,
		TypeSNS:    newSNSNotifier,
		TypePubSub: newPubSubNotifier,
	}
}

// Build checks cfg the same way a registry file entry is checked, then runs
// the builder for its type. Hand-assembled configs never reach an SDK client
// with a missing queue, topic or url.
func (r Registry) Build(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	builder, ok := r[strings.ToLower(cfg.Type)]
	if !ok || builder == nil {
		return nil, fmt.Errorf("no notifier registered for type %q", cfg.Type)
	}
	n, err := builder(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build notifier %q: %w", cfg.ID, err)
	}
	return n, nil
}

// BuildAll builds the enabled entries of cfgs. When one fails, the sinks
// already built are closed before the error is returned.
func BuildAll(ctx context.Context, reg Registry, cfgs []NotifierConfig, log logger.Logger) ([]Notifier, error) {
	if len(reg) == 0 || len(cfgs) == 0 {
		return nil, nil
	}

	var out []Notifier
	for _, cfg := range cfgs {
		if !cfg.EnabledValue() {
			continue
		}
		n, err := reg.Build(ctx, cfg, log)
		if err != nil {
			return nil, errors.Join(err, closeAll(out))
		}
		out = append(out, n)
	}
	return out, nil
}

func closeAll(list []Notifier) error {
	var errs []error
	for _, n := range list {
		if c, ok := n.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close notifier %q: %w", n.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
