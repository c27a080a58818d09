package adapters

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

// base carries what every HTTP-backed adapter shares.
type base struct {
	name   string
	typ    string
	client httpclient.Client
	refs   RefStore
	now    func() time.Time
}

func newBase(cfg DestinationConfig, deps Deps) base {
	return base{
		name:   cfg.ID,
		typ:    cfg.Type,
		client: deps.client(cfg),
		refs:   deps.refs(),
		now:    deps.now(),
	}
}

func (b *base) Name() string { return b.name }
func (b *base) Type() string { return b.typ }

// call executes req and decodes a successful JSON body into out.
// Transport errors and non-2xx responses become Failures.
func (b *base) call(ctx context.Context, req httpclient.Request, out any) error {
	resp, err := b.client.Do(ctx, req)
	if err != nil {
		return failureCause(err, "%s request failed", b.name)
	}
	if !httpclient.IsSuccess(resp) {
		return failure("%s returned status %d: %s", b.name, resp.StatusCode(), httpclient.Snippet(resp.Body()))
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return failureCause(err, "decode %s response", b.name)
	}
	return nil
}

func (b *base) ref(ctx context.Context, articleID string) (string, bool, error) {
	id, ok, err := b.refs.GetRef(ctx, b.name, articleID)
	if err != nil {
		return "", false, failureCause(err, "load %s reference", b.name)
	}
	return id, ok && id != "", nil
}

// requireRef returns the stored remote id or a "not published yet" failure.
func (b *base) requireRef(ctx context.Context, articleID string) (string, error) {
	id, ok, err := b.ref(ctx, articleID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", notPublishedYet(b.name)
	}
	return id, nil
}

func (b *base) saveRef(ctx context.Context, articleID, remoteID string) error {
	if err := b.refs.PutRef(ctx, b.name, articleID, remoteID); err != nil {
		return failureCause(err, "store %s reference", b.name)
	}
	return nil
}

func (b *base) dropRef(ctx context.Context, articleID string) error {
	if err := b.refs.DeleteRef(ctx, b.name, articleID); err != nil {
		return failureCause(err, "drop %s reference", b.name)
	}
	return nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// engagement is interactions per view as a percentage.
func engagement(views, interactions int64) float64 {
	if views <= 0 {
		return 0
	}
	return float64(interactions) / float64(views) * 100
}

func parseTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return fallback
}

// memoryRefs backs adapters built without a durable RefStore.
type memoryRefs struct {
	mu   sync.RWMutex
	refs map[string]string
}

func newMemoryRefs() *memoryRefs {
	return &memoryRefs{refs: make(map[string]string)}
}

func memoryRefKey(destination, articleID string) string {
	return strings.ToLower(strings.TrimSpace(destination)) + ":" + articleID
}

func (m *memoryRefs) GetRef(_ context.Context, destination, articleID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.refs[memoryRefKey(destination, articleID)]
	return id, ok, nil
}

func (m *memoryRefs) PutRef(_ context.Context, destination, articleID, remoteID string) error {
	m.mu.Lock()
	m.refs[memoryRefKey(destination, articleID)] = remoteID
	m.mu.Unlock()
	return nil
}

func (m *memoryRefs) DeleteRef(_ context.Context, destination, articleID string) error {
	m.mu.Lock()
	delete(m.refs, memoryRefKey(destination, articleID))
	m.mu.Unlock()
	return nil
}
