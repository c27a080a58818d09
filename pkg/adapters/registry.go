package adapters

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-publisher/pkg/httpclient"
)

// Deps are the shared collaborators handed to every adapter builder.
type Deps struct {
	// Client overrides the per-destination resty client (tests inject fakes here).
	Client httpclient.Client
	Refs   RefStore
	Now    func() time.Time
}

func (d Deps) client(cfg DestinationConfig) httpclient.Client {
	if d.Client != nil {
		return d.Client
	}
	return httpclient.NewRestyClient(cfg.Timeout())
}

func (d Deps) now() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

func (d Deps) refs() RefStore {
	if d.Refs != nil {
		return d.Refs
	}
	return newMemoryRefs()
}

// Builder creates an Adapter from a config entry.
type Builder func(cfg DestinationConfig, deps Deps) (Adapter, error)

// Registry maps destination types to builders.
type Registry interface {
	Register(typ string, builder Builder)
	AdapterFor(cfg DestinationConfig, deps Deps) (Adapter, error)
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with optional pre-registered builders.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{
		builders: make(map[string]Builder),
	}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a destination type.
func (r *registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}

	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// AdapterFor returns the adapter built for the provided config.
func (r *registry) AdapterFor(cfg DestinationConfig, deps Deps) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("destination %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	builder := r.builders[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no adapter registered for type %q", cfg.Type)
	}
	return builder(cfg, deps)
}

// DefaultRegistry wires up the known destination adapters.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Builder{
		TypeDashboard: newDashboardAdapter,
		TypeHashnode:  newHashnodeAdapter,
		TypeDevto:     newDevtoAdapter,
		TypeMedium:    newMediumAdapter,
		TypeLinkedIn:  newLinkedInAdapter,
	})
}

// BuildAll instantiates adapters for configs using the registry.
func BuildAll(reg Registry, cfgs []DestinationConfig, deps Deps) ([]Adapter, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	out := make([]Adapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		a, err := reg.AdapterFor(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build destination %q: %w", cfg.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}
