package venue

import (
	"context"
	"sync"

	"github.com/drawdownguard/collar-engine/pkg/errs"
)

// Registry maps a venue name to its Connector, letting callers address a
// venue by configured name rather than a concrete type.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

func (r *Registry) Register(name string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[name] = c
}

func (r *Registry) Get(name string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// Names returns every registered venue name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for n := range r.connectors {
		names = append(names, n)
	}
	return names
}

// PlaceOrder fails with MissingExecutor when venue is unknown, per spec
// section 4.2.
func (r *Registry) PlaceOrder(ctx context.Context, venueName string, req OrderRequest) (OrderResult, error) {
	c, ok := r.Get(venueName)
	if !ok {
		return OrderResult{}, errs.WithReason(errs.MissingExecutor, venueName)
	}
	return c.PlaceOrder(ctx, req)
}
