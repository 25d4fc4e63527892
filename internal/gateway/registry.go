package gateway

import (
	"strings"
	"sync"
)

// Registry resolves gateways by name. Registration happens at process
// start; lookups are read-mostly.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	fallback string
}

func NewRegistry(fallback string) *Registry {
	return &Registry{
		gateways: make(map[string]Gateway),
		fallback: strings.ToLower(strings.TrimSpace(fallback)),
	}
}

func (r *Registry) Register(g Gateway) {
	if g == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[strings.ToLower(strings.TrimSpace(g.Name()))] = g
}

// Resolve returns the gateway for name, falling back to the configured
// default when name is empty.
func (r *Registry) Resolve(name string) (Gateway, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.gateways[key]; ok {
		return g, nil
	}
	return nil, ErrUnknownGateway
}
