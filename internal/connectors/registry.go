package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openindex-dev/openindex/internal/core/domain"
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// Registry resolves provider kinds to connector factories. It owns no
// per-account state; accounts carry their own credentials and cursors.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.ProviderKind]driven.ConnectorFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.ProviderKind]driven.ConnectorFactory)}
}

// Register binds a factory to a provider kind, replacing any previous
// binding.
func (r *Registry) Register(kind domain.ProviderKind, factory driven.ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Create builds a connector for the kind.
func (r *Registry) Create(kind domain.ProviderKind) (driven.Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no connector registered for %q", domain.ErrInvalidConfiguration, kind)
	}
	return factory.Create()
}

// SupportsOAuth reports whether the kind's connector can run an OAuth
// flow.
func (r *Registry) SupportsOAuth(kind domain.ProviderKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[kind]
	return ok && factory.SupportsOAuth()
}

// SupportsWebhooks reports whether the kind's connector can receive
// provider push notifications.
func (r *Registry) SupportsWebhooks(kind domain.ProviderKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[kind]
	return ok && factory.SupportsWebhooks()
}

// Kinds returns the registered provider kinds, sorted.
func (r *Registry) Kinds() []domain.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]domain.ProviderKind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
