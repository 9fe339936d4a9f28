package assist

import (
	"fmt"
	"strings"
)

// Registry resolves configured assist providers by stable profile key.
//
// The provider map is copied on construction and remains immutable afterward,
// so Resolve is concurrency-safe without locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry constructs one immutable assist provider registry.
func NewRegistry(providers map[string]Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("new assist registry: empty providers")
	}

	cloned := make(map[string]Provider, len(providers))
	for key, provider := range providers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("new assist registry: empty provider key")
		}
		if provider == nil {
			return nil, fmt.Errorf("new assist registry: provider %s is nil", trimmedKey)
		}
		if _, exists := cloned[trimmedKey]; exists {
			return nil, fmt.Errorf("new assist registry: duplicate provider key %s", trimmedKey)
		}
		cloned[trimmedKey] = provider
	}

	return &Registry{providers: cloned}, nil
}

// Resolve returns one configured provider by key.
func (r *Registry) Resolve(provider string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("resolve assist provider: nil registry")
	}

	trimmed := strings.TrimSpace(provider)
	if trimmed == "" {
		return nil, fmt.Errorf("resolve assist provider: empty provider key")
	}

	resolved, exists := r.providers[trimmed]
	if !exists {
		return nil, fmt.Errorf("resolve assist provider: provider %s is not configured", trimmed)
	}

	return resolved, nil
}
