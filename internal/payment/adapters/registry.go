package adapters

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/eksporyuk/internal/payment/domain"
)

// Registry maps provider names to adapters. Adapters are built once at
// startup so a misconfigured verifier stops the service instead of failing
// open at request time.
type Registry struct {
	factories map[string]domain.AdapterFactory
	adapters  map[string]domain.PaymentAdapter
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{
		factories: map[string]domain.AdapterFactory{},
		adapters:  map[string]domain.PaymentAdapter{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		registry.factories[provider] = factory
	}
	return registry
}

// Init constructs an adapter for every config. Any failure is returned with
// the provider name attached.
func (r *Registry) Init(configs ...domain.AdapterConfig) error {
	for _, cfg := range configs {
		adapter, err := r.NewAdapter(cfg.Provider, cfg)
		if err != nil {
			return fmt.Errorf("init %s adapter: %w", cfg.Provider, err)
		}
		r.adapters[normalize(cfg.Provider)] = adapter
	}
	return nil
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(provider)]
	return ok
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

// Adapter returns the initialized adapter for provider.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
