package adapters_test

import (
	"testing"

	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/payment/adapters"
	"github.com/smallbiznis/eksporyuk/internal/payment/adapters/xendit"
	"github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInitAndLookup(t *testing.T) {
	registry := adapters.NewRegistry(xendit.NewFactory(nil), nil)

	assert.True(t, registry.ProviderExists(" XENDIT "))
	assert.False(t, registry.ProviderExists("stripe"))

	_, err := registry.Adapter("xendit")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	require.NoError(t, registry.Init(domain.AdapterConfig{
		Provider: "xendit",
		Config:   map[string]any{"webhook_token": "secret", "verification": config.VerificationToken},
	}))
	adapter, err := registry.Adapter("Xendit")
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

func TestRegistryInitFailsClosed(t *testing.T) {
	registry := adapters.NewRegistry(xendit.NewFactory(nil))

	err := registry.Init(domain.AdapterConfig{
		Provider: "xendit",
		Config:   map[string]any{"verification": config.VerificationHMAC},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = registry.Init(domain.AdapterConfig{Provider: "stripe"})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var nilRegistry *adapters.Registry
	_, err = nilRegistry.Adapter("xendit")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
