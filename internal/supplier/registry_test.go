package supplier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesAliases(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewSandboxAdapter("sandbox"), "sbx", "TEST")

	for _, code := range []string{"sandbox", "SANDBOX", "sbx", "test", " test "} {
		adapter, err := registry.Resolve(code)
		require.NoError(t, err, "code %q", code)
		assert.Equal(t, "sandbox", adapter.Code())
	}
}

func TestRegistryMissIsRetryable(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve("unknown")
	require.Error(t, err)

	adapterErr, ok := err.(*AdapterError)
	require.True(t, ok)
	assert.Equal(t, CodeAdapterNotFound, adapterErr.Code)
	assert.True(t, adapterErr.Retryable)
	assert.Equal(t, "unknown", adapterErr.Details["supplier"])
}
