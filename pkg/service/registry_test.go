package service

import (
	"testing"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taxCalculator struct{ name string }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New(nil)
	impl := taxCalculator{name: "vat"}
	require.NoError(t, r.Register("TaxCalculator", impl, "bundleA"))

	got, ok := r.Service("TaxCalculator", "bundleA")
	require.True(t, ok)
	assert.Equal(t, impl, got)

	any, ok := r.AnyService("TaxCalculator")
	require.True(t, ok)
	assert.Equal(t, impl, any)
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("TaxCalculator", taxCalculator{name: "vat"}, "bundleA"))

	err := r.Register("TaxCalculator", taxCalculator{name: "vat2"}, "bundleA")
	require.Error(t, err)
	var dup *hostapi.AlreadyRegisteredError
	require.ErrorAs(t, err, &dup)
}

func TestRegistry_PermissionDenied(t *testing.T) {
	r := New(func(providerID string) bool { return providerID == "trusted" })

	err := r.Register("TaxCalculator", taxCalculator{}, "untrusted")
	require.Error(t, err)
	var secErr *hostapi.SecurityViolationError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, hostapi.PermissionDenied, secErr.Kind)

	require.NoError(t, r.Register("TaxCalculator", taxCalculator{}, "trusted"))
}

func TestRegistry_UnregisterAll(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("TaxCalculator", taxCalculator{}, "bundleA"))
	require.NoError(t, r.Register("Exporter", taxCalculator{}, "bundleA"))

	r.UnregisterAll("bundleA")
	assert.False(t, r.Has("TaxCalculator"))
	assert.False(t, r.Has("Exporter"))

	// Silent on unknown provider.
	r.UnregisterAll("unknown")
}

func TestRegistry_ProvidersAndCounts(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("TaxCalculator", taxCalculator{}, "bundleA"))
	require.NoError(t, r.Register("TaxCalculator", taxCalculator{}, "bundleB"))

	assert.ElementsMatch(t, []string{"bundleA", "bundleB"}, r.Providers("TaxCalculator"))
	assert.Equal(t, 2, r.ProviderCount("TaxCalculator"))
	assert.Equal(t, 1, r.ServiceTypeCount())
}

func TestServiceReference_LateBinding(t *testing.T) {
	r := New(nil)
	ref := r.Reference("TaxCalculator")

	assert.False(t, ref.IsAvailable())
	_, ok := ref.Get()
	assert.False(t, ok)

	require.NoError(t, r.Register("TaxCalculator", taxCalculator{name: "vat"}, "bundleA"))
	assert.True(t, ref.IsAvailable())
	got, ok := ref.Get()
	require.True(t, ok)
	assert.Equal(t, taxCalculator{name: "vat"}, got)
}

func TestRegistry_NullArguments(t *testing.T) {
	r := New(nil)
	require.Error(t, r.Register("", taxCalculator{}, "bundleA"))
	require.Error(t, r.Register("TaxCalculator", nil, "bundleA"))
	require.Error(t, r.Register("TaxCalculator", taxCalculator{}, ""))
}
