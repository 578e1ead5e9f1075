package registry

import (
	"testing"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func container(id string, state bundle.LifecycleState) *bundle.Container {
	c := bundle.NewContainer(bundle.Descriptor{ID: id, Version: "1.0.0"}, nil, nil)
	c.ForceState(state)
	return c
}

func TestDescriptorRegistry_AddIsUpsert(t *testing.T) {
	r := New()
	r.Add(container("a", bundle.Discovered))
	r.Add(container("a", bundle.Loaded))

	c, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, bundle.Loaded, c.State)
	assert.Len(t, r.All(), 1)
}

func TestDescriptorRegistry_RemoveAndGetOrFail(t *testing.T) {
	r := New()
	r.Add(container("a", bundle.Loaded))

	removed, ok := r.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.Descriptor.ID)

	_, err := r.GetOrFail("a")
	require.Error(t, err)
	var notFound *hostapi.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDescriptorRegistry_QueriesByState(t *testing.T) {
	r := New()
	r.Add(container("a", bundle.Enabled))
	r.Add(container("b", bundle.Disabled))
	r.Add(container("c", bundle.Failed))
	r.Add(container("d", bundle.Loaded))

	assert.Len(t, r.Active(), 3) // Loaded, Enabled, Disabled
	assert.Len(t, r.Enabled(), 1)
	assert.Len(t, r.Failed(), 1)

	histogram := r.StateHistogram()
	assert.Equal(t, 1, histogram[bundle.Enabled])
	assert.Equal(t, 1, histogram[bundle.Disabled])
}

func TestDescriptorRegistry_Find(t *testing.T) {
	r := New()
	r.Add(container("a", bundle.Loaded))
	r.Add(container("ab", bundle.Loaded))
	r.Add(container("z", bundle.Loaded))

	found := r.Find(func(c *bundle.Container) bool {
		return len(c.Descriptor.ID) == 1
	})
	assert.Len(t, found, 2)
}

func TestDescriptorRegistry_SnapshotIsNotLive(t *testing.T) {
	r := New()
	r.Add(container("a", bundle.Loaded))

	snapshot := r.All()
	r.Add(container("b", bundle.Loaded))

	assert.Len(t, snapshot, 1)
	assert.Len(t, r.All(), 2)
}
