// Package registry implements the Descriptor Registry: a thread-safe
// indexed collection of Bundle Containers keyed by bundle id.
package registry

import (
	"sort"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// DescriptorRegistry holds discovered bundles keyed by id. Insertion
// replaces any existing entry with the same id. Every query returns a
// snapshot, never a live view.
type DescriptorRegistry struct {
	mu         sync.RWMutex
	containers map[string]*bundle.Container
}

// New returns an empty DescriptorRegistry.
func New() *DescriptorRegistry {
	return &DescriptorRegistry{containers: make(map[string]*bundle.Container)}
}

// Add upserts a container, replacing any existing entry with the same
// descriptor id.
func (r *DescriptorRegistry) Add(c *bundle.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.Descriptor.ID] = c
}

// Remove removes and returns the container for id, if present.
func (r *DescriptorRegistry) Remove(id string) (*bundle.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if ok {
		delete(r.containers, id)
	}
	return c, ok
}

// Get returns the container for id, if present.
func (r *DescriptorRegistry) Get(id string) (*bundle.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[id]
	return c, ok
}

// GetOrFail returns the container for id, or a *hostapi.NotFoundError.
func (r *DescriptorRegistry) GetOrFail(id string) (*bundle.Container, error) {
	c, ok := r.Get(id)
	if !ok {
		return nil, &hostapi.NotFoundError{ID: id}
	}
	return c, nil
}

// All returns a snapshot of every registered container, ordered by id.
func (r *DescriptorRegistry) All() []*bundle.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(func(*bundle.Container) bool { return true })
}

// ByState returns a snapshot of containers currently in state s.
func (r *DescriptorRegistry) ByState(s bundle.LifecycleState) []*bundle.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(func(c *bundle.Container) bool { return c.State == s })
}

// Active returns containers in Loaded, Enabled, or Disabled.
func (r *DescriptorRegistry) Active() []*bundle.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(func(c *bundle.Container) bool {
		return c.State == bundle.Loaded || c.State == bundle.Enabled || c.State == bundle.Disabled
	})
}

// Loaded returns containers in Loaded, Enabled, or Disabled — the same
// set as Active, named separately per spec.md §4.5.
func (r *DescriptorRegistry) Loaded() []*bundle.Container {
	return r.Active()
}

// Enabled returns containers currently Enabled.
func (r *DescriptorRegistry) Enabled() []*bundle.Container {
	return r.ByState(bundle.Enabled)
}

// Failed returns containers currently Failed.
func (r *DescriptorRegistry) Failed() []*bundle.Container {
	return r.ByState(bundle.Failed)
}

// Find returns a snapshot of containers satisfying predicate.
func (r *DescriptorRegistry) Find(predicate func(*bundle.Container) bool) []*bundle.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(predicate)
}

// StateHistogram returns a count of containers per state.
func (r *DescriptorRegistry) StateHistogram() map[bundle.LifecycleState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	histogram := make(map[bundle.LifecycleState]int)
	for _, c := range r.containers {
		histogram[c.State]++
	}
	return histogram
}

// Clear removes every container from the registry.
func (r *DescriptorRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = make(map[string]*bundle.Container)
}

// snapshotLocked must be called with r.mu held (for reading).
func (r *DescriptorRegistry) snapshotLocked(predicate func(*bundle.Container) bool) []*bundle.Container {
	ids := make([]string, 0, len(r.containers))
	for id := range r.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*bundle.Container, 0, len(ids))
	for _, id := range ids {
		c := r.containers[id]
		if predicate(c) {
			out = append(out, c)
		}
	}
	return out
}
