// Package extension implements the Extension Registry: a thread-safe
// map from extension-point type to an ordered list of contributions,
// keyed by contributing bundle.
package extension

import (
	"fmt"
	"sort"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// DefaultBundlePriority is the priority assigned to a contribution that
// declares none. Host built-ins are expected (by convention, not
// enforcement) to occupy [0,99]; bundle contributions [100,∞).
const DefaultBundlePriority = 100

// Prioritized is an optional capability a contributed value may
// implement to control its PriorityOrder position.
type Prioritized interface {
	Priority() int
}

// Ordered is an alternate optional capability, for extension points that
// use the name "order" instead of "priority".
type Ordered interface {
	Order() int
}

// Identifiable is an optional capability a contributed value may
// implement to control its Alphabetical sort key. Values that don't
// implement it fall back to a type-qualified name.
type Identifiable interface {
	ID() string
}

// ConflictPolicy is the closed set of iteration-order rules applied to
// Get.
type ConflictPolicy int

const (
	PriorityOrder ConflictPolicy = iota
	RegistrationOrder
	Alphabetical
)

type contribution struct {
	bundleID string
	value    any
	seq      int
}

// Registry is the thread-safe Extension Registry.
type Registry struct {
	mu            sync.RWMutex
	byType        map[string][]*contribution
	nextSeq       int
	defaultPolicy ConflictPolicy
}

// New returns an empty Registry. defaultPolicy, if given, becomes the
// policy Get uses when no override is given; it defaults to
// PriorityOrder.
func New(defaultPolicy ...ConflictPolicy) *Registry {
	policy := PriorityOrder
	if len(defaultPolicy) > 0 {
		policy = defaultPolicy[0]
	}
	return &Registry{byType: make(map[string][]*contribution), defaultPolicy: policy}
}

// SetDefaultPolicy changes the policy Get falls back to when called
// without an explicit override.
func (r *Registry) SetDefaultPolicy(policy ConflictPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultPolicy = policy
}

// Register appends value as a contribution to extensionType, attributed
// to bundleID (empty string for a host built-in).
func (r *Registry) Register(bundleID, extensionType string, value any) error {
	if extensionType == "" {
		return &hostapi.NullArgumentError{Name: "extension_type"}
	}
	if value == nil {
		return &hostapi.NullArgumentError{Name: "value"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	r.byType[extensionType] = append(r.byType[extensionType], &contribution{
		bundleID: bundleID,
		value:    value,
		seq:      r.nextSeq,
	})
	return nil
}

// Unregister removes the first contribution under extensionType equal
// (by pointer/value identity) to value. Returns whether one was removed.
func (r *Registry) Unregister(extensionType string, value any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byType[extensionType]
	for i, c := range list {
		if c.value == value {
			r.byType[extensionType] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// UnregisterAll removes every contribution keyed to bundleID across
// every extension type, returning the count removed.
func (r *Registry) UnregisterAll(bundleID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for extensionType, list := range r.byType {
		kept := list[:0:0]
		for _, c := range list {
			if c.bundleID == bundleID {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		r.byType[extensionType] = kept
	}
	return removed
}

// Get returns an immutable snapshot of extensionType's contributions,
// ordered by the registry's active conflict policy (PriorityOrder unless
// changed via SetDefaultPolicy or the New(policy) constructor).
func (r *Registry) Get(extensionType string) []any {
	r.mu.RLock()
	policy := r.defaultPolicy
	r.mu.RUnlock()
	return r.GetWithPolicy(extensionType, policy)
}

// GetWithPolicy returns an immutable snapshot of extensionType's
// contributions ordered by policy, overriding the registry's active
// conflict policy for this one retrieval.
func (r *Registry) GetWithPolicy(extensionType string, policy ConflictPolicy) []any {
	r.mu.RLock()
	list := append([]*contribution{}, r.byType[extensionType]...)
	r.mu.RUnlock()

	sorted := sortContributions(list, policy)
	out := make([]any, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, c.value)
	}
	return out
}

func sortContributions(list []*contribution, policy ConflictPolicy) []*contribution {
	switch policy {
	case RegistrationOrder:
		sort.SliceStable(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	case Alphabetical:
		sort.SliceStable(list, func(i, j int) bool { return alphaKey(list[i]) < alphaKey(list[j]) })
	default: // PriorityOrder
		sort.SliceStable(list, func(i, j int) bool {
			pi, pj := priorityOf(list[i].value), priorityOf(list[j].value)
			if pi != pj {
				return pi < pj
			}
			return list[i].seq < list[j].seq
		})
	}
	return list
}

func priorityOf(value any) int {
	if p, ok := value.(Prioritized); ok {
		return p.Priority()
	}
	if o, ok := value.(Ordered); ok {
		return o.Order()
	}
	return DefaultBundlePriority
}

func alphaKey(c *contribution) string {
	if id, ok := c.value.(Identifiable); ok {
		return id.ID()
	}
	return typeQualifiedName(c.value)
}

func typeQualifiedName(value any) string {
	return fmt.Sprintf("%T", value)
}

// Has reports whether extensionType has at least one contribution.
func (r *Registry) Has(extensionType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[extensionType]) > 0
}

// Count returns the number of contributions registered for
// extensionType.
func (r *Registry) Count(extensionType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[extensionType])
}

// Types returns the set of extension types with at least one
// contribution.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t, list := range r.byType {
		if len(list) > 0 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Total returns the number of contributions across every extension
// type.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, list := range r.byType {
		total += len(list)
	}
	return total
}

// Clear removes every contribution from every extension type.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = make(map[string][]*contribution)
}
