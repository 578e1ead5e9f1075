// Package service implements the Service Registry: a thread-safe map
// from service-interface type to its providers, with late-bound
// references.
package service

import (
	"sort"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// PermissionPredicate, if configured, gates registration by provider id.
// A nil predicate permits every registration.
type PermissionPredicate func(providerID string) bool

// Registry is the thread-safe Service Registry: one implementation per
// (service type, provider) pair.
type Registry struct {
	mu         sync.RWMutex
	byType     map[string]map[string]any // service type -> provider id -> impl
	permission PermissionPredicate
}

// New returns an empty Registry. permission may be nil to permit every
// registration.
func New(permission PermissionPredicate) *Registry {
	return &Registry{byType: make(map[string]map[string]any), permission: permission}
}

// Register registers impl as providerID's implementation of
// serviceType. A second registration by the same provider for the same
// type is an AlreadyRegisteredError; a permission predicate that denies
// providerID is a SecurityViolationError(PermissionDenied).
func (r *Registry) Register(serviceType string, impl any, providerID string) error {
	if serviceType == "" {
		return &hostapi.NullArgumentError{Name: "service_type"}
	}
	if impl == nil {
		return &hostapi.NullArgumentError{Name: "impl"}
	}
	if providerID == "" {
		return &hostapi.NullArgumentError{Name: "provider_id"}
	}

	if r.permission != nil && !r.permission(providerID) {
		return &hostapi.SecurityViolationError{ID: providerID, Kind: hostapi.PermissionDenied, Message: "service registration denied"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	providers := r.byType[serviceType]
	if providers == nil {
		providers = make(map[string]any)
		r.byType[serviceType] = providers
	}
	if _, exists := providers[providerID]; exists {
		return &hostapi.AlreadyRegisteredError{ServiceType: serviceType, ProviderID: providerID}
	}
	providers[providerID] = impl
	return nil
}

// Services returns an immutable snapshot of every implementation of
// serviceType, ordered by provider id.
func (r *Registry) Services(serviceType string) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.byType[serviceType]
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, providers[id])
	}
	return out
}

// Service returns providerID's implementation of serviceType, if any.
func (r *Registry) Service(serviceType, providerID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := r.byType[serviceType]
	if providers == nil {
		return nil, false
	}
	impl, ok := providers[providerID]
	return impl, ok
}

// AnyService returns an arbitrary (but deterministic: lowest provider
// id) implementation of serviceType, if any exist.
func (r *Registry) AnyService(serviceType string) (any, bool) {
	services := r.Services(serviceType)
	if len(services) == 0 {
		return nil, false
	}
	return services[0], true
}

// Has reports whether any provider implements serviceType.
func (r *Registry) Has(serviceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[serviceType]) > 0
}

// Providers returns the set of provider ids implementing serviceType.
func (r *Registry) Providers(serviceType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := r.byType[serviceType]
	out := make([]string, 0, len(providers))
	for id := range providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ProviderCount returns the number of distinct providers implementing
// serviceType.
func (r *Registry) ProviderCount(serviceType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[serviceType])
}

// ServiceTypeCount returns the number of distinct service types with at
// least one provider.
func (r *Registry) ServiceTypeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, providers := range r.byType {
		if len(providers) > 0 {
			count++
		}
	}
	return count
}

// UnregisterAll removes every registration by providerID across every
// service type. Silent (no error) if providerID registered nothing.
func (r *Registry) UnregisterAll(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for serviceType, providers := range r.byType {
		delete(providers, providerID)
		if len(providers) == 0 {
			delete(r.byType, serviceType)
		}
	}
}

// Reference returns a late-binding ServiceReference for serviceType.
func (r *Registry) Reference(serviceType string) *ServiceReference {
	return &ServiceReference{registry: r, serviceType: serviceType}
}
