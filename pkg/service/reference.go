package service

// ServiceReference is a late-binding handle to a service type: each call
// to Get or IsAvailable resolves against the registry's current state,
// rather than the state at the time the reference was created.
type ServiceReference struct {
	registry    *Registry
	serviceType string
}

// Get resolves the reference against the registry's current state.
func (s *ServiceReference) Get() (any, bool) {
	return s.registry.AnyService(s.serviceType)
}

// IsAvailable reports whether the reference currently resolves to an
// implementation.
func (s *ServiceReference) IsAvailable() bool {
	return s.registry.Has(s.serviceType)
}
