package hostapi

import "fmt"

// NotFoundError is raised when a lookup by bundle id fails.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("bundle not found: %s", e.ID)
}

// InvalidStateTransitionError is raised when a requested lifecycle
// transition is not in the allowed edge set.
type InvalidStateTransitionError struct {
	ID       string
	From, To string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for %s: %s -> %s", e.ID, e.From, e.To)
}

// LifecycleError wraps a panic/error raised by a bundle's lifecycle
// callback.
type LifecycleError struct {
	ID    string
	Phase string
	Cause error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle error for %s during %s: %v", e.ID, e.Phase, e.Cause)
}

func (e *LifecycleError) Unwrap() error {
	return e.Cause
}

// DependencyUnsatisfiedError records why a bundle was blocked from
// loading: a missing required dependency, a version mismatch, or a
// blocked upstream dependency.
type DependencyUnsatisfiedError struct {
	ID     string
	Reason string
}

func (e *DependencyUnsatisfiedError) Error() string {
	return fmt.Sprintf("dependency unsatisfied for %s: %s", e.ID, e.Reason)
}

// CircularDependencyError is raised by the resolver when a dependency
// cycle is detected.
type CircularDependencyError struct {
	Participants []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency among: %v", e.Participants)
}

// SecurityViolationKind classifies a SecurityViolationError.
type SecurityViolationKind string

const (
	InvalidSignature  SecurityViolationKind = "InvalidSignature"
	UnsignedBundle    SecurityViolationKind = "UnsignedBundle"
	UntrustedPublisher SecurityViolationKind = "UntrustedPublisher"
	Revoked           SecurityViolationKind = "Revoked"
	PermissionDenied  SecurityViolationKind = "PermissionDenied"
)

// SecurityViolationError is raised when a bundle fails the trust gate or
// a permission check.
type SecurityViolationError struct {
	ID      string
	Kind    SecurityViolationKind
	Message string
}

func (e *SecurityViolationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("security violation for %s (%s): %s", e.ID, e.Kind, e.Message)
	}
	return fmt.Sprintf("security violation for %s: %s", e.ID, e.Kind)
}

// RevocationError is raised when a revocation list file is malformed.
type RevocationError struct {
	Reason string
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("revocation list error: %s", e.Reason)
}

// AlreadyRegisteredError is raised on a duplicate service registration by
// the same provider for the same service type.
type AlreadyRegisteredError struct {
	ServiceType string
	ProviderID  string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("service %s already registered by provider %s", e.ServiceType, e.ProviderID)
}

// NullArgumentError is raised when a required argument is absent.
type NullArgumentError struct {
	Name string
}

func (e *NullArgumentError) Error() string {
	return fmt.Sprintf("required argument missing: %s", e.Name)
}
