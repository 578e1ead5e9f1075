// Package bundle implements the Bundle Loader: discovering bundle
// artifacts on disk, gating them through the trust verifier, and
// instantiating each one's isolated namespace. It also defines the
// Bundle Container — the lifecycle state machine wrapping a discovered
// bundle — since the container's identity and state are a property of a
// loaded artifact, not of any one downstream consumer.
package bundle

import (
	"fmt"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundlectx"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// LifecycleState is a bundle's position in the state machine.
type LifecycleState string

const (
	Discovered LifecycleState = "Discovered"
	Loaded     LifecycleState = "Loaded"
	Enabled    LifecycleState = "Enabled"
	Disabled   LifecycleState = "Disabled"
	Failed     LifecycleState = "Failed"
	Unloaded   LifecycleState = "Unloaded"
)

// legalTransitions is the fixed edge set from spec.md's state diagram.
var legalTransitions = map[LifecycleState]map[LifecycleState]bool{
	Discovered: {Loaded: true, Failed: true},
	Loaded:     {Enabled: true, Unloaded: true, Failed: true},
	Enabled:    {Disabled: true},
	Disabled:   {Enabled: true, Unloaded: true},
	Failed:     {Unloaded: true},
	Unloaded:   {},
}

// Descriptor is the immutable Bundle Descriptor: identity, display name,
// version, and the minimum host version it requires.
type Descriptor struct {
	ID             string
	HumanName      string
	Version        string
	Summary        string
	Author         string
	MinHostVersion string
	Capabilities   []string
}

// Dependency is a single dependency declaration on another bundle.
type Dependency struct {
	TargetID string
	Range    string
	Optional bool
}

// Instance is the set of lifecycle callbacks a bundle exposes. Bundles
// that do not implement a given phase (e.g. no on_enable behaviour) are
// represented by NoOpInstance's no-op methods.
type Instance interface {
	OnLoad(ctx *bundlectx.Context) error
	OnEnable() error
	OnDisable() error
	OnUnload() error
}

// StatefulBundle is an optional capability an Instance may additionally
// implement to participate in hot-reload state preservation.
type StatefulBundle interface {
	RetrieveState() (any, error)
	RestoreState(state any) error
}

// NoOpInstance is the default Instance for bundles that implement no
// lifecycle callbacks (pure manifest/data bundles, or tests exercising
// the state machine without a real artifact).
type NoOpInstance struct{}

func (NoOpInstance) OnLoad(*bundlectx.Context) error { return nil }
func (NoOpInstance) OnEnable() error                 { return nil }
func (NoOpInstance) OnDisable() error                 { return nil }
func (NoOpInstance) OnUnload() error                  { return nil }

// Container is the Bundle Container: a discovered bundle's descriptor,
// its loader-specific namespace handle, its current lifecycle state,
// its Bundle Context once loaded, and its failure cause once failed.
// Identity is by Descriptor.ID. Containers are exclusively owned by the
// Descriptor Registry; every other component holds only the id.
type Container struct {
	Descriptor   Descriptor
	Dependencies []Dependency
	Permissions  []hostapi.Permission

	Handle   *Namespace
	Instance Instance

	State        LifecycleState
	Context      *bundlectx.Context
	FailureCause error
}

// NewContainer returns a freshly discovered Container in state
// Discovered.
func NewContainer(descriptor Descriptor, deps []Dependency, perms []hostapi.Permission) *Container {
	return &Container{
		Descriptor:   descriptor,
		Dependencies: deps,
		Permissions:  perms,
		Instance:     NoOpInstance{},
		State:        Discovered,
	}
}

// TryTransition validates that the container may move from its current
// state to `to`, per the fixed edge set, and applies the move. It does
// not run any lifecycle callback; callers invoke those separately.
func (c *Container) TryTransition(to LifecycleState) error {
	allowed := legalTransitions[c.State]
	if !allowed[to] {
		return &hostapi.InvalidStateTransitionError{
			ID:   c.Descriptor.ID,
			From: string(c.State),
			To:   string(to),
		}
	}
	c.State = to
	return nil
}

// ForceState overrides the container's state without edge validation.
// Test-only: production code paths must use TryTransition.
func (c *Container) ForceState(s LifecycleState) {
	c.State = s
}

// Fail transitions the container into Failed with the given cause,
// through TryTransition's edge check: Failed is reachable only from
// Discovered and Loaded, and from any other state Fail returns an error
// and records no cause.
func (c *Container) Fail(cause error) error {
	if err := c.TryTransition(Failed); err != nil {
		return fmt.Errorf("cannot record failure: %w", err)
	}
	c.FailureCause = cause
	return nil
}
