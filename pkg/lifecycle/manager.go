// Package lifecycle implements the Lifecycle Manager: it drives each
// discovered bundle through the Discovered -> Loaded -> Enabled <->
// Disabled -> Unloaded state machine, wiring Bundle Contexts at load and
// reversing Extension/Event Bus contributions at disable.
package lifecycle

import (
	"fmt"
	"log"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundlectx"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/eventbus"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/extension"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/registry"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/resolver"
)

// PermissionPolicy decides which of a bundle's manifest-declared
// permissions the host actually grants. The default policy grants
// everything declared.
type PermissionPolicy func(descriptor bundle.Descriptor, requested []hostapi.Permission) []hostapi.Permission

// GrantAll is the default PermissionPolicy: every manifest-declared
// permission is granted as requested.
func GrantAll(_ bundle.Descriptor, requested []hostapi.Permission) []hostapi.Permission {
	return requested
}

// Config constructs a Manager.
type Config struct {
	HostVersion       string
	BaseDataDirectory string
	Loader            *bundle.Loader
	Descriptors       *registry.DescriptorRegistry
	Extensions        *extension.Registry
	// Events is required by disable's unsubscribe_all call; spec.md's
	// constructor prose lists only loader/descriptor-registry/extension-
	// registry, but disable cannot satisfy its own contract without a
	// handle on the Event Bus, so it is threaded in here too.
	Events     *eventbus.Bus
	Permission PermissionPolicy
}

// Manager is the Lifecycle Manager.
type Manager struct {
	mu          sync.Mutex
	hostVersion string
	baseDataDir string
	loader      *bundle.Loader
	descriptors *registry.DescriptorRegistry
	extensions  *extension.Registry
	events      *eventbus.Bus
	permission  PermissionPolicy

	initialized bool
	down        bool
	loadOrder   []string
}

// New constructs a Manager from cfg. A nil cfg.Permission defaults to
// GrantAll.
func New(cfg Config) *Manager {
	policy := cfg.Permission
	if policy == nil {
		policy = GrantAll
	}
	return &Manager{
		hostVersion: cfg.HostVersion,
		baseDataDir: cfg.BaseDataDirectory,
		loader:      cfg.Loader,
		descriptors: cfg.Descriptors,
		extensions:  cfg.Extensions,
		events:      cfg.Events,
		permission:  policy,
	}
}

// Initialize is idempotent. The first call discovers compatible bundles,
// ingests their descriptors, resolves their dependency graph, records the
// blocked set as Failed(DependencyUnsatisfied), and loads every survivor
// in topological order. A circular dependency anywhere in the graph fails
// the whole call: the cycle's participants are recorded
// Failed(DependencyUnsatisfied) and the CircularDependencyError is
// returned without loading anything, including bundles outside the cycle.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	containers, err := m.loader.DiscoverCompatible()
	if err != nil {
		return fmt.Errorf("lifecycle: discovery failed: %w", err)
	}
	for _, c := range containers {
		m.descriptors.Add(c)
	}

	descMap, depsMap := m.snapshotGraph()

	result, err := resolver.Resolve(descMap, depsMap)
	if err != nil {
		cycleErr, ok := err.(*hostapi.CircularDependencyError)
		if !ok {
			return fmt.Errorf("lifecycle: resolution failed: %w", err)
		}
		// A cycle fails initialize outright: no survivor is loaded. The
		// participants are still recorded Failed so their state is
		// inspectable, but nothing gets a load attempt.
		for _, id := range cycleErr.Participants {
			if c, present := m.descriptors.Get(id); present {
				c.Fail(&hostapi.DependencyUnsatisfiedError{ID: id, Reason: "circular dependency"})
			}
		}
		return cycleErr
	}

	for id, reason := range result.Blocked {
		if c, present := m.descriptors.Get(id); present {
			c.Fail(&hostapi.DependencyUnsatisfiedError{ID: id, Reason: reason})
		}
	}

	for _, id := range result.LoadOrder {
		c, present := m.descriptors.Get(id)
		if !present {
			continue
		}
		if err := m.loadContainer(c); err != nil {
			log.Printf("[WARN] lifecycle: load failed for %s: %v", id, err)
		}
	}

	m.loadOrder = result.LoadOrder
	m.initialized = true
	return nil
}

// Load transitions a Discovered container into Loaded, running on_load.
// Explicit (rather than folded into Initialize) because the Hot Reloader
// calls it directly after re-discovering a changed artifact.
func (m *Manager) Load(id string) error {
	c, err := m.descriptors.GetOrFail(id)
	if err != nil {
		return err
	}
	if c.State != bundle.Discovered {
		return &hostapi.InvalidStateTransitionError{ID: id, From: string(c.State), To: string(bundle.Loaded)}
	}
	return m.loadContainer(c)
}

func (m *Manager) loadContainer(c *bundle.Container) error {
	id := c.Descriptor.ID
	granted := m.permission(c.Descriptor, c.Permissions)
	ctx, err := bundlectx.Builder{
		HostVersion:        m.hostVersion,
		BaseDataDirectory:  m.baseDataDir,
		BundleID:           id,
		GrantedPermissions: granted,
	}.Build()
	if err != nil {
		lerr := &hostapi.LifecycleError{ID: id, Phase: "load", Cause: err}
		c.Fail(lerr)
		return lerr
	}

	if err := c.Instance.OnLoad(ctx); err != nil {
		lerr := &hostapi.LifecycleError{ID: id, Phase: "on_load", Cause: err}
		c.Fail(lerr)
		return lerr
	}

	c.Context = ctx
	return c.TryTransition(bundle.Loaded)
}

// Enable requires current state Loaded or Disabled; it runs on_enable and
// transitions to Enabled. Idempotent on an already-Enabled bundle.
func (m *Manager) Enable(id string) error {
	c, err := m.descriptors.GetOrFail(id)
	if err != nil {
		return err
	}
	if c.State == bundle.Enabled {
		return nil
	}
	if c.State != bundle.Loaded && c.State != bundle.Disabled {
		return &hostapi.InvalidStateTransitionError{ID: id, From: string(c.State), To: string(bundle.Enabled)}
	}

	if err := c.Instance.OnEnable(); err != nil {
		return &hostapi.LifecycleError{ID: id, Phase: "on_enable", Cause: err}
	}
	return c.TryTransition(bundle.Enabled)
}

// Disable requires Enabled; it runs on_disable, unsubscribes every Event
// Bus subscription and Extension Registry contribution attributed to id,
// and transitions to Disabled. Idempotent on an already-Disabled bundle.
func (m *Manager) Disable(id string) error {
	c, err := m.descriptors.GetOrFail(id)
	if err != nil {
		return err
	}
	if c.State == bundle.Disabled {
		return nil
	}
	if c.State != bundle.Enabled {
		return &hostapi.InvalidStateTransitionError{ID: id, From: string(c.State), To: string(bundle.Disabled)}
	}

	if err := c.Instance.OnDisable(); err != nil {
		return &hostapi.LifecycleError{ID: id, Phase: "on_disable", Cause: err}
	}

	if m.events != nil {
		m.events.UnsubscribeAll(id)
	}
	if m.extensions != nil {
		m.extensions.UnregisterAll(id)
	}
	return c.TryTransition(bundle.Disabled)
}

// Unload requires Loaded, Disabled, or Failed; it runs on_unload
// (swallowing any error so state still reaches Unloaded), closes the
// bundle's namespace, and drops its Bundle Context. Calling Unload on an
// Enabled bundle is an InvalidStateTransition — it must be disabled
// first.
func (m *Manager) Unload(id string) error {
	c, err := m.descriptors.GetOrFail(id)
	if err != nil {
		return err
	}
	if c.State == bundle.Unloaded {
		return nil
	}
	if c.State == bundle.Enabled {
		return &hostapi.InvalidStateTransitionError{ID: id, From: string(c.State), To: string(bundle.Unloaded)}
	}

	if err := c.Instance.OnUnload(); err != nil {
		log.Printf("[WARN] lifecycle: on_unload error for %s: %v", id, err)
	}
	if err := bundle.Close(c); err != nil {
		log.Printf("[WARN] lifecycle: namespace close error for %s: %v", id, err)
	}
	c.Context = nil
	return c.TryTransition(bundle.Unloaded)
}

// Shutdown is idempotent. The first call disables every Enabled bundle,
// unloads every Loaded/Disabled/Failed bundle, then clears both
// registries. Per-bundle callback errors are isolated and logged, never
// propagated.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil
	}

	for _, c := range m.descriptors.Enabled() {
		if err := m.Disable(c.Descriptor.ID); err != nil {
			log.Printf("[WARN] lifecycle: shutdown disable error for %s: %v", c.Descriptor.ID, err)
		}
	}

	toUnload := m.descriptors.Find(func(c *bundle.Container) bool {
		return c.State == bundle.Loaded || c.State == bundle.Disabled || c.State == bundle.Failed
	})
	for _, c := range toUnload {
		if err := m.Unload(c.Descriptor.ID); err != nil {
			log.Printf("[WARN] lifecycle: shutdown unload error for %s: %v", c.Descriptor.ID, err)
		}
	}

	m.descriptors.Clear()
	if m.extensions != nil {
		m.extensions.Clear()
	}
	m.down = true
	return nil
}

// LoadOrder returns the topological order Initialize computed, preserved
// across subsequent enable/disable cycles.
func (m *Manager) LoadOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadOrder...)
}

func (m *Manager) snapshotGraph() (map[string]bundle.Descriptor, map[string][]bundle.Dependency) {
	all := m.descriptors.All()
	descMap := make(map[string]bundle.Descriptor, len(all))
	depsMap := make(map[string][]bundle.Dependency, len(all))
	for _, c := range all {
		descMap[c.Descriptor.ID] = c.Descriptor
		depsMap[c.Descriptor.ID] = c.Dependencies
	}
	return descMap, depsMap
}
