// Package hotreload watches registered bundle artifacts on disk and
// drives a debounced disable -> unload -> load -> enable sequence
// through the Lifecycle Manager when one changes.
package hotreload

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/lifecycle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/registry"
)

// DefaultDebounce is the window within which repeated filesystem events
// for one artifact coalesce into a single reload.
const DefaultDebounce = 500 * time.Millisecond

// Listener is notified of reload lifecycle events. Any nil field is
// treated as a no-op.
type Listener struct {
	OnStarted   func(bundleID string)
	OnCompleted func(bundleID string, success bool)
	OnFailed    func(bundleID string, err error)
}

func (l Listener) started(id string) {
	if l.OnStarted != nil {
		l.OnStarted(id)
	}
}
func (l Listener) completed(id string, success bool) {
	if l.OnCompleted != nil {
		l.OnCompleted(id, success)
	}
}
func (l Listener) failed(id string, err error) {
	if l.OnFailed != nil {
		l.OnFailed(id, err)
	}
}

// Config configures a Reloader.
type Config struct {
	// Enabled gates the entire component: when false, Start never starts
	// the watch loop, matching the host-flag-controlled Non-goal.
	Enabled bool
	// WatchRoot must be an existing directory; it is not itself watched
	// recursively, it is validated as the sanity check spec.md requires
	// before any individual artifact is registered.
	WatchRoot string
	// Debounce is the coalescing window; defaults to DefaultDebounce, and
	// must be strictly positive if set explicitly.
	Debounce time.Duration

	Manager     *lifecycle.Manager
	Loader      *bundle.Loader
	Descriptors *registry.DescriptorRegistry
	Logger      *logrus.Logger
	Listener    Listener
}

// Reloader is the Hot Reloader.
type Reloader struct {
	cfg Config
	fsw *fsWatcher

	mu       sync.Mutex
	pathToID map[string]string
	idToPath map[string]string
	timers   map[string]*time.Timer
	started  bool
	stopped  bool
}

// New validates cfg and constructs a Reloader. The underlying filesystem
// watcher is created but not started; call Start.
func New(cfg Config) (*Reloader, error) {
	if cfg.WatchRoot == "" {
		return nil, fmt.Errorf("hotreload: watch root is required")
	}
	info, err := os.Stat(cfg.WatchRoot)
	if err != nil {
		return nil, fmt.Errorf("hotreload: watch root %q: %w", cfg.WatchRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hotreload: watch root %q is not a directory", cfg.WatchRoot)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("hotreload: debounce must be strictly positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	r := &Reloader{
		cfg:      cfg,
		pathToID: make(map[string]string),
		idToPath: make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}

	fsw, err := newFsWatcher(cfg.Logger, r.handleEvent)
	if err != nil {
		return nil, err
	}
	r.fsw = fsw
	return r, nil
}

// Start is idempotent and non-blocking. It never starts the watch loop
// unless cfg.Enabled.
func (r *Reloader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.cfg.Enabled || r.started {
		return
	}
	r.fsw.run()
	r.started = true
}

// Stop is idempotent and reclaims the watcher. In-flight reloads
// complete; pending debounce timers are cancelled.
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	for _, timer := range r.timers {
		timer.Stop()
	}
	r.timers = make(map[string]*time.Timer)
	if r.started {
		r.fsw.stop()
	}
	r.stopped = true
}

// Register records artifactPath, normalized to an absolute path, as the
// artifact backing bundleID and begins watching it.
func (r *Reloader) Register(bundleID, artifactPath string) error {
	abs, err := filepath.Abs(artifactPath)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fsw.add(abs); err != nil {
		return err
	}
	r.pathToID[abs] = bundleID
	r.idToPath[bundleID] = abs
	return nil
}

// Unregister stops watching bundleID's artifact and cancels any pending
// debounce timer for it.
func (r *Reloader) Unregister(bundleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.idToPath[bundleID]
	if !ok {
		return
	}
	r.fsw.remove(path)
	delete(r.pathToID, path)
	delete(r.idToPath, bundleID)
	if timer, ok := r.timers[bundleID]; ok {
		timer.Stop()
		delete(r.timers, bundleID)
	}
}

// handleEvent is the fsWatcher's onUpdateFn: it resolves the event's path
// to a registered bundle id and (re)arms that bundle's debounce timer.
// Events for unregistered paths are ignored.
func (r *Reloader) handleEvent(_ *logrus.Logger, event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	r.mu.Lock()
	id, ok := r.pathToID[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	if timer, exists := r.timers[id]; exists {
		timer.Stop()
	}
	r.timers[id] = time.AfterFunc(r.cfg.Debounce, func() { r.Reload(id) })
	r.mu.Unlock()
}

// Reload executes disable -> unload -> load -> enable for bundleID.
// State is preserved across the cycle when the bundle's current instance
// implements StatefulBundle; any error from RetrieveState is caught and
// the reload proceeds without state.
func (r *Reloader) Reload(bundleID string) {
	r.cfg.Listener.started(bundleID)

	r.mu.Lock()
	path, ok := r.idToPath[bundleID]
	r.mu.Unlock()
	if !ok {
		err := fmt.Errorf("hotreload: %s is not registered", bundleID)
		r.cfg.Listener.completed(bundleID, false)
		r.cfg.Listener.failed(bundleID, err)
		return
	}

	var preserved any
	if c, ok := r.cfg.Descriptors.Get(bundleID); ok {
		if sb, ok := c.Instance.(bundle.StatefulBundle); ok {
			state, err := sb.RetrieveState()
			if err != nil {
				r.cfg.Logger.Warnf("hotreload: retrieve_state failed for %s, proceeding without state: %v", bundleID, err)
			} else {
				preserved = state
			}
		}
	}

	if err := r.cfg.Manager.Disable(bundleID); err != nil {
		r.fail(bundleID, err)
		return
	}
	if err := r.cfg.Manager.Unload(bundleID); err != nil {
		r.fail(bundleID, err)
		return
	}

	fresh, err := r.cfg.Loader.LoadArtifact(path)
	if err != nil {
		r.fail(bundleID, err)
		return
	}
	r.cfg.Descriptors.Add(fresh)

	if err := r.cfg.Manager.Load(bundleID); err != nil {
		r.fail(bundleID, err)
		return
	}

	if preserved != nil {
		if c, ok := r.cfg.Descriptors.Get(bundleID); ok {
			if sb, ok := c.Instance.(bundle.StatefulBundle); ok {
				if err := sb.RestoreState(preserved); err != nil {
					r.cfg.Logger.Warnf("hotreload: restore_state failed for %s: %v", bundleID, err)
				}
			}
		}
	}

	if err := r.cfg.Manager.Enable(bundleID); err != nil {
		r.fail(bundleID, err)
		return
	}

	r.cfg.Listener.completed(bundleID, true)
}

func (r *Reloader) fail(bundleID string, err error) {
	r.cfg.Listener.completed(bundleID, false)
	r.cfg.Listener.failed(bundleID, err)
}
