package bundle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// DefaultHostAPIPrefixes is the initial host-API allow-list: symbols
// under these prefixes resolve against the host namespace instead of
// the bundle's own module.
var DefaultHostAPIPrefixes = []string{"plugin_api."}

// Namespace is a bundle's isolated symbol-resolution environment: one
// wazero.Runtime per bundle, so that two bundles never share module
// instances even if they embed the same compiled WASM bytes. This is the
// namespace-isolation mechanism described in spec.md §4.2.
type Namespace struct {
	mu              sync.Mutex
	runtime         wazero.Runtime
	module          api.Module
	hostAPIPrefixes []string
}

// newNamespace instantiates a fresh wazero.Runtime with WASI support and,
// if wasmBytes is non-empty, compiles and instantiates the bundle's
// module within it. A bundle with no wasmBytes (a pure manifest/data
// bundle) gets a Namespace with no underlying module; IsHostAPI still
// works for host-API prefix bookkeeping.
func newNamespace(ctx context.Context, wasmBytes []byte, hostAPIPrefixes []string) (*Namespace, error) {
	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	ns := &Namespace{
		runtime:         runtime,
		hostAPIPrefixes: append([]string{}, hostAPIPrefixes...),
	}

	if len(wasmBytes) == 0 {
		return ns, nil
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile bundle module: %w", err)
	}

	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("bundle"))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate bundle module: %w", err)
	}
	ns.module = mod
	return ns, nil
}

// IsHostAPI reports whether symbol falls under a configured host-API
// prefix, and so must resolve against the host namespace rather than
// the bundle's own module.
func (n *Namespace) IsHostAPI(symbol string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, prefix := range n.hostAPIPrefixes {
		if strings.HasPrefix(symbol, prefix) {
			return true
		}
	}
	return false
}

// AddHostAPIPrefix registers an additional host-API allow-list prefix.
func (n *Namespace) AddHostAPIPrefix(prefix string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hostAPIPrefixes = append(n.hostAPIPrefixes, prefix)
}

// ExportedFunction returns the bundle module's exported function named
// name, or nil if the bundle carries no module or does not export it.
func (n *Namespace) ExportedFunction(name string) api.Function {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.module == nil {
		return nil
	}
	return n.module.ExportedFunction(name)
}

// Close releases the namespace: the bundle's module instance and its
// dedicated wazero.Runtime. Never shared between bundles, so closing one
// container's Namespace never affects another's.
func (n *Namespace) Close(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.module != nil {
		_ = n.module.Close(ctx)
	}
	return n.runtime.Close(ctx)
}
