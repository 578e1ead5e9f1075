package bundle

import (
	"context"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundlectx"
)

// wasmInstance adapts a Namespace's optional exported functions
// ("on_load", "on_enable", "on_disable", "on_unload") to the Instance
// interface. A bundle's WASM module need not export any of these; an
// absent export is a no-op, matching spec.md's "lifecycle callbacks ...
// invoked directly" wording for bundles that opt out of a phase.
type wasmInstance struct {
	ns *Namespace
}

func newWasmInstance(ns *Namespace) Instance {
	return &wasmInstance{ns: ns}
}

func (w *wasmInstance) OnLoad(_ *bundlectx.Context) error {
	return w.invoke("on_load")
}

func (w *wasmInstance) OnEnable() error {
	return w.invoke("on_enable")
}

func (w *wasmInstance) OnDisable() error {
	return w.invoke("on_disable")
}

func (w *wasmInstance) OnUnload() error {
	return w.invoke("on_unload")
}

func (w *wasmInstance) invoke(export string) error {
	fn := w.ns.ExportedFunction(export)
	if fn == nil {
		return nil
	}
	_, err := fn.Call(context.Background())
	return err
}
