// Package engine declares the narrow surface the registry needs from the
// embedding JavaScript engine (spec.md §6: "Consumed from the engine").
// The registry never reaches into the engine beyond this interface; the
// concrete engine (goja, in package gojahost) is an external collaborator.
package engine

import "time"

// CompileOrigin tells the engine whether source is being compiled as a
// worker-bundle module or as a process-lifetime builtin (spec.md §4.2,
// ModuleInfoCompileOption in the original jsg::ModuleRegistry).
type CompileOrigin uint8

const (
	OriginBundle CompileOrigin = iota
	OriginBuiltin
)

// Handle is an opaque, comparable engine-side module handle (V8's
// v8::Local<v8::Module> in the original; a *goja.Object or *synthetic
// module record for the goja adapter). Handles must compare equal with
// == exactly when they refer to the same engine-side module, since the
// registry's reverse lookup (spec.md §4.4) relies on identity comparison.
type Handle any

// Lock is the engine's exclusive-access handle, mirroring jsg::Lock: it is
// only ever used while the embedder holds the isolate lock, so it does
// not need its own synchronization.
type Lock interface {
	// CompileSource compiles source text into a module handle. cache is an
	// optional compile-cache blob (may be returned updated); origin marks
	// whether the result should be treated as process-lifetime immutable.
	CompileSource(name string, src string, cache []byte, origin CompileOrigin) (Handle, error)

	// CompileWasm compiles a WebAssembly binary into an engine-native
	// module value.
	CompileWasm(code []byte) (Handle, error)

	// ParseJSON parses a JSON document into an engine value.
	ParseJSON(data []byte) (Handle, error)

	// WrapBytes projects raw bytes as an engine array-buffer-like value.
	WrapBytes(data []byte) Handle

	// WrapString projects a Go string as an engine string value.
	WrapString(s string) Handle

	// WrapObject projects an arbitrary host value as an engine object,
	// used for ObjectModuleInfo (a bare host object as default export).
	WrapObject(v any) Handle

	// NewCommonJSModule compiles src as a CommonJS module body (wrapped in
	// a `function(module, exports, require) {...}` receiver per Node
	// convention) and evaluates the wrapper function, returning the
	// resulting `module.exports` value.
	NewCommonJSModule(name string, src string, require func(specifier string) (Handle, error)) (Handle, error)
}

// Deferred is a resolvable/rejectable placeholder returned to the engine
// for an in-flight dynamic import (spec.md §6: "reject/resolve a
// deferred"). The goja adapter backs this with *goja.Promise.
type Deferred interface {
	Resolve(v Handle)
	Reject(err error)
	Value() Handle
}

// InstantiateOption controls top-level-await handling during module
// evaluation (spec.md §4.6).
type InstantiateOption uint8

const (
	InstantiateDefault InstantiateOption = iota
	InstantiateNoTopLevelAwait
)

// Instantiator evaluates an already-linked module handle.
type Instantiator interface {
	Instantiate(h Handle, opt InstantiateOption) error
}

// MicrotaskDrainer gives a pending top-level-await promise one chance to
// settle, per InstantiateDefault (spec.md §4.6). Engines without a
// microtask queue (or that drain automatically) may implement this as a
// no-op.
type MicrotaskDrainer interface {
	DrainMicrotasksOnce(timeout time.Duration)
}

// EvalAllower lets a Wasm builtin's compile factory bracket compilation
// with the engine's "allow eval" toggle, the way the original
// addBuiltinModule(Module::WASM) callback does around compileWasmModule
// (spec.md §9 supplemented feature; original in
// workerd/jsg/modules.h). Engines that don't need this distinction (goja
// has no eval-restriction concept) may simply not implement it.
type EvalAllower interface {
	WithEvalAllowed(func())
}
