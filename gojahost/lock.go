// Package gojahost adapts a *goja.Runtime to the engine.Lock surface the
// registry needs. It deliberately never touches goja's work-in-progress
// ModuleRecord/CyclicModuleRecord linking machinery (still marked
// incomplete in goja's own module.go); instead it builds every module as
// a CommonJS-style wrapped function, compiled and run through goja's
// stable public API (Compile, RunProgram, *goja.Object), the same way
// nodejs/require's Registry does.
package gojahost

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/dop251/goja-modreg/engine"
)

// wrapperHeader/wrapperFooter bracket a CommonJS module body the same way
// Node (and goja's nodejs/require package) wraps `module.exports`-style
// source before compiling it, giving every module its own module, exports,
// require and __filename bindings without polluting the global object.
const (
	wrapperHeader = "(function(module, exports, require, __filename) {\n"
	wrapperFooter = "\n})"
)

// Runtime is the engine.Lock implementation bound to one *goja.Runtime.
// It also doubles as engine.Instantiator and engine.MicrotaskDrainer.
type Runtime struct {
	vm *goja.Runtime

	mu       sync.Mutex
	handles  map[*goja.Object]struct{} // allocated by New; nothing in this package adds to it
	compiled map[string]*goja.Program  // name -> compiled wrapper, for compile-cache reuse within a process
	evLoop   *eventLoop                // lazily created by InstallTimers
}

// New wraps an existing goja.Runtime. The caller retains ownership of vm
// and must only call into Runtime while holding vm's exclusive lock
// (goja itself has none; this mirrors the embedder's isolate lock in the
// original jsg::Lock).
func New(vm *goja.Runtime) *Runtime {
	return &Runtime{vm: vm, handles: make(map[*goja.Object]struct{}), compiled: make(map[string]*goja.Program)}
}

// VM exposes the underlying runtime for callers (builtins, dynimport) that
// need direct goja access beyond the engine.Lock surface.
func (r *Runtime) VM() *goja.Runtime { return r.vm }

// CompileSource implements engine.Lock by compiling src as a CommonJS
// module wrapper and immediately invoking it with a fresh module/exports
// pair, returning the resulting exports object as the module's handle.
// Wasm/origin-specific caching of compiled *goja.Program mirrors V8's
// compile-cache blob, minus cross-process portability: goja has no
// serializable bytecode cache, so the "cache" parameter is accepted for
// interface symmetry but not persisted across runs.
func (r *Runtime) CompileSource(name string, src string, cache []byte, origin engine.CompileOrigin) (engine.Handle, error) {
	prog, err := r.programFor(name, src)
	if err != nil {
		return nil, fmt.Errorf("gojahost: compile %s: %w", name, err)
	}

	wrapperFn, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("gojahost: run wrapper %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(wrapperFn)
	if !ok {
		return nil, fmt.Errorf("gojahost: %s did not compile to a callable wrapper", name)
	}

	module := r.vm.NewObject()
	exportsObj := r.vm.NewObject()
	_ = module.Set("exports", exportsObj)

	requireFn := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		panic(r.vm.NewTypeError("gojahost: require() inside a bare CompileSource module requires a registry-bound require function; use NewCommonJSModule instead"))
	})

	if _, err := fn(goja.Undefined(), module, exportsObj, requireFn, r.vm.ToValue(name)); err != nil {
		return nil, fmt.Errorf("gojahost: evaluate %s: %w", name, err)
	}

	finalExports := module.Get("exports")
	obj, ok := finalExports.(*goja.Object)
	if !ok {
		obj = r.vm.NewObject()
	}
	return obj, nil
}

// NewCommonJSModule is CompileSource's require-aware sibling: it wires a
// real require callback into the wrapper invocation, letting module
// bodies call require(specifier) and have it routed back through the
// registry (spec.md §4.4 "Require impl").
func (r *Runtime) NewCommonJSModule(name string, src string, require func(specifier string) (engine.Handle, error)) (engine.Handle, error) {
	prog, err := r.programFor(name, src)
	if err != nil {
		return nil, fmt.Errorf("gojahost: compile %s: %w", name, err)
	}
	wrapperFn, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("gojahost: run wrapper %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(wrapperFn)
	if !ok {
		return nil, fmt.Errorf("gojahost: %s did not compile to a callable wrapper", name)
	}

	module := r.vm.NewObject()
	exportsObj := r.vm.NewObject()
	_ = module.Set("exports", exportsObj)

	requireFn := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(r.vm.NewTypeError("require: missing specifier"))
		}
		spec := call.Arguments[0].String()
		h, err := require(spec)
		if err != nil {
			panic(r.vm.ToValue(err.Error()))
		}
		v, ok := h.(goja.Value)
		if !ok {
			return goja.Undefined()
		}
		return v
	})

	if _, err := fn(goja.Undefined(), module, exportsObj, requireFn, r.vm.ToValue(name)); err != nil {
		return nil, fmt.Errorf("gojahost: evaluate %s: %w", name, err)
	}
	finalExports := module.Get("exports")
	obj, ok := finalExports.(*goja.Object)
	if !ok {
		obj = r.vm.NewObject()
	}
	return obj, nil
}

func (r *Runtime) programFor(name, src string) (*goja.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.compiled[name]; ok {
		return p, nil
	}
	p, err := goja.Compile(name, wrapperHeader+src+wrapperFooter, false)
	if err != nil {
		return nil, err
	}
	r.compiled[name] = p
	return p, nil
}

// CompileWasm has no stable equivalent in goja (it has no WebAssembly
// support at all); Wasm module compilation is delegated entirely to the
// wazero-backed compiler in gojahost/wasm.go, which returns a goja value
// wrapping the compiled module's exported functions.
func (r *Runtime) CompileWasm(code []byte) (engine.Handle, error) {
	return compileWasmModule(r.vm, code)
}

// ParseJSON parses data using goja's JSON global, so the resulting value
// behaves exactly like user-code `JSON.parse` output.
func (r *Runtime) ParseJSON(data []byte) (engine.Handle, error) {
	jsonGlobal := r.vm.GlobalObject().Get("JSON")
	jsonObj, ok := jsonGlobal.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("gojahost: JSON global unavailable")
	}
	parse, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return nil, fmt.Errorf("gojahost: JSON.parse unavailable")
	}
	v, err := parse(jsonObj, r.vm.ToValue(string(data)))
	if err != nil {
		return nil, fmt.Errorf("gojahost: parse JSON: %w", err)
	}
	return v, nil
}

// WrapBytes projects data as a Uint8Array-backed ArrayBuffer, matching
// how DataModuleInfo exposes raw bytes to script.
func (r *Runtime) WrapBytes(data []byte) engine.Handle {
	ab := r.vm.NewArrayBuffer(append([]byte(nil), data...))
	return r.vm.ToValue(ab)
}

// WrapString projects s as a goja string value.
func (r *Runtime) WrapString(s string) engine.Handle {
	return r.vm.ToValue(s)
}

// WrapObject projects an arbitrary host value using goja's reflection-based
// ToValue, the same mechanism nodejs/console and nodejs/require use to
// expose Go functions and structs to script.
func (r *Runtime) WrapObject(v any) engine.Handle {
	return r.vm.ToValue(v)
}
