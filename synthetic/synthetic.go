// Package synthetic describes the host-populated module variants that the
// registry's Instantiated artifacts can carry: data, text, wasm, JSON,
// a bare host object, a CommonJS wrapper, and a capnp file-scope module
// (spec.md §3, "Synthetic variants"). None of these evaluate source; the
// host supplies their exports directly.
package synthetic

import "github.com/dop251/goja-modreg/engine"

// Info is the synthetic-module payload an Instantiated artifact carries
// alongside its engine handle, used to answer the engine's
// synthetic-module-evaluator callback and to implement RequireImpl's
// "default export" option (spec.md §4.6, §4.4 "Require impl").
type Info interface {
	// DefaultExport is the module's `export default` / CommonJS
	// `module.exports` value.
	DefaultExport() engine.Handle
	// NamedExports lists any additional named exports a synthetic module
	// provides (capnp file-scope modules expose their top-level
	// declarations this way; most variants have none).
	NamedExports() map[string]engine.Handle
}

type simple struct {
	def    engine.Handle
	export map[string]engine.Handle
}

func (s simple) DefaultExport() engine.Handle            { return s.def }
func (s simple) NamedExports() map[string]engine.Handle   { return s.export }

// Data wraps a raw-bytes module (spec.md DataModuleInfo).
func Data(h engine.Handle) Info { return simple{def: h} }

// Text wraps a string module (spec.md TextModuleInfo).
func Text(h engine.Handle) Info { return simple{def: h} }

// Wasm wraps a compiled WebAssembly module (spec.md WasmModuleInfo).
func Wasm(h engine.Handle) Info { return simple{def: h} }

// JSON wraps a parsed JSON value (spec.md JsonModuleInfo).
func JSON(h engine.Handle) Info { return simple{def: h} }

// Object wraps a bare host object projected as the default export
// (spec.md ObjectModuleInfo).
func Object(h engine.Handle) Info { return simple{def: h} }

// Capnp wraps a capnp schema's file-scope module: a default export plus
// the schema's named top-level declarations (spec.md CapnpModuleInfo).
func Capnp(fileScope engine.Handle, topLevelDecls map[string]engine.Handle) Info {
	return simple{def: fileScope, export: topLevelDecls}
}

// CommonJS wraps a CommonJS module's `module.exports`, produced by
// invoking the Node-style module wrapper function with a fresh
// module/exports pair (spec.md CommonJsModuleInfo).
type CommonJS struct {
	Exports engine.Handle
	// Module is the `module` object passed to the wrapper function
	// (distinct from Exports once the wrapper has reassigned
	// `module.exports`).
	Module engine.Handle
}

func (c CommonJS) DefaultExport() engine.Handle          { return c.Exports }
func (c CommonJS) NamedExports() map[string]engine.Handle { return nil }
