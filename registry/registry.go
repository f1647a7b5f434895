// Package registry implements the dual-indexed module store, its
// lazy-instantiation entries, and the three-layer (BUNDLE/BUILTIN/
// INTERNAL) resolution algorithm with fallback-service escalation and
// redirect memoization (spec.md §3, §4.3, §4.4).
package registry

import (
	"fmt"
	"strings"

	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/path"
	"github.com/dop251/goja-modreg/synthetic"
)

// DynamicImportHandler is the embedder-supplied callback that turns a
// resolved entry into an engine promise (spec.md §3 "an optional
// dynamic-import handler closure", §4.5 step 7). thunk, when called,
// instantiates the module under the engine lock and returns its
// namespace/default-export handle.
type DynamicImportHandler func(thunk func() (engine.Handle, error)) engine.Deferred

// Registry is the dual-indexed module store bound to exactly one engine
// context (spec.md §3 "Registry", "Lifetimes"). It is not safe for
// concurrent use: per spec.md §5, the engine domain is single-threaded
// per isolate, and the registry is only ever touched while holding that
// isolate's lock.
type Registry struct {
	entries map[Key]*Entry

	// redirectMemo maps an absolute specifier string to the specifier the
	// fallback service most recently redirected it to (spec.md §3, §4.4
	// step 3).
	redirectMemo map[string]string

	observer Observer // borrowed, not owned

	dynamicImportHandler DynamicImportHandler

	fallback        FallbackClient // borrowed, may be absent
	fallbackVersion FallbackVersion
}

// Option configures a new Registry.
type Option func(*Registry)

// WithObserver wires a compilation observer. Defaults to NoopObserver.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithFallbackClient wires the out-of-process fallback lookup service
// used when a specifier isn't found in any local namespace.
func WithFallbackClient(c FallbackClient, version FallbackVersion) Option {
	return func(r *Registry) {
		r.fallback = c
		r.fallbackVersion = version
	}
}

// New constructs an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:      make(map[Key]*Entry),
		redirectMemo: make(map[string]string),
		observer:     NoopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDynamicImportHandler installs the callback the trampoline calls into
// once a dynamic-import specifier resolves successfully.
func (r *Registry) SetDynamicImportHandler(h DynamicImportHandler) {
	r.dynamicImportHandler = h
}

// DynamicImportHandler returns the installed handler, or nil if none is
// set (spec.md §4.5 step 8: "no handler is installed" rejects).
func (r *Registry) DynamicImportHandler() DynamicImportHandler {
	return r.dynamicImportHandler
}

func (r *Registry) insert(k Key, e *Entry) {
	if _, exists := r.entries[k]; exists {
		// Programming error: duplicate key at assembly time (spec.md §4.3).
		panic(fmt.Sprintf("registry: duplicate key %s (%s)", k.Specifier, k.NS))
	}
	r.entries[k] = e
}

// Add registers an already-instantiated worker-bundle module. Namespace
// is always fixed to Bundle (spec.md §4.3 "add(path, info)").
func (r *Registry) Add(p path.Path, handle engine.Handle, syn synthetic.Info) {
	k := NewKey(p, Bundle)
	r.insert(k, newEntry(k, p, instantiatedArtifact(InstantiatedArtifact{Handle: handle, Synthetic: syn})))
}

// AddBuiltinSource registers a lazily-compiled builtin or internal module
// from source text (spec.md §4.3 "add_builtin"). ns must be Builtin or
// Internal.
func (r *Registry) AddBuiltinSource(specifier string, src string, compileCache []byte, ns Namespace) error {
	if ns == Bundle {
		panic("registry: add_builtin must not use the Bundle namespace")
	}
	p, err := path.Parse(specifier)
	if err != nil {
		return err
	}
	k := NewKey(p, ns)
	r.insert(k, newEntry(k, p, sourceArtifact(src, compileCache)))
	return nil
}

// AddBuiltinFactory registers a lazily-materialized builtin or internal
// module (Wasm, data, JSON, object, or any other synthetic variant built
// on first import). ns must be Builtin or Internal.
func (r *Registry) AddBuiltinFactory(specifier string, ns Namespace, f Factory) error {
	if ns == Bundle {
		panic("registry: add_builtin must not use the Bundle namespace")
	}
	p, err := path.Parse(specifier)
	if err != nil {
		return err
	}
	k := NewKey(p, ns)
	r.insert(k, newEntry(k, p, factoryArtifact(f)))
	return nil
}

// AddBuiltinBundle bulk-registers every module in a capnp-encoded bundle,
// dispatching by module type, optionally filtered (spec.md §4.3
// "Bulk add_builtin_bundle").
func (r *Registry) AddBuiltinBundle(b ModuleBundle, ns Namespace, filter func(BundleModule) bool) error {
	for _, m := range b.Modules {
		if filter != nil && !filter(m) {
			continue
		}
		if err := r.addBundleModule(m, ns); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) addBundleModule(m BundleModule, ns Namespace) error {
	switch m.Type {
	case TypeSrc:
		return r.AddBuiltinSource(m.Name, m.Src, m.CompileCache, ns)
	case TypeWasm:
		data := m.Wasm
		return r.AddBuiltinFactory(m.Name, ns, func(eng engine.Lock, _ ResolveMethod, _ *path.Path) (InstantiatedArtifact, bool) {
			compile := func() (engine.Handle, error) { return eng.CompileWasm(data) }
			var handle engine.Handle
			var err error
			if allower, ok := eng.(engine.EvalAllower); ok {
				allower.WithEvalAllowed(func() { handle, err = compile() })
			} else {
				handle, err = compile()
			}
			if err != nil {
				return InstantiatedArtifact{}, false
			}
			return InstantiatedArtifact{Handle: handle, Synthetic: synthetic.Wasm(handle)}, true
		})
	case TypeData:
		data := m.Data
		return r.AddBuiltinFactory(m.Name, ns, func(eng engine.Lock, _ ResolveMethod, _ *path.Path) (InstantiatedArtifact, bool) {
			handle := eng.WrapBytes(data)
			return InstantiatedArtifact{Handle: handle, Synthetic: synthetic.Data(handle)}, true
		})
	case TypeJSON:
		raw := m.JSON
		return r.AddBuiltinFactory(m.Name, ns, func(eng engine.Lock, _ ResolveMethod, _ *path.Path) (InstantiatedArtifact, bool) {
			handle, err := eng.ParseJSON([]byte(raw))
			if err != nil {
				return InstantiatedArtifact{}, false
			}
			return InstantiatedArtifact{Handle: handle, Synthetic: synthetic.JSON(handle)}, true
		})
	}
	return fmt.Errorf("registry: unknown module type %d for %q", m.Type, m.Name)
}

// Resolve is the three-layer resolution algorithm (spec.md §4.4). It
// returns the absent zero value and ok=false when nothing binds, and
// also when the bound entry fails to materialize; callers must not
// distinguish "not found" from "found but errored" by inspecting the
// zero value, only via the returned error.
func (r *Registry) Resolve(eng engine.Lock, specifier path.Path, referrer *path.Path, option ResolveOption, method ResolveMethod, rawSpecifier string) (InstantiatedArtifact, bool, error) {
	inst, ok, err := r.resolve(eng, specifier, referrer, option, method, rawSpecifier)
	if err != nil {
		ok = false
	}
	r.observer.ObserveResolve(namespaceForOption(option), option, ok)
	return inst, ok, err
}

func namespaceForOption(option ResolveOption) Namespace {
	switch option {
	case ResolveBuiltinOnly:
		return Builtin
	case ResolveInternalOnly:
		return Internal
	default:
		return Bundle
	}
}

func (r *Registry) resolve(eng engine.Lock, specifier path.Path, referrer *path.Path, option ResolveOption, method ResolveMethod, rawSpecifier string) (InstantiatedArtifact, bool, error) {
	// Step 1: namespace selection by option.
	switch option {
	case ResolveInternalOnly:
		if e, found := r.entries[NewKey(specifier, Internal)]; found {
			inst, err := e.Materialize(eng, method, referrer, r)
			return inst, true, err
		}
		// Internal-only never consults the fallback service.
		return InstantiatedArtifact{}, false, nil

	case ResolveBuiltinOnly:
		if e, found := r.entries[NewKey(specifier, Builtin)]; found {
			inst, err := e.Materialize(eng, method, referrer, r)
			return inst, true, err
		}
		// fall through to step 3

	default: // ResolveDefault
		if e, found := r.entries[NewKey(specifier, Bundle)]; found {
			inst, err := e.Materialize(eng, method, referrer, r)
			return inst, true, err
		}
		if e, found := r.entries[NewKey(specifier, Builtin)]; found {
			inst, err := e.Materialize(eng, method, referrer, r)
			return inst, true, err
		}
		// fall through to step 3
	}

	// Step 2: assert.
	if option == ResolveInternalOnly {
		panic("registry: unreachable, internal-only already returned above")
	}

	str := specifier.ToString(true)

	// Step 3: redirect memo.
	if target, found := r.redirectMemo[str]; found {
		next, err := parentOf(referrer).Eval(target)
		if err != nil {
			return InstantiatedArtifact{}, false, nil
		}
		return r.resolve(eng, next, referrer, ResolveDefault, method, rawSpecifier)
	}

	// Step 4: fallback escalation.
	if r.fallback == nil {
		return InstantiatedArtifact{}, false, nil
	}
	outcome := r.fallback.TryResolve(r.fallbackVersion, method, str, rawSpecifier, referrerString(referrer), nil)
	switch outcome.Kind {
	case OutcomeNotFound:
		return InstantiatedArtifact{}, false, nil

	case OutcomeModule:
		ns := Bundle
		if option == ResolveBuiltinOnly && hasAnyPrefix(str, "/node:", "/cloudflare:", "/workerd:") {
			ns = Builtin
		}
		e, err := r.installFromBundleModule(specifier, ns, *outcome.Module)
		if err != nil {
			return InstantiatedArtifact{}, false, err
		}
		inst, err := e.Materialize(eng, method, referrer, r)
		return inst, true, err

	case OutcomeRedirect:
		r.redirectMemo[str] = outcome.Redirect
		next, err := parentOf(referrer).Eval(outcome.Redirect)
		if err != nil {
			return InstantiatedArtifact{}, false, nil
		}
		return r.resolve(eng, next, referrer, ResolveDefault, method, rawSpecifier)
	}
	return InstantiatedArtifact{}, false, nil
}

func (r *Registry) installFromBundleModule(specifier path.Path, ns Namespace, m BundleModule) (*Entry, error) {
	k := NewKey(specifier, ns)
	if e, exists := r.entries[k]; exists {
		return e, nil
	}
	var art Artifact
	switch m.Type {
	case TypeSrc:
		art = sourceArtifact(m.Src, m.CompileCache)
	default:
		data, wasmData, raw := m.Data, m.Wasm, m.JSON
		mtype := m.Type
		art = factoryArtifact(func(eng engine.Lock, _ ResolveMethod, _ *path.Path) (InstantiatedArtifact, bool) {
			switch mtype {
			case TypeWasm:
				h, err := eng.CompileWasm(wasmData)
				if err != nil {
					return InstantiatedArtifact{}, false
				}
				return InstantiatedArtifact{Handle: h, Synthetic: synthetic.Wasm(h)}, true
			case TypeData:
				h := eng.WrapBytes(data)
				return InstantiatedArtifact{Handle: h, Synthetic: synthetic.Data(h)}, true
			case TypeJSON:
				h, err := eng.ParseJSON([]byte(raw))
				if err != nil {
					return InstantiatedArtifact{}, false
				}
				return InstantiatedArtifact{Handle: h, Synthetic: synthetic.JSON(h)}, true
			}
			return InstantiatedArtifact{}, false
		})
	}
	e := newEntry(k, specifier, art)
	r.insert(k, e)
	return e, nil
}

func parentOf(referrer *path.Path) path.Path {
	if referrer == nil {
		return path.Root()
	}
	return referrer.Parent()
}

func referrerString(referrer *path.Path) string {
	if referrer == nil {
		return ""
	}
	return referrer.ToString(true)
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ReverseLookup answers "which entry is this?" for an engine module
// handle, by scanning entries and comparing the handle of any
// Instantiated artifact (spec.md §4.4 "Reverse lookup"). O(N), accepted
// because it's only called from rare engine callbacks.
func (r *Registry) ReverseLookup(handle engine.Handle) (*Entry, bool) {
	for _, e := range r.entries {
		if e.artifact.Kind == KindInstantiated && e.artifact.Instantiated.Handle == handle {
			return e, true
		}
	}
	return nil, false
}

// RequireImpl is the synchronous variant used by CommonJS require()
// (spec.md §4.4 "Require impl"). It forces instantiation before
// returning either the module namespace or its default export.
func (r *Registry) RequireImpl(eng engine.Lock, e *Entry, opt RequireOption) (engine.Handle, error) {
	inst, err := e.Materialize(eng, Require, nil, r)
	if err != nil {
		return nil, err
	}
	return requireExport(inst, opt), nil
}

// Require resolves specifier relative to referrer and materializes it —
// the routine a compiled CommonJS module's actual require(specifier)
// call is wired to (spec.md §4.4 "Require impl"). This is what lets a
// Source module compiled via engine.Lock.NewCommonJSModule reach back
// into the registry instead of having no working require at all.
func (r *Registry) Require(eng engine.Lock, specifier string, referrer path.Path, opt RequireOption) (engine.Handle, error) {
	target, err := referrer.Parent().Eval(specifier)
	if err != nil {
		return nil, err
	}
	inst, ok, err := r.resolve(eng, target, &referrer, ResolveDefault, Require, specifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("registry: no such module %q", specifier)
	}
	return requireExport(inst, opt), nil
}

func requireExport(inst InstantiatedArtifact, opt RequireOption) engine.Handle {
	if opt == RequireExportDefault && inst.Synthetic != nil {
		return inst.Synthetic.DefaultExport()
	}
	return inst.Handle
}

// Size returns the number of registered entries (for tests/diagnostics).
func (r *Registry) Size() int { return len(r.entries) }

// Lookup finds an entry by key without materializing it.
func (r *Registry) Lookup(p path.Path, ns Namespace) (*Entry, bool) {
	e, ok := r.entries[NewKey(p, ns)]
	return e, ok
}
