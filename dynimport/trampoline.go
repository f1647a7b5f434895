// Package dynimport implements the dynamic-import trampoline: the
// adapter the engine calls on `import()` expressions, translating the
// engine's callback arguments into a registry resolve and settling a
// promise with the result (spec.md §4.5).
package dynimport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dop251/goja-modreg/config"
	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/path"
	"github.com/dop251/goja-modreg/registry"
)

// processInternalPublic/processInternalLegacy are the internal
// specifiers node:process routes to depending on the process-v2
// compatibility flag (spec.md §4.5 step 4, §8 "Node process routing").
const (
	processInternalPublic = "node-internal:public_process"
	processInternalLegacy = "node-internal:legacy_process"
)

// Deps bundles the trampoline's collaborators so Handle's signature stays
// readable; none of these are owned by dynimport.
type Deps struct {
	Registry *registry.Registry
	Flags    config.CompatibilityFlags
	Log      *zap.Logger
}

// Handle is the dynamic-import trampoline itself (spec.md §4.5). eng is
// the engine lock in scope for the callback; newDeferred creates the
// engine's promise-like placeholder; referrerName/specifier/rawSpecifier
// are as given by the engine; attributes are the import assertion/
// attribute pairs, if any.
func Handle(
	d Deps,
	eng engine.Lock,
	newDeferred func() (engine.Deferred, error),
	referrerName string,
	specifier string,
	rawSpecifier string,
	attributes map[string]string,
) engine.Deferred {
	deferred, err := newDeferred()
	if err != nil {
		// The engine itself could not produce a placeholder; there is no
		// promise to reject. Spec.md §4.5 step 9: "propagate an
		// empty-promise sentinel" — callers that see a nil Deferred must
		// treat the import as having failed before anything could be
		// observed in script.
		if d.Log != nil {
			d.Log.Error("dynimport: engine could not allocate a deferred", zap.Error(err))
		}
		return nil
	}

	result, runErr := run(d, eng, referrerName, specifier, rawSpecifier, attributes)
	if runErr != nil {
		deferred.Reject(runErr)
		return deferred
	}
	// Step 7 already produced the real deferred via the registry's
	// DynamicImportHandler; that is the one promise callers must observe,
	// not a second one wrapping its (still-a-promise) Value() (spec.md
	// §4.5 step 7). The pre-allocated deferred above is only ever used on
	// the error paths above, where step 7 never ran.
	return result
}

func run(d Deps, eng engine.Lock, referrerName, specifier, rawSpecifier string, attributes map[string]string) (engine.Deferred, error) {
	// Step 1: reject unknown import attributes if the flag demands it.
	if len(attributes) > 0 && d.Flags.RejectUnknownImportAttributes {
		return nil, fmt.Errorf("import attributes are not supported for %q", specifier)
	}

	// Step 2: parse the referrer.
	referrer, err := path.Parse(referrerName)
	if err != nil {
		return nil, noSuchModule(specifier)
	}

	effectiveSpecifier := specifier

	// Step 3: Node-compat bare-specifier rewriting.
	if d.Flags.NodeCompat {
		if rewritten, ok := config.RewriteBareNodeSpecifier(specifier); ok {
			effectiveSpecifier = rewritten
		}
	}

	// Step 4: special-case node:process.
	if effectiveSpecifier == "node:process" {
		internalSpecifier := processInternalLegacy
		if d.Flags.ProcessV2 {
			internalSpecifier = processInternalPublic
		}
		internalPath, err := path.Parse(internalSpecifier)
		if err != nil {
			return nil, noSuchModule(specifier)
		}
		return resolveAndSettle(d, eng, internalPath, &referrer, registry.ResolveInternalOnly, registry.Import, rawSpecifier, specifier)
	}

	// Step 5: parse the (possibly rewritten) specifier against the
	// referrer's parent directory.
	var target path.Path
	if path.HasReservedPrefix(effectiveSpecifier) {
		target, err = path.Parse(effectiveSpecifier)
	} else {
		target, err = referrer.Parent().Eval(effectiveSpecifier)
	}
	if err != nil {
		return nil, noSuchModule(specifier)
	}

	// Step 6: trust boundary. A BUILTIN referrer may only dynamically
	// import INTERNAL modules.
	option := registry.ResolveDefault
	if _, found := d.Registry.Lookup(referrer, registry.Builtin); found {
		option = registry.ResolveInternalOnly
	}

	return resolveAndSettle(d, eng, target, &referrer, option, registry.Import, rawSpecifier, specifier)
}

// resolveAndSettle implements steps 7/8: a found entry plus an installed
// dynamic-import handler produces the deferred that Handle() hands back
// to the caller, by calling the handler with a thunk that gets the
// module handle, instantiates it, and returns its namespace (spec.md
// §4.5 step 7); anything else rejects with "No such module". The
// handler's returned Deferred is returned as-is: it is the actual
// promise the handler settled from thunk()'s own result, so there is
// nothing left to copy into a second deferred.
func resolveAndSettle(
	d Deps,
	eng engine.Lock,
	target path.Path,
	referrer *path.Path,
	option registry.ResolveOption,
	method registry.ResolveMethod,
	rawSpecifier string,
	originalSpecifier string,
) (engine.Deferred, error) {
	inst, ok, err := d.Registry.Resolve(eng, target, referrer, option, method, rawSpecifier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, noSuchModule(originalSpecifier)
	}

	handler := d.Registry.DynamicImportHandler()
	if handler == nil {
		return nil, noSuchModule(originalSpecifier)
	}

	thunk := func() (engine.Handle, error) {
		if instantiator, canInstantiate := eng.(engine.Instantiator); canInstantiate {
			if err := instantiator.Instantiate(inst.Handle, engine.InstantiateDefault); err != nil {
				return nil, err
			}
		}
		if inst.Synthetic != nil {
			return inst.Synthetic.DefaultExport(), nil
		}
		return inst.Handle, nil
	}

	return handler(thunk), nil
}

func noSuchModule(specifier string) error {
	return fmt.Errorf("No such module %q", specifier)
}
