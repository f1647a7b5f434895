package registry

// ModuleType tags the kind of module a bundle entry describes, dispatched
// by AddBuiltinBundle to the appropriate single-module registration
// (spec.md §4.3). It also doubles as the wire tag understood by the
// fallback service's returned module configuration (spec.md §4.7,
// "Worker::Module").
type ModuleType uint8

const (
	TypeSrc ModuleType = iota
	TypeWasm
	TypeData
	TypeJSON
)

// BundleModule is one module description out of a capnp-encoded bundle,
// or out of a fallback service response (spec.md §4.3, §4.7). Exactly the
// field matching Type is meaningful.
type BundleModule struct {
	Name         string
	Type         ModuleType
	Src          string
	Wasm         []byte
	Data         []byte
	JSON         string
	CompileCache []byte
}

// ModuleBundle is a capnp-encoded collection of builtin modules (spec.md
// §4.3 "Bulk add_builtin_bundle").
type ModuleBundle struct {
	Modules []BundleModule
}

// OutcomeKind tags what the fallback service answered (spec.md §4.4 step 4).
type OutcomeKind uint8

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeModule
	OutcomeRedirect
)

// Outcome is the fallback client's answer to a resolve escalation.
type Outcome struct {
	Kind     OutcomeKind
	Module   *BundleModule
	Redirect string
}

// FallbackVersion selects the fallback service's wire protocol (spec.md §4.7).
type FallbackVersion uint8

const (
	FallbackV1 FallbackVersion = iota // GET, query parameters
	FallbackV2                        // POST, JSON capnp body
)

// FallbackClient is the narrow surface the registry needs from the
// out-of-process fallback lookup service (spec.md §4.4 step 3/4, §4.7).
// The concrete implementation lives in package fallback; it is injected
// here to keep the registry decoupled from the transport.
type FallbackClient interface {
	TryResolve(version FallbackVersion, method ResolveMethod, specifier, rawSpecifier, referrer string, attributes map[string]string) Outcome
}
