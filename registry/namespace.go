package registry

// Namespace is one of the three overlapping keyspaces a module may live
// in (spec.md §3 "Namespace tag").
type Namespace uint8

const (
	// Bundle holds worker-supplied modules. Shadows Builtin under
	// ResolveDefault.
	Bundle Namespace = iota
	// Builtin holds public built-ins, overrideable by Bundle.
	Builtin
	// Internal holds engine-internal built-ins, never visible to user
	// code and never sent to the fallback service.
	Internal
)

func (n Namespace) String() string {
	switch n {
	case Bundle:
		return "bundle"
	case Builtin:
		return "builtin"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// ResolveOption selects which namespaces a resolve considers (spec.md §4.4).
type ResolveOption uint8

const (
	// ResolveDefault checks the worker bundle first, then builtins.
	ResolveDefault ResolveOption = iota
	// ResolveBuiltinOnly checks only non-internal builtins (falls through
	// to the fallback service on miss).
	ResolveBuiltinOnly
	// ResolveInternalOnly checks only internal builtins and never
	// consults the fallback service.
	ResolveInternalOnly
)

// ResolveMethod distinguishes static/dynamic `import` from CommonJS
// `require()` (spec.md §4.4).
type ResolveMethod uint8

const (
	Import ResolveMethod = iota
	Require
)

func (m ResolveMethod) String() string {
	if m == Require {
		return "require"
	}
	return "import"
}

// RequireOption controls what RequireImpl hands back to a CommonJS caller
// (spec.md §4.4 "Require impl").
type RequireOption uint8

const (
	// RequireNamespace returns the module namespace object.
	RequireNamespace RequireOption = iota
	// RequireExportDefault returns just the default export.
	RequireExportDefault
)
