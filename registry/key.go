package registry

import "github.com/dop251/goja-modreg/path"

// Key is the registry's primary index key: (path, namespace). Keys are
// unique within a Registry (spec.md §3 "Registry key"). The path is
// stored as its canonical absolute string form so Key remains a plain
// comparable Go value usable as a map key (path.Path itself holds a
// slice and is not comparable).
type Key struct {
	Specifier string
	NS        Namespace
}

// NewKey builds a Key from a parsed path.
func NewKey(p path.Path, ns Namespace) Key {
	return Key{Specifier: p.ToString(true), NS: ns}
}
