package registry

import (
	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/path"
	"github.com/dop251/goja-modreg/synthetic"
)

// ArtifactKind tags the variant currently held by an Entry. The only
// legal in-place transitions are Source->Instantiated and
// Factory->Instantiated; the reverse never happens (spec.md §3 "Entry").
type ArtifactKind uint8

const (
	KindSource ArtifactKind = iota
	KindFactory
	KindInstantiated
)

// SourceArtifact is UTF-8 module text plus an optional opaque
// compile-cache blob, compiled on first resolve (spec.md §3, §4.2).
type SourceArtifact struct {
	Text         string
	CompileCache []byte
}

// Factory is a thunk invoked with the engine lock, the resolve method,
// and an optional referrer, used to lazily build Wasm/data/JSON/object/
// synthetic modules on first import (spec.md §3 "Factory"). Returning
// ok=false means the module is unavailable at this call site; the entry
// stays Factory and resolution fails without caching a negative result.
type Factory func(eng engine.Lock, method ResolveMethod, referrer *path.Path) (InstantiatedArtifact, bool)

// InstantiatedArtifact is the engine's live module handle plus an
// optional synthetic-info payload (spec.md §3 "Instantiated").
type InstantiatedArtifact struct {
	Handle    engine.Handle
	Synthetic synthetic.Info // nil for a plain ES/CommonJS source module
}

// Artifact is the tagged sum type held by an Entry. Exactly one of
// Source, Factory, Instantiated is meaningful, selected by Kind.
type Artifact struct {
	Kind         ArtifactKind
	Source       SourceArtifact
	Factory      Factory
	Instantiated InstantiatedArtifact
}

func sourceArtifact(text string, cache []byte) Artifact {
	return Artifact{Kind: KindSource, Source: SourceArtifact{Text: text, CompileCache: cache}}
}

func factoryArtifact(f Factory) Artifact {
	return Artifact{Kind: KindFactory, Factory: f}
}

func instantiatedArtifact(ia InstantiatedArtifact) Artifact {
	return Artifact{Kind: KindInstantiated, Instantiated: ia}
}
