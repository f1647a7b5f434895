package registry

import (
	"errors"
	"time"

	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/path"
)

// ErrModuleUnavailable is returned when a Factory artifact declines to
// produce a module at this call site (spec.md §4.2). The entry stays in
// Factory state; no negative result is cached.
var ErrModuleUnavailable = errors.New("registry: module unavailable at this call site")

// Entry is the pair of (key, artifact) with lazy-instantiation state
// (spec.md §3 "Entry"). The engine-domain is single-threaded per isolate
// (spec.md §5), so Entry does its own synchronization: none.
type Entry struct {
	Key  Key
	Path path.Path

	artifact Artifact
}

func newEntry(k Key, p path.Path, a Artifact) *Entry {
	return &Entry{Key: k, Path: p, artifact: a}
}

// Kind reports the entry's current artifact variant.
func (e *Entry) Kind() ArtifactKind { return e.artifact.Kind }

// Materialize forces the entry's artifact to Instantiated, compiling
// Source or invoking Factory as needed, and returns the resulting
// artifact. Once Instantiated, the same artifact is returned on every
// subsequent call without touching the engine again (spec.md §4.2, the
// "testable property" that post-resolve every entry is Instantiated).
// reg is the owning Registry, needed so a Source module's require(...)
// calls can route back through Registry.Require and so compilation is
// timed against reg's Observer (spec.md §4.4 "Require impl", §3
// "Registry" observer).
func (e *Entry) Materialize(eng engine.Lock, method ResolveMethod, referrer *path.Path, reg *Registry) (InstantiatedArtifact, error) {
	switch e.artifact.Kind {
	case KindInstantiated:
		return e.artifact.Instantiated, nil

	case KindSource:
		requireFn := func(specifier string) (engine.Handle, error) {
			return reg.Require(eng, specifier, e.Path, RequireExportDefault)
		}
		start := time.Now()
		handle, err := eng.NewCommonJSModule(e.Path.ToString(true), e.artifact.Source.Text, requireFn)
		reg.observer.ObserveCompile(e.Key.NS, time.Since(start), err)
		if err != nil {
			// Compilation failure propagates; the entry stays Source so a
			// retry is possible (spec.md §4.2, open question in §9: this
			// may be incidental retry-on-transient behavior, preserved
			// bit-for-bit per the original).
			return InstantiatedArtifact{}, err
		}
		inst := InstantiatedArtifact{Handle: handle}
		e.artifact = instantiatedArtifact(inst)
		return inst, nil

	case KindFactory:
		inst, ok := e.artifact.Factory(eng, method, referrer)
		if !ok {
			return InstantiatedArtifact{}, ErrModuleUnavailable
		}
		e.artifact = instantiatedArtifact(inst)
		return inst, nil
	}
	panic("registry: unreachable artifact kind")
}
