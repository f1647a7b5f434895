package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/path"
)

// fakeLock is a minimal engine.Lock for exercising the registry without a
// real JS engine, in the spirit of nodejs/require's module_test.go fakes.
type fakeLock struct {
	compiled []string
	failOn   map[string]bool
}

func newFakeLock() *fakeLock { return &fakeLock{failOn: map[string]bool{}} }

func (f *fakeLock) CompileSource(name, src string, cache []byte, origin engine.CompileOrigin) (engine.Handle, error) {
	f.compiled = append(f.compiled, name)
	if f.failOn[name] {
		return nil, errors.New("compile failed: " + name)
	}
	return "handle:" + name, nil
}

func (f *fakeLock) CompileWasm(code []byte) (engine.Handle, error)      { return "wasm:" + string(code), nil }
func (f *fakeLock) ParseJSON(data []byte) (engine.Handle, error)        { return "json:" + string(data), nil }
func (f *fakeLock) WrapBytes(data []byte) engine.Handle                 { return "bytes:" + string(data) }
func (f *fakeLock) WrapString(s string) engine.Handle                  { return "string:" + s }
func (f *fakeLock) WrapObject(v any) engine.Handle                     { return v }

// NewCommonJSModule mirrors CompileSource's bookkeeping (compiled/failOn)
// since Entry.Materialize now compiles Source artifacts through this
// require-aware path instead of the bare CompileSource one.
func (f *fakeLock) NewCommonJSModule(name, src string, require func(string) (engine.Handle, error)) (engine.Handle, error) {
	f.compiled = append(f.compiled, name)
	if f.failOn[name] {
		return nil, errors.New("compile failed: " + name)
	}
	return "handle:" + name, nil
}

// fakeFallback answers TryResolve from a canned script, recording how many
// times it was actually invoked (used to assert redirect memoization issues
// at most one network request per specifier).
type fakeFallback struct {
	calls   int
	answers map[string]Outcome
}

func (f *fakeFallback) TryResolve(version FallbackVersion, method ResolveMethod, specifier, rawSpecifier, referrer string, attrs map[string]string) Outcome {
	f.calls++
	if o, ok := f.answers[specifier]; ok {
		return o
	}
	return Outcome{Kind: OutcomeNotFound}
}

func TestResolveDefaultBundleShadowsBuiltin(t *testing.T) {
	r := New()
	lock := newFakeLock()

	bundlePath := path.MustParse("/foo")
	require.NoError(t, r.AddBuiltinSource("/foo", "builtin source", nil, Builtin))
	r.Add(bundlePath, "bundle-handle", nil)

	inst, ok, err := r.Resolve(lock, bundlePath, nil, ResolveDefault, Import, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Handle("bundle-handle"), inst.Handle)
	// The builtin source must never have been compiled.
	assert.Empty(t, lock.compiled)
}

func TestResolveDefaultFallsThroughToBuiltin(t *testing.T) {
	r := New()
	lock := newFakeLock()
	require.NoError(t, r.AddBuiltinSource("/bar", "builtin source", nil, Builtin))

	p := path.MustParse("/bar")
	inst, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "bar")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Handle("handle:/bar"), inst.Handle)
}

func TestResolveInternalOnlyNeverEscalatesToFallback(t *testing.T) {
	fb := &fakeFallback{answers: map[string]Outcome{}}
	r := New(WithFallbackClient(fb, FallbackV1))
	lock := newFakeLock()

	p := path.MustParse("/missing")
	_, ok, err := r.Resolve(lock, p, nil, ResolveInternalOnly, Import, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, fb.calls, "internal-only resolution must not consult the fallback service")
}

func TestResolveEscalatesToFallbackAndInstallsModule(t *testing.T) {
	fb := &fakeFallback{answers: map[string]Outcome{
		"/remote": {Kind: OutcomeModule, Module: &BundleModule{Name: "/remote", Type: TypeSrc, Src: "console.log(1)"}},
	}}
	r := New(WithFallbackClient(fb, FallbackV1))
	lock := newFakeLock()

	p := path.MustParse("/remote")
	inst, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "remote")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Handle("handle:/remote"), inst.Handle)
	assert.Equal(t, 1, fb.calls)

	// Second resolve must hit the now-installed entry directly without
	// calling the fallback service again.
	_, ok, err = r.Resolve(lock, p, nil, ResolveDefault, Import, "remote")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, fb.calls, "installed module must be served from the registry on subsequent resolves")
}

func TestRedirectMemoizationIssuesAtMostOneNetworkRequest(t *testing.T) {
	fb := &fakeFallback{answers: map[string]Outcome{
		"/old": {Kind: OutcomeRedirect, Redirect: "/new"},
		"/new": {Kind: OutcomeModule, Module: &BundleModule{Name: "/new", Type: TypeSrc, Src: "1"}},
	}}
	r := New(WithFallbackClient(fb, FallbackV1))
	lock := newFakeLock()

	p := path.MustParse("/old")
	_, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, fb.calls) // one for /old (redirect), one for /new (module)

	// Resolving /old again must consult the redirect memo, not the
	// network, and then hit the already-installed /new entry directly.
	_, ok, err = r.Resolve(lock, p, nil, ResolveDefault, Import, "old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, fb.calls, "memoized redirect must not re-issue any fallback request")
}

func TestResolveNotFoundReturnsFalseNotError(t *testing.T) {
	r := New(WithFallbackClient(&fakeFallback{answers: map[string]Outcome{}}, FallbackV1))
	lock := newFakeLock()

	p := path.MustParse("/nope")
	inst, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, inst.Handle)
}

func TestMaterializeIsIdempotentAndCachesHandle(t *testing.T) {
	r := New()
	lock := newFakeLock()
	require.NoError(t, r.AddBuiltinSource("/once", "src", nil, Builtin))
	p := path.MustParse("/once")

	_, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "once")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = r.Resolve(lock, p, nil, ResolveDefault, Import, "once")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"/once"}, lock.compiled, "compiling the same entry twice indicates a caching bug")
}

func TestCompileFailureLeavesEntrySourceForRetry(t *testing.T) {
	r := New()
	lock := newFakeLock()
	lock.failOn["/broken"] = true
	require.NoError(t, r.AddBuiltinSource("/broken", "src", nil, Builtin))
	p := path.MustParse("/broken")

	_, _, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "broken")
	require.Error(t, err)

	e, ok := r.Lookup(p, Builtin)
	require.True(t, ok)
	assert.Equal(t, KindSource, e.Kind(), "a failed compile must leave the entry retryable")

	lock.failOn["/broken"] = false
	_, ok2, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "broken")
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Equal(t, KindInstantiated, e.Kind())
}

func TestFactoryMissIsNotCached(t *testing.T) {
	r := New()
	lock := newFakeLock()
	attempts := 0
	err := r.AddBuiltinFactory("/lazy", Builtin, func(eng engine.Lock, method ResolveMethod, referrer *path.Path) (InstantiatedArtifact, bool) {
		attempts++
		if attempts < 2 {
			return InstantiatedArtifact{}, false
		}
		return InstantiatedArtifact{Handle: "built"}, true
	})
	require.NoError(t, err)
	p := path.MustParse("/lazy")

	_, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "lazy")
	assert.ErrorIs(t, err, ErrModuleUnavailable)
	assert.False(t, ok)

	inst, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "lazy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Handle("built"), inst.Handle)
	assert.Equal(t, 2, attempts)
}

func TestReverseLookupFindsInstantiatedEntry(t *testing.T) {
	r := New()
	lock := newFakeLock()
	require.NoError(t, r.AddBuiltinSource("/rev", "src", nil, Internal))
	p := path.MustParse("/rev")
	_, ok, err := r.Resolve(lock, p, nil, ResolveInternalOnly, Import, "rev")
	require.NoError(t, err)
	require.True(t, ok)

	e, found := r.ReverseLookup(engine.Handle("handle:/rev"))
	require.True(t, found)
	assert.Equal(t, "/rev", e.Path.ToString(true))

	_, found = r.ReverseLookup(engine.Handle("no-such-handle"))
	assert.False(t, found)
}

func TestRequireImplReturnsDefaultExportForSynthetic(t *testing.T) {
	r := New()
	lock := newFakeLock()
	err := r.AddBuiltinFactory("/syn", Internal, func(eng engine.Lock, method ResolveMethod, referrer *path.Path) (InstantiatedArtifact, bool) {
		h := eng.WrapBytes([]byte("abc"))
		return InstantiatedArtifact{Handle: h, Synthetic: synthInfoForTest(h)}, true
	})
	require.NoError(t, err)
	p := path.MustParse("/syn")
	e, ok := r.Lookup(p, Internal)
	require.True(t, ok)

	h, err := r.RequireImpl(lock, e, RequireExportDefault)
	require.NoError(t, err)
	assert.Equal(t, engine.Handle("bytes:abc"), h)
}

// requireProbeLock overrides NewCommonJSModule so that the first module it
// compiles immediately invokes the require callback it's handed, the way
// a real CommonJS module body calling require(...) would; every later
// compile (the required dependency itself) goes through fakeLock. It
// proves Entry.Materialize's KindSource branch wires a working require
// into every compiled Source module instead of a stub that panics
// (spec.md §4.4 "Require impl").
type requireProbeLock struct {
	*fakeLock
	wantSpecifier string
	probed        bool
}

func (f *requireProbeLock) NewCommonJSModule(name, src string, require func(string) (engine.Handle, error)) (engine.Handle, error) {
	if f.probed {
		return f.fakeLock.NewCommonJSModule(name, src, require)
	}
	f.probed = true
	return require(f.wantSpecifier)
}

func TestSourceEntryRequireRoutesThroughRegistryResolve(t *testing.T) {
	r := New()
	lock := &requireProbeLock{fakeLock: newFakeLock(), wantSpecifier: "./dep"}

	require.NoError(t, r.AddBuiltinSource("/dep", "dep source", nil, Builtin))
	require.NoError(t, r.AddBuiltinSource("/main", "main source", nil, Builtin))

	p := path.MustParse("/main")
	inst, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.Handle("handle:/dep"), inst.Handle)
}

func TestSourceEntryRequireOfUnknownSpecifierErrors(t *testing.T) {
	r := New()
	lock := &requireProbeLock{fakeLock: newFakeLock(), wantSpecifier: "./missing"}

	require.NoError(t, r.AddBuiltinSource("/main", "main source", nil, Builtin))

	p := path.MustParse("/main")
	_, _, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such module")
}

// recordingObserver captures ObserveCompile/ObserveResolve calls so tests
// can assert the registry actually drives the Observer, not just that one
// exists (spec.md §3 "Registry" observer).
type recordingObserver struct {
	compiles []time.Duration
	errs     []error
}

func (o *recordingObserver) ObserveCompile(ns Namespace, d time.Duration, err error) {
	o.compiles = append(o.compiles, d)
	o.errs = append(o.errs, err)
}
func (o *recordingObserver) ObserveResolve(Namespace, ResolveOption, bool) {}

func TestObserveCompileIsCalledOnSourceMaterialization(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))
	lock := newFakeLock()
	require.NoError(t, r.AddBuiltinSource("/timed", "src", nil, Builtin))

	p := path.MustParse("/timed")
	_, ok, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "timed")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, obs.compiles, 1)
	assert.Nil(t, obs.errs[0])

	// Materialize is idempotent, so a second resolve must not observe a
	// second compile.
	_, _, err = r.Resolve(lock, p, nil, ResolveDefault, Import, "timed")
	require.NoError(t, err)
	assert.Len(t, obs.compiles, 1)
}

func TestObserveCompileRecordsError(t *testing.T) {
	obs := &recordingObserver{}
	r := New(WithObserver(obs))
	lock := newFakeLock()
	lock.failOn["/bad"] = true
	require.NoError(t, r.AddBuiltinSource("/bad", "src", nil, Builtin))

	p := path.MustParse("/bad")
	_, _, err := r.Resolve(lock, p, nil, ResolveDefault, Import, "bad")
	require.Error(t, err)

	require.Len(t, obs.compiles, 1)
	require.Error(t, obs.errs[0])
}

func TestAddBuiltinRejectsBundleNamespace(t *testing.T) {
	r := New()
	assert.Panics(t, func() {
		_ = r.AddBuiltinSource("/x", "src", nil, Bundle)
	})
}

func TestDuplicateKeyInsertionPanics(t *testing.T) {
	r := New()
	require.NoError(t, r.AddBuiltinSource("/dup", "src", nil, Builtin))
	assert.Panics(t, func() {
		_ = r.AddBuiltinSource("/dup", "src2", nil, Builtin)
	})
}

// synthInfoForTest avoids importing the synthetic package's constructors
// directly in a way that would couple this test to their internal shape.
func synthInfoForTest(h engine.Handle) interface {
	DefaultExport() engine.Handle
	NamedExports() map[string]engine.Handle
} {
	return testSynthetic{h}
}

type testSynthetic struct{ h engine.Handle }

func (t testSynthetic) DefaultExport() engine.Handle            { return t.h }
func (t testSynthetic) NamedExports() map[string]engine.Handle  { return nil }
