package dynimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dop251/goja-modreg/config"
	"github.com/dop251/goja-modreg/engine"
	"github.com/dop251/goja-modreg/registry"
)

type fakeLock struct{}

func (fakeLock) CompileSource(name, src string, cache []byte, origin engine.CompileOrigin) (engine.Handle, error) {
	return "handle:" + name, nil
}
func (fakeLock) CompileWasm(code []byte) (engine.Handle, error) { return nil, nil }
func (fakeLock) ParseJSON(data []byte) (engine.Handle, error)   { return nil, nil }
func (fakeLock) WrapBytes(data []byte) engine.Handle            { return nil }
func (fakeLock) WrapString(s string) engine.Handle              { return s }
func (fakeLock) WrapObject(v any) engine.Handle                 { return v }
func (fakeLock) NewCommonJSModule(name, src string, require func(string) (engine.Handle, error)) (engine.Handle, error) {
	return "handle:" + name, nil
}

// fakeDeferred mirrors gojahost's real deferred enough to exercise the
// trampoline, but its Value() returns the literal resolved handle rather
// than a promise-wrapper object: it's what a caller actually observes
// once this fake settles. On early-rejection paths the trampoline only
// calls Reject on its own pre-allocated deferred.
type fakeDeferred struct {
	resolved engine.Handle
	rejected error
}

func (d *fakeDeferred) Resolve(v engine.Handle) { d.resolved = v }
func (d *fakeDeferred) Reject(err error)        { d.rejected = err }
func (d *fakeDeferred) Value() engine.Handle    { return d.resolved }

func newDeferredFactory() (func() (engine.Deferred, error), *fakeDeferred) {
	d := &fakeDeferred{}
	return func() (engine.Deferred, error) { return d, nil }, d
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.AddBuiltinSource("/node-internal:legacy_process", "src", nil, registry.Internal))
	require.NoError(t, reg.AddBuiltinSource("/node-internal:public_process", "src", nil, registry.Internal))
	reg.SetDynamicImportHandler(func(thunk func() (engine.Handle, error)) engine.Deferred {
		d := &fakeDeferred{}
		h, err := thunk()
		if err != nil {
			d.Reject(err)
		} else {
			d.Resolve(h)
		}
		return d
	})
	return reg
}

func TestHandleResolvesProcessLegacyByDefault(t *testing.T) {
	reg := newTestRegistry(t)
	newDeferred, _ := newDeferredFactory()
	deps := Deps{Registry: reg, Flags: config.Default()}

	d := Handle(deps, fakeLock{}, newDeferred, "/app.js", "node:process", "node:process", nil)
	require.NotNil(t, d)

	// A successful dynamic import settles via the registry's own
	// DynamicImportHandler, so Handle must return that handler's deferred
	// directly rather than re-wrapping its value into a second one.
	fd, ok := d.(*fakeDeferred)
	require.True(t, ok)
	assert.Nil(t, fd.rejected)
	assert.Equal(t, engine.Handle("handle:/node-internal:legacy_process"), fd.resolved)
}

func TestHandleResolvesProcessV2WhenFlagged(t *testing.T) {
	reg := newTestRegistry(t)
	newDeferred, _ := newDeferredFactory()
	deps := Deps{Registry: reg, Flags: config.CompatibilityFlags{ProcessV2: true}}

	d := Handle(deps, fakeLock{}, newDeferred, "/app.js", "node:process", "node:process", nil)
	fd, ok := d.(*fakeDeferred)
	require.True(t, ok)
	assert.Nil(t, fd.rejected)
	assert.Equal(t, engine.Handle("handle:/node-internal:public_process"), fd.resolved)
}

func TestHandleRejectsUnknownImportAttributesWhenFlagged(t *testing.T) {
	reg := newTestRegistry(t)
	newDeferred, fd := newDeferredFactory()
	deps := Deps{Registry: reg, Flags: config.CompatibilityFlags{RejectUnknownImportAttributes: true}}

	// Rejected before step 7 ever runs, so this settles the trampoline's
	// own pre-allocated deferred, not one produced by the handler.
	d := Handle(deps, fakeLock{}, newDeferred, "/app.js", "./x.js", "./x.js", map[string]string{"type": "json"})
	assert.Same(t, engine.Deferred(fd), d)
	require.Error(t, fd.rejected)
}

func TestHandleRejectsNotFoundSpecifier(t *testing.T) {
	reg := newTestRegistry(t)
	newDeferred, fd := newDeferredFactory()
	deps := Deps{Registry: reg, Flags: config.Default()}

	d := Handle(deps, fakeLock{}, newDeferred, "/app.js", "./missing.js", "./missing.js", nil)
	assert.Same(t, engine.Deferred(fd), d)
	require.Error(t, fd.rejected)
	assert.Contains(t, fd.rejected.Error(), "No such module")
}

func TestHandleBuiltinReferrerDowngradesToInternalOnly(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddBuiltinSource("/node:fancy", "src", nil, registry.Builtin))

	newDeferred, _ := newDeferredFactory()
	deps := Deps{Registry: reg, Flags: config.Default()}

	// referrer "/node:fancy" only exists in the BUILTIN namespace, so a
	// dynamic import from it must be forced to INTERNAL_ONLY; "/other"
	// exists only in the INTERNAL namespace, which DEFAULT resolution
	// never consults, so finding it shows the downgrade happened.
	require.NoError(t, reg.AddBuiltinSource("/other", "src", nil, registry.Internal))

	d := Handle(deps, fakeLock{}, newDeferred, "/node:fancy", "/other", "/other", nil)
	fd, ok := d.(*fakeDeferred)
	require.True(t, ok)
	assert.Nil(t, fd.rejected)
	assert.NotNil(t, fd.resolved)
}
