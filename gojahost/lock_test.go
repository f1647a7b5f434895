package gojahost

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dop251/goja-modreg/engine"
)

func TestCompileSourceEvaluatesModuleBody(t *testing.T) {
	vm := goja.New()
	rt := New(vm)

	h, err := rt.CompileSource("/m.js", `exports.value = 1 + 1;`, nil, engine.OriginBundle)
	require.NoError(t, err)

	obj, ok := h.(*goja.Object)
	require.True(t, ok)
	assert.Equal(t, int64(2), obj.Get("value").ToInteger())
}

func TestNewCommonJSModuleSupportsRequire(t *testing.T) {
	vm := goja.New()
	rt := New(vm)

	dep, err := rt.CompileSource("/dep.js", `exports.greet = function() { return "hi"; };`, nil, engine.OriginBundle)
	require.NoError(t, err)

	require_ := func(specifier string) (engine.Handle, error) {
		if specifier == "./dep.js" {
			return dep, nil
		}
		return nil, assertNoSuchModule(specifier)
	}

	h, err := rt.NewCommonJSModule("/main.js", `
		var dep = require("./dep.js");
		exports.result = dep.greet();
	`, require_)
	require.NoError(t, err)

	obj, ok := h.(*goja.Object)
	require.True(t, ok)
	assert.Equal(t, "hi", obj.Get("result").String())
}

func assertNoSuchModule(specifier string) error {
	return &noSuchModuleErr{specifier}
}

type noSuchModuleErr struct{ specifier string }

func (e *noSuchModuleErr) Error() string { return "no such module: " + e.specifier }

func TestParseJSONAndWrapBytes(t *testing.T) {
	vm := goja.New()
	rt := New(vm)

	h, err := rt.ParseJSON([]byte(`{"a":1}`))
	require.NoError(t, err)
	v, ok := h.(goja.Value)
	require.True(t, ok)
	obj := v.ToObject(vm)
	assert.Equal(t, int64(1), obj.Get("a").ToInteger())

	bh := rt.WrapBytes([]byte("abc"))
	bv, ok := bh.(goja.Value)
	require.True(t, ok)
	assert.NotNil(t, bv)
}
