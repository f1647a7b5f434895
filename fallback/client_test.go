package fallback

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dop251/goja-modreg/registry"
)

func TestTryResolveV1NotFoundOnEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	out := c.TryResolve(registry.FallbackV1, registry.Import, "/missing", "missing", "/", nil)
	assert.Equal(t, registry.OutcomeNotFound, out.Kind)
}

func TestTryResolveV1ReturnsModule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "import", r.Header.Get("X-Resolve-Method"))
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"name":"/mod","esModule":"export const x = 1;"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	out := c.TryResolve(registry.FallbackV1, registry.Import, "/mod", "mod", "/", nil)
	require.Equal(t, registry.OutcomeModule, out.Kind)
	require.NotNil(t, out.Module)
	assert.Equal(t, registry.TypeSrc, out.Module.Type)
	assert.Equal(t, "export const x = 1;", out.Module.Src)
}

func TestTryResolveV1Redirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/new-target")
		w.WriteHeader(301)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	out := c.TryResolve(registry.FallbackV1, registry.Import, "/old", "old", "/", nil)
	require.Equal(t, registry.OutcomeRedirect, out.Kind)
	assert.Equal(t, "/new-target", out.Redirect)
}

func TestTryResolveV2PostsJSONBody(t *testing.T) {
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		gotType = string(body)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"name":"/m","commonJsModule":"module.exports = 1;"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	out := c.TryResolve(registry.FallbackV2, registry.Require, "/m", "m", "/", map[string]string{"type": "esm"})
	require.Equal(t, registry.OutcomeModule, out.Kind)
	assert.Contains(t, gotType, `"type":"require"`)
}

func TestTryResolveRejectsNameMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"name":"/other","esModule":"1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	out := c.TryResolve(registry.FallbackV1, registry.Import, "/mine", "mine", "/", nil)
	assert.Equal(t, registry.OutcomeNotFound, out.Kind)
}

func TestConcurrentTryResolvePanics(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.TryResolve(registry.FallbackV1, registry.Import, "/a", "a", "/", nil)
	}()
	// Give the first call time to mark its request in flight before firing
	// the second.
	time.Sleep(20 * time.Millisecond)

	assert.Panics(t, func() {
		c.TryResolve(registry.FallbackV1, registry.Import, "/b", "b", "/", nil)
	})

	block <- struct{}{}
	<-done
}
