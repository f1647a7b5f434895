// Package fallback implements the out-of-process module fallback lookup
// service client: a single-in-flight rendezvous between the (possibly
// many, always sequential) engine-domain callers and one background
// goroutine that owns the actual HTTP connection (spec.md §4.7, grounded
// on workerd/server/fallback-service.c++).
package fallback

import (
	"github.com/bytedance/sonic"

	"github.com/dop251/goja-modreg/registry"
)

// wireModule is the JSON shape of a workerd-config-style module
// description, as returned by the fallback service's 200 response body
// (spec.md §4.7; mirrors server::config::Worker::Module's JSON
// annotation in the original).
type wireModule struct {
	Name string `json:"name,omitempty"`

	ESModule   *string `json:"esModule,omitempty"`
	CommonJS   *string `json:"commonJsModule,omitempty"`
	Text       *string `json:"text,omitempty"`
	Data       []byte  `json:"data,omitempty"`
	Wasm       []byte  `json:"wasm,omitempty"`
	JSON       *string `json:"json,omitempty"`
}

// wireRequest is the V2 POST body (spec.md §4.7, FallbackServiceRequest).
type wireRequest struct {
	Type         string            `json:"type"`
	Specifier    string            `json:"specifier"`
	RawSpecifier string            `json:"rawSpecifier,omitempty"`
	Referrer     string            `json:"referrer"`
	Attributes   []wireAttribute   `json:"attributes,omitempty"`
}

type wireAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeWireRequest(r wireRequest) ([]byte, error) {
	return sonic.Marshal(r)
}

func decodeWireModule(payload []byte, expectSpecifier string) (registry.BundleModule, error) {
	var w wireModule
	if err := sonic.Unmarshal(payload, &w); err != nil {
		return registry.BundleModule{}, err
	}
	name := w.Name
	if name == "" {
		name = expectSpecifier
	}
	m := registry.BundleModule{Name: name}
	switch {
	case w.ESModule != nil:
		m.Type = registry.TypeSrc
		m.Src = *w.ESModule
	case w.CommonJS != nil:
		m.Type = registry.TypeSrc
		m.Src = *w.CommonJS
	case w.Text != nil:
		m.Type = registry.TypeData
		m.Data = []byte(*w.Text)
	case w.JSON != nil:
		m.Type = registry.TypeJSON
		m.JSON = *w.JSON
	case w.Wasm != nil:
		m.Type = registry.TypeWasm
		m.Wasm = w.Wasm
	case w.Data != nil:
		m.Type = registry.TypeData
		m.Data = w.Data
	default:
		m.Type = registry.TypeSrc
		m.Src = ""
	}
	return m, nil
}
