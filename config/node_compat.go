package config

import (
	"github.com/zclconf/go-cty/cty"
)

// nodeCompatAliases is the bare-specifier rewrite table consulted by the
// dynamic-import trampoline's Node-compat step (spec.md §4.5 step 3). It
// is expressed as a cty.Value map (rather than a plain Go map literal);
// extra aliases are overlaid with MergeNodeCompatAliases. The flags
// document read by Load has no alias block, so nothing in this package
// feeds HCL-supplied aliases into the table.
var nodeCompatAliases = cty.MapVal(map[string]cty.Value{
	"assert":         cty.StringVal("node:assert"),
	"buffer":         cty.StringVal("node:buffer"),
	"crypto":         cty.StringVal("node:crypto"),
	"events":         cty.StringVal("node:events"),
	"path":           cty.StringVal("node:path"),
	"process":        cty.StringVal("node:process"),
	"stream":         cty.StringVal("node:stream"),
	"string_decoder": cty.StringVal("node:string_decoder"),
	"util":           cty.StringVal("node:util"),
})

// RewriteBareNodeSpecifier returns the node:-prefixed specifier a bare
// Node identifier (e.g. "buffer") should be rewritten to, and whether
// specifier matched a known alias.
func RewriteBareNodeSpecifier(specifier string) (string, bool) {
	v := nodeCompatAliases.AsValueMap()
	target, ok := v[specifier]
	if !ok {
		return "", false
	}
	return target.AsString(), true
}

// MergeNodeCompatAliases overlays extra aliases (e.g. operator-supplied
// via HCL) on top of the built-in table, with extra taking precedence.
func MergeNodeCompatAliases(extra map[string]string) {
	merged := nodeCompatAliases.AsValueMap()
	out := make(map[string]cty.Value, len(merged)+len(extra))
	for k, v := range merged {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = cty.StringVal(v)
	}
	nodeCompatAliases = cty.MapVal(out)
}
