// Package config loads the compatibility-flag document that governs
// optional, backward-incompatible resolver behaviors: whether unknown
// import attributes are rejected, whether Node built-in compatibility
// shims are installed, and which generation of the `node:process` shim
// is used (spec.md §4.5, §8 "Node process routing"). Flags are decoded
// from HCL the way specialistvlad-burstgridgo decodes its grid and
// module-definition files.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// CompatibilityFlags mirrors a worker's compatibility-date-derived flag
// set, scoped to the subset the module registry consults.
type CompatibilityFlags struct {
	// RejectUnknownImportAttributes rejects a dynamic import carrying any
	// import attributes instead of silently ignoring them (spec.md §4.5
	// step 1).
	RejectUnknownImportAttributes bool `hcl:"reject_unknown_import_attributes,optional"`

	// NodeCompat enables bare-specifier rewriting for known Node built-in
	// module names (spec.md §4.5 step 3).
	NodeCompat bool `hcl:"node_compat,optional"`

	// ProcessV2 selects node-internal:public_process over
	// node-internal:legacy_process for `node:process` (spec.md §4.5 step
	// 4, §8 "Node process routing").
	ProcessV2 bool `hcl:"process_v2,optional"`
}

// Default returns the flag set matching the original engine's legacy
// behavior: attributes ignored, no Node compat shims, legacy process.
func Default() CompatibilityFlags {
	return CompatibilityFlags{}
}

// Load parses an HCL compatibility-flag document from path.
//
//	reject_unknown_import_attributes = true
//	node_compat                      = true
//	process_v2                       = true
func Load(path string) (CompatibilityFlags, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return CompatibilityFlags{}, fmt.Errorf("config: parse %s: %s", path, diags.Error())
	}

	var flags CompatibilityFlags
	diags = gohcl.DecodeBody(file.Body, nil, &flags)
	if diags.HasErrors() {
		return CompatibilityFlags{}, fmt.Errorf("config: decode %s: %s", path, diags.Error())
	}
	return flags, nil
}
