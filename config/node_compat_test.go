package config

import "testing"

func TestRewriteBareNodeSpecifier(t *testing.T) {
	got, ok := RewriteBareNodeSpecifier("buffer")
	if !ok || got != "node:buffer" {
		t.Fatalf("expected node:buffer, true; got %q, %v", got, ok)
	}

	_, ok = RewriteBareNodeSpecifier("left-pad")
	if ok {
		t.Fatalf("expected no alias for an unknown bare specifier")
	}
}

func TestMergeNodeCompatAliasesOverridesBuiltin(t *testing.T) {
	MergeNodeCompatAliases(map[string]string{"buffer": "node:buffer-shim"})
	defer MergeNodeCompatAliases(map[string]string{"buffer": "node:buffer"})

	got, ok := RewriteBareNodeSpecifier("buffer")
	if !ok || got != "node:buffer-shim" {
		t.Fatalf("expected override to take effect, got %q, %v", got, ok)
	}
}
