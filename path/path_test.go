package path

import "testing"

func TestParseRejectsEmptyAndNull(t *testing.T) {
	if _, err := Parse(""); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Parse("/foo//bar"); err != ErrEmptySegment {
		t.Fatalf("expected ErrEmptySegment, got %v", err)
	}
	if _, err := Parse("/foo/b\x00r"); err != ErrNullByte {
		t.Fatalf("expected ErrNullByte, got %v", err)
	}
}

func TestParseReservedPrefixIsSingleSegmentAbsolute(t *testing.T) {
	p, err := Parse("node:util")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsAbsolute() {
		t.Fatal("expected node: specifier to parse as absolute")
	}
	if got := p.ToString(true); got != "/node:util" {
		t.Fatalf("got %q", got)
	}
	if segs := p.Segments(); len(segs) != 1 || segs[0] != "node:util" {
		t.Fatalf("expected single segment \"node:util\", got %v", segs)
	}
}

func TestParentOfRootIsRoot(t *testing.T) {
	root := Root()
	if !root.Parent().Equal(root) {
		t.Fatal("parent of root must be root")
	}
}

func TestEvalDotAndDotDot(t *testing.T) {
	base := MustParse("/a/b/c")
	got, err := base.Parent().Eval("./d")
	if err != nil {
		t.Fatal(err)
	}
	if want := "/a/b/d"; got.ToString(true) != want {
		t.Fatalf("got %q want %q", got.ToString(true), want)
	}

	got, err = base.Parent().Eval("../x")
	if err != nil {
		t.Fatal(err)
	}
	if want := "/a/x"; got.ToString(true) != want {
		t.Fatalf("got %q want %q", got.ToString(true), want)
	}
}

func TestEvalEscapingRootFails(t *testing.T) {
	if _, err := Root().Eval("../x"); err != ErrEscapesRoot {
		t.Fatalf("expected ErrEscapesRoot, got %v", err)
	}
}

// Reserved-prefix bypass: referrer /foo/bar, specifier node:util must
// resolve to /node:util, not /foo/node:util (spec.md §8 scenario 2).
func TestEvalReservedPrefixBypassesReferrer(t *testing.T) {
	referrer := MustParse("/foo/bar")
	got, err := referrer.Parent().Eval("node:util")
	if err != nil {
		t.Fatal(err)
	}
	if want := "/node:util"; got.ToString(true) != want {
		t.Fatalf("got %q want %q", got.ToString(true), want)
	}
}

func TestToStringAbsoluteAlwaysLeadingSeparator(t *testing.T) {
	root := Root()
	if root.ToString(true) != "/" {
		t.Fatalf("got %q", root.ToString(true))
	}
}

func TestHashCodeStableAndDistinguishesSegments(t *testing.T) {
	a := MustParse("/a/b")
	b := MustParse("/a/b")
	c := MustParse("/a/c")
	if a.HashCode() != b.HashCode() {
		t.Fatal("equal paths must hash equal")
	}
	if a.HashCode() == c.HashCode() {
		t.Fatal("distinct paths should (almost certainly) hash distinct")
	}
}
