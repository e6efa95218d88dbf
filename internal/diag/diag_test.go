package diag

import (
	"strings"
	"testing"

	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/srcmgr"
)

func TestEmitDeduplicatesByLocation(t *testing.T) {
	s := NewSink()

	added := s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 10, Message: "first"})
	if !added {
		t.Fatalf("want the first emit at a fresh location to be added")
	}
	added = s.Emit(Diagnostic{Kind: UseOfUninitializedInControlFlow, Loc: 10, Message: "second, same location"})
	if added {
		t.Fatalf("want a second emit at an already-seen location to be rejected")
	}
	added = s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 11, Message: "third, new location"})
	if !added {
		t.Fatalf("want an emit at a new location to be added")
	}

	if got := s.Len(); got != 2 {
		t.Fatalf("want 2 distinct diagnostics, got %d", got)
	}
	if got := len(s.Diagnostics()); got != 2 {
		t.Fatalf("want Diagnostics() to return 2 entries, got %d", got)
	}
	if s.Diagnostics()[0].Message != "first" {
		t.Fatalf("want the first emitted diagnostic kept, got %q", s.Diagnostics()[0].Message)
	}
}

func TestDiagnosticsOrderMatchesEmissionOrder(t *testing.T) {
	s := NewSink()
	s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 3, Message: "c"})
	s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 1, Message: "a"})
	s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 2, Message: "b"})

	got := s.Diagnostics()
	want := []string{"c", "a", "b"}
	for i, msg := range want {
		if got[i].Message != msg {
			t.Fatalf("want Diagnostics()[%d].Message == %q, got %q", i, msg, got[i].Message)
		}
	}
}

func TestKindStringNamesEveryKind(t *testing.T) {
	cases := []struct {
		k    Kind
		want string
	}{
		{ExplicitNullDereference, "null dereference"},
		{UseOfUninitializedInControlFlow, "use of uninitialized value in control flow"},
		{CannotLocateInclude, "cannot locate include"},
	}
	for _, c := range cases {
		if got := c.k.String(); got != c.want {
			t.Fatalf("Kind(%d).String() = %q, want %q", c.k, got, c.want)
		}
	}
}

func TestRenderFallsBackOnUnresolvableLocation(t *testing.T) {
	s := NewSink()
	s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: 9999, Message: "dereference of a null pointer"})

	sm := srcmgr.New(fsmgr.New()) // no files registered, so every Loc is unresolvable
	lines := s.Render(sm)
	if len(lines) != 1 {
		t.Fatalf("want 1 rendered line, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "null dereference") || !strings.Contains(lines[0], "dereference of a null pointer") {
		t.Fatalf("want the fallback line to still carry the kind and message, got %q", lines[0])
	}
}

func TestRenderResolvesFileLineColumn(t *testing.T) {
	sm := srcmgr.New(fsmgr.New())
	start := sm.CreateMemoryBuffer("input.c", []byte("int x;\nint *p = 0;\n"))

	s := NewSink()
	s.Emit(Diagnostic{Kind: ExplicitNullDereference, Loc: start + 7, Message: "dereference of a null pointer"})

	lines := s.Render(sm)
	if len(lines) != 1 {
		t.Fatalf("want 1 rendered line, got %d", len(lines))
	}
	want := "input.c:2:1: null dereference: dereference of a null pointer"
	if lines[0] != want {
		t.Fatalf("want %q, got %q", want, lines[0])
	}
}
