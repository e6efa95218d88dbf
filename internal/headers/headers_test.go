package headers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/ident"
)

func writeFile(t *testing.T, dir, rel, contents string) string {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return full
}

func TestLookupAngledFindsSystemDir(t *testing.T) {
	root := t.TempDir()
	sysDir := filepath.Join(root, "sys")
	writeFile(t, root, "sys/foo.h", "// foo\n")

	s := New(fsmgr.New(), Config{
		SystemDirs: []SearchDir{{Path: sysDir, Characteristic: CharacteristicSystem}},
	})

	r, err := s.Lookup("foo.h", true, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatalf("want a hit for foo.h in the system dir")
	}
}

func TestLookupQuotedPrefersCurrentFileDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/inc.h", "// here\n")
	otherDir := filepath.Join(root, "other")
	writeFile(t, root, "other/inc.h", "// there\n")

	fm := fsmgr.New()
	writeFile(t, root, "src/main.c", "")
	curFile, _, _ := fm.File(filepath.Join(root, "src", "main.c"))

	s := New(fm, Config{
		AngledDirs: []SearchDir{{Path: otherDir}},
	})

	r, err := s.Lookup("inc.h", false, -1, curFile)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatalf("want a hit")
	}
	if r.File.Name != filepath.Join(root, "src", "inc.h") {
		t.Fatalf("want the file in the including directory to win, got %s", r.File.Name)
	}
}

func TestLookupCacheReturnsSameFileOnSecondLookup(t *testing.T) {
	root := t.TempDir()
	d1 := filepath.Join(root, "d1")
	d2 := filepath.Join(root, "d2")
	os.MkdirAll(d1, 0o755)
	writeFile(t, root, "d2/only.h", "")

	s := New(fsmgr.New(), Config{
		SystemDirs: []SearchDir{{Path: d1}, {Path: d2}},
	})

	r1, err := s.Lookup("only.h", true, -1, nil)
	if err != nil || r1 == nil {
		t.Fatalf("want a hit on first lookup, err=%v", err)
	}
	r2, err := s.Lookup("only.h", true, -1, nil)
	if err != nil || r2 == nil {
		t.Fatalf("want a hit on second (cached) lookup, err=%v", err)
	}
	if r1.File != r2.File {
		t.Fatalf("want handle-equal files across cached lookups")
	}
}

func TestMultipleIncludeOptimizationImport(t *testing.T) {
	root := t.TempDir()
	fm := fsmgr.New()
	path := writeFile(t, root, "once.h", "")
	f, _, _ := fm.File(path)

	s := New(fm, Config{})
	if !s.ShouldEnter(f, true, func(ident.ID) bool { return false }) {
		t.Fatalf("want the first #import to enter")
	}
	if s.ShouldEnter(f, true, func(ident.ID) bool { return false }) {
		t.Fatalf("want a second #import of the same file to be skipped")
	}
}

func TestMultipleIncludeOptimizationControllingMacro(t *testing.T) {
	root := t.TempDir()
	fm := fsmgr.New()
	path := writeFile(t, root, "guard.h", "")
	f, _, _ := fm.File(path)

	pool := ident.NewPool()
	macro := pool.Get("GUARD_H")

	s := New(fm, Config{})
	defined := false
	isDefined := func(id ident.ID) bool { return defined }

	if !s.ShouldEnter(f, false, isDefined) {
		t.Fatalf("want the first #include (no controlling macro yet) to enter")
	}
	s.SetControllingMacro(f, macro)
	defined = true

	if s.ShouldEnter(f, false, isDefined) {
		t.Fatalf("want the second #include to be skipped once the controlling macro is defined")
	}
}

func TestAbsoluteIncludeNextForbidden(t *testing.T) {
	s := New(fsmgr.New(), Config{})
	_, err := s.Lookup("/abs/path.h", false, 0, nil)
	if err == nil {
		t.Fatalf("want an error for #include_next with an absolute path")
	}
}

func TestFrameworkLookup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Foo.framework/Headers/Foo.h", "")

	s := New(fsmgr.New(), Config{
		AngledDirs: []SearchDir{{Path: root, Kind: DirFramework}},
	})

	r, err := s.Lookup("Foo/Foo.h", true, -1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil {
		t.Fatalf("want framework header to resolve")
	}
}
