package fsmgr

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileUniquesThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.h")
	if err := os.WriteFile(real, []byte("int x;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "alias.h")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	m := New()
	f1, ok1, err1 := m.File(real)
	f2, ok2, err2 := m.File(link)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if !ok1 || !ok2 {
		t.Fatalf("want both lookups to succeed")
	}
	if f1 != f2 {
		t.Fatalf("want handle-equal entries for the same physical file through a symlink")
	}
}

func TestFileCachesNonExistent(t *testing.T) {
	m := New()
	missing := filepath.Join(t.TempDir(), "nope.h")

	_, ok, err := m.File(missing)
	if ok || err != nil {
		t.Fatalf("want ok=false, err=nil for a missing file, got ok=%v err=%v", ok, err)
	}

	// second lookup must hit the cache and agree
	_, ok2, err2 := m.File(missing)
	if ok2 || err2 != nil {
		t.Fatalf("want cached miss to stay a miss")
	}
}

func TestFileRejectsDirectory(t *testing.T) {
	m := New()
	dir := t.TempDir()

	_, ok, err := m.File(dir)
	if ok {
		t.Fatalf("want ok=false when path is a directory")
	}
	if err == nil {
		t.Fatalf("want a non-nil error distinguishing 'is a directory' from 'does not exist'")
	}
}

func TestDirectoryCachesHit(t *testing.T) {
	m := New()
	dir := t.TempDir()

	d1, ok1 := m.Directory(dir)
	d2, ok2 := m.Directory(dir)
	if !ok1 || !ok2 {
		t.Fatalf("want both lookups to succeed")
	}
	if d1 != d2 {
		t.Fatalf("want handle-equal directory entries across repeated lookups")
	}
}

func TestUIDsAreUniquePerFile(t *testing.T) {
	m := New()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.h")
	b := filepath.Join(dir, "b.h")
	os.WriteFile(a, []byte("a"), 0o644)
	os.WriteFile(b, []byte("b"), 0o644)

	fa, _, _ := m.File(a)
	fb, _, _ := m.File(b)
	if fa.UID == fb.UID {
		t.Fatalf("want distinct UIDs for distinct files")
	}
}
