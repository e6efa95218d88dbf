package ident

import "testing"

func TestGetIsStableAndPointerEqual(t *testing.T) {
	p := NewPool()

	a1 := p.Get("foo")
	a2 := p.Get("foo")
	if a1 != a2 {
		t.Fatalf("want equal handles for repeated Get, got %d and %d", a1, a2)
	}
	if p.Info(a1) != p.Info(a2) {
		t.Fatalf("want pointer-equal Info for the same name")
	}
	if p.Name(a1) != "foo" {
		t.Fatalf("want name round-trip byte-for-byte, got %q", p.Name(a1))
	}

	b := p.Get("bar")
	if b == a1 {
		t.Fatalf("distinct names must not collide")
	}
}

func TestLookupDoesNotIntern(t *testing.T) {
	p := NewPool()
	if _, ok := p.Lookup("missing"); ok {
		t.Fatalf("want not-found for a name never interned")
	}
	if p.Len() != 0 {
		t.Fatalf("Lookup must not intern, got Len()=%d", p.Len())
	}
}

func TestIterIsStableOrder(t *testing.T) {
	p := NewPool()
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		p.Get(n)
	}

	var got []string
	p.Iter(func(id ID, info *Info) {
		got = append(got, info.Name)
	})
	if len(got) != len(names) {
		t.Fatalf("want %d entries, got %d", len(names), len(got))
	}
	for i, n := range names {
		if got[i] != n {
			t.Fatalf("want order-of-insertion iteration, at %d want %q got %q", i, n, got[i])
		}
	}
}

func TestZeroIDReserved(t *testing.T) {
	p := NewPool()
	id := p.Get("x")
	if id == 0 {
		t.Fatalf("want first interned id to be non-zero (0 is reserved)")
	}
}
