package engine_test

import (
	"testing"

	"github.com/clangcore/cflow/internal/engine"
)

// TestStructurallyEqualStatesShareIdentity checks that two states built
// through different call sequences, but ending at the same bindings/eq/ne
// content, are the same *State value — the fold-set's hash-consing promise.
func TestStructurallyEqualStatesShareIdentity(t *testing.T) {
	fac := engine.NewFactory()
	syms := engine.NewSymbolManager()
	sym := syms.Fresh()

	a, ok := fac.AssumeEq(fac.Empty(), sym, 5)
	if !ok {
		t.Fatalf("want AssumeEq(empty, sym, 5) feasible")
	}

	// Reach the same fact through a different route: an AssumeNe whose fact
	// is displaced by the same AssumeEq, landing on an identical eq/ne pair.
	mid, ok := fac.AssumeNe(fac.Empty(), sym, 9)
	if !ok {
		t.Fatalf("want AssumeNe(empty, sym, 9) feasible")
	}
	b, ok := fac.AssumeEq(mid, sym, 5)
	if !ok {
		t.Fatalf("want AssumeEq(mid, sym, 5) feasible")
	}

	if a != b {
		t.Fatalf("want structurally-equal states to be the same *State, got distinct pointers with keys %q and %q", a.Key(), b.Key())
	}
}

// TestWithEqDisplacesNe checks invariant (1) of the state's eq/ne maps:
// unconditionally recording sym == k (via WithEq, which skips the
// feasibility check AssumeEq would apply) clears any previously-recorded
// sym != k fact for that symbol, since eq and ne for the same symbol must
// never both be populated.
func TestWithEqDisplacesNe(t *testing.T) {
	fac := engine.NewFactory()
	syms := engine.NewSymbolManager()
	sym := syms.Fresh()

	s := fac.WithNe(fac.Empty(), sym, 7)
	if !s.Ne(sym, 7) {
		t.Fatalf("want sym != 7 recorded")
	}

	s = fac.WithEq(s, sym, 5)
	if k, ok := s.Eq(sym); !ok || k != 5 {
		t.Fatalf("want sym == 5 recorded, got eq=%v k=%d", ok, k)
	}
	if s.Ne(sym, 7) {
		t.Fatalf("want the earlier sym != 7 fact cleared once sym == 5 is recorded")
	}
}

// TestAssumeEqContradictingPriorNeIsInfeasible checks that asserting sym == k
// is infeasible once sym != k has already been recorded for that same k.
func TestAssumeEqContradictingPriorNeIsInfeasible(t *testing.T) {
	fac := engine.NewFactory()
	syms := engine.NewSymbolManager()
	sym := syms.Fresh()

	s, ok := fac.AssumeNe(fac.Empty(), sym, 5)
	if !ok {
		t.Fatalf("want AssumeNe(empty, sym, 5) feasible")
	}

	_, ok = fac.AssumeEq(s, sym, 5)
	if ok {
		t.Fatalf("want AssumeEq(s, sym, 5) infeasible, since s already records sym != 5")
	}
}

// TestAssumeTrueAndFalseOnOriginalStateAreBothFeasibleAndComplementary checks
// that splitting an unconstrained symbol's original state on a condition
// built from it produces two feasible, mutually exclusive states: one with
// sym != 0 (true sense) and one with sym == 0 (false sense).
func TestAssumeTrueAndFalseOnOriginalStateAreBothFeasibleAndComplementary(t *testing.T) {
	fac := engine.NewFactory()
	syms := engine.NewSymbolManager()
	sym := syms.Fresh()

	original := fac.Empty()
	cond := engine.SymbolValue(sym)

	trueSt, trueOK := fac.Assume(original, cond, true)
	falseSt, falseOK := fac.Assume(original, cond, false)
	if !trueOK || !falseOK {
		t.Fatalf("want both senses feasible on an unconstrained symbol, got true=%v false=%v", trueOK, falseOK)
	}
	if _, eq := trueSt.Eq(sym); eq {
		t.Fatalf("want the true-sense state to record sym != 0, not sym == k")
	}
	if !trueSt.Ne(sym, 0) {
		t.Fatalf("want the true-sense state to record sym != 0")
	}
	k, eq := falseSt.Eq(sym)
	if !eq || k != 0 {
		t.Fatalf("want the false-sense state to record sym == 0, got eq=%v k=%d", eq, k)
	}

	// Re-asserting the opposite sense on each resulting state must now be
	// infeasible: the two states are mutually exclusive.
	if _, ok := fac.Assume(trueSt, cond, false); ok {
		t.Fatalf("want asserting the false sense on the true-sense state to be infeasible")
	}
	if _, ok := fac.Assume(falseSt, cond, true); ok {
		t.Fatalf("want asserting the true sense on the false-sense state to be infeasible")
	}
}

// TestAssumeEqNoOpWhenFactAlreadyRecorded checks the "no-op short-circuit"
// rule: re-asserting a fact the state already records returns the identical
// state rather than allocating (and hash-consing) a new one.
func TestAssumeEqNoOpWhenFactAlreadyRecorded(t *testing.T) {
	fac := engine.NewFactory()
	syms := engine.NewSymbolManager()
	sym := syms.Fresh()

	s, ok := fac.AssumeEq(fac.Empty(), sym, 1)
	if !ok {
		t.Fatalf("want AssumeEq(empty, sym, 1) feasible")
	}

	same, ok2 := fac.AssumeEq(s, sym, 1)
	if !ok2 {
		t.Fatalf("want AssumeEq(s, sym, 1) feasible when s already records sym == 1")
	}
	if same != s {
		t.Fatalf("want re-asserting an already-recorded fact to return the identical state")
	}
}
