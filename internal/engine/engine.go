package engine

import (
	"github.com/clangcore/cflow/internal/cfgbuilder"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// branchVisitBound is the default per-block visit count above which
// processBranch refuses to generate further successors (§4.7.1, §4.7.3) —
// the mechanism that terminates loop exploration.
const branchVisitBound = 1

// Engine drives the worklist over one function's CFG, producing an exploded
// Graph and, on request, a set of diagnostics extracted from its sink nodes.
type Engine struct {
	cfg   *cfgbuilder.CFG
	graph *Graph
	fac   *Factory
	syms  *SymbolManager
	work  Worklist

	stepsTaken int
}

// New builds an Engine ready to explore cfg, starting from an empty state at
// the entry block's block-entrance point.
func New(cfg *cfgbuilder.CFG) *Engine {
	e := &Engine{
		cfg:   cfg,
		graph: NewGraph(),
		fac:   NewFactory(),
		syms:  NewSymbolManager(),
		work:  NewWorklist(),
	}
	root := e.graph.AddRoot(ProgramPoint{Kind: PointBlockEntrance, Block: cfg.Entry}, e.fac.Empty())
	e.work.Push(root)
	return e
}

// Graph returns the exploded graph built so far.
func (e *Engine) Graph() *Graph { return e.graph }

// Execute drains the worklist, processing at most maxSteps nodes (§4.7.1);
// a non-positive maxSteps means unbounded.
func (e *Engine) Execute(maxSteps int) {
	for !e.work.Empty() {
		if maxSteps > 0 && e.stepsTaken >= maxSteps {
			return
		}
		n, ok := e.work.Pop()
		if !ok {
			return
		}
		e.stepsTaken++
		e.dispatch(n)
	}
}

// pushIfNew enqueues succ only if this call just created it — a merge into
// an already-existing (point, state) node must not be re-dispatched.
func (e *Engine) pushIfNew(succ *Node, isNew bool) {
	if isNew {
		e.work.Push(succ)
	}
}

func (e *Engine) dispatch(n *Node) {
	if n.dispatched || n.Sink {
		return
	}
	n.dispatched = true

	switch n.Point.Kind {
	case PointBlockEntrance:
		e.graph.recordVisit(n.Point.Block) // bound is enforced in processBranch, not here (§4.7.1 step 2)
		block := e.cfg.Block(n.Point.Block)
		if len(block.Stmts) == 0 {
			succ, isNew := e.graph.Successor(n, ProgramPoint{Kind: PointBlockExit, Block: n.Point.Block}, n.State)
			e.pushIfNew(succ, isNew)
			return
		}
		e.processStatement(n, block, 0)

	case PointPostStatement:
		block := e.cfg.Block(n.Point.Block)
		next := n.Point.StmtIndex + 1
		if next < len(block.Stmts) {
			e.processStatement(n, block, next)
			return
		}
		succ, isNew := e.graph.Successor(n, ProgramPoint{Kind: PointBlockExit, Block: n.Point.Block}, n.State)
		e.pushIfNew(succ, isNew)

	case PointBlockExit:
		block := e.cfg.Block(n.Point.Block)
		if block.Terminator != nil && block.Terminator.Kind == cfgbuilder.Branch {
			e.processBranch(n, block)
			return
		}
		for _, to := range block.Succs {
			edge, isNew := e.graph.Successor(n, ProgramPoint{Kind: PointBlockEdge, EdgeFrom: n.Point.Block, EdgeTo: to}, n.State)
			e.pushIfNew(edge, isNew)
		}

	case PointBlockEdge:
		succ, isNew := e.graph.Successor(n, ProgramPoint{Kind: PointBlockEntrance, Block: n.Point.EdgeTo}, n.State)
		e.pushIfNew(succ, isNew)
	}
}

// deadBindingCleanup implements §4.7.2's universal rule: drop bindings not
// live at stmt according to the CFG's liveness oracle. Idempotent by
// construction — Factory.WithoutBindings is a no-op once already applied.
func (e *Engine) deadBindingCleanup(state *State, atStmt cfgbuilder.ID) *State {
	var dead []bindingKey
	for k := range state.bindings {
		switch k.Kind {
		case bindSubExpr, bindBlockLevel:
			if !e.cfg.Live.IsExprLive(cfgbuilder.ID(k.Raw), atStmt) {
				dead = append(dead, k)
			}
		case bindDeclLValue:
			if !e.cfg.Live.IsDeclLive(cfgbuilder.DeclID(k.Raw), atStmt) {
				dead = append(dead, k)
			}
		}
	}
	if len(dead) == 0 {
		return state
	}
	return e.fac.WithoutBindings(state, dead)
}

// processStatement evaluates block.Stmts[idx] against n's state and pushes
// its successor(s): a PostStatement node for each feasible non-sink
// resulting state, and an immediate sink node (no successors) for each
// feasible sink fork (produced by pointer dereference, §4.7.2's Unary `*`
// row, and by returning an uninitialised value).
func (e *Engine) processStatement(n *Node, block *cfgbuilder.Block, idx int) {
	stmt := block.Stmts[idx]
	state := e.deadBindingCleanup(n.State, stmt.ID)

	forks := e.evalStatement(state, stmt)
	point := ProgramPoint{Kind: PointPostStatement, Block: block.ID, StmtIndex: idx}

	for _, fk := range forks {
		// No-op short-circuit (§4.7.2): Factory never allocates a new
		// state when a mutation has no observable effect, so an unchanged
		// fk.State already equals n.State by hash-consed identity here;
		// Graph.Successor's (point, state) cache then naturally reuses
		// whatever node already sits at this exact point, rather than
		// this call needing to special-case it.
		succ, isNew := e.graph.Successor(n, point, fk.State)
		if fk.Sink {
			succ.markSink(fk.SinkKind, fk.SinkLoc)
			continue
		}
		e.pushIfNew(succ, isNew)
	}
}

// fork is one forked outcome of evaluating an expression or statement: a
// resulting state, the expression's value (meaningless for a sink fork),
// and, for a fork that terminates the path, which diagnostic it represents.
type fork struct {
	State    *State
	Value    Value
	Sink     bool
	SinkKind SinkKind
	SinkLoc  srcmgr.Loc
}

// evalStatement applies the per-statement-kind transfer function (§4.7.2),
// returning the fork(s) reached after fully processing it.
func (e *Engine) evalStatement(state *State, stmt *cfgbuilder.Stmt) []fork {
	switch stmt.Kind {
	case cfgbuilder.StmtExpr:
		if stmt.X == nil {
			return []fork{{State: state}}
		}
		return e.evalBlockLevel(state, stmt.X)

	case cfgbuilder.StmtDecl:
		if stmt.X == nil {
			return []fork{{State: e.fac.WithBinding(state, declKey(stmt.Decl), Uninitialised)}}
		}
		var out []fork
		for _, fk := range e.evalExpr(state, stmt.X) {
			if fk.Sink {
				out = append(out, fk)
				continue
			}
			out = append(out, fork{State: e.fac.WithBinding(fk.State, declKey(stmt.Decl), fk.Value), Value: fk.Value})
		}
		return out

	case cfgbuilder.StmtReturn:
		if stmt.X == nil {
			return []fork{{State: state}}
		}
		forks := e.evalBlockLevel(state, stmt.X)
		// An uninitialized value flowing out through a return is, like a
		// branch condition built from one, control-flow-relevant: it is
		// the value the caller's own control flow will act on. Tag it the
		// same way a direct branch on an uninitialized condition is
		// tagged in branch.go, at the return statement's own location.
		for i, fk := range forks {
			if !fk.Sink && fk.Value.Kind == ValUninitialised {
				forks[i] = fork{State: fk.State, Sink: true, SinkKind: SinkUninitControlFlow, SinkLoc: stmt.Loc}
			}
		}
		return forks

	default:
		return []fork{{State: state}}
	}
}

// evalBlockLevel evaluates x and binds the block-level value (§3.7's
// "statement-id (block-level expression value)" binding), for the
// statement-kinds whose effect is exactly their top-level expression's.
func (e *Engine) evalBlockLevel(state *State, x *cfgbuilder.Expr) []fork {
	var out []fork
	for _, fk := range e.evalExpr(state, x) {
		if fk.Sink {
			out = append(out, fk)
			continue
		}
		out = append(out, fork{State: e.fac.WithBinding(fk.State, blockLevelKey(x.ID), fk.Value), Value: fk.Value})
	}
	return out
}

// getDeclValue implements the DeclRef-rvalue rule of §4.7.2: an existing
// binding wins; otherwise a parameter gets a fresh symbol (persisted into
// the returned state so later reads see the same symbol), and any other
// declaration defaults to Unknown.
func (e *Engine) getDeclValue(state *State, d cfgbuilder.DeclID) (*State, Value) {
	if v, ok := state.binding(declKey(d)); ok {
		return state, v
	}
	if e.cfg.IsParam(d) {
		sym := e.syms.Fresh()
		v := SymbolValue(sym)
		return e.fac.WithBinding(state, declKey(d), v), v
	}
	return state, Unknown
}

// evalExpr is the expression-level transfer function (§4.7.2's table,
// excluding Return/DeclStmt which are handled in evalStatement). Operands
// that themselves fork (pointer dereference, `&&`/`||`, and `?:`) are combined by
// evaluating left-to-right and threading each live fork through the rest of
// the expression; a sink fork is never evaluated further.
func (e *Engine) evalExpr(state *State, x *cfgbuilder.Expr) []fork {
	switch x.Kind {
	case cfgbuilder.ExprLiteral:
		return []fork{{State: state, Value: ConcreteInt(x.IntVal)}}

	case cfgbuilder.ExprDeclRef:
		if x.LValue {
			return []fork{{State: state, Value: LValueDecl(x.Decl)}}
		}
		st, v := e.getDeclValue(state, x.Decl)
		return []fork{{State: st, Value: v}}

	case cfgbuilder.ExprCast:
		return mapForks(e.evalExpr(state, x.X), func(st *State, v Value) fork {
			return fork{State: st, Value: v.cast()}
		})

	case cfgbuilder.ExprIncDec:
		return e.evalIncDec(state, x)

	case cfgbuilder.ExprAddr:
		return mapForks(e.evalExpr(state, x.X), func(st *State, v Value) fork {
			return fork{State: st, Value: v}
		})

	case cfgbuilder.ExprDeref:
		return e.evalDeref(state, x)

	case cfgbuilder.ExprUnaryArith:
		return mapForks(e.evalExpr(state, x.X), func(st *State, v Value) fork {
			return fork{State: st, Value: applyUnaryArith(x.UnaryOp, v)}
		})

	case cfgbuilder.ExprSizeof:
		return []fork{{State: state, Value: ConcreteInt(x.IntVal)}}

	case cfgbuilder.ExprBinaryArith:
		return combineForks(e.evalExpr(state, x.X), e, x.Y, func(st *State, l, r Value) fork {
			return fork{State: st, Value: applyBinaryArith(x.BinOp, l, r)}
		})

	case cfgbuilder.ExprAssign:
		return e.evalAssign(state, x)

	case cfgbuilder.ExprCompoundAssign:
		return e.evalCompoundAssign(state, x)

	case cfgbuilder.ExprLogicalAnd:
		return e.evalLogical(state, x, true)

	case cfgbuilder.ExprLogicalOr:
		return e.evalLogical(state, x, false)

	case cfgbuilder.ExprConditional:
		return e.evalConditional(state, x)

	case cfgbuilder.ExprComma:
		return combineForks(e.evalExpr(state, x.X), e, x.Y, func(st *State, _, r Value) fork {
			return fork{State: st, Value: r}
		})

	default:
		return []fork{{State: state, Value: Unknown}}
	}
}

// mapForks applies fn to every non-sink fork's (state, value), leaving sink
// forks untouched and passed through.
func mapForks(forks []fork, fn func(*State, Value) fork) []fork {
	out := make([]fork, 0, len(forks))
	for _, fk := range forks {
		if fk.Sink {
			out = append(out, fk)
			continue
		}
		out = append(out, fn(fk.State, fk.Value))
	}
	return out
}

// combineForks evaluates rightExpr against every non-sink fork of leftForks
// (threading that fork's own state through, so an earlier dereference's
// narrowed state is visible to the right operand) and applies fn to each
// resulting (left, right) value pair.
func combineForks(leftForks []fork, e *Engine, rightExpr *cfgbuilder.Expr, fn func(st *State, l, r Value) fork) []fork {
	var out []fork
	for _, lf := range leftForks {
		if lf.Sink {
			out = append(out, lf)
			continue
		}
		for _, rf := range e.evalExpr(lf.State, rightExpr) {
			if rf.Sink {
				out = append(out, rf)
				continue
			}
			out = append(out, fn(rf.State, lf.Value, rf.Value))
		}
	}
	return out
}

// applyUnaryArith implements §4.7.2's "Unary -, ~, !" row: element-wise on a
// concrete integer; "!" is equivalent to "== 0", which for a symbolic
// operand is itself an assumable symbol-int-constraint rather than a flat
// Unknown — without this, `if (!p)` could never narrow p the way `if (p)`
// does, and S3's "assume on !p eliminates the null branch" would be
// unreachable.
func applyUnaryArith(op cfgbuilder.UnaryArithOp, v Value) Value {
	if iv, ok := v.IsConcreteInt(); ok {
		switch op {
		case cfgbuilder.OpNeg:
			return ConcreteInt(-iv)
		case cfgbuilder.OpNot:
			return ConcreteInt(^iv)
		case cfgbuilder.OpLNot:
			if iv == 0 {
				return ConcreteInt(1)
			}
			return ConcreteInt(0)
		}
		return Unknown
	}
	if op == cfgbuilder.OpLNot {
		if sym, ok := v.symbolOf(); ok {
			return SymbolIntConstraint(sym, ConstraintEQ, 0)
		}
	}
	return Unknown
}

func applyBinaryArith(op cfgbuilder.BinaryOp, l, r Value) Value {
	lv, lok := l.IsConcreteInt()
	rv, rok := r.IsConcreteInt()
	if !lok || !rok {
		return Unknown
	}
	switch op {
	case cfgbuilder.OpAdd:
		return ConcreteInt(lv + rv)
	case cfgbuilder.OpSub:
		return ConcreteInt(lv - rv)
	case cfgbuilder.OpMul:
		return ConcreteInt(lv * rv)
	case cfgbuilder.OpDiv:
		if rv == 0 {
			return Unknown
		}
		return ConcreteInt(lv / rv)
	case cfgbuilder.OpMod:
		if rv == 0 {
			return Unknown
		}
		return ConcreteInt(lv % rv)
	case cfgbuilder.OpAnd:
		return ConcreteInt(lv & rv)
	case cfgbuilder.OpOr:
		return ConcreteInt(lv | rv)
	case cfgbuilder.OpXor:
		return ConcreteInt(lv ^ rv)
	case cfgbuilder.OpShl:
		return ConcreteInt(lv << uint(rv))
	case cfgbuilder.OpShr:
		return ConcreteInt(lv >> uint(rv))
	case cfgbuilder.OpEq:
		return boolInt(lv == rv)
	case cfgbuilder.OpNe:
		return boolInt(lv != rv)
	case cfgbuilder.OpLt:
		return boolInt(lv < rv)
	case cfgbuilder.OpGt:
		return boolInt(lv > rv)
	case cfgbuilder.OpLe:
		return boolInt(lv <= rv)
	case cfgbuilder.OpGe:
		return boolInt(lv >= rv)
	default:
		return Unknown
	}
}

func boolInt(b bool) Value {
	if b {
		return ConcreteInt(1)
	}
	return ConcreteInt(0)
}

func (e *Engine) evalIncDec(state *State, x *cfgbuilder.Expr) []fork {
	lvForks := e.evalExpr(state, x.X)
	var out []fork
	for _, lf := range lvForks {
		if lf.Sink {
			out = append(out, lf)
			continue
		}
		if lf.Value.Kind != ValLValueDecl {
			out = append(out, fork{State: lf.State, Value: Unknown})
			continue
		}
		d := lf.Value.Decl
		st, old := e.getDeclValue(lf.State, d)
		oldInt, ok := old.IsConcreteInt()
		var updated Value
		if ok {
			if x.IsInc {
				updated = ConcreteInt(oldInt + 1)
			} else {
				updated = ConcreteInt(oldInt - 1)
			}
		} else {
			updated = Unknown
		}
		st = e.fac.WithBinding(st, declKey(d), updated)
		result := updated
		if x.IsPost {
			result = old
		}
		out = append(out, fork{State: st, Value: result})
	}
	return out
}

func (e *Engine) evalAssign(state *State, x *cfgbuilder.Expr) []fork {
	var out []fork
	for _, lf := range e.evalExpr(state, x.X) {
		if lf.Sink {
			out = append(out, lf)
			continue
		}
		for _, rf := range e.evalExpr(lf.State, x.Y) {
			if rf.Sink {
				out = append(out, rf)
				continue
			}
			st := rf.State
			if lf.Value.Kind == ValLValueDecl {
				st = e.fac.WithBinding(st, declKey(lf.Value.Decl), rf.Value)
			}
			out = append(out, fork{State: st, Value: rf.Value})
		}
	}
	return out
}

func (e *Engine) evalCompoundAssign(state *State, x *cfgbuilder.Expr) []fork {
	var out []fork
	for _, lf := range e.evalExpr(state, x.X) {
		if lf.Sink {
			out = append(out, lf)
			continue
		}
		if lf.Value.Kind != ValLValueDecl {
			out = append(out, fork{State: lf.State, Value: Unknown})
			continue
		}
		d := lf.Value.Decl
		st, old := e.getDeclValue(lf.State, d)
		for _, rf := range e.evalExpr(st, x.Y) {
			if rf.Sink {
				out = append(out, rf)
				continue
			}
			combined := applyBinaryArith(x.BinOp, old, rf.Value)
			newSt := e.fac.WithBinding(rf.State, declKey(d), combined)
			out = append(out, fork{State: newSt, Value: combined})
		}
	}
	return out
}

// evalLogical implements §4.7.4. isAnd selects && (true) vs || (false).
func (e *Engine) evalLogical(state *State, x *cfgbuilder.Expr, isAnd bool) []fork {
	var out []fork
	for _, lf := range e.evalExpr(state, x.X) {
		if lf.Sink {
			out = append(out, lf)
			continue
		}
		shortCircuitOn := int64(0)
		if !isAnd {
			shortCircuitOn = 1
		}
		if lv, ok := lf.Value.IsConcreteInt(); ok && lv == shortCircuitOn {
			out = append(out, fork{State: lf.State, Value: ConcreteInt(shortCircuitOn)})
			continue
		}

		for _, rf := range e.evalExpr(lf.State, x.Y) {
			if rf.Sink {
				out = append(out, rf)
				continue
			}
			switch rf.Value.Kind {
			case ValUnknown:
				// §9 open question: both operands Unknown (or the left
				// already resolved to a non-short-circuiting concrete
				// value while the right is Unknown) yields one successor
				// carrying Unknown. Any other right operand is assumed in
				// both senses: a symbolic one splits, a concrete one keeps
				// only its matching side, an uninitialised one keeps both.
				out = append(out, fork{State: rf.State, Value: Unknown})
			default:
				trueSt, trueOK := e.fac.Assume(rf.State, rf.Value, true)
				falseSt, falseOK := e.fac.Assume(rf.State, rf.Value, false)
				if trueOK {
					out = append(out, fork{State: trueSt, Value: ConcreteInt(1)})
				}
				if falseOK {
					out = append(out, fork{State: falseSt, Value: ConcreteInt(0)})
				}
			}
		}
	}
	return out
}

func (e *Engine) evalConditional(state *State, x *cfgbuilder.Expr) []fork {
	var out []fork
	for _, cf := range e.evalExpr(state, x.X) {
		if cf.Sink {
			out = append(out, cf)
			continue
		}
		thenForks := e.evalExpr(cf.State, x.Y)
		elseForks := e.evalExpr(cf.State, x.Z)
		thenUnknown := len(thenForks) == 1 && !thenForks[0].Sink && thenForks[0].Value.Kind == ValUnknown
		elseUnknown := len(elseForks) == 1 && !elseForks[0].Sink && elseForks[0].Value.Kind == ValUnknown
		switch {
		case thenUnknown && !elseUnknown:
			out = append(out, elseForks...)
		case elseUnknown && !thenUnknown:
			out = append(out, thenForks...)
		default:
			out = append(out, thenForks...)
			out = append(out, elseForks...)
		}
	}
	return out
}

// evalDeref implements §4.7.2's Unary `*` row and property 13: the pointer
// is assumed non-null (successor A) and null (successor B, a sink). B is
// classified explicit if A was also feasible, implicit if A was infeasible
// (the state had already constrained the pointer to null, so B's null-ness was
// reached only because the checker itself narrowed the state, not because
// this dereference newly discovered anything actionable).
func (e *Engine) evalDeref(state *State, x *cfgbuilder.Expr) []fork {
	var out []fork
	for _, pf := range e.evalExpr(state, x.X) {
		if pf.Sink {
			out = append(out, pf)
			continue
		}
		ptr := pf.Value
		nonNullSt, nonNullOK := e.fac.Assume(pf.State, ptr, true)
		nullSt, nullOK := e.fac.Assume(pf.State, ptr, false)

		if nonNullOK {
			out = append(out, fork{State: nonNullSt, Value: Unknown})
		}
		if nullOK {
			kind := SinkImplicitNullDereference
			if nonNullOK {
				kind = SinkExplicitNullDereference
			}
			out = append(out, fork{State: nullSt, Sink: true, SinkKind: kind, SinkLoc: x.Loc})
		}
	}
	return out
}
