package engine

import "github.com/clangcore/cflow/internal/cfgbuilder"

// processBranch implements §4.7.3. block's own visit counter (incremented
// at block-entrance, §4.7.1) gates whether this call produces any
// successors at all: once a block has been entered more than
// branchVisitBound times, its outgoing branch stops generating further
// successors, which is how loop exploration terminates.
func (e *Engine) processBranch(n *Node, block *cfgbuilder.Block) {
	if e.graph.visitCount(block.ID) > branchVisitBound {
		return
	}

	term := block.Terminator
	for _, cf := range e.evalExpr(n.State, term.Cond) {
		if cf.Sink {
			succ, _ := e.graph.Successor(n, ProgramPoint{Kind: PointBlockEdge, EdgeFrom: block.ID, HasTerminator: true}, cf.State)
			succ.markSink(cf.SinkKind, cf.SinkLoc)
			continue
		}
		e.branchOutcomes(n, block, cf.State, cf.Value)
	}
}

func (e *Engine) branchOutcomes(n *Node, block *cfgbuilder.Block, state *State, cond Value) {
	term := block.Terminator

	switch cond.Kind {
	case ValUninitialised:
		// true side is a sink tagged uninit-control-flow; false side is
		// marked infeasible by simply never creating a node for it.
		sink, _ := e.graph.Successor(n, ProgramPoint{Kind: PointBlockEdge, EdgeFrom: block.ID, EdgeTo: term.TrueBlock, HasTerminator: true}, state)
		sink.markSink(SinkUninitControlFlow, term.Cond.Loc)
		return

	case ValUnknown:
		e.pushBranchEdge(n, block.ID, term.TrueBlock, state)
		e.pushBranchEdge(n, block.ID, term.FalseBlock, state)
		return
	}

	if iv, ok := cond.IsConcreteInt(); ok {
		if iv != 0 {
			e.pushBranchEdge(n, block.ID, term.TrueBlock, state)
		} else {
			e.pushBranchEdge(n, block.ID, term.FalseBlock, state)
		}
		return
	}

	// symbol or symbol-int-constraint: split via the constraint solver,
	// emitting only the feasible sides.
	trueSt, trueOK := e.fac.Assume(state, cond, true)
	falseSt, falseOK := e.fac.Assume(state, cond, false)
	if trueOK {
		e.pushBranchEdge(n, block.ID, term.TrueBlock, trueSt)
	}
	if falseOK {
		e.pushBranchEdge(n, block.ID, term.FalseBlock, falseSt)
	}
}

func (e *Engine) pushBranchEdge(n *Node, from, to cfgbuilder.BlockID, state *State) {
	edge, isNew := e.graph.Successor(n, ProgramPoint{Kind: PointBlockEdge, EdgeFrom: from, EdgeTo: to, HasTerminator: true}, state)
	e.pushIfNew(edge, isNew)
}
