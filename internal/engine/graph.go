package engine

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/clangcore/cflow/internal/cfgbuilder"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// ProgramPointKind tags the four program-point shapes of §3.8. Represented
// as a tagged struct rather than a pointer to a polymorphic base, per §9's
// "Global ProgramPoint variants" design note.
type ProgramPointKind uint8

const (
	PointBlockEntrance ProgramPointKind = iota
	PointPostStatement
	PointBlockExit
	PointBlockEdge
)

// ProgramPoint identifies where in the CFG a node sits.
type ProgramPoint struct {
	Kind ProgramPointKind

	Block BlockIDOrZero // BlockEntrance, PostStatement, BlockExit

	StmtIndex int // PostStatement: index of the statement just processed

	EdgeFrom, EdgeTo cfgbuilder.BlockID // BlockEdge
	HasTerminator    bool               // BlockEdge: true if reached via a branch rather than fallthrough
}

// BlockIDOrZero is cfgbuilder.BlockID, named here only so ProgramPoint's
// field list reads self-documenting about which points carry a block.
type BlockIDOrZero = cfgbuilder.BlockID

// SinkKind classifies why a node was marked as a sink (no further
// successors), feeding §4.7.6's diagnostic extraction.
type SinkKind uint8

const (
	SinkNone SinkKind = iota
	SinkExplicitNullDereference
	SinkImplicitNullDereference
	SinkUninitControlFlow
)

// Node is one exploded node (§3.8): a program point, a shared state
// reference, predecessor/successor links, and a sink classification. Nodes
// are created by the worklist and never mutated after being linked into the
// graph except for the Sink/SinkKind pair, which transitions at most once
// from (false, SinkNone).
type Node struct {
	ID    uint32
	Point ProgramPoint
	State *State

	Preds []*Node
	Succs []*Node

	Sink     bool
	SinkKind SinkKind
	SinkLoc  srcmgr.Loc // the source location a diagnostic should report

	dispatched bool // set once Engine.dispatch has processed this node
}

// markSink transitions a node to sink exactly once; later calls are no-ops,
// matching the false→true-at-most-once lifecycle of §3.8.
func (n *Node) markSink(kind SinkKind, loc srcmgr.Loc) {
	if n.Sink {
		return
	}
	n.Sink = true
	n.SinkKind = kind
	n.SinkLoc = loc
}

// Graph owns every node, the roots set, and a per-block visit counter used
// to bound loop unrolling (§4.7.1, §4.7.3). The counter is a RoaringBitmap
// per block: each visit inserts the next unseen sequence number, so
// GetCardinality() is the visit count — this exercises the RoaringBitmap
// dependency already wired into the domain stack for compact integer-set
// bookkeeping, repurposed here from "set of ids" to "monotonic counter with
// an auditable visit-sequence trail" rather than a bare int.
type Graph struct {
	nodes []*Node
	roots []*Node

	visitCounts map[cfgbuilder.BlockID]*roaring.Bitmap
	visitSeq    uint32

	// byPointAndState merges exploration paths that reach the same program
	// point with the hash-consed-identical state back into one node,
	// instead of growing the graph unboundedly on re-converging branches —
	// the graph-level analogue of §4.7.2's "no-op short-circuit" rule.
	byPointAndState map[string]*Node
}

// NewGraph returns an empty exploded graph.
func NewGraph() *Graph {
	return &Graph{
		visitCounts:     make(map[cfgbuilder.BlockID]*roaring.Bitmap),
		byPointAndState: make(map[string]*Node),
	}
}

func pointStateKey(point ProgramPoint, state *State) string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%t|%s", point.Kind, point.Block, point.StmtIndex, point.EdgeFrom, point.EdgeTo, point.HasTerminator, state.Key())
}

func (g *Graph) newNode(point ProgramPoint, state *State) *Node {
	n := &Node{ID: uint32(len(g.nodes)) + 1, Point: point, State: state}
	g.nodes = append(g.nodes, n)
	return n
}

// AddRoot creates and registers a root node (the CFG's entry block-entrance,
// with the initial state).
func (g *Graph) AddRoot(point ProgramPoint, state *State) *Node {
	n := g.newNode(point, state)
	g.roots = append(g.roots, n)
	g.byPointAndState[pointStateKey(point, state)] = n
	return n
}

// link records pred -> succ in both directions.
func (g *Graph) link(pred, succ *Node) {
	pred.Succs = append(pred.Succs, succ)
	succ.Preds = append(succ.Preds, pred)
}

// Successor returns the node at (point, state) reachable from pred, creating
// it if no node at that (point, state) pair exists yet, or merging into the
// existing one (and reports which happened via isNew so the caller only
// enqueues genuinely new work).
func (g *Graph) Successor(pred *Node, point ProgramPoint, state *State) (succ *Node, isNew bool) {
	key := pointStateKey(point, state)
	if existing, ok := g.byPointAndState[key]; ok {
		g.link(pred, existing)
		return existing, false
	}
	succ = g.newNode(point, state)
	g.link(pred, succ)
	g.byPointAndState[key] = succ
	return succ, true
}

// recordVisit increments block's visit counter and returns the new count.
func (g *Graph) recordVisit(block cfgbuilder.BlockID) uint64 {
	bm := g.visitCounts[block]
	if bm == nil {
		bm = roaring.New()
		g.visitCounts[block] = bm
	}
	g.visitSeq++
	bm.Add(g.visitSeq)
	return bm.GetCardinality()
}

func (g *Graph) visitCount(block cfgbuilder.BlockID) uint64 {
	bm := g.visitCounts[block]
	if bm == nil {
		return 0
	}
	return bm.GetCardinality()
}

// Nodes returns every node created so far, in creation order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Sinks returns every node currently marked as a sink, in creation order.
func (g *Graph) Sinks() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Sink {
			out = append(out, n)
		}
	}
	return out
}
