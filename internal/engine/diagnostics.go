package engine

import "github.com/clangcore/cflow/internal/diag"

// ExtractDiagnostics implements §4.7.6: after the worklist drains, walk the
// recorded sink nodes and emit one diagnostic per distinct location.
// Implicit null dereferences are suppressed — they occur only because the
// checker itself split the state along an already-explored path, not
// because this node newly discovered anything actionable.
func (e *Engine) ExtractDiagnostics() *diag.Sink {
	sink := diag.NewSink()
	for _, n := range e.graph.Sinks() {
		switch n.SinkKind {
		case SinkExplicitNullDereference:
			sink.Emit(diag.Diagnostic{
				Kind:    diag.ExplicitNullDereference,
				Loc:     n.SinkLoc,
				Message: "dereference of a null pointer",
			})
		case SinkUninitControlFlow:
			sink.Emit(diag.Diagnostic{
				Kind:    diag.UseOfUninitializedInControlFlow,
				Loc:     n.SinkLoc,
				Message: "branch depends on an uninitialized value",
			})
		case SinkImplicitNullDereference:
			// suppressed by design (§4.7.6).
		}
	}
	return sink
}
