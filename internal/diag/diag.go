// Package diag implements the diagnostics sink (component K): an ordered,
// de-duplicated collection of (kind, location, message) triples produced by
// header search and the path-sensitive engine, rendered through the source
// manager's presumed location.
package diag

import (
	"fmt"

	"github.com/clangcore/cflow/internal/srcmgr"
)

// Kind is one of the three diagnostic kinds this core produces (§6.3).
type Kind uint8

const (
	ExplicitNullDereference Kind = iota
	UseOfUninitializedInControlFlow
	CannotLocateInclude
)

func (k Kind) String() string {
	switch k {
	case ExplicitNullDereference:
		return "null dereference"
	case UseOfUninitializedInControlFlow:
		return "use of uninitialized value in control flow"
	case CannotLocateInclude:
		return "cannot locate include"
	default:
		return "unknown diagnostic"
	}
}

// Diagnostic is one finding: a kind, the source location it applies to, and
// a human-readable message with any formatting arguments already applied.
type Diagnostic struct {
	Kind    Kind
	Loc     srcmgr.Loc
	Message string
}

// Sink collects diagnostics, de-duplicating by source location: one
// diagnostic per distinct location. Order of Diagnostics() matches
// emission order — entries are written as they arrive, never sorted.
type Sink struct {
	seen  map[srcmgr.Loc]bool
	items []Diagnostic
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{seen: make(map[srcmgr.Loc]bool)}
}

// Emit records d unless its location was already reported; it reports
// whether d was newly added.
func (s *Sink) Emit(d Diagnostic) bool {
	if s.seen[d.Loc] {
		return false
	}
	s.seen[d.Loc] = true
	s.items = append(s.items, d)
	return true
}

// Diagnostics returns every recorded diagnostic, in emission order.
func (s *Sink) Diagnostics() []Diagnostic {
	return s.items
}

// Len reports how many distinct diagnostics have been recorded.
func (s *Sink) Len() int {
	return len(s.items)
}

// Render formats every recorded diagnostic as "file:line:col: kind: message"
// via sm's presumed_location. A diagnostic whose location no longer
// resolves is rendered as "<loc N>: kind: message" with its raw location
// in place of file:line:col (sm owns a different translation
// unit than the one that produced the diagnostic, normally a programmer
// error when wiring the driver).
func (s *Sink) Render(sm *srcmgr.Manager) []string {
	out := make([]string, 0, len(s.items))
	for _, d := range s.items {
		filename, line, col, err := sm.PresumedLocation(d.Loc)
		if err != nil {
			out = append(out, fmt.Sprintf("<loc %d>: %s: %s", d.Loc, d.Kind, d.Message))
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d:%d: %s: %s", filename, line, col, d.Kind, d.Message))
	}
	return out
}
