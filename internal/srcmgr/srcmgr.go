// Package srcmgr implements the source manager (component C): it assigns and
// decodes compact source locations across raw files, memory buffers, and
// macro expansions.
//
// A Loc is an offset into one monotonically growing 32-bit space; each entry
// (file chunk or macro expansion) reserves a contiguous sub-range of that
// space starting at its own base offset, so "which entry does this Loc
// belong to" reduces to searching entries sorted by base offset, remembering
// the last resolving index so a run of lookups in the same locality doesn't
// rescan from the start each time.
package srcmgr

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/clangcore/cflow/internal/fsmgr"
)

// Loc is the opaque 32-bit source-location handle of §3.1. Zero means
// "invalid"; it never maps to a real character.
type Loc uint32

const Invalid Loc = 0

// MaxEntrySpan bounds how many offset slots a single entry (file chunk or
// macro expansion) may reserve — the "~17 bit offset field" of §3.1. A file
// larger than this is split into contiguous chunks (§4.3 create_chunked_file).
const MaxEntrySpan = 1 << 17

type entryKind uint8

const (
	entryFileChunk entryKind = iota
	entryMacroExpansion
)

type lineMarker struct {
	atOffset   uint32 // offset (within this entry) where the #line directive appears
	presumedNo int     // the line number the *next* line should be presumed as
	filename   string  // "" means "unchanged"
}

type entry struct {
	kind       entryKind
	baseOffset uint32
	length     uint32

	// file-chunk fields
	file             *fsmgr.FileEntry
	buffer           []byte
	label            string // for memory buffers with no backing FileEntry
	chunkStartOffset int    // offset into the physical file/buffer where this chunk begins
	includeOrigin    Loc
	isSystemHeader   bool
	lineStarts       []uint32 // lazily built, sorted ascending
	lineDirectives   []lineMarker

	// macro-expansion fields
	spellingLoc      Loc
	instantiationLoc Loc
}

func (e *entry) filename() string {
	if e.file != nil {
		return e.file.Name
	}
	return e.label
}

// Manager is the source manager (component C). Offsets grow monotonically;
// adding an entry never invalidates existing Locs (§4.3 state invariants).
type Manager struct {
	fm      *fsmgr.Manager
	entries []*entry // entries[0] is an unused sentinel so Loc(0) never resolves
	next    uint32

	mruEntryIdx int // accelerates FileIDOf for locality-heavy callers

	lastMacroEntryIdx int // one-entry cache for ExpansionLocation (§4.3)

	lineQueryEntryIdx int // last line_number() query, for diagnostic-emission locality
	lineQueryOffset   uint32
	lineQueryLine     int
}

// New returns an empty Manager holding fm. Buffers are always supplied by
// the caller; the Manager does not read or map files through fm itself.
func New(fm *fsmgr.Manager) *Manager {
	return &Manager{
		fm:      fm,
		entries: make([]*entry, 1, 64), // index 0 = sentinel
		next:    1,                     // reserve offset 0 as "invalid"
	}
}

func (m *Manager) addEntry(e *entry, span uint32) Loc {
	e.baseOffset = m.next
	e.length = span
	m.entries = append(m.entries, e)
	base := m.next
	m.next += span
	return Loc(base)
}

// CreateMainFile registers the primary translation-unit file and returns the
// Loc of its first byte. If buffer is larger than MaxEntrySpan this silently
// delegates to CreateChunkedFile's splitting behaviour.
func (m *Manager) CreateMainFile(file *fsmgr.FileEntry, buffer []byte) (Loc, error) {
	return m.CreateChunkedFile(file, buffer, Invalid)
}

// CreateChunkedFile splits buffer into contiguous chunks of at most
// MaxEntrySpan bytes, each becoming its own file-ID entry, chained so the
// first chunk's includeOrigin is includeOrigin and the Loc numbering across
// chunks stays contiguous and totally ordered. Returns the Loc of the first
// byte of the first chunk.
func (m *Manager) CreateChunkedFile(file *fsmgr.FileEntry, buffer []byte, includeOrigin Loc) (Loc, error) {
	if len(buffer) == 0 {
		e := &entry{kind: entryFileChunk, file: file, buffer: buffer, includeOrigin: includeOrigin}
		return m.addEntry(e, 1), nil // reserve at least one slot so offsets stay distinct
	}

	var first Loc
	offset := 0
	origin := includeOrigin
	for offset < len(buffer) {
		span := len(buffer) - offset
		if span > MaxEntrySpan {
			span = MaxEntrySpan
		}
		e := &entry{
			kind:             entryFileChunk,
			file:             file,
			buffer:           buffer[offset : offset+span],
			chunkStartOffset: offset,
			includeOrigin:    origin,
		}
		loc := m.addEntry(e, uint32(span))
		if offset == 0 {
			first = loc
		}
		offset += span
	}
	return first, nil
}

// CreateMemoryBuffer registers a synthetic input (command-line predefines,
// stdin) that has no backing FileEntry.
func (m *Manager) CreateMemoryBuffer(label string, buffer []byte) Loc {
	span := len(buffer)
	if span == 0 {
		span = 1
	}
	e := &entry{kind: entryFileChunk, label: label, buffer: buffer}
	return m.addEntry(e, uint32(span))
}

// ExpansionLocation records a macro-expansion location (§3.1, §4.3): spelling
// points at the macro body, instantiation at the call site. A fresh entry is
// created unless the previous macro entry shares the same instantiation Loc
// and the new spelling offset falls within its already-reserved span, in
// which case that entry is reused (a one-entry cache, avoiding one new entry
// per token of a multiply-referenced macro argument).
func (m *Manager) ExpansionLocation(spelling, instantiation Loc, tokenLength int) Loc {
	if m.lastMacroEntryIdx != 0 && m.lastMacroEntryIdx < len(m.entries) {
		prev := m.entries[m.lastMacroEntryIdx]
		if prev.kind == entryMacroExpansion && prev.instantiationLoc == instantiation {
			if spelling >= prev.spellingLoc && uint32(spelling-prev.spellingLoc) < prev.length {
				return Loc(prev.baseOffset + uint32(spelling-prev.spellingLoc))
			}
		}
	}

	if tokenLength <= 0 {
		tokenLength = 1
	}
	e := &entry{kind: entryMacroExpansion, spellingLoc: spelling, instantiationLoc: instantiation}
	loc := m.addEntry(e, uint32(tokenLength))
	m.lastMacroEntryIdx = len(m.entries) - 1
	return loc
}

// entryIndexOf returns the index into m.entries owning loc, using an MRU
// cache and a short linear probe before falling back to binary search.
func (m *Manager) entryIndexOf(loc Loc) (int, error) {
	if loc == Invalid {
		return 0, errors.New("srcmgr: invalid location")
	}
	off := uint32(loc)

	if mru := m.mruEntryIdx; mru > 0 && mru < len(m.entries) {
		e := m.entries[mru]
		if off >= e.baseOffset && off < e.baseOffset+e.length {
			return mru, nil
		}
		const probeBound = 4
		for d := 1; d <= probeBound; d++ {
			for _, idx := range [2]int{mru - d, mru + d} {
				if idx <= 0 || idx >= len(m.entries) {
					continue
				}
				e := m.entries[idx]
				if off >= e.baseOffset && off < e.baseOffset+e.length {
					m.mruEntryIdx = idx
					return idx, nil
				}
			}
		}
	}

	// binary search: entries[1:] are sorted by baseOffset by construction
	entries := m.entries
	idx := sort.Search(len(entries), func(i int) bool {
		if i == 0 {
			return false
		}
		return entries[i].baseOffset > off
	})
	idx-- // last entry whose baseOffset <= off
	if idx <= 0 || idx >= len(entries) {
		return 0, errors.Errorf("srcmgr: location %d does not resolve to any entry", loc)
	}
	e := entries[idx]
	if off >= e.baseOffset+e.length {
		return 0, errors.Errorf("srcmgr: location %d does not resolve to any entry", loc)
	}
	m.mruEntryIdx = idx
	return idx, nil
}

// FileIDOf returns a stable small integer identifying loc's owning entry
// (file chunk or macro expansion). Two Locs with the same FileIDOf share a
// file-ID for the total-ordering invariant of §3.1.
func (m *Manager) FileIDOf(loc Loc) (int, error) {
	return m.entryIndexOf(loc)
}

// resolveToFileChunk follows spelling-location transitively (§3.1) until a
// file-chunk entry is reached, returning that entry's index and the
// corresponding in-buffer offset.
func (m *Manager) resolveToFileChunk(loc Loc) (idx int, offsetInBuffer int, err error) {
	for {
		idx, err = m.entryIndexOf(loc)
		if err != nil {
			return 0, 0, err
		}
		e := m.entries[idx]
		if e.kind == entryFileChunk {
			return idx, int(uint32(loc) - e.baseOffset), nil
		}
		// macro expansion: step to the spelling location at the same
		// within-entry offset.
		within := uint32(loc) - e.baseOffset
		loc = Loc(uint32(e.spellingLoc) + within)
	}
}

// CharacterData returns the source byte loc refers to, resolving through any
// macro-expansion chain to the underlying file chunk.
func (m *Manager) CharacterData(loc Loc) (byte, error) {
	idx, within, err := m.resolveToFileChunk(loc)
	if err != nil {
		return 0, err
	}
	e := m.entries[idx]
	if within < 0 || within >= len(e.buffer) {
		return 0, errors.Errorf("srcmgr: location %d out of range for entry buffer", loc)
	}
	return e.buffer[within], nil
}

func (e *entry) ensureLineStarts() {
	if e.lineStarts != nil {
		return
	}
	starts := make([]uint32, 0, len(e.buffer)/32+1)
	starts = append(starts, 0)
	for i, b := range e.buffer {
		if b == '\n' {
			starts = append(starts, uint32(i+1))
		}
	}
	e.lineStarts = starts
}

// LineNumber returns the 1-indexed line number of loc. On first query for an
// entry's buffer it scans once to build a sorted line-start table (§4.3);
// subsequent queries binary-search it, and the manager caches the very last
// (entry, offset, line) triple to accelerate locality-heavy callers such as
// diagnostic emission.
func (m *Manager) LineNumber(loc Loc) (int, error) {
	idx, within, err := m.lineLocate(loc)
	if err != nil {
		return 0, err
	}
	if idx == m.lineQueryEntryIdx && within == m.lineQueryOffset && m.lineQueryLine > 0 {
		return m.lineQueryLine, nil
	}
	e := m.entries[idx]
	e.ensureLineStarts()

	line := sort.Search(len(e.lineStarts), func(i int) bool {
		return e.lineStarts[i] > within
	}) // first start strictly greater than within
	m.lineQueryEntryIdx = idx
	m.lineQueryOffset = within
	m.lineQueryLine = line
	return line, nil // sort.Search's result is already the 1-indexed line
}

func (m *Manager) lineLocate(loc Loc) (idx int, within uint32, err error) {
	idx, off, err := m.resolveToFileChunk(loc)
	if err != nil {
		return 0, 0, err
	}
	return idx, uint32(off), nil
}

// ColumnNumber returns the 1-indexed column of loc by walking backward to
// the nearest preceding newline — cheap, no table required (§4.3).
func (m *Manager) ColumnNumber(loc Loc) (int, error) {
	idx, within, err := m.lineLocate(loc)
	if err != nil {
		return 0, err
	}
	buf := m.entries[idx].buffer
	col := 1
	for i := int(within) - 1; i >= 0; i-- {
		if buf[i] == '\n' || buf[i] == '\r' {
			break
		}
		col++
	}
	return col, nil
}

// AddLineDirective records a `#line N "file"` directive's effect starting at
// the next line after loc, resolved through any per-file line table
// consulted by PresumedLocation.
func (m *Manager) AddLineDirective(loc Loc, presumedLineNo int, filename string) error {
	idx, within, err := m.lineLocate(loc)
	if err != nil {
		return err
	}
	e := m.entries[idx]
	e.lineDirectives = append(e.lineDirectives, lineMarker{atOffset: within, presumedNo: presumedLineNo, filename: filename})
	return nil
}

// PresumedLocation resolves loc through any recorded #line directives and
// reports the filename/line/column a diagnostic should display.
func (m *Manager) PresumedLocation(loc Loc) (filename string, line, col int, err error) {
	idx, within, err := m.lineLocate(loc)
	if err != nil {
		return "", 0, 0, err
	}
	e := m.entries[idx]
	realLine, err := m.LineNumber(loc)
	if err != nil {
		return "", 0, 0, err
	}
	col, err = m.ColumnNumber(loc)
	if err != nil {
		return "", 0, 0, err
	}

	filename = e.filename()
	line = realLine
	if len(e.lineDirectives) > 0 {
		e.ensureLineStarts()
		baseLineOfMarker := 0
		applied := false
		for _, d := range e.lineDirectives {
			if d.atOffset > within {
				break
			}
			markerLine := sort.Search(len(e.lineStarts), func(i int) bool { return e.lineStarts[i] > d.atOffset })
			baseLineOfMarker = markerLine
			line = d.presumedNo + (realLine - markerLine - 1)
			if d.filename != "" {
				filename = d.filename
			}
			applied = true
		}
		_ = baseLineOfMarker
		if !applied {
			line = realLine
		}
	}
	return filename, line, col, nil
}

// IsSystemHeader reports whether loc's owning file chunk was marked as a
// system header (propagated from header search, §4.4).
func (m *Manager) IsSystemHeader(loc Loc) (bool, error) {
	idx, _, err := m.resolveToFileChunk(loc)
	if err != nil {
		return false, err
	}
	return m.entries[idx].isSystemHeader, nil
}

// SetSystemHeader marks the file chunk owning loc as a system header.
func (m *Manager) SetSystemHeader(loc Loc, isSystem bool) error {
	idx, err := m.entryIndexOf(loc)
	if err != nil {
		return err
	}
	m.entries[idx].isSystemHeader = isSystem
	return nil
}

// IncludeOrigin returns the location of the #include that brought loc's
// owning file chunk into the translation unit, or Invalid for the main file.
func (m *Manager) IncludeOrigin(loc Loc) (Loc, error) {
	idx, err := m.entryIndexOf(loc)
	if err != nil {
		return Invalid, err
	}
	return m.entries[idx].includeOrigin, nil
}

// FilenameOf is a convenience accessor used by diagnostics that do not need
// presumed-location (#line) resolution.
func (m *Manager) FilenameOf(loc Loc) (string, error) {
	idx, _, err := m.resolveToFileChunk(loc)
	if err != nil {
		return "", err
	}
	return m.entries[idx].filename(), nil
}

// StripPrefix normalizes a presumed filename that may carry a sysroot
// prefix by trimming prefix from the front of s; s is returned unchanged
// when it does not start with prefix.
func StripPrefix(prefix, s string) string {
	return strings.TrimPrefix(s, prefix)
}
