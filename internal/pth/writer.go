package pth

import (
	"bytes"
	"encoding/binary"

	"github.com/clangcore/cflow/internal/lexer"
)

type tokenRec struct {
	kind        lexer.Kind
	flags       lexer.Flag
	persistent  uint32
	rawLocation uint32
	length      uint32
}

type sideEntry struct {
	directiveIdx uint32 // absolute index into the global token-record stream
	matchEndIdx  uint32
}

type fileBuilder struct {
	device, inode  uint64
	startRecordIdx int
	openStack      []int // absolute record indices of unmatched '#' tokens
	sideTable      []sideEntry
}

// Writer accumulates one translation unit's worth of lexed tokens, grouped
// per physical file, and serializes them into the on-disk layout described
// by §6.4/§4.5 on Bytes(). Writing is the cold lexer's job (component F's
// raw path feeds it); Writer itself does no lexing.
type Writer struct {
	tokens []tokenRec

	identOrder  []string
	identByName map[string]uint32 // name -> persistent id (0 reserved, unused here; ids start at 1 to mirror ident.ID's reserved-zero convention)

	files   []*fileBuilder
	current *fileBuilder
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{identByName: make(map[string]uint32, 256)}
}

// BeginFile starts accumulating tokens for the file identified by
// (device, inode). Exactly one file may be open at a time.
func (w *Writer) BeginFile(device, inode uint64) {
	w.current = &fileBuilder{device: device, inode: inode, startRecordIdx: len(w.tokens)}
}

// EndFile closes the currently open file, recording it in the file table.
// Any conditional directives left open (malformed input) are simply
// dropped from the side table rather than erroring — the writer's contract
// is best-effort caching, not validation.
func (w *Writer) EndFile() {
	if w.current == nil {
		return
	}
	w.files = append(w.files, w.current)
	w.current = nil
}

// persistentID returns the dense persistent id for name, shared by every
// file this Writer records,
// assigning the next one on first sight. Ids start at 1 so 0 can mean
// "no identifier" on non-identifier token records.
func (w *Writer) persistentID(name string) uint32 {
	if id, ok := w.identByName[name]; ok {
		return id
	}
	id := uint32(len(w.identOrder)) + 1
	w.identByName[name] = id
	w.identOrder = append(w.identOrder, name)
	return id
}

// Token appends one token record to the currently open file's stream. name
// is the identifier spelling for Kind == lexer.Identifier and is ignored
// (and may be empty) for every other kind.
func (w *Writer) Token(kind lexer.Kind, flags lexer.Flag, name string, rawLocation, length uint32) {
	var persistent uint32
	if kind == lexer.Identifier && name != "" {
		persistent = w.persistentID(name)
	}
	w.tokens = append(w.tokens, tokenRec{
		kind: kind, flags: flags, persistent: persistent,
		rawLocation: rawLocation, length: length,
	})
}

// BeginConditional records the absolute index of a just-written '#'
// (Hash) directive token as the start of a skippable conditional block.
func (w *Writer) BeginConditional() {
	if w.current == nil || len(w.tokens) == 0 {
		return
	}
	w.current.openStack = append(w.current.openStack, len(w.tokens)-1)
}

// EndConditional closes the innermost open conditional, pairing it with
// the most recently written token (the matching #endif's last record) so
// the reader's skip_block can hop directly past it in O(1) (§4.5, §8
// property 11).
func (w *Writer) EndConditional() {
	if w.current == nil || len(w.current.openStack) == 0 || len(w.tokens) == 0 {
		return
	}
	n := len(w.current.openStack)
	start := w.current.openStack[n-1]
	w.current.openStack = w.current.openStack[:n-1]
	w.current.sideTable = append(w.current.sideTable, sideEntry{
		directiveIdx: uint32(start),
		matchEndIdx:  uint32(len(w.tokens) - 1),
	})
}

// Bytes serializes the accumulated tokens, identifier table, file table,
// and side tables into the on-disk layout, magic+version first and the
// trailer last.
func (w *Writer) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(VersionMajor)
	buf.WriteByte(VersionMinor)
	buf.WriteByte(VersionPatch)
	buf.WriteByte(0) // reserved

	// 1. token records, dense across the whole translation unit.
	for _, t := range w.tokens {
		buf.WriteByte(byte(t.kind))
		buf.WriteByte(byte(t.flags))
		writeU32(&buf, t.persistent)
		writeU32(&buf, t.rawLocation)
		writeU32(&buf, t.length)
	}

	// 2. identifier blob: (u32 flags_word [unused, reserved 0], u32 name_length, bytes...)
	identBlobStart := buf.Len()
	identOffsets := make([]uint32, len(w.identOrder))
	for i, name := range w.identOrder {
		identOffsets[i] = uint32(buf.Len() - identBlobStart)
		writeU32(&buf, 0)
		writeU32(&buf, uint32(len(name)))
		buf.WriteString(name)
	}

	// 3. identifier offset table.
	identOffsetTableOffset := uint32(buf.Len())
	writeU32(&buf, uint32(len(identOffsets)))
	for _, off := range identOffsets {
		writeU32(&buf, off)
	}

	// 4. side tables, one contiguous run per file, tracked by span.
	sideTableOffset := uint32(buf.Len())
	type fileSide struct{ off, count uint32 }
	sides := make([]fileSide, len(w.files))
	for i, f := range w.files {
		sides[i] = fileSide{off: uint32(buf.Len()), count: uint32(len(f.sideTable))}
		for _, e := range f.sideTable {
			writeU32(&buf, e.directiveIdx)
			writeU32(&buf, e.matchEndIdx)
		}
	}

	// 5. file table.
	fileTableOffset := uint32(buf.Len())
	writeU32(&buf, uint32(len(w.files)))
	for i, f := range w.files {
		writeU64(&buf, f.device)
		writeU64(&buf, f.inode)
		writeU32(&buf, uint32(f.startRecordIdx))
		count := len(w.tokens) - f.startRecordIdx
		if i+1 < len(w.files) {
			count = w.files[i+1].startRecordIdx - f.startRecordIdx
		}
		writeU32(&buf, uint32(count))
		writeU32(&buf, sides[i].off)
		writeU32(&buf, sides[i].count)
	}

	// 6. trailer.
	writeU32(&buf, uint32(identBlobStart))
	writeU32(&buf, identOffsetTableOffset)
	writeU32(&buf, fileTableOffset)
	writeU32(&buf, sideTableOffset)

	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
