package pth

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

type fileRecord struct {
	tokenStreamOffset uint32 // record index, not byte offset
	tokenCount        uint32
	sideTableOffset   uint32 // byte offset
	sideTableCount    uint32
}

// Reader holds one opened PTH cache: its token-record blob plus the parsed
// identifier-offset and file tables. Identifier strings are resolved lazily
// into a caller-supplied pool (§4.5 "reading": "identifier handles are
// resolved lazily").
type Reader struct {
	data []byte

	tokenStreamStart int // byte offset of the first token record

	identOffsets []uint32 // indexed by persistent id - 1
	identBlob    []byte   // identifier blob, addressed by identOffsets

	files map[fsmgr.UniqueKey]fileRecord

	pool     *ident.Pool
	resolved map[uint32]ident.ID // persistent id -> pool id, filled on first use
}

// Open parses data as a PTH cache, checking the magic and version. Resolved
// identifiers are interned into pool as they are first referenced.
func Open(data []byte, pool *ident.Pool) (*Reader, error) {
	if len(data) < 8+trailerSize {
		return nil, errors.New("pth: truncated file")
	}
	if string(data[0:4]) != string(Magic[:]) {
		return nil, errors.New("pth: bad magic")
	}
	if data[4] != VersionMajor {
		return nil, errors.Errorf("pth: unsupported version %d.%d.%d", data[4], data[5], data[6])
	}

	trailer := data[len(data)-trailerSize:]
	identBlobOffset := binary.LittleEndian.Uint32(trailer[0:4])
	identOffsetTableOffset := binary.LittleEndian.Uint32(trailer[4:8])
	fileTableOffset := binary.LittleEndian.Uint32(trailer[8:12])
	sideTableOffset := binary.LittleEndian.Uint32(trailer[12:16])

	if int(identBlobOffset) > len(data) || int(identOffsetTableOffset) > len(data) ||
		int(fileTableOffset) > len(data) || int(sideTableOffset) > len(data) {
		return nil, errors.New("pth: corrupt trailer offsets")
	}

	r := &Reader{
		data:             data,
		tokenStreamStart: 8,
		pool:             pool,
		resolved:         make(map[uint32]ident.ID),
		files:            make(map[fsmgr.UniqueKey]fileRecord),
	}

	// identifier offset table
	p := int(identOffsetTableOffset)
	count := int(binary.LittleEndian.Uint32(data[p:]))
	p += 4
	r.identOffsets = make([]uint32, count)
	for i := 0; i < count; i++ {
		r.identOffsets[i] = binary.LittleEndian.Uint32(data[p:])
		p += 4
	}
	r.identBlob = data[identBlobOffset:identOffsetTableOffset]

	// file table
	p = int(fileTableOffset)
	fcount := int(binary.LittleEndian.Uint32(data[p:]))
	p += 4
	for i := 0; i < fcount; i++ {
		device := binary.LittleEndian.Uint64(data[p:])
		inode := binary.LittleEndian.Uint64(data[p+8:])
		tokenStreamOffset := binary.LittleEndian.Uint32(data[p+16:])
		tokenCount := binary.LittleEndian.Uint32(data[p+20:])
		sideOff := binary.LittleEndian.Uint32(data[p+24:])
		sideCount := binary.LittleEndian.Uint32(data[p+28:])
		p += fileTableEntrySize
		key := fsmgr.UniqueKey{Device: device, Inode: inode}
		r.files[key] = fileRecord{
			tokenStreamOffset: tokenStreamOffset,
			tokenCount:        tokenCount,
			sideTableOffset:   sideOff,
			sideTableCount:    sideCount,
		}
	}

	return r, nil
}

// HasFile reports whether the cache holds a token stream for key.
func (r *Reader) HasFile(key fsmgr.UniqueKey) bool {
	_, ok := r.files[key]
	return ok
}

func (r *Reader) recordAt(index uint32) (kind lexer.Kind, flags lexer.Flag, persistent, rawLocation, length uint32) {
	off := r.tokenStreamStart + int(index)*tokenRecordSize
	b := r.data[off : off+tokenRecordSize]
	kind = lexer.Kind(b[0])
	flags = lexer.Flag(b[1])
	persistent = binary.LittleEndian.Uint32(b[2:6])
	rawLocation = binary.LittleEndian.Uint32(b[6:10])
	length = binary.LittleEndian.Uint32(b[10:14])
	return
}

func (r *Reader) resolveIdent(persistent uint32) ident.ID {
	if persistent == 0 {
		return 0
	}
	if id, ok := r.resolved[persistent]; ok {
		return id
	}
	off := r.identOffsets[persistent-1]
	nameLen := binary.LittleEndian.Uint32(r.identBlob[off+4 : off+8])
	name := string(r.identBlob[off+8 : off+8+nameLen])
	id := r.pool.Get(name)
	r.resolved[persistent] = id
	return id
}

// NewCursor opens a replay cursor over the cached file identified by key,
// whose tokens will be reported at locations relative to base. ok is false
// if the cache holds no entry for key.
func (r *Reader) NewCursor(key fsmgr.UniqueKey, base srcmgr.Loc) (*Cursor, bool) {
	rec, ok := r.files[key]
	if !ok {
		return nil, false
	}
	c := &Cursor{r: r, rec: rec, base: base}
	c.buildSideIndex()
	return c, true
}
