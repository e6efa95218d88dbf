package pth

import (
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// Cursor replays one cached file's token stream (§4.5's warm path),
// implementing the same capability set the cold lexer.Raw exposes so a
// caller can hold either behind a lexer.Driver.
type Cursor struct {
	r    *Reader
	rec  fileRecord
	idx  uint32 // next record index to read, relative to rec.tokenStreamOffset
	base srcmgr.Loc

	// sideIndex maps a directive's relative record index to the relative
	// record index of its matching close, built once per cursor so
	// SkipBlock is an O(1) map lookup thereafter (§8 property 11).
	sideIndex map[uint32]uint32
}

func (c *Cursor) buildSideIndex() {
	c.sideIndex = make(map[uint32]uint32, c.rec.sideTableCount)
	for i := uint32(0); i < c.rec.sideTableCount; i++ {
		off := int(c.rec.sideTableOffset) + int(i)*sideTableEntrySize
		b := c.r.data[off : off+sideTableEntrySize]
		directiveAbs := u32le(b[0:4])
		matchAbs := u32le(b[4:8])
		c.sideIndex[directiveAbs-c.rec.tokenStreamOffset] = matchAbs - c.rec.tokenStreamOffset
	}
}

func u32le(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (c *Cursor) atEnd() bool { return c.idx >= c.rec.tokenCount }

// Lex returns the next replayed token, or an EOF token once the cached
// stream is exhausted (mirroring Raw.Lex's end-of-buffer behaviour).
func (c *Cursor) Lex() lexer.Token {
	if c.atEnd() {
		return lexer.Token{Kind: lexer.EOF, Loc: c.base}
	}
	kind, flags, persistent, rawLocation, length := c.r.recordAt(c.rec.tokenStreamOffset + c.idx)
	c.idx++
	return lexer.Token{
		Kind:     kind,
		Flags:    flags,
		Loc:      c.base + srcmgr.Loc(rawLocation),
		Length:   int(length),
		IdentRef: uint32(c.r.resolveIdent(persistent)),
	}
}

// IndirectLex fills out with the next token, matching the Driver contract.
func (c *Cursor) IndirectLex(out *lexer.Token) {
	*out = c.Lex()
}

// SetEOF forces the cursor to report end-of-file from here on.
func (c *Cursor) SetEOF() {
	c.idx = c.rec.tokenCount
}

// DiscardToEndOfLine advances past records until the next one flagged
// start-of-line, or end of stream — the warm-path equivalent of scanning
// physical bytes to a newline, since replayed tokens already carry that
// flag (§4.6).
func (c *Cursor) DiscardToEndOfLine() {
	for !c.atEnd() {
		_, flags, _, _, _ := c.r.recordAt(c.rec.tokenStreamOffset + c.idx)
		if flags&lexer.FlagStartOfLine != 0 {
			return
		}
		c.idx++
	}
}

// LookaheadIsLParen reports whether the next record (without consuming it)
// is an LParen.
func (c *Cursor) LookaheadIsLParen() bool {
	if c.atEnd() {
		return false
	}
	kind, _, _, _, _ := c.r.recordAt(c.rec.tokenStreamOffset + c.idx)
	return kind == lexer.LParen
}

// SkipBlock implements §4.5's O(1) "#if 0 ... #endif" skip: atHashIndex is
// the relative record index of the '#' token just consumed by the caller.
// On a hit, the cursor jumps to the record right after the matching
// directive's last token and returns true; otherwise it returns false and
// the cursor is left unchanged, for the caller to fall back to scanning.
func (c *Cursor) SkipBlock(atHashIndex uint32) bool {
	target, ok := c.sideIndex[atHashIndex]
	if !ok {
		return false
	}
	c.idx = target + 1
	return true
}

// Index returns the cursor's current relative record index, for callers
// that need to remember a '#' token's position to later call SkipBlock.
func (c *Cursor) Index() uint32 { return c.idx }

var _ lexer.Driver = (*Cursor)(nil)
