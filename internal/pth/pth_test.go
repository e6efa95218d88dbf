package pth

import (
	"testing"

	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

func TestRoundTripIntXEqualsOneSemicolon(t *testing.T) {
	// S6: "int x = 1;" -> kw_int, identifier("x"), equal, numeric_constant("1"), semicolon.
	w := NewWriter()
	w.BeginFile(1, 100)
	w.Token(lexer.KwInt, lexer.FlagStartOfLine, "", 0, 3)
	w.Token(lexer.Identifier, lexer.FlagLeadingSpace, "x", 4, 1)
	w.Token(lexer.Equal, lexer.FlagLeadingSpace, "", 6, 1)
	w.Token(lexer.NumericConstant, lexer.FlagLeadingSpace, "", 8, 1)
	w.Token(lexer.Semicolon, 0, "", 9, 1)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, err := Open(data, pool)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := fsmgr.UniqueKey{Device: 1, Inode: 100}
	c, ok := r.NewCursor(key, srcmgr.Loc(1000))
	if !ok {
		t.Fatalf("want a cursor for the cached file")
	}

	var got []lexer.Token
	for i := 0; i < 6; i++ {
		tok := c.Lex()
		got = append(got, tok)
		if tok.Kind == lexer.EOF {
			break
		}
	}

	wantKinds := []lexer.Kind{lexer.KwInt, lexer.Identifier, lexer.Equal, lexer.NumericConstant, lexer.Semicolon, lexer.EOF}
	if len(got) != len(wantKinds) {
		t.Fatalf("want %d tokens, got %d: %v", len(wantKinds), len(got), got)
	}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Fatalf("token %d: want kind %d, got %d", i, k, got[i].Kind)
		}
	}

	if got[1].IdentRef == 0 {
		t.Fatalf("want the identifier token to resolve to a non-zero pool id")
	}
	if pool.Name(ident.ID(got[1].IdentRef)) != "x" {
		t.Fatalf("want the resolved identifier to spell 'x', got %q", pool.Name(ident.ID(got[1].IdentRef)))
	}

	wantOffsets := []uint32{0, 4, 6, 8, 9}
	for i, off := range wantOffsets {
		if got[i].Loc != srcmgr.Loc(1000)+srcmgr.Loc(off) {
			t.Fatalf("token %d: want loc offset %d preserved through round-trip, got %v", i, off, got[i].Loc)
		}
	}
}

func TestRoundTripPreservesRepeatedIdentifierAsSameHandle(t *testing.T) {
	w := NewWriter()
	w.BeginFile(2, 200)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "foo", 0, 3)
	w.Token(lexer.Identifier, lexer.FlagLeadingSpace, "foo", 4, 3)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	c, _ := r.NewCursor(fsmgr.UniqueKey{Device: 2, Inode: 200}, 1)

	a := c.Lex()
	b := c.Lex()
	if a.IdentRef != b.IdentRef {
		t.Fatalf("want two occurrences of 'foo' to resolve to the same pool id, got %d vs %d", a.IdentRef, b.IdentRef)
	}
}

func TestSkipBlockAdvancesPastMatchingEndifInConstantTime(t *testing.T) {
	// "#if 0\ngarbage garbage\n#endif\nx" — SkipBlock should jump
	// straight from the '#' of #if to right after the '#endif' block.
	w := NewWriter()
	w.BeginFile(3, 300)
	w.Token(lexer.Hash, lexer.FlagStartOfLine, "", 0, 1) // index 0: '#' of #if
	w.BeginConditional()
	w.Token(lexer.PPIf, 0, "", 1, 2)
	w.Token(lexer.NumericConstant, lexer.FlagLeadingSpace, "", 4, 1)
	w.Token(lexer.EndOfDirective, 0, "", 5, 0)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "garbage", 6, 7)
	w.Token(lexer.Identifier, lexer.FlagLeadingSpace, "garbage", 14, 7)
	w.Token(lexer.Hash, lexer.FlagStartOfLine, "", 22, 1)
	w.Token(lexer.PPEndif, 0, "", 23, 5)
	w.Token(lexer.EndOfDirective, 0, "", 28, 0) // index 8: the matching close
	w.EndConditional()
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "x", 29, 1) // index 9: token after #endif
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	c, _ := r.NewCursor(fsmgr.UniqueKey{Device: 3, Inode: 300}, 1)

	hashTok := c.Lex() // consumes index 0, the '#'
	if hashTok.Kind != lexer.Hash {
		t.Fatalf("want the first token to be '#', got %d", hashTok.Kind)
	}
	if !c.SkipBlock(0) {
		t.Fatalf("want SkipBlock to find a side-table entry for the #if at index 0")
	}
	next := c.Lex()
	if next.Kind != lexer.Identifier {
		t.Fatalf("want to land on the identifier right after #endif, got kind %d", next.Kind)
	}
	if next.IdentRef == 0 || pool.Name(ident.ID(next.IdentRef)) != "x" {
		t.Fatalf("want the landed token to spell 'x'")
	}
}

func TestSkipBlockMissReturnsFalseAndLeavesCursorUnchanged(t *testing.T) {
	w := NewWriter()
	w.BeginFile(4, 400)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "a", 0, 1)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	c, _ := r.NewCursor(fsmgr.UniqueKey{Device: 4, Inode: 400}, 1)

	if c.SkipBlock(0) {
		t.Fatalf("want SkipBlock to report no side-table entry when none was recorded")
	}
	tok := c.Lex()
	if tok.Kind != lexer.Identifier {
		t.Fatalf("want the cursor unaffected by a missed SkipBlock, got kind %d", tok.Kind)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := []byte("not a pth file at all, but long enough to pass the length check.........")
	pool := ident.NewPool()
	if _, err := Open(data, pool); err == nil {
		t.Fatalf("want an error for a file with the wrong magic")
	}
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	w := NewWriter()
	w.BeginFile(5, 500)
	w.Token(lexer.Identifier, 0, "a", 0, 1)
	w.EndFile()
	data := w.Bytes()
	data[4] = VersionMajor + 1 // corrupt the major version byte

	pool := ident.NewPool()
	if _, err := Open(data, pool); err == nil {
		t.Fatalf("want an error for an unsupported version")
	}
}

func TestHasFileReportsCacheCoverage(t *testing.T) {
	w := NewWriter()
	w.BeginFile(6, 600)
	w.Token(lexer.Identifier, 0, "a", 0, 1)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	if !r.HasFile(fsmgr.UniqueKey{Device: 6, Inode: 600}) {
		t.Fatalf("want HasFile true for a cached file")
	}
	if r.HasFile(fsmgr.UniqueKey{Device: 9, Inode: 900}) {
		t.Fatalf("want HasFile false for a file never written")
	}
}

func TestMultipleFilesInOneCacheStayIndependent(t *testing.T) {
	w := NewWriter()
	w.BeginFile(1, 1)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "one", 0, 3)
	w.EndFile()
	w.BeginFile(2, 2)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "two", 0, 3)
	w.Token(lexer.Identifier, lexer.FlagLeadingSpace, "three", 4, 5)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)

	c1, _ := r.NewCursor(fsmgr.UniqueKey{Device: 1, Inode: 1}, 1)
	tok1 := c1.Lex()
	if pool.Name(ident.ID(tok1.IdentRef)) != "one" {
		t.Fatalf("want file 1's only token to spell 'one', got %q", pool.Name(ident.ID(tok1.IdentRef)))
	}
	if eof := c1.Lex(); eof.Kind != lexer.EOF {
		t.Fatalf("want file 1's cursor to report EOF after its one token")
	}

	c2, _ := r.NewCursor(fsmgr.UniqueKey{Device: 2, Inode: 2}, 100)
	a := c2.Lex()
	b := c2.Lex()
	if pool.Name(ident.ID(a.IdentRef)) != "two" || pool.Name(ident.ID(b.IdentRef)) != "three" {
		t.Fatalf("want file 2's two tokens in order, got %q then %q", pool.Name(ident.ID(a.IdentRef)), pool.Name(ident.ID(b.IdentRef)))
	}
}

func TestLookaheadIsLParenDoesNotConsume(t *testing.T) {
	w := NewWriter()
	w.BeginFile(7, 700)
	w.Token(lexer.LParen, lexer.FlagStartOfLine, "", 0, 1)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	c, _ := r.NewCursor(fsmgr.UniqueKey{Device: 7, Inode: 700}, 1)

	if !c.LookaheadIsLParen() {
		t.Fatalf("want LookaheadIsLParen true")
	}
	tok := c.Lex()
	if tok.Kind != lexer.LParen {
		t.Fatalf("want the lookahead to not have consumed the token, got kind %d", tok.Kind)
	}
}

func TestSetEOFForcesImmediateEndOfFile(t *testing.T) {
	w := NewWriter()
	w.BeginFile(8, 800)
	w.Token(lexer.Identifier, lexer.FlagStartOfLine, "a", 0, 1)
	w.EndFile()
	data := w.Bytes()

	pool := ident.NewPool()
	r, _ := Open(data, pool)
	c, _ := r.NewCursor(fsmgr.UniqueKey{Device: 8, Inode: 800}, 1)
	c.SetEOF()
	if tok := c.Lex(); tok.Kind != lexer.EOF {
		t.Fatalf("want SetEOF to force EOF, got kind %d", tok.Kind)
	}
}
