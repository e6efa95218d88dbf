package lexer

import (
	"testing"

	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/srcmgr"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	pool := ident.NewPool()
	l := NewRaw([]byte(src), srcmgr.Loc(1), pool)
	var toks []Token
	for {
		tok := l.Lex()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
		if len(toks) > 1000 {
			t.Fatalf("runaway lexer, never reached EOF for %q", src)
		}
	}
}

func kinds(toks []Token) []Kind {
	ks := make([]Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func wantKinds(t *testing.T, toks []Token, want ...Kind) {
	t.Helper()
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("want %d tokens %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: want kind %d, got %d (full: %v)", i, want[i], got[i], got)
		}
	}
}

func TestLexIdentifierInternsThroughPool(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("foo foo bar"), 1, pool)

	a := l.Lex()
	b := l.Lex()
	c := l.Lex()

	if a.Kind != Identifier || b.Kind != Identifier || c.Kind != Identifier {
		t.Fatalf("want three identifiers, got %v %v %v", a.Kind, b.Kind, c.Kind)
	}
	if a.IdentRef != b.IdentRef {
		t.Fatalf("want repeated spelling 'foo' to intern to the same id, got %d vs %d", a.IdentRef, b.IdentRef)
	}
	if a.IdentRef == c.IdentRef {
		t.Fatalf("want distinct spellings to intern to distinct ids")
	}
}

func TestLexKeywordsOverrideIdentifierKind(t *testing.T) {
	toks := lexAll(t, "if return notakeyword")
	wantKinds(t, toks, KwIf, KwReturn, Identifier, EOF)
}

func TestLexRawModeSuppressesInterning(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("foo"), 1, pool)
	l.SetRawMode(true)
	tok := l.Lex()
	if tok.Kind != Identifier {
		t.Fatalf("want an identifier token, got %d", tok.Kind)
	}
	if tok.IdentRef != 0 {
		t.Fatalf("want raw mode to suppress interning, got IdentRef=%d", tok.IdentRef)
	}
	if pool.Len() != 0 {
		t.Fatalf("want the pool untouched in raw mode, has %d entries", pool.Len())
	}
}

func TestLexNumericConstants(t *testing.T) {
	toks := lexAll(t, "123 0x1A 1.5e+10 42")
	wantKinds(t, toks, NumericConstant, NumericConstant, NumericConstant, NumericConstant, EOF)
}

func TestLexStringAndCharLiterals(t *testing.T) {
	toks := lexAll(t, `"hello\"world" 'a' 'x\''`)
	wantKinds(t, toks, StringLiteral, CharConstant, CharConstant, EOF)
}

func TestLexPunctuatorsLongestMatchFirst(t *testing.T) {
	toks := lexAll(t, "-> ++ -- == != <= >= && || += -= *= /= < <")
	wantKinds(t, toks,
		Arrow, PlusPlus, MinusMinus, EqualEqual, ExclaimEqual, LessEqual, GreaterEqual,
		AmpAmp, PipePipe, PlusEqual, MinusEqual, StarEqual, SlashEqual, Less, Less, EOF)
}

func TestLexStartOfLineAndLeadingSpaceFlags(t *testing.T) {
	toks := lexAll(t, "a\n  b c")
	if toks[0].HasFlag(FlagStartOfLine) != true {
		t.Fatalf("want the very first token flagged start-of-line")
	}
	if toks[1].HasFlag(FlagStartOfLine) != true {
		t.Fatalf("want 'b' (first token of the second line) flagged start-of-line, flags=%v", toks[1].Flags)
	}
	if !toks[1].HasFlag(FlagLeadingSpace) {
		t.Fatalf("want 'b' flagged leading-space after two spaces")
	}
	if toks[2].HasFlag(FlagStartOfLine) {
		t.Fatalf("want 'c' not flagged start-of-line")
	}
	if !toks[2].HasFlag(FlagLeadingSpace) {
		t.Fatalf("want 'c' flagged leading-space after the single space before it")
	}
}

func TestLexLineCommentAndBlockComment(t *testing.T) {
	toks := lexAll(t, "a // a comment\nb /* block\nspanning */ c")
	wantKinds(t, toks, Identifier, Identifier, Identifier, EOF)
}

func TestLexTrigraphsTranslateToRealCharacter(t *testing.T) {
	// ??( is '[', ??) is ']'
	toks := lexAll(t, "a??(0??)")
	wantKinds(t, toks, Identifier, LBracket, NumericConstant, RBracket, EOF)
}

func TestLexEscapedNewlineSplicesIdentifier(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("fo\\\no"), 1, pool)
	tok := l.Lex()
	if tok.Kind != Identifier {
		t.Fatalf("want a single spliced identifier, got kind %d", tok.Kind)
	}
	if tok.Length != 5 {
		t.Fatalf("want the physical length (including the splice) to be 5, got %d", tok.Length)
	}
}

func TestLexDirectiveProducesHashThenEndOfDirective(t *testing.T) {
	toks := lexAll(t, "#include \"foo.h\"\nint x;")
	wantKinds(t, toks,
		Hash, PPInclude, StringLiteral, EndOfDirective,
		KwInt, Identifier, Semicolon, EOF)
}

func TestLexDirectiveDefineRecognizesPPKeywordOnlyRightAfterHash(t *testing.T) {
	toks := lexAll(t, "#define FOO 1\nFOO")
	wantKinds(t, toks, Hash, PPDefine, Identifier, NumericConstant, EndOfDirective, Identifier, EOF)
}

func TestLexHashNotAtStartOfLineIsUnknownPunctuator(t *testing.T) {
	// a stray '#' mid-line is not a directive introducer.
	toks := lexAll(t, "a # b")
	wantKinds(t, toks, Identifier, Unknown, Identifier, EOF)
}

func TestLexEmptyDirectiveStillEmitsEndOfDirective(t *testing.T) {
	toks := lexAll(t, "#\nx")
	wantKinds(t, toks, Hash, EndOfDirective, Identifier, EOF)
}

func TestLookaheadIsLParenDoesNotConsume(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("  (x)"), 1, pool)
	if !l.LookaheadIsLParen() {
		t.Fatalf("want lookahead to report an upcoming '('")
	}
	tok := l.Lex()
	if tok.Kind != LParen {
		t.Fatalf("want the lookahead to not have consumed the '(', got kind %d", tok.Kind)
	}
}

func TestDiscardToEndOfLineStopsBeforeNewline(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("garbage tokens here\nnext"), 1, pool)
	l.DiscardToEndOfLine()
	tok := l.Lex()
	if tok.Kind != Identifier {
		t.Fatalf("want to land on 'next' after discarding the first line, got kind %d", tok.Kind)
	}
	if l.buf[l.pos-tok.Length] != 'n' {
		t.Fatalf("want the landed token to start at 'next'")
	}
}

func TestSetEOFForcesImmediateEndOfFile(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("a b c"), 1, pool)
	l.SetEOF()
	tok := l.Lex()
	if tok.Kind != EOF {
		t.Fatalf("want SetEOF to force an immediate EOF token, got kind %d", tok.Kind)
	}
}

func TestEOFIsReturnedRepeatedlyAfterEndOfBuffer(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("a"), 1, pool)
	l.Lex() // consumes 'a'
	first := l.Lex()
	second := l.Lex()
	if first.Kind != EOF || second.Kind != EOF {
		t.Fatalf("want EOF repeated, got %d then %d", first.Kind, second.Kind)
	}
}

func TestIndirectLexMatchesLex(t *testing.T) {
	pool := ident.NewPool()
	l := NewRaw([]byte("abc"), 1, pool)
	var tok Token
	l.IndirectLex(&tok)
	if tok.Kind != Identifier {
		t.Fatalf("want IndirectLex to behave like Lex, got kind %d", tok.Kind)
	}
}

var _ Driver = (*Raw)(nil)

func TestStripBOMRemovesUTF8BOM(t *testing.T) {
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("int x;")...)
	got := StripBOM(withBOM)
	if string(got) != "int x;" {
		t.Fatalf("want BOM stripped, got %q", got)
	}
}

func TestStripBOMLeavesPlainSourceUnchanged(t *testing.T) {
	src := []byte("int x;")
	got := StripBOM(src)
	if string(got) != "int x;" {
		t.Fatalf("want unchanged source, got %q", got)
	}
}
