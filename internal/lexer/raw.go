package lexer

import (
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// StripBOM removes a leading byte-order mark from buf, matching how
// llvm::MemoryBuffer/SourceManager handle a BOM-prefixed source file: the
// mark is consumed once, before the buffer is ever registered with a
// location space, so offset 0 always lands on the first real source byte.
// Callers should apply this before calling srcmgr.Manager.CreateMainFile,
// not inside the lexer itself, since the source manager's entry span must
// already reflect the stripped length. A UTF-16 BOM is transcoded to UTF-8
// (clang only special-cases the UTF-8 BOM; this goes slightly further since
// golang.org/x/text/encoding/unicode happens to support it for free).
func StripBOM(buf []byte) []byte {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), buf)
	if err != nil {
		return buf
	}
	return out
}

var trigraphs = map[byte]byte{
	'=':  '#',
	'/':  '\\',
	'\'': '^',
	'(':  '[',
	')':  ']',
	'!':  '|',
	'<':  '{',
	'>':  '}',
	'-':  '~',
}

var keywords = map[string]Kind{
	"int":    KwInt,
	"char":   KwChar,
	"void":   KwVoid,
	"if":     KwIf,
	"else":   KwElse,
	"return": KwReturn,
	"sizeof": KwSizeof,
	"while":  KwWhile,
	"for":    KwFor,
}

var ppKeywords = map[string]Kind{
	"include":      PPInclude,
	"include_next": PPIncludeNext,
	"import":       PPImport,
	"define":       PPDefine,
	"undef":        PPUndef,
	"ifdef":        PPIfdef,
	"ifndef":       PPIfndef,
	"if":           PPIf,
	"else":         PPElse,
	"elif":         PPElif,
	"endif":        PPEndif,
}

// Raw is the cold-path lexer: it scans UTF-8 bytes directly out of a
// buffer, handling trigraphs and escaped newlines, recognising numeric and
// string literals, and flagging start-of-line / leading-whitespace bits.
// It's an explicit integer-state byte scanner rather than a generated DFA.
type Raw struct {
	buf   []byte
	pos   int
	base  srcmgr.Loc
	pool  *ident.Pool
	trigr bool // trigraph processing enabled

	atLineStart    bool
	pendingSpace   bool
	inDirective    bool
	sawHashInLine  bool
	rawMode        bool // identifier lookups suppressed (diagnostic-only scanner mode)
	eofReturned    bool
}

// NewRaw builds a cold lexer over buf, whose first byte is at location base.
func NewRaw(buf []byte, base srcmgr.Loc, pool *ident.Pool) *Raw {
	return &Raw{buf: buf, pos: 0, base: base, pool: pool, trigr: true, atLineStart: true}
}

// SetRawMode suppresses identifier interning, for scanning text "for
// diagnostics only" without touching shared pool state.
func (l *Raw) SetRawMode(raw bool) { l.rawMode = raw }

// rawByteAt returns the byte at physical offset i and how many physical
// bytes it consumed, transparently splicing "\\\n" / "\\\r\n" continuations
// and translating a recognised trigraph into its real character.
func (l *Raw) rawByteAt(i int) (b byte, size int, ok bool) {
	start := i
	for {
		if i >= len(l.buf) {
			return 0, 0, false
		}
		c := l.buf[i]
		if c == '\\' && i+1 < len(l.buf) {
			if l.buf[i+1] == '\n' {
				i += 2
				continue
			}
			if l.buf[i+1] == '\r' && i+2 < len(l.buf) && l.buf[i+2] == '\n' {
				i += 3
				continue
			}
		}
		if l.trigr && c == '?' && i+2 < len(l.buf) && l.buf[i+1] == '?' {
			if repl, known := trigraphs[l.buf[i+2]]; known {
				return repl, i + 3 - start, true
			}
		}
		return c, i + 1 - start, true
	}
}

func (l *Raw) peek() (byte, bool) {
	b, _, ok := l.rawByteAt(l.pos)
	return b, ok
}

func (l *Raw) peekAt(offset int) (byte, bool) {
	p := l.pos
	for n := 0; n < offset; n++ {
		_, size, ok := l.rawByteAt(p)
		if !ok {
			return 0, false
		}
		p += size
	}
	b, _, ok := l.rawByteAt(p)
	return b, ok
}

func (l *Raw) advance() (byte, bool) {
	b, size, ok := l.rawByteAt(l.pos)
	if !ok {
		return 0, false
	}
	l.pos += size
	return b, true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Lex produces the next token, or EOF at end of buffer (§4.6 "in raw mode,
// at end-of-file, emit one final eof token").
func (l *Raw) Lex() Token {
	l.skipWhitespaceAndComments()

	startOfLine := l.atLineStart
	leadingSpace := l.pendingSpace
	l.atLineStart = false
	l.pendingSpace = false

	startPos := l.pos
	startLoc := l.base + srcmgr.Loc(startPos)

	if tok, is := l.maybeEndOfDirective(startLoc, startOfLine, leadingSpace); is {
		return tok
	}

	c, ok := l.peek()
	if !ok {
		if l.eofReturned {
			return Token{Kind: EOF, Loc: startLoc}
		}
		l.eofReturned = true
		return l.mk(EOF, startLoc, 0, startOfLine, leadingSpace)
	}

	if c == '#' && startOfLine {
		l.advance()
		l.inDirective = true
		l.sawHashInLine = true
		return l.mk(Hash, startLoc, 1, startOfLine, leadingSpace)
	}

	if isIdentStart(c) {
		return l.lexIdentifier(startLoc, startOfLine, leadingSpace)
	}
	if isDigit(c) {
		return l.lexNumber(startLoc, startOfLine, leadingSpace)
	}
	if c == '"' {
		return l.lexQuoted(startLoc, startOfLine, leadingSpace, '"', StringLiteral)
	}
	if c == '\'' {
		return l.lexQuoted(startLoc, startOfLine, leadingSpace, '\'', CharConstant)
	}

	return l.lexPunctuator(startLoc, startOfLine, leadingSpace)
}

func (l *Raw) mk(kind Kind, loc srcmgr.Loc, length int, startOfLine, leadingSpace bool) Token {
	var flags Flag
	if startOfLine {
		flags |= FlagStartOfLine
	}
	if leadingSpace {
		flags |= FlagLeadingSpace
	}
	return Token{Kind: kind, Loc: loc, Length: length, Flags: flags}
}

func (l *Raw) skipWhitespaceAndComments() {
	for {
		c, ok := l.peek()
		if !ok {
			return
		}
		switch {
		case c == '\n':
			l.advance()
			l.atLineStart = true
			l.pendingSpace = false
			if l.inDirective {
				// the newline terminating a directive is surfaced by Lex
				// as EndOfDirective; back up so Lex sees it.
				l.pos -= 1
				return
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
			l.advance()
			l.pendingSpace = true
		case c == '/':
			if nc, ok := l.peekAt(1); ok && nc == '/' {
				for {
					c, ok := l.peek()
					if !ok || c == '\n' {
						break
					}
					l.advance()
				}
				l.pendingSpace = true
			} else if ok && nc == '*' {
				l.advance()
				l.advance()
				for {
					c, ok := l.peek()
					if !ok {
						return
					}
					if c == '*' {
						if nc2, ok2 := l.peekAt(1); ok2 && nc2 == '/' {
							l.advance()
							l.advance()
							break
						}
					}
					l.advance()
				}
				l.pendingSpace = true
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Raw) lexIdentifier(loc srcmgr.Loc, startOfLine, leadingSpace bool) Token {
	startPos := l.pos
	for {
		c, ok := l.peek()
		if !ok || !isIdentCont(c) {
			break
		}
		l.advance()
	}
	name := string(l.buf[startPos:l.pos])
	tok := l.mk(Identifier, loc, l.pos-startPos, startOfLine, leadingSpace)

	if l.inDirective && l.sawHashInLine {
		if kind, known := ppKeywords[name]; known {
			tok.Kind = kind
			l.sawHashInLine = false
			return tok
		}
	}
	if kind, known := keywords[name]; known {
		tok.Kind = kind
	}
	if !l.rawMode && l.pool != nil {
		tok.IdentRef = uint32(l.pool.Get(name))
	}
	return tok
}

func (l *Raw) lexNumber(loc srcmgr.Loc, startOfLine, leadingSpace bool) Token {
	startPos := l.pos
	for {
		c, ok := l.peek()
		if !ok {
			break
		}
		if isDigit(c) || isIdentStart(c) || c == '.' {
			l.advance()
			continue
		}
		if (c == '+' || c == '-') && l.pos > startPos {
			if prev := l.buf[l.pos-1]; prev == 'e' || prev == 'E' || prev == 'p' || prev == 'P' {
				l.advance()
				continue
			}
		}
		break
	}
	return l.mk(NumericConstant, loc, l.pos-startPos, startOfLine, leadingSpace)
}

func (l *Raw) lexQuoted(loc srcmgr.Loc, startOfLine, leadingSpace bool, quote byte, kind Kind) Token {
	startPos := l.pos
	l.advance() // opening quote
	for {
		c, ok := l.peek()
		if !ok || c == '\n' {
			break
		}
		if c == '\\' {
			l.advance()
			l.advance()
			continue
		}
		l.advance()
		if c == quote {
			break
		}
	}
	return l.mk(kind, loc, l.pos-startPos, startOfLine, leadingSpace)
}

type punct struct {
	text string
	kind Kind
}

// ordered longest-match first
var puncts = []punct{
	{"->", Arrow}, {"++", PlusPlus}, {"--", MinusMinus},
	{"==", EqualEqual}, {"!=", ExclaimEqual}, {"<=", LessEqual}, {">=", GreaterEqual},
	{"&&", AmpAmp}, {"||", PipePipe},
	{"+=", PlusEqual}, {"-=", MinusEqual}, {"*=", StarEqual}, {"/=", SlashEqual},
	{"(", LParen}, {")", RParen}, {"{", LBrace}, {"}", RBrace}, {"[", LBracket}, {"]", RBracket},
	{";", Semicolon}, {",", Comma}, {"=", Equal}, {"<", Less}, {">", Greater},
	{"+", Plus}, {"-", Minus}, {"*", Star}, {"/", Slash}, {"%", Percent},
	{"&", Amp}, {"|", Pipe}, {"^", Caret}, {"~", Tilde}, {"!", Exclaim},
	{"?", Question}, {":", Colon}, {".", Period},
}

func (l *Raw) lexPunctuator(loc srcmgr.Loc, startOfLine, leadingSpace bool) Token {
	for _, p := range puncts {
		if l.matches(p.text) {
			for range p.text {
				l.advance()
			}
			return l.mk(p.kind, loc, len(p.text), startOfLine, leadingSpace)
		}
	}
	l.advance()
	return l.mk(Unknown, loc, 1, startOfLine, leadingSpace)
}

func (l *Raw) matches(s string) bool {
	for i := 0; i < len(s); i++ {
		c, ok := l.peekAt(i)
		if !ok || c != s[i] {
			return false
		}
	}
	return true
}

// DiscardToEndOfLine implements the shared raw/PTH contract of §4.6: used
// when the header-search "skip block" path falls back to the cold lexer.
func (l *Raw) DiscardToEndOfLine() {
	for {
		c, ok := l.peek()
		if !ok || c == '\n' {
			return
		}
		l.advance()
	}
}

// LookaheadIsLParen reports whether the next non-whitespace token would be
// '(' without consuming it — used by object-like-vs-function-like macro
// disambiguation (out of scope here, but part of the shared capability set,
// §4.6).
func (l *Raw) LookaheadIsLParen() bool {
	save := *l
	defer func() { *l = save }()
	l.skipWhitespaceAndComments()
	c, ok := l.peek()
	return ok && c == '('
}

// SetEOF forces the lexer to report end-of-file from the current position
// onward, matching the shared capability set's set_eof.
func (l *Raw) SetEOF() {
	l.pos = len(l.buf)
}

// maybeEndOfDirective returns an EndOfDirective token when the lexer is
// mid-directive and has just reached a line break; callers should call this
// after skipWhitespaceAndComments stopped because it saw a directive-ending
// newline. It is exposed via Lex: when the next Lex() call sees inDirective
// still set and the cursor sits on '\n', it emits EndOfDirective and clears
// inDirective.
func (l *Raw) maybeEndOfDirective(startLoc srcmgr.Loc, startOfLine, leadingSpace bool) (Token, bool) {
	if !l.inDirective {
		return Token{}, false
	}
	c, ok := l.peek()
	if !ok || c != '\n' {
		return Token{}, false
	}
	l.advance()
	l.atLineStart = true
	l.inDirective = false
	l.sawHashInLine = false
	return l.mk(EndOfDirective, startLoc, 1, startOfLine, leadingSpace), true
}
