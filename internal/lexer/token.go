// Package lexer implements the lexer driver (component F): it produces a
// stream of tokens from either a raw buffer (cold path) or a replayed PTH
// stream (warm path), honouring the multiple-include optimization delegated
// to internal/headers.
package lexer

import "github.com/clangcore/cflow/internal/srcmgr"

// Kind is a token's lexical class. A real C/Objective-C front end has on the
// order of 200 kinds; this is the representative subset needed to drive the
// preprocessor, the multiple-include optimization, and the path-sensitive
// engine's supported statement shapes.
type Kind uint8

const (
	EOF Kind = iota
	Unknown

	Identifier
	NumericConstant
	StringLiteral
	CharConstant

	// Punctuators used by the supported statement/expression grammar.
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semicolon
	Comma
	Equal
	EqualEqual
	ExclaimEqual
	Less
	Greater
	LessEqual
	GreaterEqual
	Plus
	Minus
	Star
	Slash
	Percent
	Amp
	AmpAmp
	Pipe
	PipePipe
	Caret
	Tilde
	Exclaim
	PlusPlus
	MinusMinus
	Question
	Colon
	Arrow
	Period
	PlusEqual
	MinusEqual
	StarEqual
	SlashEqual

	// Keywords (subset).
	KwInt
	KwChar
	KwVoid
	KwIf
	KwElse
	KwReturn
	KwSizeof
	KwWhile
	KwFor

	// Preprocessor-only tokens.
	Hash         // '#' at the start of a line
	PPInclude    // "include" right after a leading #
	PPDefine
	PPUndef
	PPIfdef
	PPIfndef
	PPIf
	PPElse
	PPElif
	PPEndif
	PPImport
	PPIncludeNext
	EndOfDirective // synthesized at the newline terminating a directive

	// Annotation is a placeholder kind for payload-bearing tokens the
	// parser layer (out of scope) would attach, e.g. resolved template ids.
	Annotation
)

// Flag is a bitmask of per-token lexical flags (§3.4).
type Flag uint8

const (
	FlagStartOfLine Flag = 1 << iota
	FlagLeadingSpace
	FlagExpandDisabled
	FlagNeedsCleaning
)

// Token is one lexical unit (§3.4): a kind, a source location, a length in
// source bytes, flags, and either an identifier handle or an annotation
// payload.
type Token struct {
	Kind   Kind
	Loc    srcmgr.Loc
	Length int
	Flags  Flag

	// IdentRef is valid when Kind is Identifier or a keyword spelled as an
	// identifier; 0 otherwise.
	IdentRef uint32

	// Annotation is non-nil only for Kind == Annotation.
	Annotation interface{}
}

func (t Token) Is(k Kind) bool { return t.Kind == k }

func (t Token) HasFlag(f Flag) bool { return t.Flags&f != 0 }

// Text returns the token's literal spelling given the buffer it was lexed
// from (tests and diagnostics use this; the hot path never needs it since
// identifiers are already interned).
func Text(buf []byte, withinBufferOffset int, t Token) string {
	if withinBufferOffset < 0 || withinBufferOffset+t.Length > len(buf) {
		return ""
	}
	return string(buf[withinBufferOffset : withinBufferOffset+t.Length])
}
