package lexer

// Driver is the capability set shared by the cold (Raw) and warm (PTH
// replay) lexer variants: {lex, set_eof, discard_to_end_of_line,
// lookahead_is_l_paren, indirect_lex}. Go's structural typing means the PTH
// package's cached lexer satisfies this without importing it.
type Driver interface {
	Lex() Token
	SetEOF()
	DiscardToEndOfLine()
	LookaheadIsLParen() bool
	IndirectLex(out *Token)
}

// IndirectLex is Raw's implementation of the shared capability; it exists
// distinctly from Lex so callers that hold a Driver interface value can be
// handed a token by reference instead of a returned copy, for hot paths
// that lex into a caller-owned buffer.
func (l *Raw) IndirectLex(out *Token) {
	*out = l.Lex()
}

var _ Driver = (*Raw)(nil)
