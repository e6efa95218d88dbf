// Component M's driver-side half: a small recursive-descent recognizer
// that turns a real token stream into a cfgbuilder.CFG, standing in for a
// full parser/Sema layer (cfgbuilder.Builder is the engine's actual external
// contract; this file is just a client of it built from tokens instead of
// by hand). It understands exactly the statement and expression shapes the
// engine exercises: declarations, expression-statements, if/else, return,
// and a full precedence-climbing expression grammar — not loops, switches,
// or function calls, which stay out of scope along with the rest of Sema.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clangcore/cflow/internal/cfgbuilder"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// parseError is recovered at the top of recognizeFunction, the same
// bailout-via-panic shape go/parser uses internally for its own recursive
// descent.
type parseError struct {
	loc srcmgr.Loc
	msg string
}

func (e parseError) Error() string { return e.msg }

// tokenStream is a read-only cursor with two-token lookahead over an
// already-fully-lexed stream (files this recognizer accepts are always
// small enough to materialize up front; see scanTokens).
type tokenStream struct {
	toks []lexer.Token
	pos  int
}

func newTokenStream(toks []lexer.Token) *tokenStream { return &tokenStream{toks: toks} }

func (ts *tokenStream) peek() lexer.Token   { return ts.peekAt(0) }
func (ts *tokenStream) peekAt(n int) lexer.Token {
	i := ts.pos + n
	if i >= len(ts.toks) {
		return ts.toks[len(ts.toks)-1] // scanTokens always ends the slice on EOF
	}
	return ts.toks[i]
}
func (ts *tokenStream) next() lexer.Token {
	t := ts.peek()
	if ts.pos < len(ts.toks)-1 {
		ts.pos++
	}
	return t
}

type parser struct {
	ts    *tokenStream
	raw   []byte
	base  srcmgr.Loc
	pool  *ident.Pool
	b     *cfgbuilder.Builder
	exit  cfgbuilder.BlockID
	decls map[string]cfgbuilder.DeclID
}

func (p *parser) identName(t lexer.Token) string {
	return p.pool.Name(ident.ID(t.IdentRef))
}

func (p *parser) text(t lexer.Token) string {
	return lexer.Text(p.raw, int(t.Loc-p.base), t)
}

func (p *parser) expect(k lexer.Kind) lexer.Token {
	t := p.ts.peek()
	if t.Kind != k {
		panic(parseError{loc: t.Loc, msg: fmt.Sprintf("expected token kind %d, got %d", k, t.Kind)})
	}
	return p.ts.next()
}

func isTypeStart(k lexer.Kind) bool {
	return k == lexer.KwInt || k == lexer.KwChar || k == lexer.KwVoid
}

// parseType consumes a base-type keyword and any trailing '*' pointer
// stars; the recognizer doesn't model a type system, only enough syntax
// to stay in sync with the token stream.
func (p *parser) parseType() {
	t := p.ts.peek()
	if !isTypeStart(t.Kind) {
		panic(parseError{loc: t.Loc, msg: fmt.Sprintf("expected a type, got token kind %d", t.Kind)})
	}
	p.ts.next()
	for p.ts.peek().Kind == lexer.Star {
		p.ts.next()
	}
}

// recognizeFunction accepts a token stream (directives already stripped by
// scanIncludes) that names at most one function definition and builds its
// CFG. A stream that doesn't start with a type keyword yields (nil, nil):
// "nothing here for the engine to run on", not an error.
func recognizeFunction(toks []lexer.Token, raw []byte, base srcmgr.Loc, pool *ident.Pool) (cfg *cfgbuilder.CFG, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("%s (near offset %d)", pe.msg, pe.loc-base)
			cfg = nil
		}
	}()

	p := &parser{
		ts:    newTokenStream(toks),
		raw:   raw,
		base:  base,
		pool:  pool,
		b:     cfgbuilder.NewFunctionCFG(),
		decls: make(map[string]cfgbuilder.DeclID),
	}

	if !isTypeStart(p.ts.peek().Kind) {
		return nil, nil
	}
	p.parseType()
	p.expect(lexer.Identifier) // function name; calls are out of scope, so its spelling is unused
	p.expect(lexer.LParen)
	for p.ts.peek().Kind != lexer.RParen {
		if p.ts.peek().Kind == lexer.KwVoid && p.ts.peekAt(1).Kind == lexer.RParen {
			p.ts.next()
			break
		}
		p.parseType()
		nameTok := p.expect(lexer.Identifier)
		d := p.b.AddParam()
		p.decls[p.identName(nameTok)] = d
		if p.ts.peek().Kind == lexer.Comma {
			p.ts.next()
			continue
		}
		break
	}
	p.expect(lexer.RParen)
	p.expect(lexer.LBrace)

	entry := p.b.CFG().Entry
	p.exit = p.b.CFG().Exit
	last := p.parseStmtList(entry)
	p.expect(lexer.RBrace)
	if !blockTerminated(p.b.CFG(), last) {
		p.b.SetFallthrough(last, p.exit)
	}

	return p.b.CFG(), nil
}

func blockTerminated(cfg *cfgbuilder.CFG, id cfgbuilder.BlockID) bool {
	blk := cfg.Block(id)
	return blk.Terminator != nil || len(blk.Succs) > 0
}

// --- statements ---

func (p *parser) parseStmtList(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	for {
		k := p.ts.peek().Kind
		if k == lexer.RBrace || k == lexer.EOF {
			return cur
		}
		cur = p.parseStmt(cur)
	}
}

func (p *parser) parseStmt(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	switch p.ts.peek().Kind {
	case lexer.LBrace:
		p.ts.next()
		cur = p.parseStmtList(cur)
		p.expect(lexer.RBrace)
		return cur
	case lexer.KwIf:
		return p.parseIf(cur)
	case lexer.KwReturn:
		return p.parseReturn(cur)
	case lexer.Semicolon:
		p.ts.next() // empty statement
		return cur
	}
	if isTypeStart(p.ts.peek().Kind) {
		return p.parseDecl(cur)
	}
	return p.parseExprStmt(cur)
}

func (p *parser) parseIf(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	p.ts.next() // 'if'
	p.expect(lexer.LParen)
	cond := p.parseExpr()
	p.expect(lexer.RParen)

	joinBlock := p.b.AddBlock()
	thenBlock := p.b.AddBlock()
	thenEnd := p.parseStmt(thenBlock)

	falseTarget := joinBlock
	hasElse := false
	var elseEnd cfgbuilder.BlockID
	if p.ts.peek().Kind == lexer.KwElse {
		p.ts.next()
		hasElse = true
		falseTarget = p.b.AddBlock()
		elseEnd = p.parseStmt(falseTarget)
	}

	p.b.SetBranch(cur, cond, thenBlock, falseTarget)
	if !blockTerminated(p.b.CFG(), thenEnd) {
		p.b.SetFallthrough(thenEnd, joinBlock)
	}
	if hasElse && !blockTerminated(p.b.CFG(), elseEnd) {
		p.b.SetFallthrough(elseEnd, joinBlock)
	}
	return joinBlock
}

func (p *parser) parseReturn(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	loc := p.ts.next().Loc // 'return'
	var x *cfgbuilder.Expr
	if p.ts.peek().Kind != lexer.Semicolon {
		x = p.parseExpr()
	}
	p.expect(lexer.Semicolon)
	p.b.AddReturnStmt(cur, loc, x)
	p.b.SetFallthrough(cur, p.exit)
	return p.b.AddBlock() // any statements textually following land in unreachable code
}

func (p *parser) parseDecl(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	loc := p.ts.peek().Loc
	p.parseType()
	nameTok := p.expect(lexer.Identifier)
	d := p.b.AddLocal()
	p.decls[p.identName(nameTok)] = d

	var init *cfgbuilder.Expr
	if p.ts.peek().Kind == lexer.Equal {
		p.ts.next()
		init = p.parseAssign()
	}
	p.expect(lexer.Semicolon)
	p.b.AddDeclStmt(cur, loc, d, init)
	return cur
}

func (p *parser) parseExprStmt(cur cfgbuilder.BlockID) cfgbuilder.BlockID {
	loc := p.ts.peek().Loc
	x := p.parseExpr()
	p.expect(lexer.Semicolon)
	p.b.AddExprStmt(cur, loc, x)
	return cur
}

// --- expressions, precedence-climbing from loosest to tightest ---

func (p *parser) parseExpr() *cfgbuilder.Expr {
	left := p.parseAssign()
	for p.ts.peek().Kind == lexer.Comma {
		loc := p.ts.next().Loc
		right := p.parseAssign()
		left = p.b.Comma(loc, left, right)
	}
	return left
}

func (p *parser) asLValue(x *cfgbuilder.Expr) *cfgbuilder.Expr {
	if x.Kind == cfgbuilder.ExprDeclRef {
		return p.b.DeclRef(x.Loc, x.Decl, true)
	}
	return x
}

func compoundOp(k lexer.Kind) cfgbuilder.BinaryOp {
	switch k {
	case lexer.PlusEqual:
		return cfgbuilder.OpAdd
	case lexer.MinusEqual:
		return cfgbuilder.OpSub
	case lexer.StarEqual:
		return cfgbuilder.OpMul
	case lexer.SlashEqual:
		return cfgbuilder.OpDiv
	}
	return cfgbuilder.OpAdd
}

func (p *parser) parseAssign() *cfgbuilder.Expr {
	left := p.parseConditional()
	switch p.ts.peek().Kind {
	case lexer.Equal, lexer.PlusEqual, lexer.MinusEqual, lexer.StarEqual, lexer.SlashEqual:
		opTok := p.ts.next()
		right := p.parseAssign()
		lhs := p.asLValue(left)
		if opTok.Kind == lexer.Equal {
			return p.b.Assign(opTok.Loc, lhs, right)
		}
		return p.b.CompoundAssign(opTok.Loc, compoundOp(opTok.Kind), lhs, right)
	}
	return left
}

func (p *parser) parseConditional() *cfgbuilder.Expr {
	cond := p.parseLogicalOr()
	if p.ts.peek().Kind == lexer.Question {
		loc := p.ts.next().Loc
		then := p.parseAssign()
		p.expect(lexer.Colon)
		els := p.parseConditional()
		return p.b.Conditional(loc, cond, then, els)
	}
	return cond
}

func (p *parser) parseLogicalOr() *cfgbuilder.Expr {
	left := p.parseLogicalAnd()
	for p.ts.peek().Kind == lexer.PipePipe {
		loc := p.ts.next().Loc
		left = p.b.LogicalOr(loc, left, p.parseLogicalAnd())
	}
	return left
}

func (p *parser) parseLogicalAnd() *cfgbuilder.Expr {
	left := p.parseBitOr()
	for p.ts.peek().Kind == lexer.AmpAmp {
		loc := p.ts.next().Loc
		left = p.b.LogicalAnd(loc, left, p.parseBitOr())
	}
	return left
}

func (p *parser) parseBitOr() *cfgbuilder.Expr {
	left := p.parseBitXor()
	for p.ts.peek().Kind == lexer.Pipe {
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, cfgbuilder.OpOr, left, p.parseBitXor())
	}
	return left
}

func (p *parser) parseBitXor() *cfgbuilder.Expr {
	left := p.parseBitAnd()
	for p.ts.peek().Kind == lexer.Caret {
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, cfgbuilder.OpXor, left, p.parseBitAnd())
	}
	return left
}

func (p *parser) parseBitAnd() *cfgbuilder.Expr {
	left := p.parseEquality()
	for p.ts.peek().Kind == lexer.Amp {
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, cfgbuilder.OpAnd, left, p.parseEquality())
	}
	return left
}

func (p *parser) parseEquality() *cfgbuilder.Expr {
	left := p.parseRelational()
	for {
		var op cfgbuilder.BinaryOp
		switch p.ts.peek().Kind {
		case lexer.EqualEqual:
			op = cfgbuilder.OpEq
		case lexer.ExclaimEqual:
			op = cfgbuilder.OpNe
		default:
			return left
		}
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, op, left, p.parseRelational())
	}
}

func (p *parser) parseRelational() *cfgbuilder.Expr {
	left := p.parseAdditive()
	for {
		var op cfgbuilder.BinaryOp
		switch p.ts.peek().Kind {
		case lexer.Less:
			op = cfgbuilder.OpLt
		case lexer.Greater:
			op = cfgbuilder.OpGt
		case lexer.LessEqual:
			op = cfgbuilder.OpLe
		case lexer.GreaterEqual:
			op = cfgbuilder.OpGe
		default:
			return left
		}
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, op, left, p.parseAdditive())
	}
}

func (p *parser) parseAdditive() *cfgbuilder.Expr {
	left := p.parseMultiplicative()
	for {
		var op cfgbuilder.BinaryOp
		switch p.ts.peek().Kind {
		case lexer.Plus:
			op = cfgbuilder.OpAdd
		case lexer.Minus:
			op = cfgbuilder.OpSub
		default:
			return left
		}
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, op, left, p.parseMultiplicative())
	}
}

func (p *parser) parseMultiplicative() *cfgbuilder.Expr {
	left := p.parseUnary()
	for {
		var op cfgbuilder.BinaryOp
		switch p.ts.peek().Kind {
		case lexer.Star:
			op = cfgbuilder.OpMul
		case lexer.Slash:
			op = cfgbuilder.OpDiv
		case lexer.Percent:
			op = cfgbuilder.OpMod
		default:
			return left
		}
		loc := p.ts.next().Loc
		left = p.b.Binary(loc, op, left, p.parseUnary())
	}
}

func (p *parser) parseUnary() *cfgbuilder.Expr {
	t := p.ts.peek()
	switch t.Kind {
	case lexer.Minus:
		p.ts.next()
		return p.b.UnaryArith(t.Loc, cfgbuilder.OpNeg, p.parseUnary())
	case lexer.Tilde:
		p.ts.next()
		return p.b.UnaryArith(t.Loc, cfgbuilder.OpNot, p.parseUnary())
	case lexer.Exclaim:
		p.ts.next()
		return p.b.UnaryArith(t.Loc, cfgbuilder.OpLNot, p.parseUnary())
	case lexer.Star:
		p.ts.next()
		return p.b.Deref(t.Loc, p.parseUnary())
	case lexer.Amp:
		p.ts.next()
		return p.b.Addr(t.Loc, p.parseUnary())
	case lexer.PlusPlus:
		p.ts.next()
		return p.b.IncDec(t.Loc, p.asLValue(p.parseUnary()), true, false)
	case lexer.MinusMinus:
		p.ts.next()
		return p.b.IncDec(t.Loc, p.asLValue(p.parseUnary()), false, false)
	case lexer.KwSizeof:
		p.ts.next()
		if p.ts.peek().Kind == lexer.LParen && isTypeStart(p.ts.peekAt(1).Kind) {
			p.ts.next()
			p.parseType()
			p.expect(lexer.RParen)
		} else {
			p.parseUnary()
		}
		// the concrete byte size of a type is out of scope (no layout
		// model); a plausible int-sized placeholder is enough for the
		// engine, which only ever sees this as an opaque constant.
		return p.b.Sizeof(t.Loc, 4)
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() *cfgbuilder.Expr {
	x := p.parsePrimary()
	for {
		switch p.ts.peek().Kind {
		case lexer.PlusPlus:
			loc := p.ts.next().Loc
			x = p.b.IncDec(loc, p.asLValue(x), true, true)
		case lexer.MinusMinus:
			loc := p.ts.next().Loc
			x = p.b.IncDec(loc, p.asLValue(x), false, true)
		default:
			return x
		}
	}
}

func (p *parser) parsePrimary() *cfgbuilder.Expr {
	t := p.ts.peek()
	switch t.Kind {
	case lexer.NumericConstant:
		p.ts.next()
		return p.b.Literal(t.Loc, parseIntLiteral(p.text(t)))
	case lexer.CharConstant:
		// the character's integral value requires decoding escapes this
		// recognizer doesn't model; every char constant reads as a
		// placeholder concrete value to the engine.
		p.ts.next()
		return p.b.Literal(t.Loc, 0)
	case lexer.Identifier:
		p.ts.next()
		name := p.identName(t)
		d, ok := p.decls[name]
		if !ok {
			// an identifier the recognizer never saw declared (a called
			// function, an enum constant, a macro): treat it as a
			// placeholder value rather than failing the whole parse.
			return p.b.Literal(t.Loc, 0)
		}
		return p.b.DeclRef(t.Loc, d, false)
	case lexer.LParen:
		p.ts.next()
		x := p.parseExpr()
		p.expect(lexer.RParen)
		return x
	}
	panic(parseError{loc: t.Loc, msg: fmt.Sprintf("unexpected token kind %d in expression", t.Kind)})
}

func parseIntLiteral(s string) int64 {
	end := len(s)
	for end > 0 && strings.ContainsAny(s[end-1:end], "uUlL") {
		end--
	}
	s = s[:end]
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base = 16
		s = s[2:]
	case len(s) > 1 && strings.HasPrefix(s, "0"):
		base = 8
		s = s[1:]
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0
	}
	return v
}
