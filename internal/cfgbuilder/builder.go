package cfgbuilder

import "github.com/clangcore/cflow/internal/srcmgr"

// Builder assembles a CFG block by block, assigning stable ids as it goes.
// Engine tests build fixtures directly through this rather than lexing and
// parsing real source.
type Builder struct {
	cfg       *CFG
	nextID    ID
	nextDecl  DeclID
	nextBlock BlockID
}

// NewFunctionCFG starts a new CFG with an entry and an exit block already
// created (both initially empty, unlinked).
func NewFunctionCFG() *Builder {
	b := &Builder{
		cfg: &CFG{
			Blocks:   make(map[BlockID]*Block),
			Live:     AlwaysLive{},
			paramSet: make(map[DeclID]bool),
		},
	}
	b.cfg.Entry = b.AddBlock()
	b.cfg.Exit = b.AddBlock()
	return b
}

// CFG returns the graph built so far.
func (b *Builder) CFG() *CFG { return b.cfg }

// AddParam declares a new function parameter and returns its DeclID.
func (b *Builder) AddParam() DeclID {
	d := b.newDecl()
	b.cfg.Params = append(b.cfg.Params, d)
	b.cfg.paramSet[d] = true
	return d
}

// AddLocal declares a new local variable (not a parameter).
func (b *Builder) AddLocal() DeclID {
	return b.newDecl()
}

func (b *Builder) newDecl() DeclID {
	b.nextDecl++
	return b.nextDecl
}

func (b *Builder) newID() ID {
	b.nextID++
	return b.nextID
}

// AddBlock creates a new, initially unterminated block with no successors.
func (b *Builder) AddBlock() BlockID {
	b.nextBlock++
	id := b.nextBlock
	b.cfg.Blocks[id] = &Block{ID: id}
	return id
}

// SetFallthrough links block to its single successor (no terminator).
func (b *Builder) SetFallthrough(block, succ BlockID) {
	blk := b.cfg.Blocks[block]
	blk.Succs = []BlockID{succ}
}

// SetBranch makes block end in a two-way conditional branch.
func (b *Builder) SetBranch(block BlockID, cond *Expr, trueBlock, falseBlock BlockID) {
	blk := b.cfg.Blocks[block]
	blk.Terminator = &Terminator{Kind: Branch, Cond: cond, TrueBlock: trueBlock, FalseBlock: falseBlock}
}

// AddExprStmt appends an expression-statement to block, wrapping x as its
// block-level value.
func (b *Builder) AddExprStmt(block BlockID, loc srcmgr.Loc, x *Expr) *Stmt {
	x.BlockLevel = true
	s := &Stmt{ID: b.newID(), Kind: StmtExpr, Loc: loc, X: x}
	b.appendStmt(block, s)
	return s
}

// AddDeclStmt appends a declaration-statement (with an optional
// initializer) to block.
func (b *Builder) AddDeclStmt(block BlockID, loc srcmgr.Loc, decl DeclID, init *Expr) *Stmt {
	if init != nil {
		init.BlockLevel = true
	}
	s := &Stmt{ID: b.newID(), Kind: StmtDecl, Loc: loc, Decl: decl, X: init}
	b.appendStmt(block, s)
	return s
}

// AddReturnStmt appends a return statement (x may be nil for `return;`).
func (b *Builder) AddReturnStmt(block BlockID, loc srcmgr.Loc, x *Expr) *Stmt {
	if x != nil {
		x.BlockLevel = true
	}
	s := &Stmt{ID: b.newID(), Kind: StmtReturn, Loc: loc, X: x}
	b.appendStmt(block, s)
	return s
}

func (b *Builder) appendStmt(block BlockID, s *Stmt) {
	blk := b.cfg.Blocks[block]
	blk.Stmts = append(blk.Stmts, s)
}

// --- expression constructors ---

func (b *Builder) Literal(loc srcmgr.Loc, v int64) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprLiteral, Loc: loc, IntVal: v}
}

func (b *Builder) DeclRef(loc srcmgr.Loc, d DeclID, lvalue bool) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprDeclRef, Loc: loc, Decl: d, LValue: lvalue}
}

func (b *Builder) Cast(loc srcmgr.Loc, x *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprCast, Loc: loc, X: x}
}

func (b *Builder) IncDec(loc srcmgr.Loc, x *Expr, inc, post bool) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprIncDec, Loc: loc, X: x, IsInc: inc, IsPost: post}
}

func (b *Builder) Addr(loc srcmgr.Loc, x *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprAddr, Loc: loc, X: x}
}

func (b *Builder) Deref(loc srcmgr.Loc, x *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprDeref, Loc: loc, X: x}
}

func (b *Builder) UnaryArith(loc srcmgr.Loc, op UnaryArithOp, x *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprUnaryArith, Loc: loc, X: x, UnaryOp: op}
}

func (b *Builder) Sizeof(loc srcmgr.Loc, size int64) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprSizeof, Loc: loc, IntVal: size}
}

func (b *Builder) Binary(loc srcmgr.Loc, op BinaryOp, x, y *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprBinaryArith, Loc: loc, X: x, Y: y, BinOp: op}
}

func (b *Builder) Assign(loc srcmgr.Loc, lhs, rhs *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprAssign, Loc: loc, X: lhs, Y: rhs}
}

func (b *Builder) CompoundAssign(loc srcmgr.Loc, op BinaryOp, lhs, rhs *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprCompoundAssign, Loc: loc, X: lhs, Y: rhs, BinOp: op}
}

func (b *Builder) LogicalAnd(loc srcmgr.Loc, x, y *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprLogicalAnd, Loc: loc, X: x, Y: y}
}

func (b *Builder) LogicalOr(loc srcmgr.Loc, x, y *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprLogicalOr, Loc: loc, X: x, Y: y}
}

func (b *Builder) Conditional(loc srcmgr.Loc, cond, then, els *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprConditional, Loc: loc, X: cond, Y: then, Z: els}
}

func (b *Builder) Comma(loc srcmgr.Loc, x, y *Expr) *Expr {
	return &Expr{ID: b.newID(), Kind: ExprComma, Loc: loc, X: x, Y: y}
}
