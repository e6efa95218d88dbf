// Package ident implements the intern pool (component A): unique, stable
// handles for identifier strings, backed by a map that owns the string
// storage so every caller shares one copy per distinct identifier.
package ident

// ID is a stable handle for an interned identifier. It never invalidates for
// the lifetime of the Pool that produced it. The zero value is not a valid ID;
// IDs are assigned starting from 1 so a zero ID can double as "not interned".
type ID uint32

// Info is what an interned identifier owns: its name plus the preprocessor/
// token classification bits used by the lexer driver (component F). It is
// referenced everywhere by ID, never copied.
type Info struct {
	Name string

	// TokenKind is the fixed lexical class this spelling always takes
	// (e.g. a language keyword instead of a plain identifier); zero means
	// "ordinary identifier, kind decided by context".
	TokenKind int

	// PPKeyword is non-zero when Name is a preprocessor directive keyword
	// such as "include" or "define".
	PPKeyword int

	// ObjCKeyword is non-zero when Name is an Objective-C keyword such as
	// "@interface".
	ObjCKeyword int

	// BuiltinID is non-zero when Name names a compiler builtin function.
	BuiltinID int

	// Macro is nil unless this identifier currently has a #define in
	// effect. The header-search layer does not read it: its
	// multiple-include check asks a caller-supplied callback instead.
	Macro *MacroDef

	// Flags.
	Poisoned  bool
	Extension bool
}

// MacroDef is a minimal stand-in for a macro definition: this spec does not
// implement macro expansion, only the controlling-macro heuristic (§4.4) and
// the shape macro-expansion locations need (§3.1). A nil *MacroDef means
// "not (currently) defined".
type MacroDef struct {
	Name        ID
	IsFunctionl bool
	Tokens      []int // opaque token-kind sequence of the replacement list
}

// Pool owns a growable arena of *Info and a name -> ID map. Two lookups of
// the same name always return the same ID (pointer-equal Info), and the
// backing slice never relocates an already-returned *Info: entries are
// themselves heap-allocated and only the index slice grows.
type Pool struct {
	byName  map[string]ID
	entries []*Info
}

// NewPool returns an empty pool. ID 0 is reserved and never assigned.
func NewPool() *Pool {
	return &Pool{
		byName:  make(map[string]ID, 1024),
		entries: make([]*Info, 1, 1024),
	}
}

// Get returns the handle for name, interning it on first sight. Amortised
// O(len(name)).
func (p *Pool) Get(name string) ID {
	if id, ok := p.byName[name]; ok {
		return id
	}
	info := &Info{Name: name}
	id := ID(len(p.entries))
	p.entries = append(p.entries, info)
	p.byName[name] = id
	return id
}

// Lookup returns the handle for name without interning it; ok is false if
// name was never interned.
func (p *Pool) Lookup(name string) (ID, bool) {
	id, ok := p.byName[name]
	return id, ok
}

// Info returns the Info owned by id. Panics on an out-of-range id, which can
// only happen by misusing an ID from a different Pool.
func (p *Pool) Info(id ID) *Info {
	return p.entries[id]
}

// Name is a convenience accessor equivalent to Info(id).Name.
func (p *Pool) Name(id ID) string {
	return p.entries[id].Name
}

// Len returns the number of interned identifiers (not counting the reserved
// zero slot).
func (p *Pool) Len() int {
	return len(p.entries) - 1
}

// Iter calls fn for every interned identifier in assignment order (stable
// across a pool's lifetime). fn must not retain the *Info beyond the call
// without understanding it is owned by the pool.
func (p *Pool) Iter(fn func(id ID, info *Info)) {
	for i := 1; i < len(p.entries); i++ {
		fn(ID(i), p.entries[i])
	}
}
