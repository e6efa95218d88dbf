package main

import (
	"strings"

	"github.com/clangcore/cflow/internal/diag"
	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/headers"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// scanIncludes walks one file's full token stream, resolving every quoted
// #include/#import against search and recording a CannotLocateInclude
// diagnostic for any that can't be found, and tracking #define/#undef just
// well enough to drive the multiple-include optimization's controlling-macro
// check. It returns the stream with every directive line (Hash through
// EndOfDirective) removed, since directives have no place in the
// statement/expression grammar the recognizer understands. Angle-bracket
// includes and macro expansion itself are out of scope; only the quoted
// form is resolved here.
func scanIncludes(toks []lexer.Token, raw []byte, base srcmgr.Loc, curFile *fsmgr.FileEntry, search *headers.Search, definedMacros map[ident.ID]bool, sink *diag.Sink) []lexer.Token {
	logical := make([]lexer.Token, 0, len(toks))
	i := 0
	for i < len(toks) {
		t := toks[i]
		if t.Kind != lexer.Hash || !t.HasFlag(lexer.FlagStartOfLine) {
			logical = append(logical, t)
			i++
			continue
		}

		directiveIdx := i + 1
		if directiveIdx < len(toks) {
			handleDirective(toks, directiveIdx, raw, base, curFile, search, definedMacros, sink)
		}

		for i < len(toks) && toks[i].Kind != lexer.EndOfDirective {
			i++
		}
		if i < len(toks) {
			i++ // consume the EndOfDirective sentinel itself
		}
	}
	return logical
}

func handleDirective(toks []lexer.Token, idx int, raw []byte, base srcmgr.Loc, curFile *fsmgr.FileEntry, search *headers.Search, definedMacros map[ident.ID]bool, sink *diag.Sink) {
	directive := toks[idx]
	switch directive.Kind {
	case lexer.PPInclude, lexer.PPImport, lexer.PPIncludeNext:
		if idx+1 >= len(toks) || toks[idx+1].Kind != lexer.StringLiteral {
			return // angle-bracket or malformed form: not resolved here
		}
		nameTok := toks[idx+1]
		spelling := lexer.Text(raw, int(nameTok.Loc-base), nameTok)
		name := strings.Trim(spelling, `"`)
		resolveInclude(name, directive.Kind == lexer.PPImport, curFile, search, definedMacros, nameTok.Loc, sink)

	case lexer.PPDefine:
		if idx+1 < len(toks) && toks[idx+1].Kind == lexer.Identifier {
			definedMacros[ident.ID(toks[idx+1].IdentRef)] = true
		}

	case lexer.PPUndef:
		if idx+1 < len(toks) && toks[idx+1].Kind == lexer.Identifier {
			delete(definedMacros, ident.ID(toks[idx+1].IdentRef))
		}
	}
}

func resolveInclude(name string, isImport bool, curFile *fsmgr.FileEntry, search *headers.Search, definedMacros map[ident.ID]bool, loc srcmgr.Loc, sink *diag.Sink) {
	res, err := search.Lookup(name, false, -1, curFile)
	if err != nil || res == nil {
		sink.Emit(diag.Diagnostic{Kind: diag.CannotLocateInclude, Loc: loc, Message: "'" + name + "' file not found"})
		return
	}
	search.ShouldEnter(res.File, isImport, func(id ident.ID) bool { return definedMacros[id] })
}
