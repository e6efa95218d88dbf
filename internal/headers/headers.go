// Package headers implements header search (component D): resolving
// #include/#import strings to a file entry via an ordered list of search
// directories, frameworks, and header-maps. Each group tries every
// directory in turn and remembers which one last resolved, backed by a
// bounded LRU cache of resolutions across calls.
package headers

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/ident"
)

// DirKind distinguishes the three shapes a search directory can take (§3.5).
type DirKind int

const (
	DirPlain DirKind = iota
	DirFramework
	DirHeaderMap
)

// Characteristic is the directory-characteristic tag a resolved file
// inherits (§3.5): normal, system, or extern-"C" system.
type Characteristic int

const (
	CharacteristicNormal Characteristic = iota
	CharacteristicSystem
	CharacteristicExternCSystem
)

// HeaderMap is a small, in-memory lookup table embedded in a file that maps
// an apparent include spelling to a real path. This is a functional
// equivalent, not byte-compatible with Apple's .hmap format.
type HeaderMap struct {
	entries map[string]string
}

// NewHeaderMap builds a HeaderMap from an already-parsed mapping, e.g. loaded
// by a caller from whatever on-disk format it chooses to support.
func NewHeaderMap(entries map[string]string) *HeaderMap {
	return &HeaderMap{entries: entries}
}

func (hm *HeaderMap) translate(name string) (string, bool) {
	p, ok := hm.entries[name]
	return p, ok
}

// SearchDir is one entry of the ordered search-directory list (§3.5).
type SearchDir struct {
	Path           string
	Kind           DirKind
	Characteristic Characteristic
	HMap           *HeaderMap // non-nil iff Kind == DirHeaderMap
}

// PerFileRecord is keyed by file identity (§3.5): times included, a nullable
// controlling-macro handle, the import-once flag, and the directory
// characteristic the file was resolved under.
type PerFileRecord struct {
	TimesIncluded    int
	ControllingMacro ident.ID // 0 = none
	ImportOnce       bool
	Characteristic   Characteristic
}

type cacheKey struct {
	filename string
	start    int
}

const notFoundSentinel = -1

// Search is the header-search state (component D). Directories are stored
// in the single order callers resolve through; Angled/System/After are
// boundary indices into that slice rather than separate lists.
type Search struct {
	fm   *fsmgr.Manager
	dirs []SearchDir

	// angledIdx is the first index belonging to the non-quote-only group;
	// systemIdx is the first system directory; afterIdx the first
	// "-idirafter" directory. All three are within [0, len(dirs)].
	angledIdx int
	systemIdx int
	afterIdx  int

	perFile map[fsmgr.UniqueKey]*PerFileRecord

	lookupCache    *lru.Cache[cacheKey, int]
	frameworkCache *lru.Cache[string, string]
}

// Config lists the directories grouped the way the driver (§6.2) supplies
// them: quoted-only, then angled (-I), then system (-isystem), then after
// (-idirafter). Framework and header-map directories are flagged per entry.
type Config struct {
	QuoteOnlyDirs []SearchDir
	AngledDirs    []SearchDir
	SystemDirs    []SearchDir
	AfterDirs     []SearchDir
}

// New builds a Search from a grouped Config.
func New(fm *fsmgr.Manager, cfg Config) *Search {
	dirs := make([]SearchDir, 0, len(cfg.QuoteOnlyDirs)+len(cfg.AngledDirs)+len(cfg.SystemDirs)+len(cfg.AfterDirs))
	dirs = append(dirs, cfg.QuoteOnlyDirs...)
	angledIdx := len(dirs)
	dirs = append(dirs, cfg.AngledDirs...)
	systemIdx := len(dirs)
	dirs = append(dirs, cfg.SystemDirs...)
	afterIdx := len(dirs)
	dirs = append(dirs, cfg.AfterDirs...)

	lookupCache, _ := lru.New[cacheKey, int](4096)
	frameworkCache, _ := lru.New[string, string](512)

	return &Search{
		fm:             fm,
		dirs:           dirs,
		angledIdx:      angledIdx,
		systemIdx:      systemIdx,
		afterIdx:       afterIdx,
		perFile:        make(map[fsmgr.UniqueKey]*PerFileRecord),
		lookupCache:    lookupCache,
		frameworkCache: frameworkCache,
	}
}

// Result is what a successful Lookup returns.
type Result struct {
	File     *fsmgr.FileEntry
	DirIndex int // index into the internal dirs slice, or notFoundSentinel for an absolute path or the including file's own directory
}

// Lookup resolves filename (§4.4). fromDir, when >= 0, is the directory
// index of the file containing a #include_next and restricts the search to
// directories after it. curFile is the including file, used for quoted
// lookups relative to its own directory.
func (s *Search) Lookup(filename string, isAngled bool, fromDir int, curFile *fsmgr.FileEntry) (*Result, error) {
	if path.IsAbs(filename) {
		if fromDir >= 0 {
			return nil, errors.New("headers: #include_next with an absolute path is forbidden")
		}
		f, ok, err := s.fm.File(filename)
		if err != nil || !ok {
			return nil, err
		}
		return &Result{File: f, DirIndex: notFoundSentinel}, nil
	}

	if !isAngled && curFile != nil && curFile.Dir != nil {
		candidate := path.Join(curFile.Dir.Name, filename)
		if f, ok, err := s.fm.File(candidate); err == nil && ok {
			if rec, curOK := s.perFile[curFile.Key]; curOK {
				s.recordFor(f).Characteristic = rec.Characteristic
			}
			return &Result{File: f, DirIndex: notFoundSentinel}, nil
		}
	}

	start := 0
	if isAngled {
		start = s.angledIdx
	}
	if fromDir >= 0 {
		start = fromDir + 1
	}

	key := cacheKey{filename: filename, start: start}
	if cached, ok := s.lookupCache.Get(key); ok {
		if cached == notFoundSentinel {
			return nil, nil
		}
		if r, err := s.tryDir(cached, filename); err == nil && r != nil {
			return r, nil
		}
		// stale cache entry (e.g. file removed mid-run): fall through to a full scan
	}

	for idx := start; idx < len(s.dirs); idx++ {
		r, err := s.tryDir(idx, filename)
		if err != nil {
			return nil, err
		}
		if r != nil {
			s.lookupCache.Add(key, idx)
			return r, nil
		}
	}

	s.lookupCache.Add(key, notFoundSentinel)
	return nil, nil
}

func (s *Search) tryDir(idx int, filename string) (*Result, error) {
	dir := s.dirs[idx]
	switch dir.Kind {
	case DirFramework:
		r, err := s.doFrameworkLookup(dir, filename)
		if r != nil {
			r.DirIndex = idx
		}
		return r, err
	case DirHeaderMap:
		real, ok := dir.HMap.translate(filename)
		if !ok {
			return nil, nil
		}
		f, ok, err := s.fm.File(real)
		if err != nil || !ok {
			return nil, err
		}
		s.recordFor(f).Characteristic = dir.Characteristic
		return &Result{File: f, DirIndex: idx}, nil
	default:
		f, ok, err := s.fm.File(path.Join(dir.Path, filename))
		if err != nil || !ok {
			return nil, err
		}
		s.recordFor(f).Characteristic = dir.Characteristic
		return &Result{File: f, DirIndex: idx}, nil
	}
}

// doFrameworkLookup implements §4.4's DoFrameworkLookup: filename must
// contain a '/'; the part before it is the framework name. A global
// framework-name -> directory cache means later subheaders of an already
// located framework never re-probe the directory list.
func (s *Search) doFrameworkLookup(dir SearchDir, filename string) (*Result, error) {
	slash := strings.IndexByte(filename, '/')
	if slash < 0 {
		return nil, nil
	}
	fwName, rest := filename[:slash], filename[slash+1:]

	frameworkDir := dir.Path + "/" + fwName + ".framework"
	if cached, ok := s.frameworkCache.Get(fwName); ok {
		frameworkDir = cached
	} else {
		if _, ok := s.fm.Directory(frameworkDir); !ok {
			return nil, nil
		}
		s.frameworkCache.Add(fwName, frameworkDir)
	}

	for _, sub := range [2]string{"Headers", "PrivateHeaders"} {
		candidate := frameworkDir + "/" + sub + "/" + rest
		if f, ok, err := s.fm.File(candidate); err == nil && ok {
			s.recordFor(f).Characteristic = dir.Characteristic
			return &Result{File: f}, nil
		}
	}
	return nil, nil
}

// LookupSubframework implements §4.4's subframework lookup: only valid when
// contextFile's path is itself inside a ".framework/" directory.
func (s *Search) LookupSubframework(filename string, contextFile *fsmgr.FileEntry) (*Result, error) {
	marker := ".framework/"
	idx := strings.Index(contextFile.Name, marker)
	if idx < 0 {
		return nil, nil
	}
	enclosing := contextFile.Name[:idx+len(marker)-1] // up to and including ".framework"

	slash := strings.IndexByte(filename, '/')
	if slash < 0 {
		return nil, nil
	}
	fwName, rest := filename[:slash], filename[slash+1:]
	base := enclosing + "/Frameworks/" + fwName + ".framework"

	for _, sub := range [2]string{"Headers", "PrivateHeaders"} {
		candidate := base + "/" + sub + "/" + rest
		if f, ok, err := s.fm.File(candidate); err == nil && ok {
			return &Result{File: f}, nil
		}
	}
	return nil, nil
}

func (s *Search) recordFor(f *fsmgr.FileEntry) *PerFileRecord {
	rec, ok := s.perFile[f.Key]
	if !ok {
		rec = &PerFileRecord{}
		s.perFile[f.Key] = rec
	}
	return rec
}

// SetControllingMacro records the guard macro for the multiple-include
// optimization; the preprocessor calls this once it has proven a file's
// outermost conditional covers the whole file (design note, §4.4).
func (s *Search) SetControllingMacro(f *fsmgr.FileEntry, macro ident.ID) {
	s.recordFor(f).ControllingMacro = macro
}

// ShouldEnter implements §4.4's multiple-include optimization. isMacroDefined
// is supplied by the caller (the preprocessor owns macro definitions; header
// search only consumes the question, per the design note on this being an
// external input).
func (s *Search) ShouldEnter(f *fsmgr.FileEntry, isImport bool, isMacroDefined func(ident.ID) bool) bool {
	rec := s.recordFor(f)

	if isImport {
		if rec.ImportOnce {
			return false
		}
		rec.ImportOnce = true
		return true
	}

	if rec.ControllingMacro != 0 && isMacroDefined(rec.ControllingMacro) {
		return false
	}
	rec.TimesIncluded++
	return true
}

// RecordFor exposes the per-file record for inspection/testing.
func (s *Search) RecordFor(f *fsmgr.FileEntry) *PerFileRecord {
	return s.recordFor(f)
}
