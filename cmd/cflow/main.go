// Command cflow is the end-to-end driver: it turns a list of source files
// into diagnostics, wiring together every other component — identifier
// interning, file uniquing, header search, the cold/warm lexer duality, the
// statement recognizer that stands in for a full parser, and the
// path-sensitive engine. Parse flags (falling back to env vars), build a
// logger, build the long-lived managers once, then loop over the files on
// argv.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/clangcore/cflow/internal/common"
	"github.com/clangcore/cflow/internal/diag"
	"github.com/clangcore/cflow/internal/engine"
	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/headers"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// dirList collects a repeatable search-directory flag (-I, -iquote,
// -isystem, -idirafter). common.CmdEnvString only binds a single value, so
// these register directly with the standard flag package instead.
type dirList []string

func (d *dirList) String() string { return strings.Join(*d, ":") }
func (d *dirList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func envDirList(envName string) []string {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	return strings.Split(v, ":")
}

var (
	quoteDirs  dirList
	angledDirs dirList
	systemDirs dirList
	afterDirs  dirList
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Var(&quoteDirs, "iquote", "add a directory to the quoted-only #include search path (repeatable)")
	flag.Var(&angledDirs, "I", "add a directory to the angled #include search path (repeatable)")
	flag.Var(&systemDirs, "isystem", "add a directory to the system #include search path (repeatable)")
	flag.Var(&afterDirs, "idirafter", "add a directory searched only after every other group (repeatable)")

	logFile := common.CmdEnvString("write log messages here instead of stderr; \"stderr\" forces stderr explicitly", "", "log-filename", "CFLOW_LOG_FILENAME")
	logVerbosity := common.CmdEnvInt("log verbosity (-1..2): warnings and errors are always logged; 1 and 2 also log info messages", 0, "log-verbosity", "CFLOW_LOG_VERBOSITY")
	pthCacheDir := common.CmdEnvString("directory holding pre-tokenized-header cache entries; empty disables the cache", "", "pth-cache-dir", "CFLOW_PTH_CACHE_DIR")
	maxSteps := common.CmdEnvInt("maximum exploded-graph steps per function before giving up (0 = unlimited)", 200000, "max-steps", "CFLOW_MAX_STEPS")
	showVersion := common.CmdEnvBool("print the version and exit", false, "version", "")
	showVersionShort := common.CmdEnvBool("print the version and exit", false, "v", "")

	common.ParseCmdFlagsCombiningWithEnv()

	if *showVersion || *showVersionShort {
		fmt.Println(common.GetVersion())
		return 0
	}

	if len(angledDirs) == 0 {
		angledDirs = envDirList("CFLOW_INCLUDE_DIRS")
	}
	if len(systemDirs) == 0 {
		systemDirs = envDirList("CFLOW_SYSTEM_INCLUDE_DIRS")
	}

	duplicateToStderr := *logFile != "" && *logFile != "stderr"
	logger, err := common.MakeLogger(*logFile, *logVerbosity, false, duplicateToStderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cflow: bad logging configuration:", err)
		return 2
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cflow [flags] file.c [file.c ...]")
		return 2
	}

	pool := ident.NewPool()
	fm := fsmgr.New()
	sm := srcmgr.New(fm)

	search := headers.New(fm, headers.Config{
		QuoteOnlyDirs: toSearchDirs(quoteDirs, headers.CharacteristicNormal),
		AngledDirs:    toSearchDirs(angledDirs, headers.CharacteristicNormal),
		SystemDirs:    toSearchDirs(systemDirs, headers.CharacteristicSystem),
		AfterDirs:     toSearchDirs(afterDirs, headers.CharacteristicNormal),
	})

	var cache *pthCache
	if *pthCacheDir != "" {
		cache = newPTHCache(*pthCacheDir, pool, logger)
	}

	definedMacros := make(map[ident.ID]bool)

	clean := true
	for _, path := range files {
		ok := processFile(fileJob{
			path:          path,
			pool:          pool,
			fm:            fm,
			sm:            sm,
			search:        search,
			cache:         cache,
			definedMacros: definedMacros,
			maxSteps:      int(*maxSteps),
			logger:        logger,
		})
		if !ok {
			clean = false
		}
	}
	if !clean {
		return 1
	}
	return 0
}

func toSearchDirs(dirs []string, ch headers.Characteristic) []headers.SearchDir {
	out := make([]headers.SearchDir, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, headers.SearchDir{Path: d, Kind: headers.DirPlain, Characteristic: ch})
	}
	return out
}

type fileJob struct {
	path          string
	pool          *ident.Pool
	fm            *fsmgr.Manager
	sm            *srcmgr.Manager
	search        *headers.Search
	cache         *pthCache
	definedMacros map[ident.ID]bool
	maxSteps      int
	logger        *common.LoggerWrapper
}

// processFile runs one source file through every component and prints its
// diagnostics. It returns false when the file produced a diagnostic or
// could not be processed, so main can report a nonzero exit status (the
// convention every example repo's own CLI driver follows for "found
// something" vs "clean").
func processFile(j fileJob) bool {
	fe, ok, err := j.fm.File(j.path)
	if err != nil || !ok {
		j.logger.Error("cannot stat", j.path, err)
		return false
	}

	raw, err := os.ReadFile(j.path)
	if err != nil {
		j.logger.Error("cannot read", j.path, err)
		return false
	}
	raw = lexer.StripBOM(raw)

	base, err := j.sm.CreateMainFile(fe, raw)
	if err != nil {
		j.logger.Error("cannot register", j.path, err)
		return false
	}

	var drv lexer.Driver
	var cw *cacheWrite
	if j.cache != nil {
		if cur, ok := j.cache.open(fe.Key, raw, base); ok {
			drv = cur
			j.logger.Info(1, "pth: warm lex for", j.path)
		}
	}
	if drv == nil {
		drv = lexer.NewRaw(raw, base, j.pool)
		if j.cache != nil {
			cw = newCacheWrite(fe.Key, raw, base)
		}
		j.logger.Info(1, "cold lex for", j.path)
	}

	toks := scanTokens(drv, cw)
	if cw != nil {
		j.cache.save(fe.Key, raw, cw.bytes())
	}

	driverDiags := diag.NewSink()
	logical := scanIncludes(toks, raw, base, fe, j.search, j.definedMacros, driverDiags)
	for _, line := range driverDiags.Render(j.sm) {
		fmt.Println(line)
	}

	cfg, perr := recognizeFunction(logical, raw, base, j.pool)
	if perr != nil {
		j.logger.Warn(j.path, ": not analyzed:", perr)
		return driverDiags.Len() == 0
	}
	if cfg == nil {
		return driverDiags.Len() == 0
	}

	e := engine.New(cfg)
	e.Execute(j.maxSteps)
	sink := e.ExtractDiagnostics()
	for _, line := range sink.Render(j.sm) {
		fmt.Println(line)
	}
	return driverDiags.Len() == 0 && sink.Len() == 0
}

// scanTokens materializes the file's whole token stream up front (files
// this recognizer understands are a single small function, never a
// multi-thousand-line translation unit) and, on the cold path, mirrors
// every token into cw so the result can be saved as a pre-tokenized-header
// cache entry for the next run.
func scanTokens(drv lexer.Driver, cw *cacheWrite) []lexer.Token {
	var toks []lexer.Token
	for {
		t := drv.Lex()
		if cw != nil {
			cw.record(t)
		}
		toks = append(toks, t)
		if t.Kind == lexer.EOF {
			return toks
		}
	}
}
