package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clangcore/cflow/internal/common"
	"github.com/clangcore/cflow/internal/fsmgr"
	"github.com/clangcore/cflow/internal/ident"
	"github.com/clangcore/cflow/internal/lexer"
	"github.com/clangcore/cflow/internal/pth"
	"github.com/clangcore/cflow/internal/srcmgr"
)

// contentHash names a cache entry after what it actually caches, not just
// which inode held it: an inode number can be recycled by the filesystem
// for a completely unrelated file after the original is deleted, and a
// (device, inode)-only name would then serve stale tokens for a same-named
// new file. Folding the content hash into the filename turns that collision
// into an ordinary cache miss instead of silently wrong results.
func contentHash(raw []byte) common.SHA256 {
	hasher := sha256.New()
	hasher.Write(raw)
	return common.MakeSHA256Struct(hasher)
}

// pthCache maps a file's identity to an on-disk pre-tokenized-header cache
// entry: one entry per physical file, named after its (device, inode) pair
// plus a content hash, so a renamed-but-identical file still hits while an
// edited-in-place or inode-recycled file does not.
type pthCache struct {
	dir    string
	pool   *ident.Pool
	logger *common.LoggerWrapper
}

func newPTHCache(dir string, pool *ident.Pool, logger *common.LoggerWrapper) *pthCache {
	return &pthCache{dir: dir, pool: pool, logger: logger}
}

func (c *pthCache) pathFor(key fsmgr.UniqueKey, hash common.SHA256) string {
	return filepath.Join(c.dir, fmt.Sprintf("%d-%d-%s.pth", key.Device, key.Inode, hash.ToShortHexString()))
}

// open returns a warm Cursor for key if a readable, matching cache entry
// already exists. Any failure (missing file, corrupt header, file-table
// miss, or content-hash mismatch) is treated as a cache miss rather than an
// error: the cold path always produces a correct result, so the cache is
// pure acceleration.
func (c *pthCache) open(key fsmgr.UniqueKey, raw []byte, base srcmgr.Loc) (*pth.Cursor, bool) {
	data, err := os.ReadFile(c.pathFor(key, contentHash(raw)))
	if err != nil {
		return nil, false
	}
	r, err := pth.Open(data, c.pool)
	if err != nil {
		c.logger.Warn("pth: discarding unreadable cache entry:", err)
		return nil, false
	}
	if !r.HasFile(key) {
		return nil, false
	}
	return r.NewCursor(key, base)
}

// save installs data as key's cache entry via a temp-file-then-rename, so
// a concurrent reader of the same directory never observes a partial
// write.
func (c *pthCache) save(key fsmgr.UniqueKey, raw []byte, data []byte) {
	dest := c.pathFor(key, contentHash(raw))
	if err := common.MkdirForFile(dest); err != nil {
		c.logger.Warn("pth: cannot create cache directory:", err)
		return
	}
	f, err := common.OpenTempFile(dest)
	if err != nil {
		c.logger.Warn("pth: cannot create temp cache file:", err)
		return
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		c.logger.Warn("pth: cannot write cache file:", err)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		c.logger.Warn("pth: cannot close cache file:", err)
		return
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		c.logger.Warn("pth: cannot install cache file:", err)
	}
}

// cacheWrite accumulates one cold lex's tokens into a pth.Writer, tracking
// the file's base location so each token's rawLocation can be stored
// relative to the file's own start — pth.Cursor.Lex adds the base back in
// at replay time, so storing the absolute location here would double it
// up on the next warm run.
type cacheWrite struct {
	w    *pth.Writer
	raw  []byte
	base srcmgr.Loc
}

func newCacheWrite(key fsmgr.UniqueKey, raw []byte, base srcmgr.Loc) *cacheWrite {
	w := pth.NewWriter()
	w.BeginFile(key.Device, key.Inode)
	return &cacheWrite{w: w, raw: raw, base: base}
}

func (cw *cacheWrite) record(t lexer.Token) {
	rawLocation := uint32(t.Loc - cw.base)
	var name string
	if t.Kind == lexer.Identifier {
		name = lexer.Text(cw.raw, int(rawLocation), t)
	}
	cw.w.Token(t.Kind, t.Flags, name, rawLocation, uint32(t.Length))
}

func (cw *cacheWrite) bytes() []byte {
	cw.w.EndFile()
	return cw.w.Bytes()
}
