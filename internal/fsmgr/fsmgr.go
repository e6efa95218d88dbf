// Package fsmgr implements the file manager (component B): it caches
// directory/file stat results and uniques file entries by (device, inode),
// so two different paths to the same file resolve to one shared entry.
package fsmgr

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// UniqueKey is the physical identity of a file or directory: (device, inode).
// Two paths — even reached through different symlinks — that share a
// UniqueKey are the same physical object and must resolve to the same entry.
type UniqueKey struct {
	Device uint64
	Inode  uint64
}

// DirEntry is a directory entry (§3.2): an interned name plus its uniquing
// key. Owned for the Manager's lifetime; callers hold non-owning references.
type DirEntry struct {
	Name string
	Key  UniqueKey
}

// FileEntry is a file entry (§3.2): size, modification time, owning
// directory, and a process-unique id, in addition to the uniquing key.
type FileEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Dir     *DirEntry
	UID     uint32
	Key     UniqueKey
}

// Manager is the file manager (component B). Once created, an entry is owned
// by the Manager for its whole lifetime; callers never see it invalidated or
// relocated. The cache is never invalidated: a stale filesystem view within a
// single run is an accepted tradeoff, matching §4.2.
type Manager struct {
	dirsByPath  map[string]*DirEntry // nil value cached = "known non-existent"
	dirsByKey   map[UniqueKey]*DirEntry
	filesByPath map[string]*FileEntry
	filesByKey  map[UniqueKey]*FileEntry
	nextUID     uint32
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		dirsByPath:  make(map[string]*DirEntry, 64),
		dirsByKey:   make(map[UniqueKey]*DirEntry, 64),
		filesByPath: make(map[string]*FileEntry, 256),
		filesByKey:  make(map[UniqueKey]*FileEntry, 256),
	}
}

// statKey asks the kernel directly for (device, inode) via unix.Stat,
// bypassing os.FileInfo.Sys()'s untyped interface{} — this is the
// golang.org/x/sys wiring called out in SPEC_FULL.md's domain stack table.
// On a stat failure (TOCTOU race with the os.Stat call in the caller) it
// degrades to a path-derived key rather than erroring a second time.
func statKey(path string) UniqueKey {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fallbackKeyFromPath(path)
	}
	return UniqueKey{Device: uint64(st.Dev), Inode: st.Ino}
}

func fallbackKeyFromPath(path string) UniqueKey {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for i := 0; i < len(path); i++ {
		h ^= uint64(path[i])
		h *= 1099511628211
	}
	return UniqueKey{Device: 0, Inode: h}
}

// Directory resolves path to a DirEntry, caching both hits and misses so a
// repeated lookup never re-stats the filesystem (§4.2).
func (m *Manager) Directory(path string) (*DirEntry, bool) {
	path = filepath.Clean(path)
	if d, ok := m.dirsByPath[path]; ok {
		return d, d != nil
	}

	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		m.dirsByPath[path] = nil
		return nil, false
	}

	key := statKey(path)
	if existing, ok := m.dirsByKey[key]; ok {
		m.dirsByPath[path] = existing
		return existing, true
	}

	d := &DirEntry{Name: path, Key: key}
	m.dirsByPath[path] = d
	m.dirsByKey[key] = d
	return d, true
}

// File resolves path to a FileEntry, uniquing by (device, inode) so that
// symlinked aliases of the same physical file collapse to one entry (§3.2,
// §8 property 2). Failure (I/O error, or path names a directory) is cached
// as "non-existent" and reported via ok=false. On the first lookup err is
// non-nil when path names a directory or the stat fails for a reason other
// than "does not exist"; a later lookup of a cached failure returns a nil err.
func (m *Manager) File(path string) (*FileEntry, bool, error) {
	path = filepath.Clean(path)
	if f, ok := m.filesByPath[path]; ok {
		return f, f != nil, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		m.filesByPath[path] = nil
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "fsmgr: stat %q", path)
	}
	if fi.IsDir() {
		m.filesByPath[path] = nil
		return nil, false, errors.Errorf("fsmgr: %q is a directory, not a file", path)
	}

	key := statKey(path)
	if existing, ok := m.filesByKey[key]; ok {
		m.filesByPath[path] = existing
		return existing, true, nil
	}

	dir, _ := m.Directory(filepath.Dir(path))
	m.nextUID++
	f := &FileEntry{
		Name:    path,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Dir:     dir,
		UID:     m.nextUID,
		Key:     key,
	}
	m.filesByPath[path] = f
	m.filesByKey[key] = f
	return f, true, nil
}

// Stats reports how many distinct physical files/directories have been
// resolved, for diagnostics and tests.
func (m *Manager) Stats() (dirs, files int) {
	return len(m.dirsByKey), len(m.filesByKey)
}
