// Package pth implements the token cache (component E): a per-file
// write-once record of a lexed token stream plus an identifier table and a
// file table, replayed later by the lexer driver's warm path. It's a
// bounded, loaded-once-per-run disk cache keyed by file identity, with a
// fixed binary record layout read back with encoding/binary — the same
// discipline as any other on-disk object cache, applied to a token stream
// instead of a compiled object file.
//
// Layout is a functional equivalent only; byte-exact compatibility with any
// real pre-tokenized-header format is not a goal. The file table entry here
// carries a token count and a side-table span so a lookup by file can hop
// straight to its token run and its per-#-conditional side table in O(1),
// rather than scanning.
package pth

import "encoding/binary"

// Magic and version identify the cache format; a mismatch on read is a
// fatal-for-that-cache-file error, not a crash.
var Magic = [4]byte{'P', 'T', 'H', '\x00'}

const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

var byteOrder = binary.LittleEndian

// tokenRecordSize is the on-disk size of one fixed-width token record:
// u8 kind, u8 flags, u32 persistent_id, u32 raw_location, u32 length.
const tokenRecordSize = 1 + 1 + 4 + 4 + 4

// fileTableEntrySize is one file-table row: u64 device, u64 inode,
// u32 token_stream_offset, u32 token_count, u32 side_table_offset,
// u32 side_table_count.
const fileTableEntrySize = 8 + 8 + 4 + 4 + 4 + 4

// sideTableEntrySize is one conditional-skip side-table row: u32
// directive_token_index, u32 matching_end_index.
const sideTableEntrySize = 4 + 4

// trailerSize is four absolute u32 offsets: identifier blob, identifier
// offset table, file table, side table. (§6.4 names "three tables"; the
// identifier blob's own start is folded in here as a fourth pointer since
// Go slicing needs an explicit start, not just the three table pointers.)
const trailerSize = 4 + 4 + 4 + 4
