package fragment

import (
	"fmt"
	"path/filepath"
)

const (
	SchemaFileName    = "__array_schema.tdb"
	LockFileName      = "__lock.tdb"
	MetadataFileName  = "__fragment_metadata.tdb"
	OkFileName        = "__ok.tdb"
	CoordsFileName    = "__coords.tdb"
	GroupSentinelName = "__tiledb_group.tdb"
	KVSentinelName    = "__tiledb_kv.tdb"
)

// AttrFileName returns the path of an attribute's tile stream within a
// fragment directory.
func AttrFileName(fragmentDir, attr string) string {
	return filepath.Join(fragmentDir, attr+".tdb")
}

// AttrVarFileName returns the values stream of a variable-length attribute.
func AttrVarFileName(fragmentDir, attr string) string {
	return filepath.Join(fragmentDir, attr+"_var.tdb")
}

// AttrValidityFileName returns the validity stream of a nullable attribute.
func AttrValidityFileName(fragmentDir, attr string) string {
	return filepath.Join(fragmentDir, attr+"_validity.tdb")
}

// DirName builds a fragment directory name from a write timestamp (Unix
// nanoseconds) and a per-write random nonce: `__<timestamp>_<nonce>`.
func DirName(timestamp int64, nonce uint64) string {
	return fmt.Sprintf("__%d_%x", timestamp, nonce)
}
