// Package vfs implements the engine's storage abstraction:
// every other component talks to files through this interface rather
// than touching os directly, so that object-store backends can be added
// later without touching the core.
package vfs

import (
	"io/fs"

	"github.com/gridarray/engine/internal/engineerr"
)

// LockMode distinguishes shared (read) from exclusive (write) locks.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// WalkOrder controls traversal order for Walk.
type WalkOrder int

const (
	PreOrder WalkOrder = iota
	PostOrder
)

// OpenMode selects read or write access when opening a handle.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
	OpenAppend
)

// ByteRange is one (offset, length) pair in a bulk read request.
type ByteRange struct {
	Offset int64
	Length int64
}

// Handle is an open file resource. Concrete backends embed their own
// state behind this interface.
type Handle interface {
	ReadAt(buf []byte, offset int64) (int, error)
	Write(buf []byte) (int, error)
	Sync() error
	Close() error
}

// VFS is the abstract storage surface every core component is built
// against.
type VFS interface {
	Open(uri string, mode OpenMode) (Handle, error)
	Close(h Handle) error

	// Read is a convenience single-range read via an open handle.
	Read(h Handle, offset int64, buf []byte) (int, error)
	Write(h Handle, buf []byte) (int, error)
	Append(h Handle, buf []byte) (int, error)
	Sync(h Handle) error

	// BulkRead satisfies a list of (offset, length) pairs against uri in
	// one backend round trip, producing one contiguous buffer holding the
	// concatenation of each range in request order.
	BulkRead(uri string, ranges []ByteRange) ([]byte, error)

	Rename(src, dst string) error
	Delete(uri string) error
	Mkdir(uri string) error
	IsDir(uri string) (bool, error)
	IsFile(uri string) (bool, error)
	Ls(uri string) ([]string, error)
	Walk(uri string, order WalkOrder, fn func(path string, info fs.FileInfo) error) error
	FileSize(uri string) (int64, error)

	Lock(uri string, mode LockMode) (Unlocker, error)
}

// Unlocker releases a lock acquired via VFS.Lock.
type Unlocker interface {
	Unlock() error
}

func errNotFound(uri string) error {
	return engineerr.New(engineerr.NotFound, "%s", uri)
}

func errExists(uri string) error {
	return engineerr.New(engineerr.AlreadyExists, "%s", uri)
}
