package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"github.com/google/renameio"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/logging"
)

// Local is the POSIX/Windows filesystem VFS backend. Bulk reads are
// served from a memory mapping (edsrzf/mmap-go); renames that must be
// atomic go through google/renameio; locks use gofrs/flock. Local
// filesystems bypass the read-ahead cache the VFS interface documents for
// object-store backends: the OS page cache already serves
// that role.
type Local struct {
	log *logging.Logger
}

// NewLocal constructs a Local backend. log may be nil, in which case a
// discarding logger is used.
func NewLocal(log *logging.Logger) *Local {
	if log == nil {
		log = logging.Discard()
	}
	return &Local{log: log}
}

type localHandle struct {
	f *os.File
}

func (h *localHandle) ReadAt(buf []byte, offset int64) (int, error) {
	return h.f.ReadAt(buf, offset)
}

func (h *localHandle) Write(buf []byte) (int, error) {
	return h.f.Write(buf)
}

func (h *localHandle) Sync() error {
	return h.f.Sync()
}

func (h *localHandle) Close() error {
	return h.f.Close()
}

func (l *Local) Open(uri string, mode OpenMode) (Handle, error) {
	var flag int
	switch mode {
	case OpenRead:
		flag = os.O_RDONLY
	case OpenWrite:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case OpenAppend:
		flag = os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return nil, engineerr.New(engineerr.NotSupported, "vfs: unknown open mode %d", mode)
	}
	f, err := os.OpenFile(uri, flag, 0o644)
	if err != nil {
		return nil, mapOSError(uri, err)
	}
	return &localHandle{f: f}, nil
}

func (l *Local) Close(h Handle) error {
	return h.Close()
}

func (l *Local) Read(h Handle, offset int64, buf []byte) (int, error) {
	return h.ReadAt(buf, offset)
}

func (l *Local) Write(h Handle, buf []byte) (int, error) {
	return h.Write(buf)
}

func (l *Local) Append(h Handle, buf []byte) (int, error) {
	return h.Write(buf)
}

func (l *Local) Sync(h Handle) error {
	return h.Sync()
}

// BulkRead memory-maps uri and copies out each requested range in order,
// avoiding one syscall per range for fragment readers that stitch
// together many small tile offsets.
func (l *Local) BulkRead(uri string, ranges []ByteRange) ([]byte, error) {
	f, err := os.Open(uri)
	if err != nil {
		return nil, mapOSError(uri, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IoError, err, "vfs: stat %s", uri)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IoError, err, "vfs: mmap %s", uri)
	}
	defer m.Unmap()

	total := int64(0)
	for _, r := range ranges {
		total += r.Length
	}
	out := make([]byte, 0, total)
	for _, r := range ranges {
		if r.Offset < 0 || r.Offset+r.Length > int64(len(m)) {
			return nil, engineerr.New(engineerr.IoError, "vfs: bulk read range [%d,%d) exceeds file size %d of %s", r.Offset, r.Offset+r.Length, len(m), uri)
		}
		out = append(out, m[r.Offset:r.Offset+r.Length]...)
	}
	return out, nil
}

// Rename performs an atomic rename via google/renameio's symlink-swap
// trick where the platform doesn't offer one directly.
func (l *Local) Rename(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return mapOSError(src, err)
	}
	if err := renameio.WriteFile(dst, data, 0o644); err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "vfs: rename %s -> %s", src, dst)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		l.log.Warnf("vfs: rename %s -> %s left source in place: %v", src, dst, err)
	}
	return nil
}

func (l *Local) Delete(uri string) error {
	if err := os.RemoveAll(uri); err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "vfs: delete %s", uri)
	}
	return nil
}

func (l *Local) Mkdir(uri string) error {
	if err := os.MkdirAll(uri, 0o755); err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "vfs: mkdir %s", uri)
	}
	return nil
}

func (l *Local) IsDir(uri string) (bool, error) {
	info, err := os.Stat(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, engineerr.Wrap(engineerr.IoError, err, "vfs: stat %s", uri)
	}
	return info.IsDir(), nil
}

func (l *Local) IsFile(uri string) (bool, error) {
	info, err := os.Stat(uri)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, engineerr.Wrap(engineerr.IoError, err, "vfs: stat %s", uri)
	}
	return !info.IsDir(), nil
}

func (l *Local) Ls(uri string) ([]string, error) {
	entries, err := os.ReadDir(uri)
	if err != nil {
		return nil, mapOSError(uri, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = filepath.Join(uri, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) Walk(uri string, order WalkOrder, fn func(path string, info fs.FileInfo) error) error {
	if order == PreOrder {
		return filepath.Walk(uri, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			return fn(path, info)
		})
	}
	return l.walkPostOrder(uri, fn)
}

func (l *Local) walkPostOrder(dir string, fn func(path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return mapOSError(dir, err)
	}
	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := l.walkPostOrder(child, fn); err != nil {
				return err
			}
		} else {
			info, err := e.Info()
			if err != nil {
				return err
			}
			if err := fn(child, info); err != nil {
				return err
			}
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return mapOSError(dir, err)
	}
	return fn(dir, info)
}

func (l *Local) FileSize(uri string) (int64, error) {
	info, err := os.Stat(uri)
	if err != nil {
		return 0, mapOSError(uri, err)
	}
	return info.Size(), nil
}

type localUnlocker struct {
	fl *flock.Flock
}

func (u *localUnlocker) Unlock() error {
	return u.fl.Unlock()
}

// Lock acquires a shared or exclusive file lock via gofrs/flock, used by
// the concurrency model's shared-for-readers/exclusive-for-consolidation
// discipline over the array's __lock.tdb sentinel.
func (l *Local) Lock(uri string, mode LockMode) (Unlocker, error) {
	fl := flock.New(uri)
	var ok bool
	var err error
	if mode == LockExclusive {
		ok, err = fl.TryLock()
	} else {
		ok, err = fl.TryRLock()
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IoError, err, "vfs: lock %s", uri)
	}
	if !ok {
		return nil, engineerr.New(engineerr.IoError, "vfs: lock %s is held", uri)
	}
	return &localUnlocker{fl: fl}, nil
}

func mapOSError(uri string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return errNotFound(uri)
	}
	if errors.Is(err, os.ErrExist) {
		return errExists(uri)
	}
	if errors.Is(err, os.ErrPermission) {
		return engineerr.Wrap(engineerr.PermissionDenied, err, "%s", uri)
	}
	return engineerr.Wrap(engineerr.IoError, err, "%s", uri)
}
