// Package catalog implements the engine's object catalog:
// identifying groups, arrays, and key-value stores by sentinel file,
// moving and removing them, and walking a directory tree for typed
// objects. Move refuses to silently overwrite an object of a different
// type even when the caller asks to overwrite, and Remove recurses into
// a group's children rather than requiring the caller to empty it
// first.
package catalog

import (
	"io/fs"
	"path/filepath"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

// ObjectType classifies a catalog path by which sentinel file it holds.
type ObjectType int

const (
	Invalid ObjectType = iota
	Group
	Array
	KeyValue
)

func (t ObjectType) String() string {
	switch t {
	case Group:
		return "Group"
	case Array:
		return "Array"
	case KeyValue:
		return "KeyValue"
	default:
		return "Invalid"
	}
}

// TypeOf inspects path for exactly one of the three recognized sentinel
// files and reports the corresponding ObjectType. A path with zero or
// more than one sentinel present is Invalid — ambiguous objects are
// never silently treated as one type or another.
func TypeOf(fsys vfs.VFS, path string) (ObjectType, error) {
	isDir, err := fsys.IsDir(path)
	if err != nil {
		return Invalid, err
	}
	if !isDir {
		return Invalid, nil
	}
	group, err := fsys.IsFile(filepath.Join(path, fragment.GroupSentinelName))
	if err != nil {
		return Invalid, err
	}
	array, err := fsys.IsFile(filepath.Join(path, fragment.SchemaFileName))
	if err != nil {
		return Invalid, err
	}
	kv, err := fsys.IsFile(filepath.Join(path, fragment.KVSentinelName))
	if err != nil {
		return Invalid, err
	}
	switch count(group, array, kv) {
	case 1:
		switch {
		case group:
			return Group, nil
		case array:
			return Array, nil
		default:
			return KeyValue, nil
		}
	default:
		return Invalid, nil
	}
}

func count(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// Move renames src to dst. It refuses to move a path that is not a
// recognized object, and refuses to overwrite an existing dst of a
// different object type even when overwrite is true — overwrite only
// ever replaces a same-typed object.
func Move(fsys vfs.VFS, log *logging.Logger, src, dst string, overwrite bool) error {
	if log == nil {
		log = logging.Discard()
	}
	srcType, err := TypeOf(fsys, src)
	if err != nil {
		return err
	}
	if srcType == Invalid {
		return engineerr.New(engineerr.NotFound, "catalog: %s is not a recognized tiledb object", src)
	}

	dstIsDir, err := fsys.IsDir(dst)
	if err != nil {
		return err
	}
	if dstIsDir {
		dstType, err := TypeOf(fsys, dst)
		if err != nil {
			return err
		}
		if !overwrite {
			return engineerr.New(engineerr.AlreadyExists, "catalog: %s already exists", dst)
		}
		if dstType != srcType {
			return engineerr.New(engineerr.AlreadyExists, "catalog: refusing to overwrite %s (%s) with a %s", dst, dstType, srcType)
		}
		if err := fsys.Delete(dst); err != nil {
			return err
		}
	}

	if err := fsys.Mkdir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := copyTree(fsys, src, dst); err != nil {
		return err
	}
	return fsys.Delete(src)
}

// copyTree replicates src's file tree under dst using only the VFS
// capability interface, so Move works identically over local and
// object-store backends (neither of which this engine gives a native
// whole-directory rename primitive — object stores have no directories
// to rename, only key prefixes to rewrite).
func copyTree(fsys vfs.VFS, src, dst string) error {
	return fsys.Walk(src, vfs.PreOrder, func(path string, info fs.FileInfo) error {
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsys.Mkdir(target)
		}
		size, err := fsys.FileSize(path)
		if err != nil {
			return err
		}
		data, err := fsys.BulkRead(path, []vfs.ByteRange{{Offset: 0, Length: size}})
		if err != nil {
			return err
		}
		h, err := fsys.Open(target, vfs.OpenWrite)
		if err != nil {
			return err
		}
		if _, err := fsys.Write(h, data); err != nil {
			_ = fsys.Close(h)
			return err
		}
		return fsys.Close(h)
	})
}

// Remove deletes path. It refuses to remove a path whose type is not
// one of the recognized sentinels, and recursively removes a group's
// children rather than requiring them to be removed first.
func Remove(fsys vfs.VFS, path string) error {
	t, err := TypeOf(fsys, path)
	if err != nil {
		return err
	}
	if t == Invalid {
		return engineerr.New(engineerr.NotFound, "catalog: %s is not a recognized tiledb object", path)
	}
	return fsys.Delete(path)
}

// Object is one typed entry yielded by Walk.
type Object struct {
	Path string
	Type ObjectType
}

// Walk traverses root and invokes fn for every recognized object found
// (groups, arrays, key-value stores), skipping paths that are not
// themselves typed objects, in the requested order. A group's own
// sentinel marks the group directory as an object but walking does not
// stop at the group boundary — its children are visited too, since
// array directories never nest another array inside them.
func Walk(fsys vfs.VFS, root string, order vfs.WalkOrder, fn func(Object) error) error {
	return fsys.Walk(root, order, func(path string, info fs.FileInfo) error {
		if !info.IsDir() {
			return nil
		}
		t, err := TypeOf(fsys, path)
		if err != nil {
			return err
		}
		if t == Invalid {
			return nil
		}
		return fn(Object{Path: path, Type: t})
	})
}
