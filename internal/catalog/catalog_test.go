package catalog

import (
	"path/filepath"
	"testing"

	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/vfs"
)

func touch(t *testing.T, fsys vfs.VFS, path string) {
	t.Helper()
	h, err := fsys.Open(path, vfs.OpenWrite)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	if err := fsys.Close(h); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func makeGroup(t *testing.T, fsys vfs.VFS, dir string) {
	t.Helper()
	if err := fsys.Mkdir(dir); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	touch(t, fsys, filepath.Join(dir, fragment.GroupSentinelName))
}

func makeArray(t *testing.T, fsys vfs.VFS, dir string) {
	t.Helper()
	if err := fsys.Mkdir(dir); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	touch(t, fsys, filepath.Join(dir, fragment.SchemaFileName))
}

func TestTypeOf(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)

	group := filepath.Join(root, "g")
	makeGroup(t, fsys, group)
	array := filepath.Join(root, "a")
	makeArray(t, fsys, array)
	plain := filepath.Join(root, "p")
	if err := fsys.Mkdir(plain); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cases := []struct {
		path string
		want ObjectType
	}{
		{group, Group},
		{array, Array},
		{plain, Invalid},
		{filepath.Join(root, "missing"), Invalid},
	}
	for _, c := range cases {
		got, err := TypeOf(fsys, c.path)
		if err != nil {
			t.Fatalf("TypeOf(%s): %v", c.path, err)
		}
		if got != c.want {
			t.Errorf("TypeOf(%s) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestMoveRenamesRecognizedObject(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	array := filepath.Join(root, "a")
	makeArray(t, fsys, array)
	touch(t, fsys, filepath.Join(array, "v.tdb"))

	dst := filepath.Join(root, "sub", "a2")
	if err := Move(fsys, nil, array, dst, false); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if isDir, _ := fsys.IsDir(dst); !isDir {
		t.Fatal("destination was not created")
	}
	if isFile, _ := fsys.IsFile(filepath.Join(dst, "v.tdb")); !isFile {
		t.Error("nested file was not carried over")
	}
	if isDir, _ := fsys.IsDir(array); isDir {
		t.Error("source was not removed")
	}
}

func TestMoveRefusesInvalidSource(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	plain := filepath.Join(root, "p")
	if err := fsys.Mkdir(plain); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Move(fsys, nil, plain, filepath.Join(root, "q"), false); err == nil {
		t.Fatal("expected an error moving a non-object path")
	}
}

func TestMoveRefusesOverwriteWithoutFlag(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	a1 := filepath.Join(root, "a1")
	makeArray(t, fsys, a1)
	a2 := filepath.Join(root, "a2")
	makeArray(t, fsys, a2)

	if err := Move(fsys, nil, a1, a2, false); err == nil {
		t.Fatal("expected an error without overwrite=true")
	}
}

func TestMoveRefusesOverwriteOfDifferentType(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	group := filepath.Join(root, "g")
	makeGroup(t, fsys, group)
	array := filepath.Join(root, "a")
	makeArray(t, fsys, array)

	if err := Move(fsys, nil, array, group, true); err == nil {
		t.Fatal("expected an error overwriting a group with an array, even with overwrite=true")
	}
	if isDir, _ := fsys.IsDir(group); !isDir {
		t.Error("destination group should be untouched after the refused move")
	}
}

func TestMoveOverwritesSameType(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	a1 := filepath.Join(root, "a1")
	makeArray(t, fsys, a1)
	touch(t, fsys, filepath.Join(a1, "new.tdb"))
	a2 := filepath.Join(root, "a2")
	makeArray(t, fsys, a2)
	touch(t, fsys, filepath.Join(a2, "old.tdb"))

	if err := Move(fsys, nil, a1, a2, true); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if isFile, _ := fsys.IsFile(filepath.Join(a2, "new.tdb")); !isFile {
		t.Error("overwritten destination should contain the moved array's contents")
	}
	if isFile, _ := fsys.IsFile(filepath.Join(a2, "old.tdb")); isFile {
		t.Error("overwritten destination should not retain the old array's contents")
	}
}

func TestRemoveRefusesNonObject(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	plain := filepath.Join(root, "p")
	if err := fsys.Mkdir(plain); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := Remove(fsys, plain); err == nil {
		t.Fatal("expected an error removing a non-object path")
	}
}

func TestRemoveGroupRecursesIntoChildren(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	group := filepath.Join(root, "g")
	makeGroup(t, fsys, group)
	child := filepath.Join(group, "a")
	makeArray(t, fsys, child)

	if err := Remove(fsys, group); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if isDir, _ := fsys.IsDir(group); isDir {
		t.Error("group was not removed")
	}
}

func TestWalkYieldsOnlyTypedObjects(t *testing.T) {
	root := t.TempDir()
	fsys := vfs.NewLocal(nil)
	group := filepath.Join(root, "g")
	makeGroup(t, fsys, group)
	plainSubdir := filepath.Join(group, "arrays")
	if err := fsys.Mkdir(plainSubdir); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	array := filepath.Join(plainSubdir, "a")
	makeArray(t, fsys, array)

	var got []Object
	if err := Walk(fsys, group, vfs.PreOrder, func(o Object) error {
		got = append(got, o)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Walk found %d objects, want 2 (group + array): %v", len(got), got)
	}
	if got[0].Path != group || got[0].Type != Group {
		t.Errorf("first object = %+v, want the group itself first in pre-order", got[0])
	}
	if got[1].Path != array || got[1].Type != Array {
		t.Errorf("second object = %+v, want the nested array", got[1])
	}
}
