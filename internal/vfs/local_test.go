package vfs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	l := NewLocal(nil)

	h, err := l.Open(path, OpenWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Write(h, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.Sync(h); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := l.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := l.BulkRead(path, []ByteRange{{Offset: 0, Length: 5}, {Offset: 6, Length: 5}})
	if err != nil {
		t.Fatalf("BulkRead: %v", err)
	}
	if !bytes.Equal(data, []byte("helloworld")) {
		t.Errorf("BulkRead = %q, want %q", data, "helloworld")
	}
}

func TestLocalRenameAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	dst := filepath.Join(dir, "dst.tdb")
	if err := os.WriteFile(src, []byte("fragment"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l := NewLocal(nil)
	if err := l.Rename(src, dst); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile(dst): %v", err)
	}
	if string(data) != "fragment" {
		t.Errorf("dst contents = %q, want %q", data, "fragment")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("src still exists after rename")
	}
}

func TestLocalIsDirIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l := NewLocal(nil)

	isDir, err := l.IsDir(dir)
	if err != nil || !isDir {
		t.Errorf("IsDir(%s) = %v, %v, want true, nil", dir, isDir, err)
	}
	isFile, err := l.IsFile(file)
	if err != nil || !isFile {
		t.Errorf("IsFile(%s) = %v, %v, want true, nil", file, isFile, err)
	}
	missing, err := l.IsFile(filepath.Join(dir, "nope"))
	if err != nil || missing {
		t.Errorf("IsFile(missing) = %v, %v, want false, nil", missing, err)
	}
}

func TestLocalLockExclusiveExcludesSecond(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "__lock.tdb")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l := NewLocal(nil)
	unlock, err := l.Lock(path, LockExclusive)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock.Unlock()

	if _, err := l.Lock(path, LockExclusive); err == nil {
		t.Fatal("expected a second exclusive lock attempt to fail")
	}
}

func TestLocalWalkPostOrder(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "frag")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a.tdb"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	l := NewLocal(nil)
	var visited []string
	err := l.Walk(dir, PostOrder, func(path string, info os.FileInfo) error {
		visited = append(visited, path)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(visited) != 3 {
		t.Fatalf("visited %v, want 3 entries (file, dir, root)", visited)
	}
	if visited[len(visited)-1] != dir {
		t.Errorf("last visited entry = %s, want root %s (post-order)", visited[len(visited)-1], dir)
	}
}
