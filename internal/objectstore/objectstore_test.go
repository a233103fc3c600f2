package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/ivaldi-cas/internal/digest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s := OpenWithTmp(filepath.Join(root, "store"), filepath.Join(root, "tmp"))
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestAddBytesThenCheckBlob(t *testing.T) {
	s := newTestStore(t)
	d, err := s.AddBytes([]byte("hello"))
	if err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	if d != digest.Of([]byte("hello")) {
		t.Errorf("unexpected digest %+v", d)
	}
	path, ok := s.CheckBlob(d)
	if !ok {
		t.Fatal("expected blob to be present after AddBytes")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored blob: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("stored content = %q, want %q", data, "hello")
	}
}

func TestAddBytesIdempotent(t *testing.T) {
	s := newTestStore(t)
	d1, err := s.AddBytes([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := s.AddBytes([]byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("expected equal digests, got %+v and %+v", d1, d2)
	}
}

func TestAddFileHashesContent(t *testing.T) {
	s := newTestStore(t)
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "source.txt")
	if err := os.WriteFile(srcPath, []byte("file content"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := s.AddFile(srcPath)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if d != digest.Of([]byte("file content")) {
		t.Errorf("unexpected digest %+v", d)
	}
	if _, ok := s.CheckBlob(d); !ok {
		t.Fatal("expected blob to be present after AddFile")
	}

	// Source file must still be independently modifiable.
	if err := os.WriteFile(srcPath, []byte("changed"), 0644); err != nil {
		t.Fatal(err)
	}
	path, _ := s.CheckBlob(d)
	data, _ := os.ReadFile(path)
	if string(data) != "file content" {
		t.Errorf("stored object mutated after source changed: got %q", data)
	}
}

func TestAddFileLinkedSharesInode(t *testing.T) {
	s := newTestStore(t)
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "linked.txt")
	if err := os.WriteFile(srcPath, []byte("linked content"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := s.AddFileLinked(srcPath)
	if err != nil {
		t.Fatalf("AddFileLinked: %v", err)
	}
	path, ok := s.CheckBlob(d)
	if !ok {
		t.Fatal("expected blob present")
	}
	srcInfo, _ := os.Stat(srcPath)
	dstInfo, _ := os.Stat(path)
	if !os.SameFile(srcInfo, dstInfo) {
		t.Error("expected AddFileLinked to hardlink rather than copy")
	}
}

func TestCheckBlobMissing(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("never added"))
	if _, ok := s.CheckBlob(d); ok {
		t.Error("expected CheckBlob to report absent for unknown digest")
	}
}

func TestListObjectsSortedByMtime(t *testing.T) {
	s := newTestStore(t)
	d1, _ := s.AddBytes([]byte("first"))
	d2, _ := s.AddBytes([]byte("second"))

	objs, err := s.ListObjects()
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
	for i := 1; i < len(objs); i++ {
		if objs[i-1].Mtime > objs[i].Mtime {
			t.Error("ListObjects did not return objects in ascending mtime order")
		}
	}
	hashes := map[string]bool{}
	for _, o := range objs {
		hashes[o.Hash] = true
	}
	if !hashes[d1.Hash] || !hashes[d2.Hash] {
		t.Error("ListObjects missing one of the added objects")
	}
}

func TestDeleteObject(t *testing.T) {
	s := newTestStore(t)
	d, _ := s.AddBytes([]byte("to be deleted"))
	freed, err := s.DeleteObject(d)
	if err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if freed != int64(len("to be deleted")) {
		t.Errorf("freed = %d, want %d", freed, len("to be deleted"))
	}
	if _, ok := s.CheckBlob(d); ok {
		t.Error("expected object to be gone after DeleteObject")
	}
}

func TestObjPathShardsByPrefix(t *testing.T) {
	s := newTestStore(t)
	d, _ := s.AddBytes([]byte("shard me"))
	path := s.ObjPath(d)
	dir, file := d.Shard()
	want := filepath.Join(s.root, "objects", dir, file)
	if path != want {
		t.Errorf("ObjPath = %q, want %q", path, want)
	}
}
