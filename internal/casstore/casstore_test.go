package casstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/ivaldi-cas/internal/caserrors"
)

func TestOpenUninitializedStoreFails(t *testing.T) {
	root := t.TempDir()
	if _, err := Open(root); err == nil {
		t.Fatal("expected error opening an uninitialized directory")
	} else if !errors.Is(err, caserrors.ErrStoreUninitialized) {
		t.Errorf("expected ErrStoreUninitialized, got %v", err)
	}
}

func TestInitThenOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := Init(root)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if !Preflight(root) {
		t.Error("expected Preflight to report true after Init")
	}

	s2, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s2.Close()
}

func TestAddFileCommitCheckoutDiffFlow(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := Init(root)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	srcA := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcA, "f.txt"), []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	dA, err := s.CommitDirectory(srcA)
	if err != nil {
		t.Fatalf("CommitDirectory: %v", err)
	}
	if err := s.SetRef("main", dA); err != nil {
		t.Fatalf("SetRef: %v", err)
	}

	got, err := s.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != dA {
		t.Errorf("ResolveRef = %+v, want %+v", got, dA)
	}

	dest := t.TempDir()
	dest = filepath.Join(dest, "out")
	if err := os.Mkdir(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := s.Checkout(dest, dA); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "f.txt"))
	if err != nil || string(data) != "v1" {
		t.Errorf("checked-out content = %q, err=%v", data, err)
	}

	srcB := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcB, "f.txt"), []byte("v2"), 0644); err != nil {
		t.Fatal(err)
	}
	dB, err := s.CommitDirectory(srcB)
	if err != nil {
		t.Fatal(err)
	}

	modified, removed, added, err := s.DiffTrees(dA, dB)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if len(modified) != 1 || modified[0] != "f.txt" {
		t.Errorf("modified = %v", modified)
	}
	if len(removed) != 0 || len(added) != 0 {
		t.Errorf("removed=%v added=%v, want both empty", removed, added)
	}
}

func TestContainsSubdirArtifactDetectsDanglingObject(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := Init(root)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	src := t.TempDir()
	if err := os.Mkdir(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "f.txt"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	rootDigest, err := s.CommitDirectory(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetRef("main", rootDigest); err != nil {
		t.Fatal(err)
	}

	if !s.ContainsSubdirArtifact("main", "sub") {
		t.Fatal("expected sub to be present before its object is deleted")
	}

	subDigest, err := s.Tree.ResolveSubdir(rootDigest, "sub")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Objects.DeleteObject(subDigest); err != nil {
		t.Fatal(err)
	}

	if s.ContainsSubdirArtifact("main", "sub") {
		t.Error("expected ContainsSubdirArtifact to return false once the subdirectory object is missing")
	}
}

func TestPruneThenCalculateCacheSize(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")
	s, err := Init(root)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "keep"), []byte("kept"), 0644); err != nil {
		t.Fatal(err)
	}
	kept, err := s.CommitDirectory(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetRef("main", kept); err != nil {
		t.Fatal(err)
	}

	if _, err := s.AddBytes([]byte("orphan")); err != nil {
		t.Fatal(err)
	}

	const refRecordSize = 64 + 8 // one fixed-width digest record for "main"

	beforeSize, err := s.CalculateCacheSize()
	if err != nil {
		t.Fatal(err)
	}
	wantBefore := int64(len("kept")) + kept.SizeBytes + int64(len("orphan")) + refRecordSize
	if beforeSize != wantBefore {
		t.Errorf("size before prune = %d, want %d", beforeSize, wantBefore)
	}

	if _, err := s.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	afterSize, err := s.CalculateCacheSize()
	if err != nil {
		t.Fatal(err)
	}
	wantAfter := int64(len("kept")) + kept.SizeBytes + refRecordSize
	if afterSize != wantAfter {
		t.Errorf("size after prune = %d, want %d", afterSize, wantAfter)
	}
}
