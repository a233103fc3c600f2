package refstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/javanhut/ivaldi-cas/internal/caserrors"
	"github.com/javanhut/ivaldi-cas/internal/digest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s := Open(filepath.Join(root, "refs", "heads"), filepath.Join(root, "tmp"))
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestSetRefThenResolve(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("tree contents"))
	if err := s.SetRef("main", d); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	got, err := s.ResolveRef("main", false)
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != d {
		t.Errorf("ResolveRef = %+v, want %+v", got, d)
	}
}

func TestResolveMissingRef(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ResolveRef("missing", false); err == nil {
		t.Error("expected error resolving a missing ref")
	} else if !errors.Is(err, caserrors.ErrRefNotFound) {
		t.Errorf("expected ErrRefNotFound, got %v", err)
	}
}

func TestHierarchicalRefName(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("x"))
	if err := s.SetRef("project/main", d); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	got, err := s.ResolveRef("project/main", false)
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != d {
		t.Error("round trip mismatch for hierarchical ref name")
	}
}

func TestLinkRefCopiesByValue(t *testing.T) {
	s := newTestStore(t)
	d1 := digest.Of([]byte("v1"))
	d2 := digest.Of([]byte("v2"))

	if err := s.SetRef("old", d1); err != nil {
		t.Fatal(err)
	}
	if err := s.LinkRef("old", "new"); err != nil {
		t.Fatalf("LinkRef: %v", err)
	}

	// Moving old afterwards must not retroactively move new.
	if err := s.SetRef("old", d2); err != nil {
		t.Fatal(err)
	}
	got, err := s.ResolveRef("new", false)
	if err != nil {
		t.Fatal(err)
	}
	if got != d1 {
		t.Errorf("new ref moved with old; got %+v, want %+v", got, d1)
	}
}

func TestListRefsSortedByMtime(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("x"))
	if err := s.SetRef("a", d); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRef("b", d); err != nil {
		t.Fatal(err)
	}

	refs, err := s.ListRefs()
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	for i := 1; i < len(refs); i++ {
		if refs[i-1].Mtime > refs[i].Mtime {
			t.Error("ListRefs not sorted ascending by mtime")
		}
	}
}

func TestRemoveRef(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("x"))
	if err := s.SetRef("gone", d); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Contains("gone") {
		t.Error("expected ref to be absent after Remove")
	}
	if err := s.Remove("gone"); err == nil {
		t.Error("expected error removing an already-removed ref")
	}
}

func TestCleanUntilRemovesOldRefs(t *testing.T) {
	s := newTestStore(t)
	d := digest.Of([]byte("x"))
	if err := s.SetRef("old", d); err != nil {
		t.Fatal(err)
	}

	cutoff := time.Now().Add(time.Hour).Unix()
	removed, err := s.CleanUntil(cutoff)
	if err != nil {
		t.Fatalf("CleanUntil: %v", err)
	}
	if len(removed) != 1 || removed[0] != "old" {
		t.Errorf("removed = %v, want [old]", removed)
	}
	if s.Contains("old") {
		t.Error("expected old ref to be gone")
	}
}
