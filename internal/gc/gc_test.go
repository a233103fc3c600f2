package gc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/javanhut/ivaldi-cas/internal/objectstore"
	"github.com/javanhut/ivaldi-cas/internal/refstore"
	"github.com/javanhut/ivaldi-cas/internal/tree"
)

func newTestCollector(t *testing.T) (*Collector, string) {
	t.Helper()
	root := t.TempDir()
	tmp := filepath.Join(root, "tmp")
	objs := objectstore.OpenWithTmp(filepath.Join(root, "objects"), tmp)
	if err := objs.Init(); err != nil {
		t.Fatal(err)
	}
	refs := refstore.Open(filepath.Join(root, "refs", "heads"), tmp)
	if err := refs.Init(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		t.Fatal(err)
	}
	treeOps := tree.New(objs)
	return New(objs, refs, treeOps), root
}

func TestPruneRemovesUnreachableObjects(t *testing.T) {
	c, _ := newTestCollector(t)

	srcKept := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcKept, "a"), []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}
	kept, err := c.Tree.CommitDirectory(srcKept)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Refs.SetRef("main", kept); err != nil {
		t.Fatal(err)
	}

	// An orphan blob with no ref pointing at it (or its tree).
	if _, err := c.Objects.AddBytes([]byte("orphaned content")); err != nil {
		t.Fatal(err)
	}

	freed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if freed != int64(len("orphaned content")) {
		t.Errorf("freed = %d, want %d", freed, len("orphaned content"))
	}

	objs, err := c.Objects.ListObjects()
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range objs {
		if o.Size == int64(len("orphaned content")) {
			data, _ := os.ReadFile(o.Path)
			if string(data) == "orphaned content" {
				t.Error("orphaned object survived prune")
			}
		}
	}
	if _, ok := c.Objects.CheckBlob(kept); !ok {
		t.Error("reachable tree root was incorrectly pruned")
	}
}

func TestCalculateCacheSize(t *testing.T) {
	c, _ := newTestCollector(t)
	if _, err := c.Objects.AddBytes([]byte("12345")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Objects.AddBytes([]byte("six66")); err != nil {
		t.Fatal(err)
	}
	size, err := c.CalculateCacheSize()
	if err != nil {
		t.Fatalf("CalculateCacheSize: %v", err)
	}
	if size != 10 {
		t.Errorf("size = %d, want 10", size)
	}
}
