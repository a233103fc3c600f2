// Package casstore is the top-level facade over the CAS: it wires
// objectstore, treecodec, tree, refstore, gc, and the optional
// sizeindex cache together into the single Store type the CLI drives.
// Grounded on the surface of buildstream's CASCache class, which plays
// the same "one object per concern, one facade to call them" role.
package casstore

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/javanhut/ivaldi-cas/internal/caserrors"
	"github.com/javanhut/ivaldi-cas/internal/cfg"
	"github.com/javanhut/ivaldi-cas/internal/digest"
	"github.com/javanhut/ivaldi-cas/internal/gc"
	"github.com/javanhut/ivaldi-cas/internal/objectstore"
	"github.com/javanhut/ivaldi-cas/internal/refstore"
	"github.com/javanhut/ivaldi-cas/internal/sizeindex"
	"github.com/javanhut/ivaldi-cas/internal/tree"
)

// Store is the root CAS directory: root/cas/objects, root/cas/refs/heads,
// and root/tmp, plus an optional root/sizeindex.db cache.
type Store struct {
	root string

	Objects *objectstore.Store
	Refs    *refstore.Store
	Tree    *tree.Ops
	GC      *gc.Collector

	Config *cfg.Config

	sizeIdx *sizeindex.SharedDB // nil when disabled
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func layout(root string) (objectsDir, refsDir, tmpDir string) {
	return filepath.Join(root, "cas", "objects"), filepath.Join(root, "cas", "refs", "heads"), filepath.Join(root, "tmp")
}

// Init creates a new, empty store at root: cas/objects/, cas/refs/heads/,
// and tmp/, plus a default config file.
func Init(root string) (*Store, error) {
	objectsDir, refsDir, tmpDir := layout(root)
	if err := os.MkdirAll(objectsDir, 0755); err != nil {
		return nil, errors.Wrap(err, "casstore: create objects dir")
	}
	if err := os.MkdirAll(refsDir, 0755); err != nil {
		return nil, errors.Wrap(err, "casstore: create refs dir")
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, errors.Wrap(err, "casstore: create tmp dir")
	}
	if err := cfg.SaveRepo(root, cfg.DefaultConfig()); err != nil {
		return nil, errors.Wrap(err, "casstore: write default config")
	}
	return Open(root)
}

// Open attaches to an existing store at root. It returns
// caserrors.ErrStoreUninitialized if root does not look like a CAS
// store (the preflight check cascache.py performs before any
// operation).
func Open(root string) (*Store, error) {
	objectsDir, refsDir, tmpDir := layout(root)

	if info, err := os.Stat(objectsDir); err != nil || !info.IsDir() {
		return nil, errors.Wrapf(caserrors.ErrStoreUninitialized, "objects dir missing under %s", root)
	}
	if info, err := os.Stat(refsDir); err != nil || !info.IsDir() {
		return nil, errors.Wrapf(caserrors.ErrStoreUninitialized, "refs/heads dir missing under %s", root)
	}

	config, err := cfg.Load(root)
	if err != nil {
		return nil, errors.Wrap(err, "casstore: load config")
	}

	objects := objectstore.OpenWithTmp(filepath.Join(root, "cas"), tmpDir)
	refs := refstore.Open(refsDir, tmpDir)
	treeOps := tree.New(objects)
	collector := gc.New(objects, refs, treeOps)

	s := &Store{
		root:    root,
		Objects: objects,
		Refs:    refs,
		Tree:    treeOps,
		GC:      collector,
		Config:  config,
	}

	if config.Store.UseSizeIndex {
		idx, err := sizeindex.GetShared(root)
		if err != nil {
			return nil, errors.Wrap(err, "casstore: open size index")
		}
		s.sizeIdx = idx
	}

	return s, nil
}

// Close releases any resources the store holds open (currently just
// the size index, if enabled).
func (s *Store) Close() error {
	if s.sizeIdx != nil {
		return s.sizeIdx.Close()
	}
	return nil
}

// Preflight reports whether root looks like an initialized CAS store,
// without opening it.
func Preflight(root string) bool {
	objectsDir, refsDir, _ := layout(root)
	if info, err := os.Stat(objectsDir); err != nil || !info.IsDir() {
		return false
	}
	info, err := os.Stat(refsDir)
	return err == nil && info.IsDir()
}

// AddFile imports path as a single blob and keeps the size index (if
// enabled) in sync.
func (s *Store) AddFile(path string) (digest.Digest, error) {
	d, err := s.Objects.AddFile(path)
	if err != nil {
		return digest.Digest{}, err
	}
	s.indexObject(d)
	return d, nil
}

// AddBytes imports an in-memory buffer as a single blob.
func (s *Store) AddBytes(data []byte) (digest.Digest, error) {
	d, err := s.Objects.AddBytes(data)
	if err != nil {
		return digest.Digest{}, err
	}
	s.indexObject(d)
	return d, nil
}

func (s *Store) indexObject(d digest.Digest) {
	if s.sizeIdx == nil {
		return
	}
	if info, err := os.Stat(s.Objects.ObjPath(d)); err == nil {
		_ = s.sizeIdx.Put(d.Hash, info.Size(), info.ModTime().Unix())
	}
}

// CheckBlob reports whether d is present in the object store.
func (s *Store) CheckBlob(d digest.Digest) bool {
	_, ok := s.Objects.CheckBlob(d)
	return ok
}

// CommitDirectory imports a filesystem tree rooted at path and, when the
// size index is enabled, records every object the new tree reaches.
func (s *Store) CommitDirectory(path string) (digest.Digest, error) {
	d, err := s.Tree.CommitDirectory(path)
	if err != nil {
		return digest.Digest{}, err
	}
	if s.sizeIdx != nil {
		if hashes, err := s.Tree.Reachable(d); err == nil {
			for h := range hashes {
				s.indexObject(digest.Digest{Hash: h})
			}
		}
	}
	return d, nil
}

// Checkout materializes treeDigest into dest, which must already exist.
func (s *Store) Checkout(dest string, treeDigest digest.Digest) error {
	return s.Tree.Checkout(dest, treeDigest)
}

// Extract materializes treeDigest (optionally a subdir of it) under
// destRoot atomically, returning the resulting path.
func (s *Store) Extract(destRoot string, treeDigest digest.Digest, subdir string) (string, error) {
	return s.Tree.Extract(destRoot, treeDigest, subdir)
}

// DiffTrees compares two tree digests.
func (s *Store) DiffTrees(a, b digest.Digest) (modified, removed, added []string, err error) {
	return s.Tree.DiffTrees(a, b)
}

// SetRef points ref at d.
func (s *Store) SetRef(ref string, d digest.Digest) error {
	return s.Refs.SetRef(ref, d)
}

// ResolveRef returns the digest ref currently points to, bumping its
// mtime for LRU accounting.
func (s *Store) ResolveRef(ref string) (digest.Digest, error) {
	return s.Refs.ResolveRef(ref, true)
}

// LinkRef makes newRef point at whatever oldRef currently resolves to.
func (s *Store) LinkRef(oldRef, newRef string) error {
	return s.Refs.LinkRef(oldRef, newRef)
}

// ListRefs returns every ref, oldest-by-mtime first.
func (s *Store) ListRefs() ([]refstore.RefInfo, error) {
	return s.Refs.ListRefs()
}

// RemoveRef deletes ref.
func (s *Store) RemoveRef(ref string) error {
	return s.Refs.Remove(ref)
}

// CleanRefsUntil removes every ref whose mtime is older than cutoffUnix.
func (s *Store) CleanRefsUntil(cutoffUnix int64) ([]string, error) {
	return s.Refs.CleanUntil(cutoffUnix)
}

// ContainsRef reports whether ref exists.
func (s *Store) ContainsRef(ref string) bool {
	return s.Refs.Contains(ref)
}

// ContainsSubdirArtifact reports whether ref exists and the
// subdirectory object named by subdir inside its tree is actually
// present in the object store, not merely named by a parent listing.
func (s *Store) ContainsSubdirArtifact(ref, subdir string) bool {
	d, err := s.Refs.ResolveRef(ref, false)
	if err != nil {
		return false
	}
	if _, err := s.Tree.ResolveSubdir(d, subdir); err != nil {
		return false
	}
	return true
}

// Prune runs mark-and-sweep GC and returns the bytes freed. The size
// index, if enabled, is rebuilt afterward rather than patched
// incrementally, since prune may delete an unbounded number of
// objects.
func (s *Store) Prune() (int64, error) {
	freed, err := s.GC.Prune()
	if err != nil {
		return freed, err
	}
	s.reindexAll()
	return freed, nil
}

// CalculateCacheSize returns the total size of every stored object and
// ref record, using the size index for the object total when
// available. The size index only tracks objects, so ref sizes are
// always added on top of it.
func (s *Store) CalculateCacheSize() (int64, error) {
	if s.sizeIdx != nil {
		if n, err := s.sizeIdx.Count(); err == nil && n > 0 {
			objTotal, err := s.sizeIdx.Total()
			if err != nil {
				return 0, err
			}
			refsTotal, err := s.refsSize()
			if err != nil {
				return 0, err
			}
			return objTotal + refsTotal, nil
		}
	}
	return s.GC.CalculateCacheSize()
}

func (s *Store) refsSize() (int64, error) {
	refs, err := s.Refs.ListRefs()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range refs {
		total += r.Size
	}
	return total, nil
}

// ListObjects returns every object, oldest-by-mtime first.
func (s *Store) ListObjects() ([]objectstore.ObjectInfo, error) {
	return s.Objects.ListObjects()
}

func (s *Store) reindexAll() {
	if s.sizeIdx == nil {
		return
	}
	objs, err := s.Objects.ListObjects()
	if err != nil {
		return
	}
	if err := s.sizeIdx.Clear(); err != nil {
		return
	}
	for _, o := range objs {
		_ = s.sizeIdx.Put(o.Hash, o.Size, o.Mtime)
	}
}
