// Package objectstore implements the sharded, content-addressed blob
// store described in spec §4.1: immutable files named by the hex
// SHA-256 of their contents, written atomically via a hardlink from a
// staged temporary file.
package objectstore

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/javanhut/ivaldi-cas/internal/digest"
)

// Store is a directory tree of immutable blobs under root/objects,
// staged through a separate tmp directory (by default the sibling of
// root; see OpenWithTmp).
type Store struct {
	root    string
	objects string
	tmp     string
}

// Open returns a Store rooted at root. It does not create any
// directories; callers that need an initialized store call Init.
func Open(root string) *Store {
	return &Store{
		root:    root,
		objects: filepath.Join(root, "objects"),
		tmp:     filepath.Join(root, "..", "tmp"),
	}
}

// OpenWithTmp returns a Store whose staging directory is tmpDir rather
// than the default sibling of root. Most callers should use Open; this
// exists so casstore can point every component at the single shared
// R/tmp directory from spec §6.
func OpenWithTmp(root, tmpDir string) *Store {
	return &Store{root: root, objects: filepath.Join(root, "objects"), tmp: tmpDir}
}

// Init creates objects/ and the staging directory if they do not
// already exist.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.objects, 0755); err != nil {
		return errors.Wrap(err, "objectstore: create objects dir")
	}
	if err := os.MkdirAll(s.tmp, 0755); err != nil {
		return errors.Wrap(err, "objectstore: create tmp dir")
	}
	return nil
}

// Preflight reports whether the objects directory exists, without
// creating it.
func (s *Store) Preflight() bool {
	info, err := os.Stat(s.objects)
	return err == nil && info.IsDir()
}

// ObjPath returns the on-disk path for d. It is a pure function and
// does not imply the object exists.
func (s *Store) ObjPath(d digest.Digest) string {
	dir, file := d.Shard()
	return filepath.Join(s.objects, dir, file)
}

// CheckBlob returns the object's path if present, or ok=false.
func (s *Store) CheckBlob(d digest.Digest) (path string, ok bool) {
	p := s.ObjPath(d)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// AddBytes hashes an in-memory buffer, stages it under tmp, and
// hardlinks it into place. It implements spec §4.1 add_object case (b).
func (s *Store) AddBytes(data []byte) (digest.Digest, error) {
	d := digest.Of(data)
	if _, ok := s.CheckBlob(d); ok {
		return d, nil
	}

	tmpFile, err := os.CreateTemp(s.tmp, "obj-")
	if err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: create staging file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return digest.Digest{}, errors.Wrap(err, "objectstore: write staging file")
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return digest.Digest{}, errors.Wrap(err, "objectstore: flush staging file")
	}
	if err := tmpFile.Close(); err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: close staging file")
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: chmod staging file")
	}

	return d, s.linkIntoPlace(tmpPath, d)
}

// AddFile hashes the content of an existing file, stages a copy under
// tmp, and hardlinks it into place. It implements spec §4.1 add_object
// case (a): the caller's file may continue to be modified afterwards,
// since the staged copy is independent of it.
func (s *Store) AddFile(path string) (digest.Digest, error) {
	src, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, errors.Wrapf(err, "objectstore: open %s", path)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp(s.tmp, "obj-")
	if err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: create staging file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	h := newTeeDigester(tmpFile)
	if _, err := io.Copy(h, src); err != nil {
		tmpFile.Close()
		return digest.Digest{}, errors.Wrapf(err, "objectstore: copy %s", path)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return digest.Digest{}, errors.Wrap(err, "objectstore: flush staging file")
	}
	if err := tmpFile.Close(); err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: close staging file")
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return digest.Digest{}, errors.Wrap(err, "objectstore: chmod staging file")
	}

	d := h.digest()
	if _, ok := s.CheckBlob(d); ok {
		return d, nil
	}
	return d, s.linkIntoPlace(tmpPath, d)
}

// AddFileLinked hardlinks path directly into the store without
// staging, for callers that assert the file will not be modified. It
// implements spec §4.1 add_object case (c).
func (s *Store) AddFileLinked(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, errors.Wrapf(err, "objectstore: open %s", path)
	}
	d, err := digest.OfReader(f)
	f.Close()
	if err != nil {
		return digest.Digest{}, err
	}

	if _, ok := s.CheckBlob(d); ok {
		return d, nil
	}
	return d, s.linkIntoPlace(path, d)
}

// linkIntoPlace hardlinks src to the digest's final path. An EEXIST
// from the link call means another writer already inserted the same
// content and is treated as success (I2 guarantees equal content).
func (s *Store) linkIntoPlace(src string, d digest.Digest) error {
	dst := s.ObjPath(d)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "objectstore: create shard dir")
	}
	if err := os.Link(src, dst); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrapf(err, "objectstore: link object %s", d.Hash)
	}
	return nil
}

// DeleteObject removes the object named by d. Used only by GC.
func (s *Store) DeleteObject(d digest.Digest) (int64, error) {
	p := s.ObjPath(d)
	info, err := os.Stat(p)
	if err != nil {
		return 0, errors.Wrapf(err, "objectstore: stat %s", d.Hash)
	}
	if err := os.Remove(p); err != nil {
		return 0, errors.Wrapf(err, "objectstore: remove %s", d.Hash)
	}
	return info.Size(), nil
}

// ObjectInfo describes one object found by ListObjects.
type ObjectInfo struct {
	Hash  string
	Path  string
	Size  int64
	Mtime int64 // unix seconds
}

// ListObjects walks the objects tree and returns every object with its
// mtime, sorted ascending (oldest first). Entries that disappear
// between directory listing and stat (e.g. a racing prune) are
// silently skipped, matching cascache.py's list_objects.
func (s *Store) ListObjects() ([]ObjectInfo, error) {
	var out []ObjectInfo

	shardDirs, err := os.ReadDir(s.objects)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "objectstore: read objects dir")
	}

	for _, shard := range shardDirs {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.objects, shard.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "objectstore: read shard %s", shard.Name())
		}
		for _, f := range files {
			p := filepath.Join(shardPath, f.Name())
			info, err := os.Stat(p)
			if err != nil {
				// Raced with a concurrent deletion; skip silently.
				continue
			}
			out = append(out, ObjectInfo{
				Hash:  shard.Name() + f.Name(),
				Path:  p,
				Size:  info.Size(),
				Mtime: info.ModTime().Unix(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Mtime < out[j].Mtime })
	return out, nil
}

// Touch bumps the mtime of the object named by d, used for LRU
// accounting during a reachability walk.
func (s *Store) Touch(d digest.Digest) error {
	p := s.ObjPath(d)
	now := timeNow()
	if err := os.Chtimes(p, now, now); err != nil {
		return errors.Wrapf(err, "objectstore: touch %s", d.Hash)
	}
	return nil
}

// Root returns the store's root directory (the parent of objects/).
func (s *Store) Root() string { return s.root }
