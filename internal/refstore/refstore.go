// Package refstore implements the named, mutable pointers to a tree
// digest described in spec §4.3: one file per ref under refs/heads,
// whose mtime doubles as an LRU timestamp for prune's least-recently-
// modified ordering.
//
// Grounded on buildstream's CASCache.set_ref/resolve_ref/update_mtime/
// list_refs/remove, and on the teacher's refs.go writeTimeline/
// getRefPath pattern for the on-disk layout.
package refstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/javanhut/ivaldi-cas/internal/caserrors"
	"github.com/javanhut/ivaldi-cas/internal/digest"
)

// Store is the refs/heads directory under a CAS root.
type Store struct {
	root string // refs/heads
	tmp  string
}

// Open returns a Store rooted at refsDir, staging temp writes in tmpDir.
func Open(refsDir, tmpDir string) *Store {
	return &Store{root: refsDir, tmp: tmpDir}
}

// Init creates the refs directory if it does not already exist.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return errors.Wrap(err, "refstore: create refs dir")
	}
	return nil
}

// refPath maps a ref name to its file path. Refs may contain '/' (for
// hierarchical names like "project/main"); each component becomes a
// path segment, mirroring the teacher's getSubdir/getRefPath split.
func (s *Store) refPath(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "..") || strings.HasPrefix(ref, "/") {
		return "", errors.Errorf("refstore: invalid ref name %q", ref)
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}

// SetRef atomically points ref at d, creating or overwriting it.
func (s *Store) SetRef(ref string, d digest.Digest) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "refstore: create ref parent dir for %q", ref)
	}

	raw, err := d.Marshal()
	if err != nil {
		return errors.Wrapf(err, "refstore: encode ref %q", ref)
	}

	tmpFile, err := os.CreateTemp(s.tmp, "ref-")
	if err != nil {
		return errors.Wrap(err, "refstore: create staging file")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		return errors.Wrapf(err, "refstore: write ref %q", ref)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.Wrapf(err, "refstore: flush ref %q", ref)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrapf(err, "refstore: close staging file for %q", ref)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "refstore: rename ref %q into place", ref)
	}
	return nil
}

// ResolveRef reads the digest ref currently points to. When
// updateMtime is true, the ref's mtime is bumped first (via os.utime
// semantics), matching resolve_ref's touch-then-read behavior so a
// lookup itself counts as "recently used" for prune purposes.
func (s *Store) ResolveRef(ref string, updateMtime bool) (digest.Digest, error) {
	path, err := s.refPath(ref)
	if err != nil {
		return digest.Digest{}, err
	}
	if updateMtime {
		if err := s.UpdateMtime(ref); err != nil {
			return digest.Digest{}, err
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return digest.Digest{}, errors.Wrapf(caserrors.ErrRefNotFound, "%q", ref)
		}
		return digest.Digest{}, errors.Wrapf(err, "refstore: read ref %q", ref)
	}
	d, err := digest.Unmarshal(raw)
	if err != nil {
		return digest.Digest{}, errors.Wrapf(err, "refstore: decode ref %q", ref)
	}
	return d, nil
}

// UpdateMtime bumps ref's modification time to now without touching
// its content.
func (s *Store) UpdateMtime(ref string) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}
	now := timeNow()
	if err := os.Chtimes(path, now, now); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(caserrors.ErrRefNotFound, "%q", ref)
		}
		return errors.Wrapf(err, "refstore: update mtime for ref %q", ref)
	}
	return nil
}

// LinkRef makes newRef point at whatever oldRef currently points to.
// This copies the digest by value: a later SetRef on oldRef does not
// retroactively move newRef (see SPEC_FULL open-question decision).
func (s *Store) LinkRef(oldRef, newRef string) error {
	d, err := s.ResolveRef(oldRef, false)
	if err != nil {
		return err
	}
	return s.SetRef(newRef, d)
}

// Contains reports whether ref currently exists.
func (s *Store) Contains(ref string) bool {
	path, err := s.refPath(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// RefInfo describes one ref found by ListRefs.
type RefInfo struct {
	Name  string
	Mtime int64 // unix seconds
	Size  int64 // bytes of the on-disk ref record
}

// ListRefs returns every ref under the store, sorted ascending by
// mtime (least-recently-modified first), the order prune consumes
// them in.
func (s *Store) ListRefs() ([]RefInfo, error) {
	var out []RefInfo
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		out = append(out, RefInfo{Name: filepath.ToSlash(rel), Mtime: info.ModTime().Unix(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "refstore: list refs")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mtime < out[j].Mtime })
	return out, nil
}

// Remove deletes ref. It returns caserrors.ErrRefNotFound if absent.
func (s *Store) Remove(ref string) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(caserrors.ErrRefNotFound, "%q", ref)
		}
		return errors.Wrapf(err, "refstore: remove ref %q", ref)
	}
	return nil
}

// CleanUntil removes every ref whose mtime is strictly older than
// cutoffUnix, matching clean_up_refs_until's cache-expiry sweep.
func (s *Store) CleanUntil(cutoffUnix int64) ([]string, error) {
	refs, err := s.ListRefs()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, r := range refs {
		if r.Mtime < cutoffUnix {
			if err := s.Remove(r.Name); err != nil {
				return removed, err
			}
			removed = append(removed, r.Name)
		}
	}
	return removed, nil
}
