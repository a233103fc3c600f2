// Package gc implements the mark-and-sweep garbage collector of spec
// §4.4: every ref is walked to build the reachable set, then every
// object not in that set is deleted.
//
// Grounded on buildstream's CASCache.prune/_reachable_refs_dir and
// calculate_cache_size.
package gc

import (
	"os"

	"github.com/pkg/errors"

	"github.com/javanhut/ivaldi-cas/internal/digest"
	"github.com/javanhut/ivaldi-cas/internal/objectstore"
	"github.com/javanhut/ivaldi-cas/internal/refstore"
	"github.com/javanhut/ivaldi-cas/internal/tree"
)

// Collector bundles the stores a prune/size pass needs.
type Collector struct {
	Objects *objectstore.Store
	Refs    *refstore.Store
	Tree    *tree.Ops
}

// New returns a Collector over the given stores.
func New(objects *objectstore.Store, refs *refstore.Store, treeOps *tree.Ops) *Collector {
	return &Collector{Objects: objects, Refs: refs, Tree: treeOps}
}

// Prune deletes every object not reachable from any ref and returns
// the number of bytes freed. A missing object ends the reachability
// walk at that node without failing it, so a ref with a dangling
// subdirectory still keeps every object it does reach; a ref that
// cannot be resolved, or whose walk fails with another error, is
// skipped rather than aborting the whole pass, matching buildstream's
// tolerance for a partially-damaged store.
func (c *Collector) Prune() (int64, error) {
	reachable, err := c.reachableFromAllRefs()
	if err != nil {
		return 0, err
	}

	objs, err := c.Objects.ListObjects()
	if err != nil {
		return 0, errors.Wrap(err, "gc: list objects")
	}

	var freed int64
	for _, o := range objs {
		if _, ok := reachable[o.Hash]; ok {
			continue
		}
		d, err := hashToDigest(o.Hash, o.Size)
		if err != nil {
			return freed, err
		}
		n, err := c.Objects.DeleteObject(d)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return freed, err
		}
		freed += n
	}
	return freed, nil
}

// reachableFromAllRefs unions the reachable set of every ref in the
// store, touching each visited object's mtime so a following prune
// ordering (or a future partial sweep) sees them as freshly used.
func (c *Collector) reachableFromAllRefs() (map[string]struct{}, error) {
	refs, err := c.Refs.ListRefs()
	if err != nil {
		return nil, errors.Wrap(err, "gc: list refs")
	}

	reachable := map[string]struct{}{}
	for _, r := range refs {
		d, err := c.Refs.ResolveRef(r.Name, false)
		if err != nil {
			continue // ref vanished mid-walk; not fatal.
		}
		visited, err := c.Tree.ReachableTouch(d)
		if err != nil {
			// Missing objects do not fail the walk; any other walk error
			// skips this ref rather than failing the whole prune.
			continue
		}
		for h := range visited {
			reachable[h] = struct{}{}
		}
	}
	return reachable, nil
}

// CalculateCacheSize sums the size of every object and ref record
// currently stored, matching calculate_cache_size's _get_dir_size over
// the whole casdir (objects/ and refs/heads/, excluding the sibling
// tmpdir).
func (c *Collector) CalculateCacheSize() (int64, error) {
	objs, err := c.Objects.ListObjects()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, o := range objs {
		total += o.Size
	}

	refs, err := c.Refs.ListRefs()
	if err != nil {
		return 0, errors.Wrap(err, "gc: list refs")
	}
	for _, r := range refs {
		total += r.Size
	}
	return total, nil
}

func hashToDigest(hash string, size int64) (digest.Digest, error) {
	if !digest.Valid(hash) {
		return digest.Digest{}, errors.Errorf("gc: invalid hash %q in object listing", hash)
	}
	return digest.Digest{Hash: hash, SizeBytes: size}, nil
}
