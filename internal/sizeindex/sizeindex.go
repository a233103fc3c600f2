// Package sizeindex is a non-authoritative bbolt-backed cache of each
// object's (size, mtime) pair, adapted from the teacher's internal/store
// package. The filesystem under objects/ remains the single source of
// truth for what exists; this index is read only by casstore's
// CalculateCacheSize, so a large store does not need a full directory
// walk for every size query. ListObjects always walks the filesystem.
// Entries are not checked against the filesystem when read: casstore
// records objects it adds through its Store and rebuilds the index
// after a prune, and an object added or deleted by any other route
// leaves a stale entry.
package sizeindex

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// bucketSizes maps an object hash to its cached (size, mtime) record.
var bucketSizes = []byte("hash->size_mtime")

// DB wraps a bbolt database holding the size/mtime cache.
type DB struct{ *bbolt.DB }

// Open opens (creating if necessary) the index database at path and
// ensures its bucket exists.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("sizeindex: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketSizes)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sizeindex: create bucket: %w", err)
	}
	return &DB{db}, nil
}

func (db *DB) Close() error { return db.DB.Close() }

// Put records size and mtime (unix seconds) for hash.
func (db *DB) Put(hash string, size, mtimeUnix int64) error {
	var rec [16]byte
	binary.BigEndian.PutUint64(rec[0:8], uint64(size))
	binary.BigEndian.PutUint64(rec[8:16], uint64(mtimeUnix))
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSizes).Put([]byte(hash), rec[:])
	})
}

// Get returns the cached (size, mtime) for hash, or ok=false if absent.
func (db *DB) Get(hash string) (size, mtimeUnix int64, ok bool) {
	_ = db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSizes).Get([]byte(hash))
		if v == nil || len(v) != 16 {
			return nil
		}
		size = int64(binary.BigEndian.Uint64(v[0:8]))
		mtimeUnix = int64(binary.BigEndian.Uint64(v[8:16]))
		ok = true
		return nil
	})
	return
}

// Delete removes the cached entry for hash, if any.
func (db *DB) Delete(hash string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSizes).Delete([]byte(hash))
	})
}

// Total sums every cached size. Callers are responsible for having
// kept the index in sync with the filesystem (via Put/Delete on every
// objectstore mutation); Total does not itself verify the filesystem.
func (db *DB) Total() (int64, error) {
	var total int64
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSizes).ForEach(func(k, v []byte) error {
			if len(v) != 16 {
				return errors.New("sizeindex: corrupt record")
			}
			total += int64(binary.BigEndian.Uint64(v[0:8]))
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("sizeindex: sum totals: %w", err)
	}
	return total, nil
}

// Clear removes every cached entry, for callers (like a post-prune
// reindex) that are about to repopulate the index from scratch and
// need stale entries gone first.
func (db *DB) Clear() error {
	return db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSizes); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSizes)
		return err
	})
}

// Count returns the number of cached entries.
func (db *DB) Count() (int, error) {
	n := 0
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSizes).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("sizeindex: count entries: %w", err)
	}
	return n, nil
}
