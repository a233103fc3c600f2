// Package caserrors defines the sentinel error kinds raised by the CAS
// packages. Callers distinguish them with errors.Is. The packages wrap
// a sentinel with context via github.com/pkg/errors; where an
// underlying OS error is reported with it (as in extract), it appears
// only in the message text and cannot be unwrapped.
package caserrors

import "errors"

var (
	// ErrStoreUninitialized is raised when objects/ or refs/heads/ is
	// missing at preflight.
	ErrStoreUninitialized = errors.New("cas: store not initialized")

	// ErrRefNotFound is raised by refstore operations on an absent ref.
	ErrRefNotFound = errors.New("cas: ref not found")

	// ErrSubdirectoryNotFound is raised by resolve-subdir when a path
	// component is missing from the tree.
	ErrSubdirectoryNotFound = errors.New("cas: subdirectory not found")

	// ErrUnsupportedFileType is raised by commit when it encounters a
	// block device, character device, or FIFO.
	ErrUnsupportedFileType = errors.New("cas: unsupported file type")

	// ErrExtractRace is raised by extract when the destination rename
	// fails for a reason other than the destination already existing
	// (the ordinary, tolerated race with a concurrent extract of the
	// same tree).
	ErrExtractRace = errors.New("cas: extract destination rename failed")
)
