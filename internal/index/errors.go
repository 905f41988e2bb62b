package index

import "errors"

var (
	// ErrUnsorted indicates descriptors not strictly ascending by id.
	ErrUnsorted = errors.New("descriptors not sorted by id")
	// ErrChecksumMismatch indicates a published index that does not match
	// its checksum record.
	ErrChecksumMismatch = errors.New("index checksum mismatch")
	// ErrNotIndexDir indicates an output directory holding files that were
	// not published by a build. It is never replaced.
	ErrNotIndexDir = errors.New("output directory is not a published index")
	// ErrStaleBackup indicates the new index is live but the previous one
	// could not be removed.
	ErrStaleBackup = errors.New("previous index backup left behind")
)
