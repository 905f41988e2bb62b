package checksum

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadableFile indicates a package file could not be read.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrDuplicatePath indicates the same relative path was supplied twice.
	ErrDuplicatePath = errors.New("duplicate file path")
)

// UnreadableFileError is returned when a file in a package cannot be read.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() []error { return []error{ErrUnreadableFile, e.Err} }
