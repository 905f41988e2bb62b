package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedManifest indicates manifest text that is not well-formed markup.
	ErrMalformedManifest = errors.New("malformed manifest")
	// ErrMissingRequiredField indicates a required manifest field is absent.
	ErrMissingRequiredField = errors.New("missing required field")
)

// MalformedManifestError is returned when a manifest cannot be parsed.
type MalformedManifestError struct {
	Path string
	Err  error
}

func (e *MalformedManifestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: malformed manifest", e.Path)
	}
	return fmt.Sprintf("%s: malformed manifest: %v", e.Path, e.Err)
}

// Unwrap lets errors.Is match ErrMalformedManifest. The parse cause is
// reachable through Cause.
func (e *MalformedManifestError) Unwrap() error { return ErrMalformedManifest }

// Cause returns the underlying parser error, if any.
func (e *MalformedManifestError) Cause() error { return e.Err }

// MissingFieldError names a required field that a query did not find.
type MissingFieldError struct {
	Field string
	Path  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Path, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingRequiredField }
