package addon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVersion indicates a version string that does not parse.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrMalformedDependency indicates an unusable dependency entry.
	ErrMalformedDependency = errors.New("malformed dependency")
)

// InvalidVersionError is returned when an addon's version cannot be parsed.
type InvalidVersionError struct {
	ID  string
	Raw string
}

func (e *InvalidVersionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid version %q", e.Raw)
	}
	return fmt.Sprintf("addon %s: invalid version %q", e.ID, e.Raw)
}

func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// MalformedDependencyError is returned for a dependency entry that lacks an
// id, repeats one, or carries an unparseable constraint.
type MalformedDependencyError struct {
	Addon  string
	Reason string
}

func (e *MalformedDependencyError) Error() string {
	return fmt.Sprintf("addon %s: malformed dependency: %s", e.Addon, e.Reason)
}

func (e *MalformedDependencyError) Unwrap() error { return ErrMalformedDependency }
