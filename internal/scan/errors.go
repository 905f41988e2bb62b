package scan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/manifest"
)

var (
	// ErrDuplicateAddonID indicates two packages declare the same id.
	ErrDuplicateAddonID = errors.New("duplicate addon id")
	// ErrBuildFailed indicates per-addon failures escalated by FailOnError.
	ErrBuildFailed = errors.New("build failed")
)

// DuplicateIDError is always fatal to a build.
type DuplicateIDError struct {
	ID    string
	PathA string
	PathB string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate addon id %q declared by %s and %s", e.ID, e.PathA, e.PathB)
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateAddonID }

// BuildFailedError carries the failures that aborted a strict build.
type BuildFailedError struct {
	Failures []Failure
}

func (e *BuildFailedError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("build failed: %s", e.Failures[0])
	}
	return fmt.Sprintf("build failed: %d addons could not be indexed", len(e.Failures))
}

func (e *BuildFailedError) Unwrap() error { return ErrBuildFailed }

// Kind classifies a per-addon failure.
type Kind string

const (
	KindMalformedManifest   Kind = "malformed_manifest"
	KindMissingField        Kind = "missing_required_field"
	KindMalformedDependency Kind = "malformed_dependency"
	KindInvalidVersion      Kind = "invalid_version"
	KindUnreadableFile      Kind = "unreadable_file"
	KindOther               Kind = "other"
)

// KindOf maps an extraction error onto the failure taxonomy.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, manifest.ErrMalformedManifest):
		return KindMalformedManifest
	case errors.Is(err, manifest.ErrMissingRequiredField):
		return KindMissingField
	case errors.Is(err, addon.ErrMalformedDependency):
		return KindMalformedDependency
	case errors.Is(err, addon.ErrInvalidVersion):
		return KindInvalidVersion
	case errors.Is(err, checksum.ErrUnreadableFile):
		return KindUnreadableFile
	}
	return KindOther
}

// Failure records one addon excluded from the index.
type Failure struct {
	Path string
	Kind Kind
	Err  error
}

func (f Failure) String() string {
	return fmt.Sprintf("%s [%s]: %s", f.Path, f.Kind, f.Message())
}

// Message is the human-readable error text.
func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return strings.TrimSpace(f.Err.Error())
}
