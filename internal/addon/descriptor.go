// Package addon extracts typed addon descriptors from parsed manifests.
package addon

import (
	"github.com/kamusis/addonrepo/internal/checksum"
)

// Descriptor is the validated record for one addon package. It is created
// once per build and never mutated afterwards.
type Descriptor struct {
	ID       string
	Name     string
	Provider string
	Version  Version

	// Dependencies keep manifest order. Ids need not resolve inside the
	// repository being built.
	Dependencies []Dependency

	// ExtensionPoints is deduplicated and sorted.
	ExtensionPoints []string

	Checksum checksum.Digest

	// SourcePath is the package directory. It is used during the build and
	// is not written to the index.
	SourcePath string
}

// Dependency is one <import> entry of a manifest.
type Dependency struct {
	ID         string
	Constraint Constraint
	Optional   bool
}

// ArchiveName is the package archive file name served for d.
func (d Descriptor) ArchiveName() string {
	return d.ID + "-" + d.Version.String() + ".zip"
}
