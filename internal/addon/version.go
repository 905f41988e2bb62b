package addon

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a parsed addon version. Kodi writes pre-releases with a tilde
// ("1.2.0~beta1"); both "~" and "-" are accepted.
type Version struct {
	raw       string
	canonical string
}

// ParseVersion parses raw into a Version.
func ParseVersion(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "v") {
		return Version{}, &InvalidVersionError{Raw: raw}
	}
	sv := "v" + strings.Replace(s, "~", "-", 1)
	if !semver.IsValid(sv) {
		return Version{}, &InvalidVersionError{Raw: raw}
	}
	return Version{raw: s, canonical: semver.Canonical(sv)}, nil
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as written in the manifest.
func (v Version) String() string { return v.raw }

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return v.canonical == "" }

// Major, Minor and Patch return the numeric release components. A component
// too large for an int is reported as math.MaxInt.
func (v Version) Major() int { return v.component(0) }
func (v Version) Minor() int { return v.component(1) }
func (v Version) Patch() int { return v.component(2) }

// Prerelease returns the pre-release tag without its separator, or "".
func (v Version) Prerelease() string {
	return strings.TrimPrefix(semver.Prerelease(v.canonical), "-")
}

// Compare returns -1, 0 or +1. Versions equal in precedence but written
// differently (build metadata) are ordered by their raw text.
func (v Version) Compare(o Version) int {
	if c := semver.Compare(v.canonical, o.canonical); c != 0 {
		return c
	}
	return strings.Compare(v.raw, o.raw)
}

// Precedence compares release precedence only, ignoring build metadata and
// spelling ("1.0" and "1.0.0" are equal).
func (v Version) Precedence(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

func (v Version) component(i int) int {
	core := strings.TrimPrefix(v.canonical, "v")
	if j := strings.IndexAny(core, "-+"); j >= 0 {
		core = core[:j]
	}
	parts := strings.Split(core, ".")
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt
	}
	return n
}
