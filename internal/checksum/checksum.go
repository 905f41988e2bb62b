// Package checksum computes content digests over a package's file set.
//
// A digest covers relative file paths and contents. Files are folded into the
// digest state in byte-wise path order, so traversal order never changes the
// result.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Algorithm names the digest function recorded next to published checksums.
const Algorithm = "sha256"

// Size is the digest length in bytes.
const Size = sha256.Size

// Digest is a fixed-length content digest.
type Digest [Size]byte

// File is one package file: a slash-separated path relative to the package
// root and its content.
type File struct {
	Path    string
	Content []byte
}

// Hex returns the lowercase hex encoding of d.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return d.Hex() }

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest decodes a hex digest produced by Hex.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(b) != Size {
		return d, fmt.Errorf("invalid digest %q: got %d bytes want %d", s, len(b), Size)
	}
	copy(d[:], b)
	return d, nil
}

// Sum computes the digest of files. The input slice is not modified.
//
// Each file contributes the header "<path> <len>\x00" followed by its
// content, so renaming a file or moving bytes between files changes the
// digest.
func Sum(files []File) (Digest, error) {
	ordered := make([]File, len(files))
	for i, f := range files {
		ordered[i] = File{Path: normalizePath(f.Path), Content: f.Content}
	}
	slices.SortFunc(ordered, func(a, b File) int { return strings.Compare(a.Path, b.Path) })

	h := sha256.New()
	for i, f := range ordered {
		if i > 0 && ordered[i-1].Path == f.Path {
			return Digest{}, fmt.Errorf("%w: %s", ErrDuplicatePath, f.Path)
		}
		fmt.Fprintf(h, "%s %d\x00", f.Path, len(f.Content))
		h.Write(f.Content)
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// SumBytes digests a single named file, used for the index document itself.
func SumBytes(name string, content []byte) Digest {
	d, _ := Sum([]File{{Path: name, Content: content}})
	return d
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}
