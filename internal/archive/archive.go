// Package archive packs addon directories into the zip archives Kodi
// installs from, and caches them by content checksum.
package archive

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/kamusis/addonrepo/internal/checksum"
)

// epoch is stamped on every entry so identical files give identical archives.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Write zips files under a top-level folder named id, which is the layout
// Kodi expects when installing from a zip.
func Write(w io.Writer, id string, files []checksum.File) error {
	ordered := slices.Clone(files)
	slices.SortFunc(ordered, func(a, b checksum.File) int { return strings.Compare(a.Path, b.Path) })

	zw := zip.NewWriter(w)
	for _, f := range ordered {
		hdr := &zip.FileHeader{
			Name:     path.Join(id, filepath.ToSlash(f.Path)),
			Method:   zip.Deflate,
			Modified: epoch,
		}
		hdr.SetMode(0o644)
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip %s: %w", f.Path, err)
		}
		if _, err := fw.Write(f.Content); err != nil {
			_ = zw.Close()
			return fmt.Errorf("zip %s: %w", f.Path, err)
		}
	}
	return zw.Close()
}

// Cache stores archives below Dir, one directory per content checksum, so an
// archive is never served for a package that has since changed.
type Cache struct {
	Dir string
}

// Path is where the archive for (id, version, sum) lives in the cache.
func (c Cache) Path(id, version string, sum checksum.Digest) string {
	return filepath.Join(c.Dir, sum.Hex()[:16], id+"-"+version+".zip")
}

// Lookup reports the cached archive path when it exists.
func (c Cache) Lookup(id, version string, sum checksum.Digest) (string, bool) {
	p := c.Path(id, version, sum)
	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		return p, true
	}
	return "", false
}

// Ensure returns the cached archive, building it from files when missing.
// The archive is written to a temporary file and renamed into place.
func (c Cache) Ensure(id, version string, sum checksum.Digest, files []checksum.File) (string, error) {
	if p, ok := c.Lookup(id, version, sum); ok {
		return p, nil
	}
	dst := c.Path(id, version, sum)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("cannot create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".zip-tmp-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	if err := Write(tmp, id, files); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("cannot store archive %s: %w", dst, err)
	}
	return dst, nil
}
