package checksum

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Collect reads every file below dir. Entries matching one of the exclude
// patterns are omitted; any other entry that cannot be read fails the whole
// collection with an UnreadableFileError.
//
// Patterns are doublestar globs matched against the slash-separated relative
// path, or plain globs matched against the base name (".git", "*.pyc").
func Collect(dir string, excludes []string) ([]File, error) {
	// The package root itself may be a symlink; entries below it are not
	// followed.
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, &UnreadableFileError{Path: dir, Err: err}
	}
	var out []File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &UnreadableFileError{Path: p, Err: walkErr}
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if Excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		b, err := os.ReadFile(p)
		if err != nil {
			return &UnreadableFileError{Path: p, Err: err}
		}
		out = append(out, File{Path: rel, Content: b})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumDir collects dir and digests the result.
func SumDir(dir string, excludes []string) (Digest, []File, error) {
	files, err := Collect(dir, excludes)
	if err != nil {
		return Digest{}, nil, err
	}
	d, err := Sum(files)
	if err != nil {
		return Digest{}, nil, fmt.Errorf("checksum %s: %w", dir, err)
	}
	return d, files, nil
}

// Excluded reports whether the slash-separated relative path rel matches any
// of patterns.
func Excluded(rel string, patterns []string) bool {
	name := path.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
