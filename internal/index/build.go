package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kamusis/addonrepo/internal/scan"
)

// BuildOptions controls an index build.
type BuildOptions struct {
	Root string
	Scan scan.Options
}

// Build is one completed build: the scan outcome and its serialized
// artifacts.
type Build struct {
	Result    *scan.Result
	Artifacts *Artifacts
}

// BuildIndex scans opts.Root and renders the surviving descriptors. Nothing is
// written; publishing is the caller's responsibility (see Publish).
func BuildIndex(ctx context.Context, opts BuildOptions) (*Build, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("addons directory is required")
	}
	res, err := scan.New(opts.Scan).Scan(ctx, opts.Root)
	if err != nil {
		return nil, err
	}
	art, err := Render(res.Descriptors)
	if err != nil {
		return nil, err
	}
	return &Build{Result: res, Artifacts: art}, nil
}

// Publish writes artifacts into a staging directory beside dir and swaps it
// into place, so readers observe either the previous index or the complete
// new one. The MD5 companion is written only when legacyMD5 is set.
func Publish(dir string, a *Artifacts, legacyMD5 bool) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create output parent %s: %w", parent, err)
	}
	stage, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".staging-*")
	if err != nil {
		return fmt.Errorf("cannot create staging dir: %w", err)
	}

	files := map[string][]byte{
		IndexFile:  a.Document,
		RecordFile: a.RecordJSON,
	}
	if legacyMD5 {
		files[MD5File] = a.MD5
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(stage, name), data, 0o644); err != nil {
			_ = os.RemoveAll(stage)
			return fmt.Errorf("cannot write %s: %w", name, err)
		}
	}
	if err := os.Chmod(stage, 0o755); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}

	if err := AtomicSwap(stage, dir); err != nil {
		if errors.Is(err, ErrStaleBackup) {
			return err
		}
		_ = os.RemoveAll(stage)
		return fmt.Errorf("cannot publish %s: %w", dir, err)
	}
	return nil
}

// cleanup removes a swapped-out backup. Replaced in tests.
var cleanup = cleanupBackup

// AtomicSwap replaces destDir with srcDir by renaming. An existing destDir
// (and a leftover <destDir>.bak) must be empty or hold only published index
// files, otherwise nothing is touched and ErrNotIndexDir is returned.
//
// Once the rename succeeds the new index is live; a backup that cannot be
// removed afterwards is reported as ErrStaleBackup.
func AtomicSwap(srcDir, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	backup := destDir + ".bak"
	for _, dir := range []string{destDir, backup} {
		if err := checkIndexDir(dir); err != nil {
			return err
		}
	}

	_ = cleanup(backup)
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		// rollback best-effort
		if _, stErr := os.Stat(backup); stErr == nil {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	if err := cleanup(backup); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStaleBackup, backup, err)
	}
	return nil
}

// checkIndexDir accepts a missing directory, an empty one, or one holding
// nothing but published artifacts.
func checkIndexDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot inspect %s: %w", dir, err)
	}
	for _, e := range entries {
		switch e.Name() {
		case IndexFile, RecordFile, MD5File:
			if e.Type().IsRegular() {
				continue
			}
		}
		return fmt.Errorf("%w: %s contains %s", ErrNotIndexDir, dir, e.Name())
	}
	return nil
}
