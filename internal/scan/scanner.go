// Package scan discovers addon packages below a repository root and turns
// them into an ordered descriptor set.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/logging"
	"github.com/kamusis/addonrepo/internal/manifest"
)

// Options controls a scan.
type Options struct {
	// ManifestName is the manifest file looked up in each candidate
	// directory. Defaults to manifest.FileName.
	ManifestName string

	// Parallelism bounds concurrent extractions. Zero or negative means
	// runtime.NumCPU().
	Parallelism int

	// FailOnError escalates any per-addon failure to a BuildFailedError.
	FailOnError bool

	// Excludes are patterns left out of package checksums.
	Excludes []string

	// Grammar parses dependency constraints. Nil selects the Kodi grammar.
	Grammar addon.Grammar

	Logger *log.Logger
}

// Result is the outcome of a successful scan. Descriptors are sorted by id;
// Failures lists every candidate that was left out, in directory order.
type Result struct {
	Descriptors []addon.Descriptor
	Failures    []Failure
	Skipped     []string // candidate directories without a manifest
}

// Scanner walks a repository root.
type Scanner struct {
	opts      Options
	extractor addon.Extractor
	log       *log.Logger
}

// New returns a Scanner with defaults applied to opts.
func New(opts Options) *Scanner {
	if opts.ManifestName == "" {
		opts.ManifestName = manifest.FileName
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{
		opts:      opts,
		extractor: addon.Extractor{Grammar: opts.Grammar},
		log:       logger,
	}
}

// outcome is written by exactly one worker, at its candidate's slot.
type outcome struct {
	desc    *addon.Descriptor
	failure *Failure
	skipped bool
}

// Scan enumerates the immediate child directories of root and extracts one
// descriptor per addon package. It returns a DuplicateIDError when two
// packages share an id, a BuildFailedError when FailOnError is set and any
// addon failed, or ctx.Err() when cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	candidates, err := s.candidates(root)
	if err != nil {
		return nil, err
	}
	s.log.Debug("scanning repository", "root", root, "candidates", len(candidates), "workers", s.opts.Parallelism)

	results := make([]outcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for i, dir := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scanOne(dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i, o := range results {
		switch {
		case o.skipped:
			res.Skipped = append(res.Skipped, candidates[i])
		case o.failure != nil:
			s.log.Warn("addon skipped", "path", o.failure.Path, "kind", o.failure.Kind, "err", o.failure.Err)
			res.Failures = append(res.Failures, *o.failure)
		case o.desc != nil:
			res.Descriptors = append(res.Descriptors, *o.desc)
		}
	}

	// Stable so the earlier directory is reported first on a collision.
	slices.SortStableFunc(res.Descriptors, func(a, b addon.Descriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	for i := 1; i < len(res.Descriptors); i++ {
		prev, cur := res.Descriptors[i-1], res.Descriptors[i]
		if prev.ID == cur.ID {
			return nil, &DuplicateIDError{ID: cur.ID, PathA: prev.SourcePath, PathB: cur.SourcePath}
		}
	}

	s.log.Info("scan complete",
		"addons", len(res.Descriptors),
		"failed", len(res.Failures),
		"skipped", len(res.Skipped),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if s.opts.FailOnError && len(res.Failures) > 0 {
		return nil, &BuildFailedError{Failures: res.Failures}
	}
	return res, nil
}

// ScanAddon extracts a single package directory.
func (s *Scanner) ScanAddon(dir string) (addon.Descriptor, error) {
	o := s.scanOne(dir)
	switch {
	case o.skipped:
		return addon.Descriptor{}, fmt.Errorf("%s: no %s found", dir, s.opts.ManifestName)
	case o.failure != nil:
		return addon.Descriptor{}, o.failure.Err
	}
	return *o.desc, nil
}

func (s *Scanner) candidates(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read repository root %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		p := filepath.Join(root, e.Name())
		if e.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil || !info.IsDir() {
				continue
			}
		} else if !e.IsDir() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Scanner) scanOne(dir string) outcome {
	fail := func(err error) outcome {
		return outcome{failure: &Failure{Path: dir, Kind: KindOf(err), Err: err}}
	}

	manifestPath := filepath.Join(dir, s.opts.ManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Debug("not an addon directory", "path", dir)
			return outcome{skipped: true}
		}
		return fail(&checksum.UnreadableFileError{Path: manifestPath, Err: err})
	}

	doc, err := manifest.ParseBytes(data, manifestPath)
	if err != nil {
		return fail(err)
	}

	sum, _, err := checksum.SumDir(dir, s.opts.Excludes)
	if err != nil {
		return fail(err)
	}

	desc, err := s.extractor.Extract(doc, sum, dir)
	if err != nil {
		return fail(err)
	}
	s.log.Debug("addon indexed", "id", desc.ID, "version", desc.Version, "checksum", desc.Checksum.Hex()[:12])
	return outcome{desc: &desc}
}
