package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/config"
	"github.com/kamusis/addonrepo/internal/index"
	"github.com/kamusis/addonrepo/internal/scan"
	"github.com/kamusis/addonrepo/internal/serve"
	"github.com/kamusis/addonrepo/internal/watch"
)

const lockTimeout = 30 * time.Second

var (
	flagBuildStrict   bool
	flagBuildParallel int
	flagBuildWatch    bool
	flagBuildNoMD5    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [addons_dir] [output_dir]",
	Short: "Scan addon packages and publish the repository index",
	Long: `Scan every immediate subdirectory of addons_dir that contains an addon.xml,
checksum each package and publish addons.xml, addons.checksums.json and
addons.xml.md5 into output_dir.

Addons whose manifest cannot be indexed are reported and left out, unless
--strict is given. Two packages declaring the same id always abort the build.
The output directory is replaced only after the whole index has been built.

Example:
  addonrepo build ./addons ./repo
  addonrepo build --strict --parallel 4`,
	Args: cobra.MaximumNArgs(2),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagBuildStrict, "strict", false, "Fail the build when any addon cannot be indexed")
	buildCmd.Flags().IntVar(&flagBuildParallel, "parallel", 0, "Concurrent extractions (default: number of CPUs)")
	buildCmd.Flags().BoolVar(&flagBuildWatch, "watch", false, "Rebuild whenever a file below addons_dir changes")
	buildCmd.Flags().BoolVar(&flagBuildNoMD5, "no-md5", false, "Do not write the legacy addons.xml.md5")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dirArgs(cfg, args)
	if cmd.Flags().Changed("strict") {
		cfg.FailOnError = flagBuildStrict
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallelism = flagBuildParallel
	}
	if flagBuildNoMD5 {
		cfg.LegacyMD5 = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = buildAndPublish(ctx, cfg, logger)
	if !flagBuildWatch {
		return err
	}
	if err != nil {
		logger.Error("initial build failed, waiting for changes", "err", err)
	}

	w, err := watch.New(watch.Config{
		BaseDir: cfg.AddonsDir,
		Ignore:  watchIgnores(cfg),
		Logger:  logger,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Info("change detected, rebuilding", "files", len(changed))
			return buildAndPublish(ctx, cfg, logger)
		},
	})
	if err != nil {
		return err
	}
	printInfo("", fmt.Sprintf("watching %s (Ctrl+C to stop)", cfg.AddonsDir))
	return w.Run(ctx)
}

// buildAndPublish runs one full build under the output lock and publishes
// the result. Nothing is written when the build fails.
func buildAndPublish(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	unlock, err := index.AcquireLock(cfg.OutputDir, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	printSection("Build")
	opts, err := scanOptions(cfg, logger)
	if err != nil {
		return err
	}
	b, err := index.BuildIndex(ctx, index.BuildOptions{Root: cfg.AddonsDir, Scan: opts})
	if err != nil {
		var failed *scan.BuildFailedError
		if errors.As(err, &failed) {
			printFailures(failed.Failures)
		}
		var dup *scan.DuplicateIDError
		if errors.As(err, &dup) {
			printErr(dup.ID, fmt.Sprintf("declared by both %s and %s", dup.PathA, dup.PathB))
		}
		return err
	}

	for _, d := range b.Result.Descriptors {
		printOK(d.ID, fmt.Sprintf("%s  %s", d.Version, shortSum(d.Checksum.Hex())))
	}
	printFailures(b.Result.Failures)

	if err := index.Publish(cfg.OutputDir, b.Artifacts, cfg.LegacyMD5); err != nil {
		if !errors.Is(err, index.ErrStaleBackup) {
			return err
		}
		printWarn("", err.Error())
		logger.Warn("index published, old backup not removed", "err", err)
	}
	fmt.Printf("\n  %d indexed / %d skipped / %d not addons  →  %s\n",
		len(b.Result.Descriptors), len(b.Result.Failures), len(b.Result.Skipped),
		filepath.Join(cfg.OutputDir, index.IndexFile))
	fmt.Printf("  index checksum: %s\n", b.Artifacts.Checksum.Hex())
	return nil
}

func printFailures(failures []scan.Failure) {
	if len(failures) == 0 {
		return
	}
	printBullet("Skipped addons (fix these packages to include them):")
	for _, f := range failures {
		printErr(string(f.Kind), fmt.Sprintf("%s: %s", f.Path, f.Message()))
	}
}

// scanOptions maps cfg onto scanner options.
func scanOptions(cfg *config.Config, logger *log.Logger) (scan.Options, error) {
	grammar, err := addon.GrammarByName(cfg.DependencyGrammar)
	if err != nil {
		return scan.Options{}, err
	}
	return scan.Options{
		ManifestName: cfg.ManifestName,
		Parallelism:  cfg.Workers(),
		FailOnError:  cfg.FailOnError,
		Excludes:     cfg.Excludes,
		Grammar:      grammar,
		Logger:       logger,
	}, nil
}

// watchIgnores keeps the archive cache from retriggering builds when it
// lives below the addons directory. The output directory never does (see
// config.Validate).
func watchIgnores(cfg *config.Config) []string {
	ignores := []string{serve.DefaultCacheDir, serve.DefaultCacheDir + "/**"}
	if cfg.Serve.CacheDir == "" {
		return ignores
	}
	rel, err := relativeTo(cfg.AddonsDir, cfg.Serve.CacheDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ignores
	}
	rel = filepath.ToSlash(rel)
	return append(ignores, rel, rel+"/**")
}

func relativeTo(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absBase, absTarget)
}
