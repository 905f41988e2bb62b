package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/serve"
)

var (
	flagServeAddr     string
	flagServeCacheDir string
	flagServeBuild    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [addons_dir] [index_dir]",
	Short: "Serve a published index and zipped addon packages over HTTP",
	Long: `Serve addons.xml, its checksum record and one zip archive per indexed addon.

Archives are built on first request into the cache directory and are only
served while the package directory still matches its indexed checksum.
Send SIGHUP to reload the index without restarting.

Example:
  addonrepo serve ./addons ./repo
  addonrepo serve --build --addr 0.0.0.0:9001`,
	Args: cobra.MaximumNArgs(2),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (default "+serve.DefaultAddr+")")
	serveCmd.Flags().StringVar(&flagServeCacheDir, "cache-dir", "", "Archive cache directory (default <addons_dir>/"+serve.DefaultCacheDir+")")
	serveCmd.Flags().BoolVar(&flagServeBuild, "build", false, "Build and publish the index before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dirArgs(cfg, args)
	if flagServeAddr != "" {
		cfg.Serve.Addr = flagServeAddr
	}
	if flagServeCacheDir != "" {
		cfg.Serve.CacheDir = flagServeCacheDir
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

	if flagServeBuild {
		if err := buildAndPublish(ctx, cfg, logger); err != nil {
			return err
		}
	}

	opts, err := scanOptions(cfg, logger)
	if err != nil {
		return err
	}
	srv, err := serve.New(ctx, serve.Options{
		AddonsDir: cfg.AddonsDir,
		IndexDir:  cfg.OutputDir,
		CacheDir:  cfg.Serve.CacheDir,
		Addr:      cfg.Serve.Addr,
		Scan:      opts,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("cannot load index from %s: %w", cfg.OutputDir, err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := srv.Reload(ctx); err != nil {
					logger.Error("reload failed, keeping previous index", "err", err)
				}
			}
		}
	}()

	return srv.ListenAndServe(ctx)
}
