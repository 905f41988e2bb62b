package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/config"
	"github.com/kamusis/addonrepo/internal/serve"
)

// defaultGitignore is written into a new addons directory so cached
// archives never end up in version control.
const defaultGitignore = serve.DefaultCacheDir + `/
.DS_Store
Thumbs.db
*.pyc
`

var flagInitFormat string

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default config and create the addons directory",
	Long: `Create ` + config.FileName + ` (or addonrepo.toml with --format toml) in dir,
defaulting to the current directory, together with an empty addons directory.
An existing config file is left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&flagInitFormat, "format", "yaml", "Config format: yaml or toml")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	var name string
	switch flagInitFormat {
	case "yaml", "yml":
		name = config.FileName
	case "toml":
		name = "addonrepo.toml"
	default:
		return fmt.Errorf("unknown config format %q (want yaml or toml)", flagInitFormat)
	}

	printSection("Init")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	cfg := config.Default()
	cfgPath := filepath.Join(dir, name)
	if _, err := os.Stat(cfgPath); err == nil {
		printSkip("", cfgPath+" already exists")
	} else {
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		printOK("", "wrote "+cfgPath)
	}

	addonsDir := filepath.Join(dir, cfg.AddonsDir)
	if err := os.MkdirAll(addonsDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", addonsDir, err)
	}
	printOK("", "addons directory "+addonsDir)

	ignorePath := filepath.Join(addonsDir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(defaultGitignore), 0o644); err != nil {
			return fmt.Errorf("cannot write %s: %w", ignorePath, err)
		}
		printOK("", "wrote "+ignorePath)
	}

	fmt.Printf("\n  Put one directory per addon in %s, then run: addonrepo build\n", addonsDir)
	return nil
}
