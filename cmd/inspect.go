package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/scan"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <addon_dir>",
	Short: "Show the descriptor extracted from one addon package",
	Long: `Parse the manifest in addon_dir, checksum the package and print what
would be written to the index for it. Nothing is written.

Example:
  addonrepo inspect ./addons/plugin.video.example`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	opts, err := scanOptions(cfg, logger)
	if err != nil {
		return err
	}

	d, err := scan.New(opts).ScanAddon(args[0])
	if err != nil {
		printErr(string(scan.KindOf(err)), err.Error())
		return fmt.Errorf("%s cannot be indexed", args[0])
	}

	fmt.Printf("\n%s  %s\n", d.ID, d.Version)
	fmt.Println(strings.Repeat("─", 40))
	if d.Name != "" {
		fmt.Printf("Name:      %s\n", d.Name)
	}
	if d.Provider != "" {
		fmt.Printf("Provider:  %s\n", d.Provider)
	}
	fmt.Printf("Path:      %s\n", d.SourcePath)
	fmt.Printf("Checksum:  %s\n", d.Checksum.Hex())
	fmt.Printf("Archive:   %s\n", d.ArchiveName())

	if len(d.ExtensionPoints) > 0 {
		fmt.Println("\nExtension points:")
		for _, p := range d.ExtensionPoints {
			fmt.Printf("  • %s\n", p)
		}
	}
	if len(d.Dependencies) > 0 {
		fmt.Println("\nRequires:")
		for _, dep := range d.Dependencies {
			line := dep.ID
			if dep.Constraint.Raw != "" {
				line += " " + dep.Constraint.Raw
			}
			if dep.Optional {
				line += "  (optional)"
			}
			fmt.Printf("  • %s\n", line)
		}
	}
	fmt.Println()
	return nil
}
