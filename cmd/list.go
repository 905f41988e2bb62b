package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/index"
)

var listCmd = &cobra.Command{
	Use:   "list [index_dir]",
	Short: "List the addons in a published index",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.OutputDir
	if len(args) > 0 {
		dir = args[0]
	}

	cat, err := index.Load(dir)
	if err != nil {
		return err
	}
	if len(cat.Entries) == 0 {
		printSkip("", "index is empty")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tPROVIDER\tCHECKSUM")
	for _, e := range cat.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Version, e.Provider, shortSum(e.Checksum))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n  %d addons, index checksum %s\n", len(cat.Entries), cat.Record.IndexChecksum)
	return nil
}
