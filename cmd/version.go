package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/checksum"
	"github.com/kamusis/addonrepo/internal/index"
)

// Set at link time with -ldflags "-X".
var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show addonrepo version and build information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(_ *cobra.Command, _ []string) error {
	rows := [][2]string{
		{"Version", version},
		{"Commit", orNA(commit)},
		{"Build Date", orNA(buildDate)},
		{"Go Version", runtime.Version()},
		{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		{"Checksum", checksum.Algorithm},
		{"Grammar", addon.KodiGrammar{}.Name()},
		{"Index", index.IndexFile + " + " + index.RecordFile},
	}
	for _, r := range rows {
		fmt.Printf("%-11s %s\n", r[0]+":", r[1])
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
