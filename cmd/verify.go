package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kamusis/addonrepo/internal/addon"
	"github.com/kamusis/addonrepo/internal/index"
	"github.com/kamusis/addonrepo/internal/scan"
)

var flagVerifyOffline bool

var verifyCmd = &cobra.Command{
	Use:   "verify [addons_dir] [index_dir]",
	Short: "Check a published index against its record and the package directories",
	Long: `Verify that addons.xml still matches addons.checksums.json, that every
indexed addon's package directory hashes to its recorded checksum, and that
dependencies between addons in the repository are satisfiable.

Use --offline to check only the published files.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&flagVerifyOffline, "offline", false, "Skip rescanning the addons directory")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dirArgs(cfg, args)
	if err := cfg.Validate(); err != nil {
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

	problems := 0

	printSection("Index")
	cat, err := index.Load(cfg.OutputDir)
	if err != nil {
		printErr("", err.Error())
		return fmt.Errorf("index in %s failed verification", cfg.OutputDir)
	}
	printOK("", fmt.Sprintf("%d addons, checksum %s", len(cat.Entries), cat.Record.IndexChecksum))

	if !flagVerifyOffline {
		printSection("Packages")
		opts.FailOnError = false
		res, err := scan.New(opts).Scan(cmd.Context(), cfg.AddonsDir)
		if err != nil {
			return err
		}
		problems += comparePackages(cat, res)
	}

	printSection("Dependencies")
	problems += checkDependencies(cat, opts.Grammar)

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Println("\n  All checks passed.")
	return nil
}

// comparePackages reports indexed addons whose package directory changed or
// disappeared, and packages missing from the index.
func comparePackages(cat *index.Catalog, res *scan.Result) int {
	problems := 0
	scanned := make(map[string]addon.Descriptor, len(res.Descriptors))
	for _, d := range res.Descriptors {
		scanned[d.ID] = d
	}
	for _, e := range cat.Entries {
		d, ok := scanned[e.ID]
		switch {
		case !ok:
			printErr(e.ID, "no package directory")
			problems++
		case d.Version.String() != e.Version:
			printErr(e.ID, fmt.Sprintf("version is %s, index says %s", d.Version, e.Version))
			problems++
		case d.Checksum.Hex() != e.Checksum:
			printErr(e.ID, fmt.Sprintf("contents changed (%s, index says %s)", shortSum(d.Checksum.Hex()), shortSum(e.Checksum)))
			problems++
		default:
			printOK(e.ID, "matches index")
		}
		delete(scanned, e.ID)
	}
	for _, d := range res.Descriptors {
		if _, ok := scanned[d.ID]; ok {
			printWarn(d.ID, "not in index (run: addonrepo build)")
		}
	}
	for _, f := range res.Failures {
		printWarn(string(f.Kind), fmt.Sprintf("%s: %s", f.Path, f.Message()))
	}
	return problems
}

// checkDependencies evaluates constraints on addons provided by the same
// repository. Dependencies on addons outside it are listed, not checked.
func checkDependencies(cat *index.Catalog, grammar addon.Grammar) int {
	problems := 0
	external := map[string]bool{}
	for _, e := range cat.Entries {
		for _, dep := range e.Dependencies {
			target, ok := cat.Lookup(dep.ID)
			if !ok {
				external[dep.ID] = true
				continue
			}
			c, err := grammar.Parse(dep.Constraint)
			if err != nil {
				printErr(e.ID, err.Error())
				problems++
				continue
			}
			v, err := addon.ParseVersion(target.Version)
			if err != nil {
				printErr(target.ID, err.Error())
				problems++
				continue
			}
			switch {
			case c.Allows(v):
				printOK(e.ID, fmt.Sprintf("%s %s satisfied by %s", dep.ID, dep.Constraint, target.Version))
			case dep.Optional:
				printWarn(e.ID, fmt.Sprintf("optional %s %s not satisfied by %s", dep.ID, dep.Constraint, target.Version))
			default:
				printErr(e.ID, fmt.Sprintf("%s %s not satisfied by %s", dep.ID, dep.Constraint, target.Version))
				problems++
			}
		}
	}
	for _, id := range slices.Sorted(maps.Keys(external)) {
		printSkip(id, "provided outside this repository")
	}
	return problems
}
