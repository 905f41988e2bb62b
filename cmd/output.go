package cmd

import (
	"fmt"
	"io"
	"os"
)

// Operator output helpers. Every command prints through these so icons and
// indentation stay consistent:
//
//	✓  indexed / healthy
//	✗  failed (stderr)
//	⚠  needs attention
//	○  skipped / not applicable
//	~  neutral state change

func printSection(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

func printBullet(title string) {
	fmt.Printf("\n● %s\n", title)
}

// printLine writes "  <icon>  [name] msg", omitting the brackets when name
// is empty.
func printLine(w io.Writer, icon, name, msg string) {
	if name != "" {
		msg = "[" + name + "] " + msg
	}
	fmt.Fprintf(w, "  %s  %s\n", icon, msg)
}

func printOK(name, msg string)   { printLine(os.Stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(os.Stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(os.Stdout, "⚠", name, msg) }
func printSkip(name, msg string) { printLine(os.Stdout, "○", name, msg) }
func printInfo(name, msg string) { printLine(os.Stdout, "~", name, msg) }

// shortSum abbreviates a hex checksum for tables.
func shortSum(hex string) string {
	if len(hex) > 12 {
		return hex[:12]
	}
	return hex
}
