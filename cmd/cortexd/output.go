package main

import (
	"fmt"
	"os"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// colorize wraps text in an ANSI color. Disabled by --no-color or the
// NO_COLOR convention (https://no-color.org).
func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return text
	}
	return color + text + ansiReset
}

func printMarked(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMarked(ansiGreen, "✓", format, args...) }

func printError(format string, args ...any) { printMarked(ansiRed, "✗", format, args...) }

func printWarning(format string, args ...any) { printMarked(ansiYellow, "⚠", format, args...) }

func printStep(format string, args ...any) { printMarked(ansiCyan, "→", format, args...) }

// printStatus prints an indented "Label: value" line for status output.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
