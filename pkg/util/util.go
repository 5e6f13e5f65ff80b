package util

import (
	"fmt"
	"io"
	"os"

	"github.com/tebeka/atexit"
	"github.com/xplshn/cmmc/pkg/config"
	"golang.org/x/term"
)

var (
	sourceName = "<input>"
	stderr     io.Writer = os.Stderr
	useColor   = term.IsTerminal(int(os.Stderr.Fd()))
)

// SetSourceName sets the file name shown in diagnostics.
func SetSourceName(name string) { sourceName = name }

// SetOutput redirects diagnostics, disabling colors.
func SetOutput(w io.Writer) { stderr, useColor = w, false }

func paint(code, s string) string {
	if !useColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func location(line int) string {
	if line <= 0 {
		return sourceName
	}
	return fmt.Sprintf("%s:%d", sourceName, line)
}

// Error prints a formatted error message and exits the program
func Error(line int, format string, args ...interface{}) {
	fmt.Fprintf(stderr, "%s: %s ", location(line), paint("31", "error:"))
	fmt.Fprintf(stderr, format, args...)
	fmt.Fprintln(stderr)
	atexit.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, line int, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	fmt.Fprintf(stderr, "%s: %s ", location(line), paint("33", "warning:"))
	fmt.Fprintf(stderr, format, args...)
	fmt.Fprintf(stderr, " [-W%s]\n", cfg.Warnings[wt].Name)
}
