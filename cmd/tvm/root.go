// Command tvm is a polyglot developer-tool version manager: it
// resolves, installs, and composes the environment for a set of tool
// versions across a handful of install strategies (archive download,
// delegated package manager, git-ref checkout, checksum-verified
// download). The CLI surface splits into a read-only env/which path
// and a mutating install path.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	"github.com/kagenomi/tvm/internal/path"
)

// logLevelFlag implements pflag.Value for slog.Level.
type logLevelFlag struct {
	level slog.Level
}

func (f *logLevelFlag) String() string { return strings.ToLower(f.level.String()) }
func (f *logLevelFlag) Type() string   { return "string" }
func (f *logLevelFlag) Set(s string) error {
	switch strings.ToLower(s) {
	case "debug":
		f.level = slog.LevelDebug
	case "info":
		f.level = slog.LevelInfo
	case "warn":
		f.level = slog.LevelWarn
	case "error":
		f.level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
	return nil
}

func (f *logLevelFlag) Level() slog.Level { return f.level }

var globalLogLevel = &logLevelFlag{level: slog.LevelWarn}

var rootCmd = &cobra.Command{
	Use:   "tvm",
	Short: "Polyglot developer-tool version manager",
	Long: `tvm resolves and installs versioned developer tools across
several install strategies and composes a single PATH/environment for
the resolved toolset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: globalLogLevel.Level()})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Var(globalLogLevel, "log-level", "Log level (debug, info, warn, error)")
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(resolveCmd, installCmd, envCmd, whichCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

// printErr renders err through tvmerrors' structured Formatter when it
// carries one of tvm's own error types, the same TTY-gated fallback
// internal/progress uses for bars vs. plain lines. Anything else (flag
// parsing, cobra's own usage errors) falls back to a plain "tvm: <err>"
// line, since Formatter has nothing structured to show for those.
func printErr(err error) {
	var depErr *tvmerrors.DependencyError
	var configErr *tvmerrors.ConfigError
	var valErr *tvmerrors.ValidationError
	var installErr *tvmerrors.InstallError
	var checksumErr *tvmerrors.ChecksumError
	var networkErr *tvmerrors.NetworkError
	var stateErr *tvmerrors.StateError
	var registryErr *tvmerrors.RegistryError
	var baseErr *tvmerrors.Error
	structured := errors.As(err, &depErr) || errors.As(err, &configErr) ||
		errors.As(err, &valErr) || errors.As(err, &installErr) || errors.As(err, &checksumErr) ||
		errors.As(err, &networkErr) || errors.As(err, &stateErr) || errors.As(err, &registryErr) ||
		errors.As(err, &baseErr)
	if !structured {
		fmt.Fprintln(os.Stderr, "tvm:", err)
		return
	}

	fd := os.Stderr.Fd()
	noColor := !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	f := tvmerrors.NewFormatter(os.Stderr, noColor)
	fmt.Fprint(os.Stderr, f.Format(err))
}

// newPaths constructs the default Paths, erroring out loudly rather
// than silently falling back, since every subcommand depends on it.
func newPaths() (*path.Paths, error) {
	p, err := path.New()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	return p, nil
}
