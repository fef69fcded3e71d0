package commands

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/rsrcpack/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// Global flags
var (
	verboseFlag bool
	noColorFlag bool
	configFlag  string
)

// NewRootCommand creates the root command. Run with two positional arguments
// it packs a directory; the subcommands inspect and maintain bundles.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rsrcpack <inputDirectory> <bundlePath>",
		Short: "Pack a directory tree into a resource bundle",
		Long: color.CyanString(`rsrcpack - resource bundle packer

Walks an input directory recursively and stores every file in a single SQLite
resource bundle, keyed by its path relative to the input directory. Running it
again against the same bundle updates changed files in place; records of files
that were removed are kept.

Each packed file is printed to stdout as it is stored. Logs go to stderr.`),
		Example: `  # Pack the game's resources
  rsrcpack resources/ build/default.rsrc

  # Inspect the result
  rsrcpack list build/default.rsrc
  rsrcpack cat build/default.rsrc shaders/block.vert`,
		Args:          packArgs,
		RunE:          runPack,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./rsrcpack.yml)")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewCatCommand())
	rootCmd.AddCommand(NewInfoCommand())
	rootCmd.AddCommand(NewWatchCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the rsrcpack version, Git commit, build date, and Go version",
		Args:  exactArgs(),
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "rsrcpack version: ")
			fmt.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command and renders any failure on stderr.
func Execute() error {
	rootCmd := NewRootCommand()
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		renderError(rootCmd.ErrOrStderr(), cmd, err)
		return err
	}
	return nil
}

func renderError(w io.Writer, cmd *cobra.Command, err error) {
	noColor := noColorFlag || color.NoColor

	var (
		cfgErr      *configError
		notFoundErr *resourceNotFoundError
		packErr     *packError
		bundleErr   *bundleError
	)
	switch {
	case errors.Is(err, ErrUsage):
		usage := "rsrcpack <inputDirectory> <bundlePath>"
		if cmd != nil {
			usage = cmd.UseLine()
		}
		fmt.Fprint(w, ui.UsageError(err.Error(), usage, noColor))
	case errors.As(err, &cfgErr):
		fmt.Fprint(w, ui.ConfigError(cfgErr.err.Error(), noColor))
	case errors.As(err, &notFoundErr):
		fmt.Fprint(w, ui.ResourceNotFoundError(notFoundErr.name, notFoundErr.bundlePath, notFoundErr.suggestions, noColor))
	case errors.As(err, &packErr):
		fmt.Fprint(w, ui.PackError(packErr.err.Error(), noColor))
	case errors.As(err, &bundleErr):
		fmt.Fprint(w, ui.BundleError(bundleErr.err.Error(), noColor))
	default:
		// cobra's own errors, such as unknown flags
		ui.WriteError(w, ui.ErrorOptions{Level: ui.ErrorLevelError, Problem: err.Error(), NoColor: noColor})
	}
}
