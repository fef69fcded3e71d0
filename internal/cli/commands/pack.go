package commands

import (
	"github.com/spf13/cobra"

	"github.com/conduit-lang/rsrcpack/internal/bundle"
)

// runPack is the root command: pack args[0] into the bundle at args[1].
// stdout carries exactly one line per packed file.
func runPack(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	inputDir, bundlePath := args[0], args[1]
	_, err = bundle.Pack(cmd.Context(), inputDir, bundlePath, bundle.Options{
		Progress:  cmd.OutOrStdout(),
		Logger:    s.logger,
		BatchSize: s.cfg.Pack.BatchSize,
	})
	if err != nil {
		return &packError{err: err}
	}
	return nil
}
