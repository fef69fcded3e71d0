package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/rsrcpack/internal/bundle"
	"github.com/conduit-lang/rsrcpack/internal/cli/ui"
)

var catOutputFlag string

// NewCatCommand creates the cat command
func NewCatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <bundlePath> <name>",
		Short: "Write one resource's content to stdout",
		Long: `Look up a resource by its exact name and write its raw bytes to stdout,
or to a file with --output.

Names are paths relative to the packed directory, without a leading slash.`,
		Example: `  rsrcpack cat build/default.rsrc shaders/block.vert
  rsrcpack cat build/default.rsrc textures/grass.png -o /tmp/grass.png`,
		Args: exactArgs("bundle path", "resource name"),
		RunE: runCat,
	}

	cmd.Flags().StringVarP(&catOutputFlag, "output", "o", "", "Write the content to this file instead of stdout")

	return cmd
}

func runCat(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	ctx := cmd.Context()
	bundlePath, name := args[0], args[1]

	r, err := bundle.OpenReader(ctx, bundlePath)
	if err != nil {
		return &bundleError{err: err}
	}
	defer r.Close()

	content, err := r.Get(ctx, name)
	if errors.Is(err, bundle.ErrResourceNotFound) {
		names, listErr := r.Names(ctx)
		if listErr != nil {
			s.logger.Debug("cannot list resources for suggestions", zap.Error(listErr))
		}
		return &resourceNotFoundError{
			name:        name,
			bundlePath:  bundlePath,
			suggestions: ui.FindSimilar(name, names, nil),
			err:         err,
		}
	}
	if err != nil {
		return &bundleError{err: err}
	}

	if catOutputFlag != "" {
		if err := os.WriteFile(catOutputFlag, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", catOutputFlag, err)
		}
		ui.WriteSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Wrote %s to %s (%d bytes)", name, catOutputFlag, len(content)), s.noColor)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(content)
	return err
}
