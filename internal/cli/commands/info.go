package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/rsrcpack/internal/bundle"
	"github.com/conduit-lang/rsrcpack/internal/cli/ui"
)

// NewInfoCommand creates the info command
func NewInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <bundlePath>",
		Short: "Show bundle metadata and totals",
		Long:  "Display every metadata entry of a bundle along with its resource count and total size.",
		Args:  exactArgs("bundle path"),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	ctx := cmd.Context()
	r, err := bundle.OpenReader(ctx, args[0])
	if err != nil {
		return &bundleError{err: err}
	}
	defer r.Close()

	meta, err := r.Metadata(ctx)
	if err != nil {
		return &bundleError{err: err}
	}
	entries, err := r.List(ctx)
	if err != nil {
		return &bundleError{err: err}
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}

	out := cmd.OutOrStdout()
	ui.Header(out, "Bundle "+r.Path(), s.noColor)

	kv := ui.NewKeyValueTable(out, s.noColor)
	kv.AddRow("resources", fmt.Sprintf("%d", len(entries)))
	kv.AddRow("bytes", fmt.Sprintf("%d", total))

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv.AddRow(k, meta[k])
	}
	kv.Render()
	return nil
}
