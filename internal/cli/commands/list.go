package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/rsrcpack/internal/bundle"
	"github.com/conduit-lang/rsrcpack/internal/cli/ui"
)

var listNamesFlag bool

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <bundlePath>",
		Short: "List the resources stored in a bundle",
		Long: `List every resource in a bundle with its size in bytes, ordered by name.

The bundle is opened read-only.`,
		Example: `  rsrcpack list build/default.rsrc

  # One name per line, for scripts
  rsrcpack list --names build/default.rsrc`,
		Args: exactArgs("bundle path"),
		RunE: runList,
	}

	cmd.Flags().BoolVar(&listNamesFlag, "names", false, "Print only resource names, one per line")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
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

	entries, err := r.List(ctx)
	if err != nil {
		return &bundleError{err: err}
	}

	out := cmd.OutOrStdout()
	if listNamesFlag {
		for _, e := range entries {
			fmt.Fprintln(out, e.Name)
		}
		return nil
	}

	table := ui.NewTable(out, []string{"NAME", "SIZE"}, &ui.TableOptions{
		Align:   []ui.Alignment{ui.AlignLeft, ui.AlignRight},
		NoColor: s.noColor,
	})
	var total int64
	for _, e := range entries {
		table.AddRow(e.Name, strconv.FormatInt(e.Size, 10))
		total += e.Size
	}
	table.Render()
	fmt.Fprintf(out, "\n%d resources, %d bytes\n", len(entries), total)
	return nil
}
