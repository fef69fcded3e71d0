package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ErrUsage marks a malformed command line. Nothing is opened or written when
// it is returned.
var ErrUsage = errors.New("usage error")

// exactArgs requires one positional argument per name and reports anything
// else as ErrUsage.
func exactArgs(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == len(names) {
			return nil
		}
		if len(names) == 0 {
			return fmt.Errorf("%w: %s takes no arguments, got %d", ErrUsage, cmd.Name(), len(args))
		}
		return fmt.Errorf("%w: expected %d arguments (%s), got %d",
			ErrUsage, len(names), strings.Join(names, ", "), len(args))
	}
}

var packArgs = exactArgs("input directory", "bundle path")

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

type packError struct{ err error }

func (e *packError) Error() string { return e.err.Error() }
func (e *packError) Unwrap() error { return e.err }

type bundleError struct{ err error }

func (e *bundleError) Error() string { return e.err.Error() }
func (e *bundleError) Unwrap() error { return e.err }

type resourceNotFoundError struct {
	name        string
	bundlePath  string
	suggestions []string
	err         error
}

func (e *resourceNotFoundError) Error() string { return e.err.Error() }
func (e *resourceNotFoundError) Unwrap() error { return e.err }
