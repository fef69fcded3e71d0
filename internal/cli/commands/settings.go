package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/rsrcpack/internal/cli/config"
	"github.com/conduit-lang/rsrcpack/internal/cli/logging"
)

// settings is what every command needs after flags are parsed.
type settings struct {
	cfg     *config.Config
	logger  *zap.Logger
	noColor bool
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, &configError{err: err}
	}

	noColor := noColorFlag || cfg.UI.NoColor
	if noColor {
		color.NoColor = true
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log, verboseFlag)
	if err != nil {
		return nil, &configError{err: err}
	}

	return &settings{cfg: cfg, logger: logger, noColor: noColor}, nil
}
