package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/config"
)

// ValidationResult summarizes a valid configuration.
type ValidationResult struct {
	Path             string `json:"path"`
	MinHorizon       int    `json:"min_horizon"`
	PreferredHorizon int    `json:"preferred_horizon"`
	TimeStep         string `json:"time_step"`
	Services         int    `json:"services"`
	Peers            int    `json:"peers"`
	Journal          bool   `json:"journal"`
	Status           bool   `json:"status"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("%s: valid (min_horizon=%d preferred_horizon=%d time_step=%s services=%d peers=%d)",
		r.Path, r.MinHorizon, r.PreferredHorizon, r.TimeStep, r.Services, r.Peers)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a node configuration file",
		Long: `Load and validate a node configuration without starting the node.

YAML files (.yaml, .yml) are decoded over the defaults. CUE files (.cue)
are unified with the built-in schema, which supplies defaults and bounds.

Examples:
  lockstep validate ./node.yaml
  lockstep validate ./node.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("Loading %s", path)

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, config.ErrUnsupportedFormat) {
			_ = formatter.Error(ErrCodeConfigLoad, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		_ = formatter.Error(ErrCodeConfigInvalid, "configuration is invalid", problems(err))
		return WrapExitError(ExitFailure, "invalid config", err)
	}

	return formatter.Success(ValidationResult{
		Path:             path,
		MinHorizon:       cfg.MinHorizon,
		PreferredHorizon: cfg.EffectivePreferredHorizon(),
		TimeStep:         cfg.TimeStep.String(),
		Services:         len(cfg.Services),
		Peers:            len(cfg.Peers),
		Journal:          cfg.Journal != "",
		Status:           cfg.StatusAddr != "",
	})
}

// problems splits a joined validation error into one line per problem.
func problems(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
