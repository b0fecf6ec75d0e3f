package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dstatus/internal/config"
)

// ValidationResult describes a checked config file.
type ValidationResult struct {
	Path       string   `json:"path"`
	Sections   []string `json:"sections"`
	Generators []string `json:"generators,omitempty"`
	Order      []string `json:"order,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ok (%d sections)", r.Path, len(r.Sections))
	if len(r.Generators) > 0 {
		fmt.Fprintf(&b, "\n  generators: %s", strings.Join(r.Generators, ", "))
	}
	if len(r.Order) > 0 {
		fmt.Fprintf(&b, "\n  order: %s", strings.Join(r.Order, ", "))
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Check a config file without starting the service",
		Long: `Parse and schema-check a config file. YAML, TOML and JSON (with comments)
are accepted, chosen by extension. Without an argument ~/.i3-dstatus.conf
is checked.

Exit codes:
  0 - Config is valid
  2 - Config is missing or invalid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "resolve config path", err)
		}
		path = p
	}
	formatter.VerboseLog("Validating %s (%s)", path, config.FormatFor(path))

	cfg, err := config.Load(path, true)
	if err != nil {
		code := ErrCodeConfigInvalid
		if errors.Is(err, config.ErrConfigNotFound) {
			code = ErrCodeConfigMissing
		}
		_ = formatter.Error(code, err.Error(), map[string]string{"path": path})
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	return formatter.Success(ValidationResult{
		Path:       path,
		Sections:   cfg.SectionNames(),
		Generators: cfg.Generators(),
		Order:      cfg.Order(),
	})
}
