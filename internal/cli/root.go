package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dstatus/internal/supervisor"
	"github.com/roach88/dstatus/internal/transport/socket"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Socket   string
	Bus      bool
	LogLevel string
	LogFile  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the i3-dstatus command. Without a subcommand it
// runs the service; positional arguments name extra generators.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	serve := &ServeOptions{RootOptions: opts}

	cmd := &cobra.Command{
		Use:   "i3-dstatus [generator...]",
		Short: "Block aggregation service for i3bar",
		Long: `i3-dstatus collects status blocks from independent generator programs and
writes them to stdout as an i3bar protocol stream.

Generators publish blocks over the session bus (com.dubstepdish.i3dstatus)
or the Unix socket named by I3DSTATUS_SOCKET. Blocks are merged with
overrides from ~/.i3-dstatus.conf and ordered by general.order.

Exit codes:
  0   - Interrupted or terminated
  1   - Startup failure (see the crash log in the temp directory)
  2   - Invalid configuration or flags
  143 - The bar closed stdin`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serve, args, cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Socket, "socket", defaultSocket(), "path of the service socket (env "+supervisor.SocketEnv+")")
	cmd.PersistentFlags().BoolVar(&opts.Bus, "bus", false, "reach the service over the D-Bus session bus instead of the socket")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also append logs to this file")

	serve.bindFlags(cmd)

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewGetConfigCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// defaultSocket prefers the path the service exported to its generators.
func defaultSocket() string {
	if path := os.Getenv(supervisor.SocketEnv); path != "" {
		return path
	}
	return socket.DefaultPath()
}
