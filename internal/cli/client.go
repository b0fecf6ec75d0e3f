package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dstatus/internal/client"
	"github.com/roach88/dstatus/internal/service"
	"github.com/roach88/dstatus/internal/transport/dbus"
)

const callTimeout = 10 * time.Second

// serviceCaller is the call surface shared by the socket and bus clients.
type serviceCaller interface {
	client.Sender
	GetConfigJSON(ctx context.Context, name string) (string, error)
	Log(ctx context.Context, level int, name, message string) error
}

// dialBus connects to the session bus. Tests replace it.
var dialBus = func() (serviceCaller, func(), error) {
	c, err := dbus.Dial()
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

// caller returns the client selected by --bus, and a func releasing it.
func (o *RootOptions) caller() (serviceCaller, func(), error) {
	if o.Bus {
		return dialBus()
	}
	return client.New(o.Socket), func() {}, nil
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Instance string
	Markup   string
	Set      []string
	Context  map[string]string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <name> <full-text>",
		Short: "Publish a block to the running service",
		Long: `Publish or update one block. Placeholders in the text such as {time} are
replaced from --context values. --set adds any other block field; values
are read as YAML scalars, so numbers and booleans keep their types.

Examples:
  i3-dstatus show clock "{time}" --context time="$(date +%H:%M)"
  i3-dstatus show disk "92%" --instance /home --set color="#ff0000"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Instance, "instance", "", "block instance")
	cmd.Flags().StringVar(&opts.Markup, "markup", "", "markup mode (pango|none)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "extra block field as key=value (repeatable)")
	cmd.Flags().StringToStringVar(&opts.Context, "context", nil, "template values as key=value")

	return cmd
}

func runShow(opts *ShowOptions, name, text string, cmd *cobra.Command) error {
	extra, err := parseFields(opts.Set)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	c, release, err := opts.caller()
	if err != nil {
		return callError(opts.formatter(cmd), err)
	}
	defer release()

	b, err := client.NewBlock(ctx, c, name)
	if err != nil {
		return callError(opts.formatter(cmd), err)
	}
	err = b.Show(ctx, text, client.ShowOptions{
		Instance: opts.Instance,
		Markup:   opts.Markup,
		Vars:     opts.Context,
		Extra:    extra,
	})
	if err != nil {
		return callError(opts.formatter(cmd), err)
	}
	return nil
}

// parseFields turns key=value pairs into block fields.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q is not key=value", pair)
		}
		fields[key] = scalar(raw)
	}
	return fields, nil
}

// scalar decodes a YAML scalar, falling back to the raw string for
// anything that is not one.
func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case nil, map[string]any, []any:
		return raw
	}
	return v
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var instance string

	cmd := &cobra.Command{
		Use:           "clear <name>",
		Short:         "Remove a block from the bar",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			c, release, err := rootOpts.caller()
			if err != nil {
				return callError(rootOpts.formatter(cmd), err)
			}
			defer release()

			b, err := client.NewBlock(ctx, c, args[0])
			if err == nil {
				err = b.Clear(ctx, instance)
			}
			if err != nil {
				return callError(rootOpts.formatter(cmd), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&instance, "instance", "", "clear only this instance")
	return cmd
}

// NewGetConfigCommand creates the get-config command.
func NewGetConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-config <name>",
		Short: "Print the config section for a block as JSON",
		Long: `Print the config section the running service holds for a block. A block
with no section prints {}.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			formatter := rootOpts.formatter(cmd)
			c, release, err := rootOpts.caller()
			if err != nil {
				return callError(formatter, err)
			}
			defer release()

			if rootOpts.Format == "json" {
				section, err := c.GetConfig(ctx, args[0])
				if err != nil {
					return callError(formatter, err)
				}
				return formatter.Success(section)
			}
			raw, err := c.GetConfigJSON(ctx, args[0])
			if err != nil {
				return callError(formatter, err)
			}
			return formatter.Success(raw)
		},
	}
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:           "log <name> <message>",
		Short:         "Write a message to the service log on behalf of a generator",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := logLevel(level)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --level", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			c, release, err := rootOpts.caller()
			if err != nil {
				return callError(rootOpts.formatter(cmd), err)
			}
			defer release()

			if err := c.Log(ctx, n, args[0], args[1]); err != nil {
				return callError(rootOpts.formatter(cmd), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "info", "message level (debug|info|error)")
	return cmd
}

func logLevel(name string) (int, error) {
	switch strings.ToLower(name) {
	case "debug":
		return service.LogDebug, nil
	case "info", "":
		return service.LogInfo, nil
	case "error":
		return service.LogError, nil
	}
	return 0, fmt.Errorf("unknown level %q", name)
}

// callError reports a failed service call. Rejections by the service, over
// either transport, exit 1; an unreachable service exits 2.
func callError(f *OutputFormatter, err error) error {
	var svcErr *client.ServiceError
	if errors.As(err, &svcErr) {
		_ = f.Error(ErrCodeRejected, svcErr.Message, map[string]string{"action": svcErr.Action})
		return WrapExitError(ExitFailure, "service rejected call", err)
	}
	if msg, ok := dbus.Rejection(err); ok {
		_ = f.Error(ErrCodeRejected, msg, nil)
		return WrapExitError(ExitFailure, "service rejected call", err)
	}
	_ = f.Error(ErrCodeUnreachable, err.Error(), nil)
	return WrapExitError(ExitCommandError, "service unreachable", err)
}
