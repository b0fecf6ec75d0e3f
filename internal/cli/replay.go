package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dstatus/internal/emitter"
	"github.com/roach88/dstatus/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	Session string
	List    bool
	Calls   bool
}

// SessionSummary is one row of replay --list.
type SessionSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	ConfigPath string    `json:"config_path,omitempty"`
}

// CallSummary is one row of replay --calls.
type CallSummary struct {
	Seq      int64          `json:"seq"`
	Op       string         `json:"op"`
	Name     string         `json:"name,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-emit a recorded status stream from a journal",
		Long: `Write the i3bar stream recorded in a journal to stdout, exactly as the
service emitted it. The latest session is used unless --session is given.

Examples:
  i3-dstatus replay --journal ~/.cache/i3-dstatus.db
  i3-dstatus replay --journal ~/.cache/i3-dstatus.db --list
  i3-dstatus replay --journal ~/.cache/i3-dstatus.db --calls --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default latest)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded sessions")
	cmd.Flags().BoolVar(&opts.Calls, "calls", false, "list recorded calls instead of the stream")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	j, err := journal.Open(opts.Journal)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer j.Close()

	switch {
	case opts.List:
		return listSessions(ctx, j, formatter)
	case opts.Calls:
		return listCalls(ctx, j, opts.Session, formatter)
	}

	n, err := journal.Replay(ctx, j, opts.Session, emitter.New(cmd.OutOrStdout()))
	if err != nil {
		return journalError(formatter, err)
	}
	formatter.VerboseLog("Replayed %d status lines", n)
	return nil
}

func listSessions(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return journalError(f, err)
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{ID: s.ID, StartedAt: s.StartedAt, ConfigPath: s.ConfigPath})
	}
	if f.Format == "json" {
		return f.Success(out)
	}
	var b strings.Builder
	for _, s := range out {
		fmt.Fprintf(&b, "%s  %s  %s\n", s.ID, s.StartedAt.Format(time.RFC3339), s.ConfigPath)
	}
	return f.Success(strings.TrimSuffix(b.String(), "\n"))
}

func listCalls(ctx context.Context, j *journal.Journal, session string, f *OutputFormatter) error {
	if session == "" {
		latest, err := j.LatestSession(ctx)
		if err != nil {
			return journalError(f, err)
		}
		session = latest
	}
	calls, err := j.Calls(ctx, session)
	if err != nil {
		return journalError(f, err)
	}
	out := make([]CallSummary, 0, len(calls))
	for _, c := range calls {
		out = append(out, CallSummary{Seq: c.Seq, Op: c.Op, Name: c.Name, Instance: c.Instance, Args: c.Args, Error: c.Error})
	}
	if f.Format == "json" {
		return f.Success(out)
	}
	var b strings.Builder
	for _, c := range out {
		fmt.Fprintf(&b, "%4d  %-13s %s", c.Seq, c.Op, c.Name)
		if c.Instance != "" {
			fmt.Fprintf(&b, "[%s]", c.Instance)
		}
		if c.Error != "" {
			fmt.Fprintf(&b, "  error: %s", c.Error)
		}
		b.WriteByte('\n')
	}
	return f.Success(strings.TrimSuffix(b.String(), "\n"))
}

func journalError(f *OutputFormatter, err error) error {
	_ = f.Error(ErrCodeJournal, err.Error(), nil)
	if errors.Is(err, journal.ErrNoSession) {
		return WrapExitError(ExitCommandError, "nothing to replay", err)
	}
	return WrapExitError(ExitFailure, "replay failed", err)
}
