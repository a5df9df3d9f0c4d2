package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - list sessions when empty
}

// SessionList is the trace output without --session.
type SessionList struct {
	Sessions []journal.Session `json:"sessions"`
}

// TraceResult is the trace output for one session.
type TraceResult struct {
	Session string         `json:"session"`
	Ticks   []journal.Tick `json:"ticks"`
	Stats   TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	Ticks     int    `json:"ticks"`
	Messages  int    `json:"messages"`
	Markers   int    `json:"markers"`
	FirstTick uint64 `json:"first_tick"`
	LastTick  uint64 `json:"last_tick"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a tick journal",
		Long: `Inspect the ticks recorded in a tick journal.

Without --session, lists the recorded sessions. With --session, prints
every tick of that session with the messages each peer contributed to it.
Tick markers are shown with --verbose.

Examples:
  lockstep trace --db ./ticks.db
  lockstep trace --db ./ticks.db --session 0192f0c4-8a1e-7c4b-9f0e-3d2a1b0c9e8f
  lockstep trace --db ./ticks.db --session <id> --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to tick journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to print")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// sqlite creates missing files; a trace must never do that.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Session == "" {
		return traceSessions(ctx, j, formatter)
	}
	return traceSession(ctx, j, opts.Session, formatter)
}

func traceSessions(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}

	if f.JSON() {
		return f.Success(SessionList{Sessions: sessions})
	}

	if len(sessions) == 0 {
		fmt.Fprintln(f.Writer, "No sessions recorded")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			strconv.Itoa(s.Ticks),
			strconv.FormatUint(s.FirstTick, 10),
			strconv.FormatUint(s.LastTick, 10),
		})
	}
	return f.Table([]string{"SESSION", "TICKS", "FIRST", "LAST"}, rows)
}

func traceSession(ctx context.Context, j *journal.Journal, session string, f *OutputFormatter) error {
	ticks, err := j.ReadTicks(ctx, session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ticks", err)
	}

	result := TraceResult{
		Session: session,
		Ticks:   ticks,
		Stats:   summarize(ticks),
	}

	if f.JSON() {
		return f.Success(result)
	}

	if len(ticks) == 0 {
		fmt.Fprintf(f.Writer, "No ticks recorded for session: %s\n", session)
		return nil
	}

	fmt.Fprintf(f.Writer, "Session: %s\n", session)
	fmt.Fprintf(f.Writer, "Ticks:   %d (%d..%d)\n", result.Stats.Ticks, result.Stats.FirstTick, result.Stats.LastTick)
	fmt.Fprintf(f.Writer, "Messages: %d\n", result.Stats.Messages)
	fmt.Fprintln(f.Writer)

	var rows [][]string
	for _, t := range ticks {
		for _, e := range t.Entries {
			if e.IsMarker() && !f.Verbose {
				continue
			}
			rows = append(rows, []string{
				strconv.FormatUint(t.ID, 10),
				e.Peer,
				strconv.Itoa(e.Position),
				e.Name,
				strconv.FormatUint(e.Date, 10),
				e.Fields,
			})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(f.Writer, "  (no messages)")
		return nil
	}
	return f.Table([]string{"TICK", "PEER", "#", "TYPE", "DATE", "FIELDS"}, rows)
}

func summarize(ticks []journal.Tick) TraceStats {
	var s TraceStats
	s.Ticks = len(ticks)
	if len(ticks) > 0 {
		s.FirstTick = ticks[0].ID
		s.LastTick = ticks[len(ticks)-1].ID
	}
	for _, t := range ticks {
		for _, e := range t.Entries {
			if e.IsMarker() {
				s.Markers++
			} else {
				s.Messages++
			}
		}
	}
	return s
}
