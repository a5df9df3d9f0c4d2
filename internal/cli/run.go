package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/config"
	"github.com/roach88/lockstep/internal/journal"
	"github.com/roach88/lockstep/internal/loop"
	"github.com/roach88/lockstep/internal/network"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/service"
	"github.com/roach88/lockstep/internal/status"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	Frames uint64 // stop after this many frames; 0 runs until a signal
	Pretty bool

	// Sessions allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions network.SessionGenerator
}

// RunSummary is printed when the node stops.
type RunSummary struct {
	Session  string `json:"session"`
	Frames   uint64 `json:"frames"`
	Released uint64 `json:"released"`
	LastTick uint64 `json:"last_tick"`
	Sent     int    `json:"sent"`
	Received int    `json:"received"`
	Pauses   int    `json:"pauses"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("Session %s stopped after %d frames: %d ticks released (last %d), %d texts sent, %d received, paused %d times",
		s.Session, s.Frames, s.Released, s.LastTick, s.Sent, s.Received, s.Pauses)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a lockstep node",
		Long: `Run a lockstep node from a configuration file.

The node opens its services, connects to its peers and advances one tick
per frame whenever every peer has delivered its batch. Each released tick
it sends one text on every service and logs the texts its peers send.

Released ticks are recorded in the journal and the status endpoint serves
the coordinator state when the configuration enables them.

Example:
  lockstep run --config ./node.yaml
  lockstep run --config ./node.cue --frames 600 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to node configuration (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().Uint64Var(&opts.Frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "colored log output")

	return cmd
}

func runNode(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Level(), opts.Verbose, opts.Pretty)

	coordOpts := []network.CoordinatorOption{
		network.WithMinHorizon(cfg.MinHorizon),
		network.WithPreferredHorizon(cfg.EffectivePreferredHorizon()),
		network.WithListenHost(cfg.ListenHost),
		network.WithLogger(logger),
		network.WithPeerOptions(
			peer.WithDialTimeout(cfg.DialTimeout.Std()),
			peer.WithRetryBackoff(cfg.RetryBackoff.Std(), cfg.RetryBackoffMax.Std()),
		),
		network.WithServiceOptions(service.WithWriteTimeout(cfg.WriteTimeout.Std())),
	}
	if opts.Sessions != nil {
		coordOpts = append(coordOpts, network.WithSessionGenerator(opts.Sessions))
	}

	if cfg.Journal != "" {
		logger.Info("opening tick journal", "path", cfg.Journal)
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		coordOpts = append(coordOpts, network.WithRecorder(j))
	}

	coord := network.New(coordOpts...)
	defer func() {
		if closeErr := coord.Close(); closeErr != nil {
			logger.Error("error closing coordinator", "error", closeErr)
		}
	}()

	names := make([]string, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		if err := coord.OpenService(s.Name, s.Port); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to open service %q", s.Name), err)
		}
		names = append(names, s.Name)
	}
	for _, p := range cfg.Peers {
		coord.Connect(p.Host, p.Port)
	}

	var srv *status.Server
	if cfg.StatusAddr != "" {
		srv = status.New(logger)
		if _, err := srv.ListenAndStart(cfg.StatusAddr); err != nil {
			return WrapExitError(ExitCommandError, "failed to start status endpoint", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("error stopping status endpoint", "error", err)
			}
		}()
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	app := newEchoApp(coord, names, logger)
	summary := RunSummary{Session: coord.Session()}

	driver := loop.New(coord, app,
		loop.WithTimeStep(cfg.TimeStep.Std()),
		loop.WithLogger(logger),
		loop.WithObserver(func(f loop.Frame) {
			summary.Frames = f.Number
			if f.Released {
				summary.Released++
				summary.LastTick = f.TickID
			}
			if srv != nil {
				srv.Publish(coord.Status())
			}
			if opts.Frames > 0 && f.Number >= opts.Frames {
				cancel()
			}
		}),
	)

	logger.Info("node starting",
		"services", len(names),
		"peers", len(cfg.Peers),
		"min_horizon", cfg.MinHorizon,
		"time_step", cfg.TimeStep.String(),
	)
	if !formatter.JSON() {
		fmt.Fprintf(formatter.Writer, "Node started. Session %s\n", coord.Session())
		fmt.Fprintln(formatter.Writer, "Press Ctrl-C to stop.")
	}

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "node error", err)
	}

	summary.Sent = app.sent
	summary.Received = app.received
	summary.Pauses = app.pauses
	logger.Info("node stopped gracefully", "frames", summary.Frames, "released", summary.Released)
	return formatter.Success(summary)
}

// newLogger builds the node logger on w. Verbose forces debug level.
func newLogger(w io.Writer, level slog.Level, verbose, pretty bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}

	if pretty {
		pl := pterm.DefaultLogger.WithWriter(w).WithLevel(ptermLevel(level))
		return slog.New(pterm.NewSlogHandler(pl))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func ptermLevel(level slog.Level) pterm.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case level <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case level <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}
