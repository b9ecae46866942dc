package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parkops/billsync/internal/bills"
	"github.com/parkops/billsync/internal/checkpoint"
	"github.com/parkops/billsync/internal/config"
	"github.com/parkops/billsync/internal/engine"
	"github.com/parkops/billsync/internal/scheduler"
	"github.com/parkops/billsync/internal/source"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the synchronizer",
		Long: `Start the synchronizer daemon.

Configuration comes from the environment (DB_*, BILLS_*, BATCH_DATA_LIMIT,
PERFORM_TASKS_EVERY_MINUTES) and the terminal/token YAML tables. The local
SQLite checkpoint database is created on first run.

Example:
  billsync run
  billsync run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynchronizer(cmd)
		},
	}

	return cmd
}

func runSynchronizer(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	terminals, err := config.LoadTerminals(cfg.TerminalsFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load terminal table", err)
	}
	tokens, err := config.LoadTokens(cfg.TokensFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load token table", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create state directory", err)
	}

	// Checkpoint state is unrecoverable: any failure here is fatal.
	slog.Info("opening checkpoint store", "path", cfg.SQLitePath)
	store, err := checkpoint.Open(cfg.SQLitePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open checkpoint store", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing checkpoint store", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	for _, t := range terminals {
		if err := store.RegisterTerminal(ctx, t.ID, t.Description, t.Parking); err != nil {
			return WrapExitError(ExitCommandError, "failed to register terminal", err)
		}
	}
	slog.Info("terminal associations registered", "count", len(terminals))

	slog.Info("connecting to source store", "host", cfg.Source.Host, "db", cfg.Source.Name)
	reader, err := source.Open(cfg.Source.DSN())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to source store", err)
	}
	defer reader.Close()

	client := bills.New(cfg.Endpoint, tokens, cfg.Timeout,
		bills.WithRetryPolicy(bills.RetryPolicy{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryDelay,
		}),
	)

	eng := engine.New(store, reader, client, engine.WithBatchLimit(cfg.BatchLimit))
	runner := scheduler.New(eng, cfg.Interval)

	slog.Info("synchronizer starting",
		"interval", cfg.Interval,
		"batch_limit", cfg.BatchLimit,
		"endpoint", cfg.Endpoint,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Synchronizer started. Press Ctrl-C to stop.")

	if err := runner.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	slog.Info("synchronizer stopped gracefully")
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. The cancel
// stops the scheduler from issuing new cycles; the in-flight cycle is
// allowed to finish its current record-level operation.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
