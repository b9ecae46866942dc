package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkops/billsync/internal/checkpoint"
	"github.com/parkops/billsync/internal/config"
	"github.com/parkops/billsync/internal/transform"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint state",
		Long: `Print the current checkpoint cursor, the delivered-record count, and
when the cursor last advanced. Reads the local state database only; the
source store and billing endpoint are not contacted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd)
		},
	}

	return cmd
}

func showStatus(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	store, err := checkpoint.Open(cfg.SQLitePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open checkpoint store", err)
	}
	defer store.Close()

	cp, err := store.LoadCheckpoint(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read checkpoint", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cursor:          %d (operation %d)\n", cp.SourceID, cp.OperationID)
	fmt.Fprintf(out, "Advances:        %d\n", cp.AdvanceCount)
	fmt.Fprintf(out, "Delivered:       %d\n", store.DeliveredCount())

	// computed_timestamp is stored as SQLite CURRENT_TIMESTAMP text (UTC).
	if advanced, err := time.Parse(time.DateTime, cp.AdvancedAt); err == nil {
		weekday := int(advanced.Weekday())
		if weekday == 0 {
			weekday = 7 // ISO numbering, Sunday last
		}
		fmt.Fprintf(out, "Last advance:    %s UTC (%s)\n",
			cp.AdvancedAt, transform.FormatWeekday(weekday))
	} else {
		fmt.Fprintf(out, "Last advance:    %s\n", cp.AdvancedAt)
	}

	return nil
}
