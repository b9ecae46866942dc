package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkops/billsync/internal/config"
	"github.com/parkops/billsync/internal/source"
	"github.com/parkops/billsync/internal/transform"
)

// NewLookupCommand creates the lookup command for ad-hoc row inspection.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <payment-id>",
		Short: "Fetch one payment row from the source store",
		Long: `Fetch a single payment row from the upstream store by its ID and print
it in human-readable form. Useful for investigating delivery failures.

Example:
  billsync lookup 108213`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "payment-id must be an integer", err)
			}
			return lookupRow(cmd, id)
		},
	}

	return cmd
}

func lookupRow(cmd *cobra.Command, id int64) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	reader, err := source.Open(cfg.Source.DSN())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to source store", err)
	}
	defer reader.Close()

	rec, err := reader.FetchByID(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitFailure, "row not found", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:           %d\n", rec.ID)
	fmt.Fprintf(out, "Operation:    %d\n", rec.OperationID)
	fmt.Fprintf(out, "Terminal:     %d\n", rec.TerminalID)
	fmt.Fprintf(out, "Entry time:   %s\n", time.Unix(rec.EntryTime, 0).Format(time.DateTime))
	fmt.Fprintf(out, "Payment time: %s\n", time.Unix(rec.PaymentTime, 0).Format(time.DateTime))
	fmt.Fprintf(out, "Duration:     %s\n", transform.FormatDuration(rec.PaymentTime-rec.EntryTime))
	fmt.Fprintf(out, "Amount:       %s\n", transform.MinorUnits(rec.Amount).StringFixed(2))
	fmt.Fprintf(out, "Discount:     %s\n", transform.MinorUnits(rec.Discount).StringFixed(2))
	fmt.Fprintf(out, "Payment type: %s (%s)\n",
		transform.PaymentKindLabel(rec.PayCode), transform.PaymentKind(rec.PayCode))

	return nil
}
