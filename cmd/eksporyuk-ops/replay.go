package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReplayCommand(v *viper.Viper) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "replay <transaction-id>",
		Short: "Re-run fulfillment for a settled transaction",
		Long: `Re-run every fulfillment task for a SUCCESS transaction. Tasks are
idempotent, so a replay only fills in what an earlier run missed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			return withDeps(cmd.Context(), v, func(ctx context.Context, d deps) error {
				txn, err := d.payments.FindByID(ctx, id)
				if err != nil {
					return err
				}
				plan, err := d.fulfillment.Plan(txn)
				if err != nil {
					return fmt.Errorf("plan transaction %s: %w", id, err)
				}
				renderPlan(out, txn, plan)
				if dryRun {
					fmt.Fprintln(out, yellow("dry run, nothing executed"))
					return nil
				}

				if err := d.payments.Replay(ctx, id); err != nil {
					fmt.Fprintln(out, red("replay finished with failures"))
					return err
				}
				fmt.Fprintln(out, green("replay complete"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the task plan without running it")
	return cmd
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func renderPlan(w io.Writer, txn *paymentdomain.Transaction, plan []string) {
	fmt.Fprintf(w, "%s %s (%s, %s)\n", bold("transaction"), txn.ID, txn.ExternalID, txn.ProductType)
	fulfilled := "never"
	if txn.FulfilledAt != nil {
		fulfilled = txn.FulfilledAt.UTC().Format("2006-01-02 15:04:05Z")
	}
	fmt.Fprintf(w, "  status:    %s\n", txn.Status)
	fmt.Fprintf(w, "  fulfilled: %s\n", gray(fulfilled))
	fmt.Fprintln(w, "  tasks:")
	for i, name := range plan {
		fmt.Fprintf(w, "    %d. %s\n", i+1, name)
	}
}
