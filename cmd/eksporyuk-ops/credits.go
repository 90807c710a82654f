package main

import (
	"context"
	"fmt"
	"io"

	creditdomain "github.com/smallbiznis/eksporyuk/internal/credit/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCreditsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect affiliate credit accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "audit <affiliate-id>",
		Short: "Compare a credit balance against its ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd.Context(), v, func(ctx context.Context, d deps) error {
				report, err := d.credits.Audit(ctx, id)
				if err != nil {
					return err
				}
				renderAudit(cmd.OutOrStdout(), report)
				if !report.Consistent() {
					return fmt.Errorf("credit account %s is out of balance", id)
				}
				return nil
			})
		},
	})

	return cmd
}

func renderAudit(w io.Writer, r creditdomain.AuditReport) {
	fmt.Fprintf(w, "%s %s\n", bold("affiliate"), r.AffiliateID)
	fmt.Fprintf(w, "  balance:       %d\n", r.Balance)
	fmt.Fprintf(w, "  total top-up:  %d (ledger %d)\n", r.TotalTopUp, r.LedgerTopUp)
	fmt.Fprintf(w, "  total used:    %d (ledger %d)\n", r.TotalUsed, r.LedgerUse)
	if r.Consistent() {
		fmt.Fprintln(w, green("consistent"))
		return
	}
	fmt.Fprintf(w, "%s expected balance %d\n", red("drift:"), r.LedgerTopUp-r.LedgerUse)
}
