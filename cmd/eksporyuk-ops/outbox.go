package main

import (
	"context"
	"fmt"
	"io"

	"github.com/smallbiznis/eksporyuk/internal/notification/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newOutboxCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Manage the notification outbox",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Deliver every due notification now",
		Long: `Claim and deliver due outbox rows until a pass finds nothing. Rows
waiting on a retry backoff are left for the service worker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), v, func(ctx context.Context, d deps) error {
				stats, err := d.outbox.Drain(ctx)
				renderStats(cmd.OutOrStdout(), stats)
				return err
			})
		},
	})

	return cmd
}

func renderStats(w io.Writer, s worker.Stats) {
	fmt.Fprintf(w, "%s claimed %d, released %d stale\n", bold("outbox"), s.Claimed, s.Released)
	fmt.Fprintf(w, "  sent:    %s\n", green(s.Sent))
	fmt.Fprintf(w, "  retried: %s\n", yellow(s.Retried))
	fmt.Fprintf(w, "  dead:    %s\n", red(s.Dead))
}
