package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newBayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bay",
		Short: "Inspect and toggle service bays",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List bays and their active reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				reservations, err := a.store.ListReservations(ctx)
				if err != nil {
					return err
				}
				held := map[string]int{}
				for _, r := range reservations {
					held[r.BayID]++
				}
				bays, err := a.bookings.Bays(ctx)
				if err != nil {
					return err
				}
				for _, b := range bays {
					fmt.Fprintf(os.Stdout, "bay=%s active=%t reservations=%d\n", b.ID, b.Active, held[b.ID])
				}
				return nil
			})
		},
	})
	cmd.AddCommand(newBaySetCmd("enable", true))
	cmd.AddCommand(newBaySetCmd("disable", false))
	return cmd
}

func newBaySetCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bay-id>",
		Short: use + " a bay for new bookings; existing reservations are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.bookings.SetBayActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "bay=%s active=%t\n", args[0], active)
				return nil
			})
		},
	}
}
