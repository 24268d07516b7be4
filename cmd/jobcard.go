package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
)

func newJobCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobcard",
		Short: "Manage job cards for bookings in service",
	}
	cmd.AddCommand(newJobCardOpenCmd())
	cmd.AddCommand(newJobCardUpdateCmd())
	cmd.AddCommand(newJobCardCompleteCmd())
	cmd.AddCommand(newJobCardListCmd())
	return cmd
}

func newJobCardOpenCmd() *cobra.Command {
	var technician string
	c := &cobra.Command{
		Use:   "open <booking-id>",
		Short: "Open a job card and start service on a confirmed booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				j, err := a.jobcards.Open(ctx, args[0], technician)
				if err != nil {
					return err
				}
				printJobCard(j)
				return nil
			})
		},
	}
	c.Flags().StringVar(&technician, "technician", "", "assigned technician")
	return c
}

func newJobCardUpdateCmd() *cobra.Command {
	var (
		technician string
		notes      string
		cost       float64
	)
	c := &cobra.Command{
		Use:   "update <jobcard-id>",
		Short: "Update technician, work notes or total cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p jobcards.Patch
			if cmd.Flags().Changed("technician") {
				p.TechnicianName = &technician
			}
			if cmd.Flags().Changed("notes") {
				p.WorkNotes = &notes
			}
			if cmd.Flags().Changed("cost") {
				p.TotalCost = &cost
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				j, err := a.jobcards.Update(ctx, args[0], p)
				if err != nil {
					return err
				}
				printJobCard(j)
				return nil
			})
		},
	}
	c.Flags().StringVar(&technician, "technician", "", "assigned technician")
	c.Flags().StringVar(&notes, "notes", "", "work notes")
	c.Flags().Float64Var(&cost, "cost", 0, "total cost")
	return c
}

func newJobCardCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <jobcard-id>",
		Short: "Finish the work and complete the booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				j, err := a.jobcards.Complete(ctx, args[0])
				if err != nil {
					return err
				}
				printJobCard(j)
				return nil
			})
		},
	}
}

func newJobCardListCmd() *cobra.Command {
	var active bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List job cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				js, err := a.jobcards.List(ctx, active)
				if err != nil {
					return err
				}
				for _, j := range js {
					printJobCard(j)
				}
				return nil
			})
		},
	}
	c.Flags().BoolVar(&active, "active", false, "only cards not yet done")
	return c
}

func printJobCard(j domain.JobCard) {
	completed := "-"
	if j.CompletedAt != nil {
		completed = j.CompletedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(os.Stdout, "id=%s booking=%s status=%s technician=%q cost=%.2f started=%s completed=%s\n",
		j.ID, j.BookingID, j.Status, j.TechnicianName, j.TotalCost, j.StartedAt.Format(time.RFC3339), completed)
}
