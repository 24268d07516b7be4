package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/scheduler"
)

func newRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Reminder delivery",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Send every reminder due now, once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sender, closeSender, err := a.reminderSender()
				if err != nil {
					return err
				}
				defer closeSender()

				var marker scheduler.Marker = scheduler.NewMemoryMarker()
				if rdb := scheduler.NewRedisClient(a.cfg.RedisAddr, a.cfg.RedisPassword); rdb != nil {
					defer rdb.Close()
					marker = scheduler.NewRedisMarker(rdb, "")
				}
				s := &scheduler.Scheduler{
					Bookings:    a.bookings,
					Sender:      sender,
					Marker:      marker,
					Interval:    a.cfg.ReminderTick,
					SendTimeout: a.cfg.SendTimeout,
					Policy:      a.reminderPolicy(),
				}
				st, err := s.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "due=%d sent=%d failed=%d exhausted=%d skipped=%d\n",
					st.Due, st.Sent, st.Failed, st.Exhausted, st.Skipped)
				return nil
			})
		},
	})
	return cmd
}
