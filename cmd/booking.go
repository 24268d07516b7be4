package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/domain"
)

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Manage bookings (non-HTTP)",
	}
	cmd.AddCommand(newBookingCreateCmd(false))
	cmd.AddCommand(newBookingCreateCmd(true))
	cmd.AddCommand(newBookingConfirmCmd())
	cmd.AddCommand(newBookingRescheduleCmd())
	cmd.AddCommand(newBookingCancelCmd())
	cmd.AddCommand(newBookingShowCmd())
	cmd.AddCommand(newBookingListCmd())
	return cmd
}

// windowFlags parses --start (RFC3339) and --duration into a window.
type windowFlags struct {
	start    string
	duration time.Duration
}

func (f *windowFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.start, "start", "", "window start, RFC3339")
	c.Flags().DurationVar(&f.duration, "duration", time.Hour, "window length")
	_ = c.MarkFlagRequired("start")
}

func (f *windowFlags) window() (domain.Window, error) {
	start, err := time.Parse(time.RFC3339, f.start)
	if err != nil {
		return domain.Window{}, fmt.Errorf("invalid --start (want RFC3339): %w", err)
	}
	return domain.NewWindow(start, f.duration), nil
}

func newBookingCreateCmd(hold bool) *cobra.Command {
	var (
		customer string
		service  string
		bays     string
		wf       windowFlags
	)
	use, short := "create", "Create and confirm a booking on the lowest free bay"
	if hold {
		use, short = "request", "Record a booking request awaiting confirmation"
	}
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				in := bookings.BookInput{
					CustomerRef: customer,
					ServiceType: service,
					Window:      w,
					Bays:        splitCSV(bays),
				}
				var b domain.Booking
				if hold {
					b, err = a.bookings.Request(ctx, in)
				} else {
					b, err = a.bookings.Book(ctx, in)
				}
				if err != nil {
					return explainNoCapacity(err)
				}
				printBooking(b)
				return nil
			})
		},
	}
	c.Flags().StringVar(&customer, "customer", "", "customer reference (phone or chat id)")
	c.Flags().StringVar(&service, "service", "", "service type, e.g. \"oil change\"")
	c.Flags().StringVar(&bays, "bays", "", "restrict to these bays (comma-separated)")
	wf.register(c)
	_ = c.MarkFlagRequired("customer")
	return c
}

func newBookingConfirmCmd() *cobra.Command {
	var bays string
	c := &cobra.Command{
		Use:   "confirm <booking-id>",
		Short: "Confirm a requested booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				b, err := a.bookings.Confirm(ctx, args[0], splitCSV(bays)...)
				if err != nil {
					return explainNoCapacity(err)
				}
				printBooking(b)
				return nil
			})
		},
	}
	c.Flags().StringVar(&bays, "bays", "", "restrict to these bays (comma-separated)")
	return c
}

func newBookingRescheduleCmd() *cobra.Command {
	var wf windowFlags
	c := &cobra.Command{
		Use:   "reschedule <booking-id>",
		Short: "Move a booking to a new window; the original is kept if no bay is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wf.window()
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r, err := a.bookings.Reschedule(ctx, args[0], w)
				if err != nil {
					return explainNoCapacity(err)
				}
				printBooking(r.Old)
				printBooking(r.New)
				return nil
			})
		},
	}
	wf.register(c)
	return c
}

func newBookingCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <booking-id>",
		Short: "Cancel a booking and free its bay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				b, err := a.bookings.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				printBooking(b)
				return nil
			})
		},
	}
}

func newBookingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <booking-id>",
		Short: "Show one booking with its reminder state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				b, err := a.bookings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printBooking(b)
				if r := b.Reminder; r != nil {
					fmt.Fprintf(os.Stdout, "  reminder status=%s attempts=%d scheduled=%s last_error=%q\n",
						r.Status, r.Attempts, r.ScheduledAt.Format(time.RFC3339), r.LastError)
				}
				return nil
			})
		},
	}
}

func newBookingListCmd() *cobra.Command {
	var (
		status   string
		customer string
		from, to string
		limit    int
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := domain.BookingFilter{Status: domain.Status(status), CustomerRef: customer, Limit: limit}
			if f.Status != "" && !f.Status.Valid() {
				return fmt.Errorf("invalid --status %q", status)
			}
			var err error
			if f.From, err = parseOptionalTime(from); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			if f.To, err = parseOptionalTime(to); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				bs, err := a.bookings.List(ctx, f)
				if err != nil {
					return err
				}
				for _, b := range bs {
					printBooking(b)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&status, "status", "", "filter by status")
	c.Flags().StringVar(&customer, "customer", "", "filter by customer reference")
	c.Flags().StringVar(&from, "from", "", "window start at or after (RFC3339)")
	c.Flags().StringVar(&to, "to", "", "window start before (RFC3339)")
	c.Flags().IntVar(&limit, "limit", 0, "max rows (0 = all)")
	return c
}

func printBooking(b domain.Booking) {
	fmt.Fprintf(os.Stdout, "id=%s status=%s bay=%s window=%s customer=%q service=%q",
		b.ID, b.Status, b.BayID, b.Window, b.CustomerRef, b.ServiceType)
	if b.RescheduledFrom != "" {
		fmt.Fprintf(os.Stdout, " rescheduled_from=%s", b.RescheduledFrom)
	}
	if b.RescheduledTo != "" {
		fmt.Fprintf(os.Stdout, " rescheduled_to=%s", b.RescheduledTo)
	}
	fmt.Fprintln(os.Stdout)
}

// explainNoCapacity lists the alternatives carried by a capacity rejection.
func explainNoCapacity(err error) error {
	var nc *domain.NoCapacityError
	if !errors.As(err, &nc) || len(nc.Suggestions) == 0 {
		return err
	}
	lines := make([]string, 0, len(nc.Suggestions))
	for _, s := range nc.Suggestions {
		lines = append(lines, fmt.Sprintf("  bay %s at %s", s.BayID, s.Window))
	}
	return fmt.Errorf("%w\nalternatives:\n%s", err, strings.Join(lines, "\n"))
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
