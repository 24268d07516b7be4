package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/auth"
	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/obs"
	"github.com/icodeuridevice/AICarServiceAgent/internal/scheduler"
	"github.com/icodeuridevice/AICarServiceAgent/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API + reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireRefKeys(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			shutdownTracer, err := obs.InitTracer(ctx, "garaged", Version, cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracer(context.Background()) }()

			a, err := openApp(ctx, cfg, migrateUp)
			if err != nil {
				return err
			}
			defer a.close()

			// scheduler
			sender, closeSender, err := a.reminderSender()
			if err != nil {
				return err
			}
			defer closeSender()

			var marker scheduler.Marker = scheduler.NewMemoryMarker()
			if cfg.RedisAddr != "" {
				if rdb := scheduler.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword); rdb != nil {
					defer rdb.Close()
					marker = scheduler.NewRedisMarker(rdb, "")
				} else {
					log.Printf("scheduler: redis at %s unreachable, using in-process marker", cfg.RedisAddr)
				}
			}
			s := &scheduler.Scheduler{
				Bookings:    a.bookings,
				Sender:      sender,
				Marker:      marker,
				Interval:    cfg.ReminderTick,
				SendTimeout: cfg.SendTimeout,
				Policy:      a.reminderPolicy(),
			}
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = s.Run(ctx)
			}()

			// web
			var issuer *auth.Issuer
			if cfg.JWTSecret != "" && cfg.OperatorTokenHash != "" {
				issuer = auth.NewIssuer(cfg.JWTSecret, cfg.OperatorTokenHash, cfg.TokenTTL, nil)
			} else {
				log.Printf("web: JWT_SECRET or OPERATOR_TOKEN_HASH unset, operator API disabled")
			}
			refs := a.refCodec()
			ws := &web.Server{
				Bookings: a.bookings,
				JobCards: a.jobcards,
				Reports:  a.reports,
				Channel:  channel.NewHandler(a.bookings, refs),
				Refs:     refs,
				Auth:     issuer,
			}
			err = web.Start(ctx, cfg.ListenAddr, ws.Routes())
			cancel()
			<-done
			if err != nil {
				return fmt.Errorf("web: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
