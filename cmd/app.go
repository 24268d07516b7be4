package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/icodeuridevice/AICarServiceAgent/internal/bookings"
	"github.com/icodeuridevice/AICarServiceAgent/internal/capacity"
	"github.com/icodeuridevice/AICarServiceAgent/internal/channel"
	"github.com/icodeuridevice/AICarServiceAgent/internal/config"
	"github.com/icodeuridevice/AICarServiceAgent/internal/db"
	"github.com/icodeuridevice/AICarServiceAgent/internal/jobcards"
	"github.com/icodeuridevice/AICarServiceAgent/internal/migrate"
	"github.com/icodeuridevice/AICarServiceAgent/internal/mq"
	"github.com/icodeuridevice/AICarServiceAgent/internal/reports"
	"github.com/icodeuridevice/AICarServiceAgent/internal/storage/memory"
	"github.com/icodeuridevice/AICarServiceAgent/internal/storage/postgres"
)

// store is what both storage backends provide.
type store interface {
	bookings.Store
	jobcards.Store
	reports.Store
}

// app holds the services every command works against.
type app struct {
	cfg      config.Config
	store    store
	bookings *bookings.Service
	jobcards *jobcards.Service
	reports  *reports.Service

	closers []func()
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		if v != config.StoreMemory && v != config.StorePostgres {
			return config.Config{}, fmt.Errorf("invalid --store %q", v)
		}
		cfg.Store = v
	}
	return cfg, nil
}

// openApp connects storage, rebuilds the capacity table from persisted
// reservations and wires the services.
func openApp(ctx context.Context, cfg config.Config, migrateUp bool) (*app, error) {
	a := &app{cfg: cfg}

	switch cfg.Store {
	case config.StoreMemory:
		log.Printf("garaged: using in-memory store; state is lost on exit")
		a.store = memory.New()
	default:
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		if err := d.Ping(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if migrateUp {
			if err := migrate.Up(ctx, d); err != nil {
				a.close()
				return nil, err
			}
		}
		a.store = postgres.New(d)
	}

	var events mq.Publisher = mq.Nop{}
	if cfg.RabbitMQURL != "" {
		p, err := mq.NewPublisher(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		events = p
	}

	engine, err := bookings.LoadEngine(ctx, a.store, cfg.Bays,
		capacity.WithSlotStep(cfg.SlotStep),
		capacity.WithHorizon(cfg.SuggestionHorizon),
		capacity.WithSuggestionCount(cfg.SuggestionCount),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.bookings = bookings.NewService(a.store, engine, bookings.WithPublisher(events))
	a.jobcards = jobcards.NewService(a.store, a.bookings)
	a.reports = reports.NewService(a.store)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) refCodec() *channel.RefCodec {
	if len(a.cfg.RefHashKey) == 0 {
		return nil
	}
	return channel.NewRefCodec(a.cfg.RefHashKey, a.cfg.RefBlockKey)
}

func (a *app) reminderPolicy() bookings.ReminderPolicy {
	return bookings.ReminderPolicy{
		Lead:          a.cfg.ReminderLead,
		RetryLimit:    a.cfg.ReminderRetryLimit,
		RetryInterval: a.cfg.ReminderRetryInterval,
	}
}

// reminderSender builds the configured sender. The returned func releases it.
func (a *app) reminderSender() (channel.Sender, func(), error) {
	switch a.cfg.ReminderSender {
	case config.SenderHTTP:
		return channel.NewHTTPSender(a.cfg.GatewayURL, a.cfg.GatewayToken), func() {}, nil
	case config.SenderAMQP:
		s, err := channel.NewAMQPSender(a.cfg.RabbitMQURL, a.cfg.ReminderQueue)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return channel.LogSender{}, func() {}, nil
	}
}

// withApp runs fn against a freshly opened app for one-shot commands.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
