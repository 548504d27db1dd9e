package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-deal-alerts/internal/alerting"
	"fare-deal-alerts/internal/config"
	"fare-deal-alerts/internal/fetcher"
	"fare-deal-alerts/internal/scheduler"
	"fare-deal-alerts/internal/service"
	"fare-deal-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() (fetcher.FareSource, error) {
	switch a.Config.Scan.Provider {
	case "amadeus":
		return fetcher.NewAmadeus(fetcher.AmadeusOptions{
			APIKey:     a.Config.Amadeus.APIKey,
			APISecret:  a.Config.Amadeus.APISecret,
			BaseURL:    a.Config.Amadeus.BaseURL,
			Timeout:    a.Config.Amadeus.RequestTimeout,
			MaxResults: a.Config.Amadeus.MaxResults,
		}, a.Logger), nil
	case "travelpayouts":
		return fetcher.NewTravelpayouts(fetcher.TravelpayoutsOptions{
			APIToken:     a.Config.Travelpayouts.APIToken,
			BaseURL:      a.Config.Travelpayouts.BaseURL,
			Timeout:      a.Config.Travelpayouts.RequestTimeout,
			RubToEurRate: decimal.NewFromFloat(a.Config.Travelpayouts.RubToEurRate),
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown scan.provider %q", a.Config.Scan.Provider)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers []alerting.Notifier

	if cfg := a.Config.Alerting.Email; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From, cfg.To, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(
			cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	if len(notifiers) == 0 {
		return nil
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return alerting.NewFanout(notifiers...)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn is not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, a.Config.Scan.MinStayDays, a.Config.Scan.MaxStayDays)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running scanning service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	source, err := a.newSource()
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if a.Config.Alerting.Enabled && notifier == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; deals will be detected but not delivered")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, sched, source, store, store, notifier, a.Logger)

	a.Logger.Info().Msg("starting fare scanner")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scanner terminated with error")
		return err
	}

	a.Logger.Info().Msg("fare scanner stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting a route's price history.
type ExportOptions struct {
	Origin      string
	Destination string
	From        *time.Time
	To          *time.Time
	CSVPath     string
	PNGPath     string
	MaxPoints   int
}

// SeedOptions configure the history import job.
type SeedOptions struct {
	Path   string
	DryRun bool
}
