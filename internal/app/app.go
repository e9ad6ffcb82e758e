package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"price-tracker/internal/alerting"
	"price-tracker/internal/config"
	"price-tracker/internal/fetcher"
	"price-tracker/internal/scheduler"
	"price-tracker/internal/server"
	"price-tracker/internal/service"
	"price-tracker/internal/storage"
	"price-tracker/internal/validate"
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

func (a *App) newFetchers() (fetcher.QuoteFetcher, fetcher.QuoteFetcher) {
	crypto := fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:           a.Config.Crypto.BaseURL,
		RequestsPerMinute: a.Config.Crypto.RequestsPerMinute,
		Timeout:           a.Config.Crypto.RequestTimeout,
		UserAgent:         a.Config.Crypto.UserAgent,
	}, a.Logger)

	stocks := fetcher.NewStocks(fetcher.StockOptions{
		BaseURL:           a.Config.Stocks.BaseURL,
		RequestsPerMinute: a.Config.Stocks.RequestsPerMinute,
		Timeout:           a.Config.Stocks.RequestTimeout,
		UserAgent:         a.Config.Stocks.UserAgent,
	}, a.Logger)

	return crypto, stocks
}

// newDispatcher assembles the enabled alert channels. Console is always on.
func (a *App) newDispatcher() *alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.NewConsoleNotifier(a.Logger)}

	if cfg := a.Config.Alerting.Email; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewEmailNotifier(
			cfg.SMTPHost, cfg.SMTPPort, cfg.From, cfg.To, cfg.Password, a.Logger))
	}
	if cfg := a.Config.Alerting.Webhook; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.URL, cfg.RequestTimeout, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(
			cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	return alerting.NewDispatcher(a.Logger, notifiers...)
}

func (a *App) newRules() validate.Rules {
	return validate.NewRules(
		a.Config.Tracker.CryptoSymbols,
		a.Config.Tracker.StockSymbols,
		decimal.NewFromFloat(a.Config.Tracker.MaxChangePct),
	)
}

func (a *App) newEngine() *alerting.Engine {
	return alerting.NewEngine(
		decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
		a.Config.Alerting.Cooldown,
	)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openMirror() *storage.CSVMirror {
	if a.Config.Tracker.CSVLogPath == "" {
		return nil
	}
	mirror, err := storage.NewCSVMirror(a.Config.Tracker.CSVLogPath)
	if err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Config.Tracker.CSVLogPath).Msg("csv mirror disabled")
		return nil
	}
	return mirror
}

// Run executes the long-running tracking service and, when enabled, the
// dashboard server alongside it.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var sampleStore storage.SampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	crypto, stocks := a.newFetchers()
	rules := a.newRules()
	engine := a.newEngine()
	dispatcher := a.newDispatcher()
	mirror := a.openMirror()

	svc := service.New(a.Config, crypto, stocks, rules, sampleStore, alertStore, mirror, engine, dispatcher, a.Logger)

	if store != nil {
		if err := svc.SeedAlertState(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("could not seed alert baselines from store")
		}
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Tracker.Interval,
		StartupDelay: a.Config.Tracker.StartupDelay,
	}, a.Logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sched.Run(ctx, svc.RunCycle)
	})

	switch {
	case a.Config.Dashboard.Enabled && sampleStore == nil:
		a.Logger.Warn().Msg("dashboard requires database.dsn; not starting")
	case a.Config.Dashboard.Enabled:
		srv := server.New(a.Config.Dashboard, sampleStore, engine, rules, a.Logger)
		group.Go(func() error {
			return srv.Run(ctx)
		})
	}

	a.Logger.Info().Msg("starting price tracking service")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracking service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// CleanupOptions configure the one-shot retention sweep.
type CleanupOptions struct {
	Days   int
	DryRun bool
}
