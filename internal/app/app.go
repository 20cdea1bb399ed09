package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pump-dump-alerts/internal/alerting"
	"pump-dump-alerts/internal/collector"
	"pump-dump-alerts/internal/config"
	"pump-dump-alerts/internal/detector"
	"pump-dump-alerts/internal/exchange"
	"pump-dump-alerts/internal/scheduler"
	"pump-dump-alerts/internal/storage"
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

func (a *App) engineOptions() (detector.EngineOptions, error) {
	rules, err := detector.BuildRules(a.Config.Detection.PumpWindows, a.Config.Detection.DumpWindows)
	if err != nil {
		return detector.EngineOptions{}, err
	}

	volume := a.Config.Filters.Volume
	spread := a.Config.Filters.Spread

	return detector.EngineOptions{
		Rules: rules,
		Volume: detector.VolumeFilterParams{
			Window:          time.Duration(volume.WindowMin) * time.Minute,
			Lookback:        time.Duration(volume.LookbackMin) * time.Minute,
			MinWindowVolume: decimal.NewFromFloat(volume.MinWindowVolume),
			MinSpikeRatio:   decimal.NewFromFloat(volume.MinSpikeRatio),
		},
		Liquidity: detector.LiquidityParams{
			MaxSpreadPct:   decimal.NewFromFloat(spread.MaxSpreadPct),
			DepthLimit:     spread.DepthLimit,
			MinBidNotional: decimal.NewFromFloat(spread.MinBidNotional),
		},
		OIWindow: a.Config.Filters.OpenInterest.Window,
		Cooldown: a.Config.Detection.AlertCooldown,
		Grace:    a.Config.Detection.GracePeriod,
	}, nil
}

func (a *App) newNotifiers() []alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var notifiers []alerting.Notifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "console":
			notifiers = append(notifiers, alerting.NewConsoleNotifier(a.Logger))
		case "telegram":
			if !a.Config.Alerting.Telegram.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but not enabled; skipping")
				continue
			}
			tg := a.Config.Alerting.Telegram
			notifiers = append(notifiers, alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger))
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel; skipping")
		}
	}
	return notifiers
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
	return store, store.Close, nil
}

func (a *App) collectorOptions() collector.Options {
	return collector.Options{
		Workers:        a.Config.Collector.Workers,
		QueueSize:      a.Config.Collector.QueueSize,
		VolumeBars:     a.Config.Filters.Volume.LookbackMin + a.Config.Filters.Volume.WindowMin,
		DepthLimit:     a.Config.Filters.Spread.DepthLimit,
		BookTTL:        a.Config.Filters.Spread.BookTTL,
		HotWindow:      a.Config.Collector.HotWindow,
		RequestTimeout: a.Config.Collector.RequestTimeout,
	}
}

// Run executes the long-running detection service: mark-price stream in,
// alerts out. It blocks until the context is cancelled or the stream
// fails beyond recovery.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := a.engineOptions()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var recorder alerting.Recorder
	if store != nil {
		recorder = store
	}

	dispatcher := alerting.NewDispatcher(alerting.DispatcherOptions{
		DeliveryTimeout: a.Config.Alerting.DeliveryTimeout,
	}, a.newNotifiers(), recorder, a.Logger)

	client := exchange.NewClient(exchange.Options{
		APIKey:         a.Config.Binance.APIKey,
		APISecret:      a.Config.Binance.APISecret,
		RequestTimeout: a.Config.Binance.RequestTimeout,
	}, a.Logger)

	symbols, err := client.PerpetualSymbols(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("symbols", len(symbols)).Msg("tracking USDT perpetuals")

	universe := exchange.NewSymbolSet(symbols)

	coll := collector.New(client, nil, nil, a.collectorOptions(), a.Logger)
	engine := detector.NewEngine(opts, coll, coll, dispatcher, a.Logger)
	coll.Attach(engine.Volume(), engine.OI())

	stream := exchange.NewMarkPriceStream(universe, engine.HandleBatch, exchange.StreamOptions{
		ReconnectDelay: a.Config.Binance.ReconnectDelay,
	}, a.Logger)

	repoll := scheduler.New(scheduler.Options{
		Name:     "collector_repoll",
		Interval: a.Config.Collector.RepollInterval,
	}, a.Logger)

	refresh := scheduler.New(scheduler.Options{
		Name:     "symbol_refresh",
		Interval: a.Config.Binance.SymbolRefresh,
	}, a.Logger)

	var wg sync.WaitGroup
	background := func(run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("background loop terminated")
			}
		}()
	}

	background(coll.Run)
	background(func(ctx context.Context) error {
		return repoll.Run(ctx, coll.Repoll)
	})
	background(func(ctx context.Context) error {
		return refresh.Run(ctx, func(ctx context.Context, _ time.Time) error {
			refreshed, err := client.PerpetualSymbols(ctx)
			if err != nil {
				return err
			}
			universe.Replace(refreshed)
			a.Logger.Info().Int("symbols", len(refreshed)).Msg("symbol universe refreshed")
			return nil
		})
	})

	a.Logger.Info().Msg("starting detection service")
	err = stream.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("detection service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical alerts.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
