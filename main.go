package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for fatal errors before the logger is set up
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"signalHub/config"
	"signalHub/internal/adapters/binanceclient"
	"signalHub/internal/adapters/kafkabus"
	"signalHub/internal/adapters/logger"
	"signalHub/internal/adapters/rediscache"
	"signalHub/internal/adapters/sqlite"
	"signalHub/internal/adapters/telegram"
	"signalHub/internal/app"
	"signalHub/internal/news"
	"signalHub/internal/ports"
	"signalHub/internal/scheduler"
)

func main() {
	root := &cobra.Command{
		Use:          "signalhub",
		Short:        "Trading signal generation and tiered distribution engine",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), scanCmd(), calendarCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Printf("FATAL: %v", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher and HTTP control surface (scheduler starts on request or AUTOSTART_SCHEDULER)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, appLogger, err := build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					appLogger.Error(context.Background(), err, "Error releasing resources")
				}
			}()
			return a.Serve(cmd.Context())
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle without execution and send the deliveries already due (delayed tiers wait for serve)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, appLogger, err := build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					appLogger.Error(context.Background(), err, "Error releasing resources")
				}
			}()

			report, sent, err := a.ScanAndDeliver(cmd.Context())
			if err != nil {
				appLogger.Error(cmd.Context(), err, "Dispatch after scan failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bindings=%d scanned=%d signals=%d failures=%d delivered=%d duration=%s\n",
				report.Bindings, report.Scanned, len(report.Signals), report.Failures, sent, report.Duration)
			for _, sig := range report.Signals {
				fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s %s entry=%g confidence=%d priority=%s min_tier=%s\n",
					sig.ID, sig.Direction, sig.Symbol, sig.Entry, sig.Confidence, sig.Priority, sig.MinTier)
			}
			return nil
		},
	}
}

func calendarCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print the generated economic calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			events := news.NewCalendar(nil).Upcoming(time.Now().UTC(), days)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME (UTC)\tCCY\tIMPACT\tEVENT")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.ScheduledAt.Format("Mon 2006-01-02 15:04"), ev.Currency, ev.Impact, ev.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", news.DefaultWindowDays, "number of days to list")
	return cmd
}

// build loads configuration and wires every adapter into an App.
func build(ctx context.Context, dryRun bool) (*app.App, ports.Logger, error) {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ref, err := config.LoadReference(cfg.ReferenceConfigPath)
	if err != nil {
		return nil, nil, err
	}
	table, err := ref.Table()
	if err != nil {
		return nil, nil, err
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	var closers []func() error
	fail := func(err error) (*app.App, ports.Logger, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, nil, err
	}

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize database repository: %w", err))
	}
	closers = append(closers, repo.Close)

	// 4. Market data, optionally behind the shared candle cache
	client, err := binanceclient.New(binanceclient.Config{UseTestnet: cfg.IsTestnet, Logger: appLogger})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize Binance client: %w", err))
	}
	var market ports.MarketData = client
	if cfg.RedisAddr != "" {
		cache, err := rediscache.New(client, appLogger,
			rediscache.WithAddr(cfg.RedisAddr),
			rediscache.WithPassword(cfg.RedisPassword),
			rediscache.WithDB(cfg.RedisDB),
			rediscache.WithTTL(cfg.CandleCacheTTL),
		)
		if err != nil {
			appLogger.Warn(ctx, "Candle cache unavailable, using venue directly", map[string]interface{}{"error": err.Error()})
		} else {
			market = cache
			closers = append(closers, cache.Close)
		}
	}

	// 5. Execution venue
	accounts := make([]binanceclient.AccountConfig, 0, len(ref.Accounts))
	for _, a := range ref.Accounts {
		accounts = append(accounts, binanceclient.AccountConfig{ID: a.ID, APIKey: a.APIKey, SecretKey: a.SecretKey})
	}
	venue, err := binanceclient.NewVenue(binanceclient.VenueConfig{
		Accounts:   accounts,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize execution venue: %w", err))
	}

	// 6. Messaging
	var channel ports.MessageChannel = telegram.LogChannel{Logger: appLogger}
	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(telegram.Config{BotToken: cfg.TelegramBotToken, Logger: appLogger})
		if err != nil {
			return fail(err)
		}
		channel = tg
	}

	var stream ports.SignalStream
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := kafkabus.NewStream(
			kafkabus.WithBrokers(cfg.KafkaBrokers),
			kafkabus.WithTopics(cfg.KafkaSignalTopic, cfg.KafkaStatusTopic),
		)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize Kafka stream: %w", err))
		}
		stream = ks
		closers = append(closers, ks.Close)
	}

	// 7. Assemble the engine
	scan := scheduler.Settings{
		Interval:      cfg.ScanInterval,
		CandleCount:   cfg.CandleCount,
		MinConfidence: cfg.MinConfidence,
		AvoidWindow:   cfg.NewsAvoidWindow,
		Cooldown:      cfg.Cooldown,
		DryRun:        cfg.DryRun || dryRun,
	}
	a, err := app.Assemble(app.Settings{
		Scheduler:          scan,
		AutostartScheduler: cfg.AutostartScheduler,
		QuotaLocation:      cfg.QuotaLocation,
		SweepInterval:      cfg.SweepInterval,
		DispatchWorkers:    cfg.DispatchWorkers,
		HTTPHost:           cfg.HTTPHost,
		HTTPPort:           cfg.HTTPPort,
	}, app.Deps{
		Store:    repo,
		Market:   market,
		Venue:    venue,
		Channel:  channel,
		Stream:   stream,
		Bindings: config.StaticBindings(ref.StrategyBindings()),
		Table:    table,
		Registry: prometheus.NewRegistry(),
		Logger:   appLogger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to assemble engine: %w", err))
	}
	for _, c := range closers {
		a.AddCloser(c)
	}
	appLogger.Info(ctx, "Signal engine assembled", map[string]interface{}{
		"bindings": len(ref.Bindings),
		"tiers":    len(table.Tiers()),
		"dryRun":   scan.DryRun,
	})
	return a, appLogger, nil
}
