package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signalHub/internal/adapters/httpapi"
	"signalHub/internal/adapters/sqlite"
	"signalHub/internal/broadcast"
	"signalHub/internal/decision"
	"signalHub/internal/entitlement"
	"signalHub/internal/metrics"
	"signalHub/internal/news"
	"signalHub/internal/ports"
	"signalHub/internal/scheduler"
)

// Settings tunes the assembled engine.
type Settings struct {
	Scheduler          scheduler.Settings
	AutostartScheduler bool
	QuotaLocation      *time.Location
	SweepInterval      time.Duration
	DispatchWorkers    int
	HTTPHost           string
	HTTPPort           int
}

// Deps are the adapters the engine is assembled around.
type Deps struct {
	Store    *sqlite.Repository
	Market   ports.MarketData
	Venue    ports.ExecutionVenue
	Channel  ports.MessageChannel
	Stream   ports.SignalStream // Optional
	Bindings ports.BindingSource
	Table    *entitlement.Table
	Registry *prometheus.Registry // Nil creates a private registry
	Logger   ports.Logger
	Now      func() time.Time
}

// App is the running signal engine: scheduler, broadcast service, dispatcher and control surface.
type App struct {
	settings Settings
	logger   ports.Logger
	registry *prometheus.Registry
	store    *sqlite.Repository

	Calendar   *news.Calendar
	Service    *broadcast.Service
	Dispatcher *broadcast.Dispatcher
	Scheduler  *scheduler.Scheduler

	closers []func() error
}

// Assemble builds the engine from deps.
func Assemble(settings Settings, deps Deps) (*App, error) {
	if deps.Store == nil || deps.Market == nil || deps.Venue == nil || deps.Channel == nil ||
		deps.Bindings == nil || deps.Table == nil || deps.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for App: %w", ports.ErrConfigurationError)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	recorder := metrics.New(deps.Registry)

	engine, err := decision.New(decision.DefaultConfig(), deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}

	calendar := news.NewCalendar(nil)
	newsCfg := news.DefaultConfig()
	newsCfg.Now = deps.Now
	overlay, err := news.NewOverlay(newsCfg, calendar, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create news overlay: %w", err)
	}

	dispatcher, err := broadcast.NewDispatcher(broadcast.DispatcherConfig{
		Store:         deps.Store,
		Table:         deps.Table,
		Channel:       deps.Channel,
		Logger:        deps.Logger,
		Metrics:       recorder,
		Location:      settings.QuotaLocation,
		SweepInterval: settings.SweepInterval,
		Workers:       settings.DispatchWorkers,
		Now:           deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	service, err := broadcast.NewService(broadcast.ServiceConfig{
		Store:   deps.Store,
		Table:   deps.Table,
		Stream:  deps.Stream,
		Waker:   dispatcher,
		Logger:  deps.Logger,
		Metrics: recorder,
		Now:     deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast service: %w", err)
	}

	strategies := map[string]ports.SignalStrategy{
		engine.Name():  engine,
		overlay.Name(): overlay,
	}
	sched, err := scheduler.New(scheduler.Config{
		Settings:        settings.Scheduler,
		Bindings:        deps.Bindings,
		Market:          deps.Market,
		Venue:           deps.Venue,
		Strategies:      strategies,
		DefaultStrategy: decision.StrategyName,
		News:            overlay,
		Guard:           overlay,
		Publisher:       service,
		Logger:          deps.Logger,
		Metrics:         recorder,
		Now:             deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &App{
		settings:   settings,
		logger:     deps.Logger,
		registry:   deps.Registry,
		store:      deps.Store,
		Calendar:   calendar,
		Service:    service,
		Dispatcher: dispatcher,
		Scheduler:  sched,
	}, nil
}

// AddCloser registers a cleanup run by Close in reverse order.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every registered resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScanOnce runs a single scan cycle.
func (a *App) ScanOnce(ctx context.Context) *scheduler.CycleReport {
	return a.Scheduler.RunCycle(ctx)
}

// ScanAndDeliver runs a single scan cycle, then one dispatch sweep for the deliveries
// already due. Delayed deliveries stay queued for the next running dispatcher.
func (a *App) ScanAndDeliver(ctx context.Context) (*scheduler.CycleReport, int, error) {
	report := a.ScanOnce(ctx)
	sent, err := a.Dispatcher.Sweep(ctx)
	if err != nil {
		return report, sent, fmt.Errorf("failed to dispatch due deliveries: %w", err)
	}
	return report, sent, nil
}

// Handler builds the HTTP control surface bound to ctx.
func (a *App) Handler(ctx context.Context) (*httpapi.Handler, error) {
	return httpapi.NewHandler(httpapi.HandlerConfig{
		BaseContext: ctx,
		Scheduler:   a.Scheduler,
		Signals:     a.store,
		Updater:     a.Service,
		Calendar:    a.Calendar,
		Health:      a.store,
		Logger:      a.logger,
	})
}

// Serve runs the dispatcher and the HTTP control surface until ctx is canceled or
// the process receives SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Info(ctx, "Starting signal engine...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			a.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.Dispatcher.Start(ctx); err != nil {
		return err
	}
	defer a.Dispatcher.Stop()

	handler, err := a.Handler(ctx)
	if err != nil {
		return err
	}
	server := httpapi.NewServer(handler, a.logger,
		httpapi.WithHost(a.settings.HTTPHost),
		httpapi.WithPort(a.settings.HTTPPort),
		httpapi.WithGatherer(a.registry),
	)
	server.Start()

	if a.settings.AutostartScheduler {
		a.Scheduler.Start(ctx)
	}

	<-ctx.Done()
	a.logger.Info(context.Background(), "Shutting down...")

	a.Scheduler.Stop()
	if err := server.Stop(context.Background()); err != nil {
		a.logger.Error(context.Background(), err, "HTTP server shutdown failed")
	}
	return nil
}
