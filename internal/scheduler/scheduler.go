package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalHub/internal/metrics"
	"signalHub/internal/ports"
)

// Defaults applied by New when a setting is left zero.
const (
	DefaultInterval      = 30 * time.Second
	DefaultCandleCount   = 100
	DefaultMinConfidence = 40
	DefaultAvoidWindow   = 30 * time.Minute
	DefaultCooldown      = 15 * time.Minute
	DefaultFetchWorkers  = 4
)

// Settings tunes the scan loop.
type Settings struct {
	Interval      time.Duration
	CandleCount   int
	MinConfidence int
	AvoidWindow   time.Duration // Look-ahead for the news avoidance guard
	Cooldown      time.Duration // Minimum gap between signals for one binding and symbol
	FetchWorkers  int
	DryRun        bool // Publish only; never request execution
}

// Config wires the scheduler's collaborators.
type Config struct {
	Settings        Settings
	Bindings        ports.BindingSource
	Market          ports.MarketData
	Venue           ports.ExecutionVenue
	Strategies      map[string]ports.SignalStrategy
	DefaultStrategy string
	News            ports.SignalStrategy // Answers around releases and takes precedence there
	Guard           ports.NewsGuard      // Optional
	Publisher       ports.SignalPublisher
	Logger          ports.Logger
	Metrics         ports.Metrics // Optional
	Now             func() time.Time
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running     bool      `json:"running"`
	Interval    string    `json:"interval"`
	Cycles      int       `json:"cycles"`
	LastCycleAt time.Time `json:"lastCycleAt,omitempty"`
	LastSignals int       `json:"lastSignals"`
}

// Scheduler runs market scan cycles on a fixed interval while started.
type Scheduler struct {
	cfg      Config
	settings Settings
	logger   ports.Logger
	metrics  ports.Metrics
	now      func() time.Time

	mu        sync.Mutex // Protects the state fields below
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	cycles    int
	lastCycle *CycleReport

	cycleMu  sync.Mutex // Held for the duration of a cycle so cycles never overlap
	cooldown map[string]time.Time
}

// New creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Bindings == nil || cfg.Market == nil || cfg.Venue == nil || cfg.Publisher == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Scheduler: %w", ports.ErrConfigurationError)
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required: %w", ports.ErrConfigurationError)
	}
	if _, ok := cfg.Strategies[cfg.DefaultStrategy]; !ok {
		return nil, fmt.Errorf("default strategy %q is not registered: %w", cfg.DefaultStrategy, ports.ErrConfigurationError)
	}

	st := cfg.Settings
	if st.Interval <= 0 {
		st.Interval = DefaultInterval
	}
	if st.CandleCount < DefaultCandleCount {
		st.CandleCount = DefaultCandleCount
	}
	if st.MinConfidence <= 0 {
		st.MinConfidence = DefaultMinConfidence
	}
	if st.AvoidWindow <= 0 {
		st.AvoidWindow = DefaultAvoidWindow
	}
	if st.Cooldown < 0 {
		st.Cooldown = 0
	} else if st.Cooldown == 0 {
		st.Cooldown = DefaultCooldown
	}
	if st.FetchWorkers <= 0 {
		st.FetchWorkers = DefaultFetchWorkers
	}

	s := &Scheduler{
		cfg:      cfg,
		settings: st,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		cooldown: make(map[string]time.Time),
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Start moves the scheduler to running. Starting a running scheduler logs a warning and does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn(ctx, "Scheduler already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	s.logger.Info(ctx, "Scheduler started", map[string]interface{}{"interval": s.settings.Interval.String()})
}

// Stop halts future cycles and waits for a cycle in progress to finish.
// Deliveries already scheduled are unaffected.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info(context.Background(), "Scheduler stopped")
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:  s.running,
		Interval: s.settings.Interval.String(),
		Cycles:   s.cycles,
	}
	if s.lastCycle != nil {
		st.LastCycleAt = s.lastCycle.StartedAt
		st.LastSignals = len(s.lastCycle.Signals)
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()

	for {
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
