package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockVenue struct{ mock.Mock }

func (m *mockVenue) IsConnected(ctx context.Context, accountID string) bool {
	return m.Called(ctx, accountID).Bool(0)
}

func (m *mockVenue) OpenPositionCount(ctx context.Context, accountID string) (int, error) {
	args := m.Called(ctx, accountID)
	return args.Int(0), args.Error(1)
}

func (m *mockVenue) OpenPosition(ctx context.Context, accountID string, c *domain.SignalCandidate) (*domain.Position, error) {
	args := m.Called(ctx, accountID, c)
	pos, _ := args.Get(0).(*domain.Position)
	return pos, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, c *domain.SignalCandidate, bindingID int64) (*domain.Signal, error) {
	args := m.Called(ctx, c, bindingID)
	sig, _ := args.Get(0).(*domain.Signal)
	return sig, args.Error(1)
}

type stubMarket struct {
	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
}

func (m *stubMarket) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[symbol] = count
	if err := m.failures[symbol]; err != nil {
		return nil, err
	}
	return make([]domain.Candle, count), nil
}

type stubStrategy struct {
	name       string
	confidence map[string]int // Missing symbols yield no candidate
	source     domain.Source
}

func (s *stubStrategy) Name() string            { return s.name }
func (s *stubStrategy) RequiredDataPoints() int { return 20 }
func (s *stubStrategy) Evaluate(ctx context.Context, symbol, timeframe string, candles []domain.Candle, level domain.RiskLevel) *domain.SignalCandidate {
	conf, ok := s.confidence[symbol]
	if !ok {
		return nil
	}
	source := s.source
	if source == "" {
		source = domain.SourceScheduler
	}
	return &domain.SignalCandidate{
		Symbol:      symbol,
		Direction:   domain.Buy,
		Entry:       1.1,
		StopLoss:    1.09,
		TakeProfits: []float64{1.11},
		Confidence:  conf,
		Timeframe:   timeframe,
		Source:      source,
	}
}

type stubGuard struct{ avoid map[string]bool }

func (g *stubGuard) ShouldAvoid(symbol string, now time.Time, window time.Duration) (bool, *domain.EconomicEvent) {
	if g.avoid[symbol] {
		return true, &domain.EconomicEvent{Name: "Non-Farm Payrolls", Currency: "USD", Impact: domain.ImpactHigh, ScheduledAt: now.Add(10 * time.Minute)}
	}
	return false, nil
}

type staticBindings []domain.StrategyBinding

func (b staticBindings) EnabledBindings(ctx context.Context) ([]domain.StrategyBinding, error) {
	return b, nil
}

type harness struct {
	scheduler *Scheduler
	venue     *mockVenue
	publisher *mockPublisher
	market    *stubMarket
	logger    *mockLogger
	now       time.Time
}

func newHarness(t *testing.T, bindings staticBindings, strategy, news *stubStrategy, guard ports.NewsGuard, settings Settings) *harness {
	t.Helper()
	h := &harness{
		venue:     &mockVenue{},
		publisher: &mockPublisher{},
		market:    &stubMarket{failures: map[string]error{}},
		logger:    &mockLogger{},
		now:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	cfg := Config{
		Settings:        settings,
		Bindings:        bindings,
		Market:          h.market,
		Venue:           h.venue,
		Strategies:      map[string]ports.SignalStrategy{strategy.name: strategy},
		DefaultStrategy: strategy.name,
		Guard:           guard,
		Publisher:       h.publisher,
		Logger:          h.logger,
		Now:             func() time.Time { return h.now },
	}
	if news != nil {
		cfg.News = news
	}
	s, err := New(cfg)
	require.NoError(t, err)
	h.scheduler = s
	return h
}

func binding(id int64, account string, autoTrade bool, symbols ...string) domain.StrategyBinding {
	return domain.StrategyBinding{
		ID:        id,
		AccountID: account,
		Strategy:  "momentum",
		Timeframe: "1h",
		RiskLevel: domain.RiskMedium,
		Symbols:   symbols,
		Enabled:   true,
		AutoTrade: autoTrade,
	}
}

func forSymbol(symbol string) interface{} {
	return mock.MatchedBy(func(c *domain.SignalCandidate) bool { return c.Symbol == symbol })
}

func TestNew_Validation(t *testing.T) {
	strategy := &stubStrategy{name: "momentum"}
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{
		Bindings:        staticBindings{},
		Market:          &stubMarket{},
		Venue:           &mockVenue{},
		Publisher:       &mockPublisher{},
		Logger:          &mockLogger{},
		Strategies:      map[string]ports.SignalStrategy{"momentum": strategy},
		DefaultStrategy: "missing",
	})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRunCycle_SingleTradePerBinding(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 80, "GBPUSD": 85, "AUDUSD": 90}}
	h := newHarness(t, staticBindings{binding(1, "acc-1", true, "EURUSD", "GBPUSD", "AUDUSD")}, strategy, nil, nil, Settings{})

	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)
	h.venue.On("OpenPosition", mock.Anything, "acc-1", forSymbol("EURUSD")).Return(&domain.Position{Symbol: "EURUSD", OrderID: "11"}, nil)
	h.publisher.On("Publish", mock.Anything, forSymbol("EURUSD"), int64(1)).Return(&domain.Signal{ID: 1, Symbol: "EURUSD"}, nil)

	report := h.scheduler.RunCycle(context.Background())

	h.venue.AssertNumberOfCalls(t, "OpenPosition", 1)
	h.publisher.AssertNumberOfCalls(t, "Publish", 1)
	h.venue.AssertExpectations(t)
	assert.Equal(t, 1, report.Bindings)
	assert.Equal(t, 1, report.Executions)
	require.Len(t, report.Signals, 1)
	assert.Equal(t, "EURUSD", report.Signals[0].Symbol)
	// Every symbol is fetched with at least the minimum candle count.
	assert.Equal(t, DefaultCandleCount, h.market.calls["AUDUSD"])
}

func TestRunCycle_FailureIsolation(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 80, "GBPUSD": 80, "USDJPY": 80}}
	bindings := staticBindings{
		binding(1, "acc-1", false, "EURUSD", "GBPUSD"),
		binding(2, "offline", true, "USDJPY"),
		binding(3, "acc-3", false, "USDJPY"),
	}
	h := newHarness(t, bindings, strategy, nil, nil, Settings{})
	h.market.failures["EURUSD"] = errors.New("connection reset")

	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("IsConnected", mock.Anything, "offline").Return(false)
	h.venue.On("IsConnected", mock.Anything, "acc-3").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-3").Return(0, errors.New("venue down"))
	h.publisher.On("Publish", mock.Anything, forSymbol("GBPUSD"), int64(1)).Return(&domain.Signal{ID: 5, Symbol: "GBPUSD"}, nil)

	report := h.scheduler.RunCycle(context.Background())

	require.Len(t, report.Signals, 1)
	assert.Equal(t, "GBPUSD", report.Signals[0].Symbol)
	assert.Equal(t, 2, report.Bindings)
	assert.Equal(t, 2, report.Failures)
	h.venue.AssertNotCalled(t, "OpenPositionCount", mock.Anything, "offline")
	h.venue.AssertNotCalled(t, "OpenPosition", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_PositionCeiling(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 80}}

	t.Run("at ceiling before scanning", func(t *testing.T) {
		h := newHarness(t, staticBindings{binding(1, "acc-1", true, "EURUSD")}, strategy, nil, nil, Settings{})
		h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
		h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(3, nil)

		report := h.scheduler.RunCycle(context.Background())
		assert.Empty(t, report.Signals)
		assert.Empty(t, h.market.calls)
		h.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ceiling reached before execution", func(t *testing.T) {
		h := newHarness(t, staticBindings{binding(1, "acc-1", true, "EURUSD")}, strategy, nil, nil, Settings{})
		h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
		h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(2, nil).Once()
		h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(3, nil).Once()

		report := h.scheduler.RunCycle(context.Background())
		assert.Empty(t, report.Signals)
		h.venue.AssertNotCalled(t, "OpenPosition", mock.Anything, mock.Anything, mock.Anything)
		h.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("binding ceiling overrides default", func(t *testing.T) {
		b := binding(1, "acc-1", false, "EURUSD")
		b.MaxOpenPositions = 5
		h := newHarness(t, staticBindings{b}, strategy, nil, nil, Settings{})
		h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
		h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(4, nil)
		h.publisher.On("Publish", mock.Anything, forSymbol("EURUSD"), int64(1)).Return(&domain.Signal{ID: 1, Symbol: "EURUSD"}, nil)

		report := h.scheduler.RunCycle(context.Background())
		assert.Len(t, report.Signals, 1)
	})
}

func TestRunCycle_NewsFallbackAndGuard(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"GBPUSD": 60, "USDJPY": 30}}
	news := &stubStrategy{name: "news", confidence: map[string]int{"EURUSD": 75, "USDJPY": 72}, source: domain.SourceNewsPre}
	guard := &stubGuard{avoid: map[string]bool{"EURUSD": true, "GBPUSD": true, "USDJPY": true}}

	bindings := staticBindings{
		binding(1, "acc-1", false, "GBPUSD", "EURUSD"),
		binding(2, "acc-1", false, "USDJPY"),
	}
	h := newHarness(t, bindings, strategy, news, guard, Settings{})
	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)
	h.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(&domain.Signal{ID: 1}, nil)

	h.scheduler.RunCycle(context.Background())

	// GBPUSD's technical signal is suppressed by the guard; news candidates are not.
	h.publisher.AssertNotCalled(t, "Publish", mock.Anything, forSymbol("GBPUSD"), mock.Anything)
	h.publisher.AssertCalled(t, "Publish", mock.Anything, forSymbol("EURUSD"), int64(1))
	// Inside an event window news takes precedence over the technical candidate.
	h.publisher.AssertCalled(t, "Publish", mock.Anything, forSymbol("USDJPY"), int64(2))
}

func TestRunCycle_MinConfidence(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 39}}
	h := newHarness(t, staticBindings{binding(1, "acc-1", false, "EURUSD")}, strategy, nil, nil, Settings{})
	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)

	report := h.scheduler.RunCycle(context.Background())
	assert.Empty(t, report.Signals)
	assert.Equal(t, 1, report.Scanned)
}

func TestRunCycle_Cooldown(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 45}}
	h := newHarness(t, staticBindings{binding(1, "acc-1", false, "EURUSD")}, strategy, nil, nil, Settings{})
	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)
	h.publisher.On("Publish", mock.Anything, forSymbol("EURUSD"), int64(1)).Return(&domain.Signal{ID: 1}, nil)

	ctx := context.Background()
	h.scheduler.RunCycle(ctx)
	h.now = h.now.Add(30 * time.Second)
	h.scheduler.RunCycle(ctx)
	h.publisher.AssertNumberOfCalls(t, "Publish", 1)

	h.now = h.now.Add(DefaultCooldown)
	h.scheduler.RunCycle(ctx)
	h.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRunCycle_DryRunSkipsExecution(t *testing.T) {
	strategy := &stubStrategy{name: "momentum", confidence: map[string]int{"EURUSD": 80}}
	h := newHarness(t, staticBindings{binding(1, "acc-1", true, "EURUSD")}, strategy, nil, nil, Settings{DryRun: true})
	h.venue.On("IsConnected", mock.Anything, "acc-1").Return(true)
	h.venue.On("OpenPositionCount", mock.Anything, "acc-1").Return(0, nil)
	h.publisher.On("Publish", mock.Anything, forSymbol("EURUSD"), int64(1)).Return(&domain.Signal{ID: 1}, nil)

	report := h.scheduler.RunCycle(context.Background())
	assert.Len(t, report.Signals, 1)
	assert.Equal(t, 0, report.Executions)
	h.venue.AssertNotCalled(t, "OpenPosition", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_StartStop(t *testing.T) {
	strategy := &stubStrategy{name: "momentum"}
	h := newHarness(t, staticBindings{}, strategy, nil, nil, Settings{Interval: time.Hour})
	ctx := context.Background()

	assert.False(t, h.scheduler.Status().Running)

	h.scheduler.Start(ctx)
	h.scheduler.Start(ctx)
	assert.True(t, h.scheduler.Status().Running)
	assert.Eventually(t, func() bool { return h.scheduler.Status().Cycles >= 1 }, time.Second, 5*time.Millisecond)

	h.logger.mu.Lock()
	assert.Equal(t, []string{"Scheduler already running"}, h.logger.warnMsgs)
	h.logger.mu.Unlock()

	h.scheduler.Stop()
	h.scheduler.Stop()
	status := h.scheduler.Status()
	assert.False(t, status.Running)
	assert.Equal(t, "1h0m0s", status.Interval)
}
