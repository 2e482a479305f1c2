package broadcast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalHub/internal/adapters/sqlite"
	"signalHub/internal/domain"
	"signalHub/internal/entitlement"
	"signalHub/internal/ports"
)

type mockLogger struct {
	mu       sync.Mutex
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type sentMessage struct {
	destination string
	text        string
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (c *recordingChannel) Send(ctx context.Context, destination, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[destination] {
		return errors.New("chat not found")
	}
	c.sent = append(c.sent, sentMessage{destination: destination, text: message})
	return nil
}

func (c *recordingChannel) to(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if m.destination == destination {
			out = append(out, m.text)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	repo       *sqlite.Repository
	service    *Service
	dispatcher *Dispatcher
	channel    *recordingChannel
	clock      *testClock
	logger     *mockLogger
}

func newFixture(t *testing.T, tiers []domain.Tier) *fixture {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "broadcast-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	logger := &mockLogger{}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: filepath.Join(tmpDir, "test.db"), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	if tiers == nil {
		tiers = entitlement.DefaultTiers()
	}
	table, err := entitlement.NewTable(tiers, entitlement.DefaultPriorityMap())
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{fail: map[string]bool{}}

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Store:   repo,
		Table:   table,
		Channel: channel,
		Logger:  logger,
		Now:     clock.Now,
	})
	require.NoError(t, err)

	service, err := NewService(ServiceConfig{
		Store:  repo,
		Table:  table,
		Logger: logger,
		Now:    clock.Now,
	})
	require.NoError(t, err)

	return &fixture{repo: repo, service: service, dispatcher: dispatcher, channel: channel, clock: clock, logger: logger}
}

func (f *fixture) subscribe(t *testing.T, subscriberID int64, tier, destination string) {
	t.Helper()
	now := f.clock.Now()
	_, err := f.repo.CreateSubscription(context.Background(), &domain.Subscription{
		SubscriberID: subscriberID,
		Tier:         tier,
		PeriodStart:  now.Add(-24 * time.Hour),
		PeriodEnd:    now.Add(60 * 24 * time.Hour),
		Destination:  destination,
		Active:       true,
	})
	require.NoError(t, err)
}

func candidate(confidence int) *domain.SignalCandidate {
	return &domain.SignalCandidate{
		Symbol:       "EURUSD",
		Direction:    domain.Buy,
		Entry:        1.1,
		StopLoss:     1.095,
		TakeProfits:  []float64{1.105, 1.11, 1.115},
		RiskFraction: 0.02,
		Confidence:   confidence,
		Timeframe:    "1h",
		Source:       domain.SourceScheduler,
		Analysis:     "RSI 28.4 oversold",
	}
}

func TestMessage_Render(t *testing.T) {
	tiers := entitlement.DefaultTiers()
	sig := &domain.Signal{
		Ref:         "ref-1",
		Symbol:      "EURUSD",
		Direction:   domain.Buy,
		Entry:       1.1,
		StopLoss:    1.095,
		TakeProfits: []float64{1.105, 1.11, 1.115},
		Confidence:  92,
		Timeframe:   "1h",
		Priority:    domain.PriorityExclusive,
		Analysis:    "RSI <30",
		Status:      domain.StatusActive,
	}

	starter := NewMessage(sig, &tiers[0]).Render()
	assert.Contains(t, starter, "BUY EURUSD")
	assert.Contains(t, starter, "Entry: <code>1.10000</code>")
	assert.NotContains(t, starter, "Stop loss")
	assert.NotContains(t, starter, "RSI")
	assert.NotContains(t, starter, "<b>EXCLUSIVE</b>")

	basic := NewMessage(sig, &tiers[1]).Render()
	assert.Contains(t, basic, "Stop loss: <code>1.09500</code>")
	assert.Contains(t, basic, "TP3: <code>1.11500</code>")
	assert.NotContains(t, basic, "RSI")

	premium := NewMessage(sig, &tiers[2]).Render()
	assert.Contains(t, premium, "<i>RSI &lt;30</i>")

	vip := NewMessage(sig, &tiers[3]).Render()
	assert.True(t, strings.HasPrefix(vip, "<b>EXCLUSIVE</b>"))
	assert.True(t, strings.HasSuffix(vip, "Ref: ref-1"))
}

func TestMessage_RenderStatus(t *testing.T) {
	tiers := entitlement.DefaultTiers()
	pips := -50.0
	sig := &domain.Signal{
		Ref:         "ref-2",
		Symbol:      "USDJPY",
		Direction:   domain.Sell,
		Entry:       150.0,
		StopLoss:    150.5,
		TakeProfits: []float64{149.5},
		Status:      domain.StatusSLHit,
		ResultPips:  &pips,
	}
	msg := NewMessage(sig, &tiers[2]).WithStatus(domain.StatusSLHit).Render()
	assert.Contains(t, msg, "SELL USDJPY</b> update: stop loss hit")
	assert.Contains(t, msg, "Stop loss <code>150.500</code> reached")
	assert.Contains(t, msg, "Result: -50.0 pips")
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		symbol string
		price  float64
		want   string
	}{
		{"EURUSD", 1.23456789, "1.23457"},
		{"USDJPY", 150.1234, "150.123"},
		{"XAUUSD", 2034.567, "2034.57"},
		{"BTCUSDT", 65000.456, "65000.46"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPrice(tt.symbol, tt.price))
		})
	}
}

func TestService_PublishFixesPriorityAndSchedules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierStarter, "starter-chat")
	f.subscribe(t, 2, entitlement.TierPremium, "premium-chat")
	f.subscribe(t, 3, entitlement.TierVIP, "vip-chat")

	sig, err := f.service.Publish(ctx, candidate(85), 9)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, sig.Priority)
	assert.Equal(t, entitlement.TierPremium, sig.MinTier)
	assert.Equal(t, int64(9), sig.BindingID)
	assert.NotEmpty(t, sig.Ref)

	stored, err := f.repo.FindSignalByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, stored.MinTier)

	// VIP has no delay; premium waits five minutes; starter is not eligible.
	n, err := f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.channel.to("vip-chat"), 1)
	assert.Empty(t, f.channel.to("premium-chat"))

	f.clock.Set(f.clock.Now().Add(5 * time.Minute))
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, f.channel.to("premium-chat"), 1)
	assert.Empty(t, f.channel.to("starter-chat"))
}

func TestService_PublishRejectsInvalidCandidate(t *testing.T) {
	f := newFixture(t, nil)
	bad := candidate(70)
	bad.TakeProfits = nil
	_, err := f.service.Publish(context.Background(), bad, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = f.service.Publish(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestDispatcher_NoDuplicateDelivery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierVIP, "vip-chat")

	sig, err := f.service.Publish(ctx, candidate(95), 0)
	require.NoError(t, err)

	// Scheduling the same signal again creates no new tasks.
	queued, err := f.service.schedule(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, 0, queued)

	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)

	// Even a re-queued task for the same pair is not delivered twice.
	_, err = f.repo.EnqueueTask(ctx, &domain.DeliveryTask{
		SignalID:     sig.ID,
		SubscriberID: 1,
		Destination:  "vip-chat-2",
		Tier:         entitlement.TierVIP,
		Kind:         domain.TaskSignal,
		DueAt:        f.clock.Now(),
	})
	require.NoError(t, err)
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)

	assert.Len(t, f.channel.to("vip-chat"), 1)
	assert.Empty(t, f.channel.to("vip-chat-2"))
	deliveries, err := f.repo.ListDeliveriesForSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}

func TestDispatcher_QuotaExhaustionAndNextDay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierStarter, "starter-chat")

	for i := 0; i < 4; i++ {
		_, err := f.service.Publish(ctx, candidate(50), 0)
		require.NoError(t, err)
	}

	// Starter signals are delayed by thirty minutes.
	_, err := f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.channel.to("starter-chat"))

	f.clock.Set(f.clock.Now().Add(30 * time.Minute))
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, f.channel.to("starter-chat"), 3)

	sub, err := f.repo.FindActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.SignalsReceivedDay)
	assert.Equal(t, "2024-03-01", sub.LastSignalDate)

	f.clock.Set(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	_, err = f.service.Publish(ctx, candidate(50), 0)
	require.NoError(t, err)
	f.clock.Set(f.clock.Now().Add(30 * time.Minute))
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, f.channel.to("starter-chat"), 4)

	sub, err = f.repo.FindActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.SignalsReceivedDay)
	assert.Equal(t, "2024-03-02", sub.LastSignalDate)
}

func TestDispatcher_FailedSendWritesNoReceipt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierVIP, "bad-chat")
	f.channel.fail["bad-chat"] = true

	sig, err := f.service.Publish(ctx, candidate(95), 0)
	require.NoError(t, err)
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)

	has, err := f.repo.HasDelivery(ctx, sig.ID, 1)
	require.NoError(t, err)
	assert.False(t, has)
	sub, err := f.repo.FindActiveSubscription(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sub.SignalsReceivedDay)

	next, err := f.repo.NextDueAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestDispatcher_TierChannelBroadcast(t *testing.T) {
	tiers := entitlement.DefaultTiers()
	tiers[3].ChannelID = "@vip_room"
	tiers[0].ChannelID = "@starter_room"
	f := newFixture(t, tiers)
	ctx := context.Background()

	_, err := f.service.Publish(ctx, candidate(85), 0)
	require.NoError(t, err)
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)

	assert.Len(t, f.channel.to("@vip_room"), 1)
	assert.Empty(t, f.channel.to("@starter_room"))
}

func TestService_UpdateSignalStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierVIP, "vip-chat")
	f.subscribe(t, 2, entitlement.TierVIP, "late-chat")

	sig, err := f.service.Publish(ctx, candidate(95), 0)
	require.NoError(t, err)
	f.channel.fail["late-chat"] = true
	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	f.channel.fail["late-chat"] = false

	updated, err := f.service.UpdateSignalStatus(ctx, sig.ID, domain.StatusTP1Hit, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTP1Hit, updated.Status)
	assert.Nil(t, updated.ResultPips)

	_, err = f.dispatcher.Sweep(ctx)
	require.NoError(t, err)
	// Only the subscriber holding a receipt hears about the update.
	assert.Len(t, f.channel.to("vip-chat"), 2)
	assert.Empty(t, f.channel.to("late-chat"))
	assert.Contains(t, f.channel.to("vip-chat")[1], "TP1 hit")

	_, err = f.service.UpdateSignalStatus(ctx, sig.ID, domain.StatusActive, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	closed, err := f.service.UpdateSignalStatus(ctx, sig.ID, domain.StatusSLHit, nil)
	require.NoError(t, err)
	require.NotNil(t, closed.ResultPips)
	assert.InDelta(t, -50.0, *closed.ResultPips, 1e-6)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.service.UpdateSignalStatus(ctx, sig.ID, domain.StatusClosed, nil)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	_, err = f.service.UpdateSignalStatus(ctx, 999, domain.StatusClosed, nil)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestDispatcher_StartRecoversInFlight(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.subscribe(t, 1, entitlement.TierVIP, "vip-chat")

	_, err := f.service.Publish(ctx, candidate(95), 0)
	require.NoError(t, err)
	claimed, err := f.repo.ClaimDueTasks(ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, f.dispatcher.Start(ctx))
	require.NoError(t, f.dispatcher.Start(ctx))
	defer f.dispatcher.Stop()

	assert.Eventually(t, func() bool {
		return len(f.channel.to("vip-chat")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.logger.mu.Lock()
	assert.Contains(t, f.logger.warnMsgs, "Dispatcher already running")
	f.logger.mu.Unlock()
}

func TestResultPips(t *testing.T) {
	buy := &domain.Signal{Symbol: "EURUSD", Direction: domain.Buy, Entry: 1.1}
	sell := &domain.Signal{Symbol: "USDJPY", Direction: domain.Sell, Entry: 150}
	assert.InDelta(t, 50.0, ResultPips(buy, 1.105), 1e-6)
	assert.InDelta(t, -30.0, ResultPips(buy, 1.097), 1e-6)
	assert.InDelta(t, 100.0, ResultPips(sell, 149), 1e-6)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		active int
		peak   int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
	assert.Empty(t, k.locks)
}
