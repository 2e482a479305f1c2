package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "signal-hub-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func newSignal(ref, symbol string, createdAt time.Time) *domain.Signal {
	return &domain.Signal{
		Ref:          ref,
		BindingID:    7,
		Symbol:       symbol,
		Direction:    domain.Buy,
		Entry:        1.1000,
		StopLoss:     1.0950,
		TakeProfits:  []float64{1.1050, 1.1100, 1.1150},
		RiskFraction: 0.02,
		Confidence:   82,
		Timeframe:    "1h",
		Priority:     domain.PriorityHigh,
		MinTier:      "premium",
		Source:       domain.SourceScheduler,
		Analysis:     "Momentum 5 up / 0 down",
		Status:       domain.StatusActive,
		CreatedAt:    createdAt,
	}
}

func newSubscription(subscriberID int64, tier string) *domain.Subscription {
	now := time.Now().UTC()
	return &domain.Subscription{
		SubscriberID: subscriberID,
		Tier:         tier,
		PeriodStart:  now.Add(-24 * time.Hour),
		PeriodEnd:    now.Add(30 * 24 * time.Hour),
		Destination:  "chat-1",
		Active:       true,
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_CreateAndFindSignal(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	sig := newSignal("ref-1", "EURUSD", created)
	id, err := repo.CreateSignal(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, id, sig.ID)

	found, err := repo.FindSignalByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ref-1", found.Ref)
	assert.Equal(t, int64(7), found.BindingID)
	assert.Equal(t, domain.Buy, found.Direction)
	assert.Equal(t, []float64{1.1050, 1.1100, 1.1150}, found.TakeProfits)
	assert.Equal(t, domain.PriorityHigh, found.Priority)
	assert.Equal(t, "premium", found.MinTier)
	assert.Equal(t, domain.StatusActive, found.Status)
	assert.True(t, created.Equal(found.CreatedAt))
	assert.Nil(t, found.ResultPips)
	assert.Nil(t, found.ClosedAt)

	missing, err := repo.FindSignalByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.CreateSignal(ctx, newSignal("ref-1", "EURUSD", created))
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestRepository_ListSignals(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.CreateSignal(ctx, newSignal("a", "EURUSD", base))
	require.NoError(t, err)
	_, err = repo.CreateSignal(ctx, newSignal("b", "GBPUSD", base.Add(time.Hour)))
	require.NoError(t, err)
	closed := newSignal("c", "EURUSD", base.Add(2*time.Hour))
	closed.Status = domain.StatusSLHit
	_, err = repo.CreateSignal(ctx, closed)
	require.NoError(t, err)

	yes, no := true, false
	tests := []struct {
		name   string
		filter ports.SignalFilter
		want   []string
	}{
		{name: "all newest first", filter: ports.SignalFilter{}, want: []string{"c", "b", "a"}},
		{name: "by symbol", filter: ports.SignalFilter{Symbol: "EURUSD"}, want: []string{"c", "a"}},
		{name: "by status", filter: ports.SignalFilter{Status: domain.StatusActive}, want: []string{"b", "a"}},
		{name: "terminal only", filter: ports.SignalFilter{Terminal: &yes}, want: []string{"c"}},
		{name: "open only", filter: ports.SignalFilter{Terminal: &no}, want: []string{"b", "a"}},
		{name: "limit", filter: ports.SignalFilter{Limit: 1}, want: []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, err := repo.ListSignals(ctx, tt.filter)
			require.NoError(t, err)
			refs := make([]string, 0, len(signals))
			for _, s := range signals {
				refs = append(refs, s.Ref)
			}
			assert.Equal(t, tt.want, refs)
		})
	}
}

func TestRepository_UpdateSignalStatus(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.CreateSignal(ctx, newSignal("ref", "EURUSD", time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateSignalStatus(ctx, id, domain.StatusActive, domain.StatusTP1Hit, nil, nil))

	// Stale expectation loses.
	err = repo.UpdateSignalStatus(ctx, id, domain.StatusActive, domain.StatusSLHit, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConflict)

	pips := 150.0
	closedAt := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateSignalStatus(ctx, id, domain.StatusTP1Hit, domain.StatusTP3Hit, &pips, &closedAt))

	found, err := repo.FindSignalByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTP3Hit, found.Status)
	require.NotNil(t, found.ResultPips)
	assert.InDelta(t, 150.0, *found.ResultPips, 1e-9)
	require.NotNil(t, found.ClosedAt)
	assert.True(t, closedAt.Equal(*found.ClosedAt))

	err = repo.UpdateSignalStatus(ctx, 999, domain.StatusActive, domain.StatusClosed, nil, nil)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_Subscriptions(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sub := newSubscription(42, "basic")
	id, err := repo.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	_, err = repo.CreateSubscription(ctx, newSubscription(42, "vip"))
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	found, err := repo.FindActiveSubscription(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "basic", found.Tier)
	assert.True(t, found.Active)
	assert.Equal(t, "", found.LastSignalDate)

	_, err = repo.CreateSubscription(ctx, newSubscription(43, "vip"))
	require.NoError(t, err)
	subs, err := repo.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, repo.DeactivateSubscription(ctx, id))
	assert.ErrorIs(t, repo.DeactivateSubscription(ctx, id), ports.ErrNotFound)

	none, err := repo.FindActiveSubscription(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, none)

	// A fresh subscription is allowed once the old one is inactive.
	_, err = repo.CreateSubscription(ctx, newSubscription(42, "premium"))
	assert.NoError(t, err)
}

func TestRepository_RecordDelivery(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sigID, err := repo.CreateSignal(ctx, newSignal("ref", "EURUSD", time.Now().UTC()))
	require.NoError(t, err)
	sub := newSubscription(42, "starter")
	subID, err := repo.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	delivery := &domain.Delivery{SignalID: sigID, SubscriberID: 42, Tier: "starter"}
	quota := ports.QuotaUpdate{SubscriptionID: subID, ExpectedCount: 0, ExpectedDate: "", NewCount: 1, NewDate: "2024-03-01"}
	_, err = repo.RecordDelivery(ctx, delivery, quota)
	require.NoError(t, err)

	has, err := repo.HasDelivery(ctx, sigID, 42)
	require.NoError(t, err)
	assert.True(t, has)

	updated, err := repo.FindActiveSubscription(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.SignalsReceivedDay)
	assert.Equal(t, "2024-03-01", updated.LastSignalDate)

	t.Run("duplicate receipt rejected", func(t *testing.T) {
		again := ports.QuotaUpdate{SubscriptionID: subID, ExpectedCount: 1, ExpectedDate: "2024-03-01", NewCount: 2, NewDate: "2024-03-01"}
		_, err := repo.RecordDelivery(ctx, &domain.Delivery{SignalID: sigID, SubscriberID: 42, Tier: "starter"}, again)
		assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
	})

	t.Run("stale counter rolls back receipt", func(t *testing.T) {
		sig2, err := repo.CreateSignal(ctx, newSignal("ref-2", "EURUSD", time.Now().UTC()))
		require.NoError(t, err)
		stale := ports.QuotaUpdate{SubscriptionID: subID, ExpectedCount: 0, ExpectedDate: "", NewCount: 1, NewDate: "2024-03-01"}
		_, err = repo.RecordDelivery(ctx, &domain.Delivery{SignalID: sig2, SubscriberID: 42, Tier: "starter"}, stale)
		assert.ErrorIs(t, err, ports.ErrConflict)

		has, err := repo.HasDelivery(ctx, sig2, 42)
		require.NoError(t, err)
		assert.False(t, has)
	})

	deliveries, err := repo.ListDeliveriesForSignal(ctx, sigID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, int64(42), deliveries[0].SubscriberID)
}

func TestRepository_DeliveryTasks(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sigID, err := repo.CreateSignal(ctx, newSignal("ref", "EURUSD", time.Now().UTC()))
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next, err := repo.NextDueAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	due := &domain.DeliveryTask{SignalID: sigID, SubscriberID: 1, Destination: "a", Tier: "vip", Kind: domain.TaskSignal, DueAt: now}
	later := &domain.DeliveryTask{SignalID: sigID, SubscriberID: 2, Destination: "b", Tier: "starter", Kind: domain.TaskSignal, DueAt: now.Add(30 * time.Minute)}

	created, err := repo.EnqueueTask(ctx, due)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.EnqueueTask(ctx, later)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &domain.DeliveryTask{SignalID: sigID, SubscriberID: 1, Destination: "a", Tier: "vip", Kind: domain.TaskSignal, DueAt: now}
	created, err = repo.EnqueueTask(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	next, err = repo.NextDueAt(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, now.Equal(*next))

	claimed, err := repo.ClaimDueTasks(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int64(1), claimed[0].SubscriberID)
	assert.Equal(t, domain.TaskInFlight, claimed[0].State)
	assert.Equal(t, 1, claimed[0].Attempts)

	// Nothing else is due yet and claimed tasks are not handed out twice.
	again, err := repo.ClaimDueTasks(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	reset, err := repo.ResetInFlight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	claimed, err = repo.ClaimDueTasks(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, 2, claimed[0].Attempts)

	require.NoError(t, repo.CompleteTask(ctx, claimed[0].ID, domain.TaskSent, ""))
	require.NoError(t, repo.CompleteTask(ctx, claimed[1].ID, domain.TaskFailed, "channel rejected"))
	assert.ErrorIs(t, repo.CompleteTask(ctx, 999, domain.TaskSent, ""), ports.ErrNotFound)

	next, err = repo.NextDueAt(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}
