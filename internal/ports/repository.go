package ports

import (
	"context"
	"time"

	"signalHub/internal/domain"
)

// SignalFilter narrows ListSignals.
type SignalFilter struct {
	Symbol   string
	Status   domain.SignalStatus
	Terminal *bool // nil for any; true for closed signals only; false for open ones
	Limit    int
}

// SignalRepository stores published signals.
type SignalRepository interface {
	// CreateSignal saves a new signal and returns its assigned ID.
	CreateSignal(ctx context.Context, sig *domain.Signal) (int64, error)
	// FindSignalByID returns nil, nil if not found.
	FindSignalByID(ctx context.Context, id int64) (*domain.Signal, error)
	// ListSignals returns signals newest first.
	ListSignals(ctx context.Context, filter SignalFilter) ([]*domain.Signal, error)
	// UpdateSignalStatus moves a signal from `from` to `to` only if it is still in `from`.
	// Returns ErrConflict when the stored status differs.
	UpdateSignalStatus(ctx context.Context, id int64, from, to domain.SignalStatus, resultPips *float64, closedAt *time.Time) error
}

// SubscriptionRepository stores subscriber entitlements.
type SubscriptionRepository interface {
	// CreateSubscription returns ErrDuplicateEntry when the subscriber already has an active subscription.
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (int64, error)
	// FindActiveSubscription returns nil, nil if the subscriber has no active subscription.
	FindActiveSubscription(ctx context.Context, subscriberID int64) (*domain.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, id int64) error
}

// QuotaUpdate is the compare-and-set applied to a subscription counter alongside a receipt.
type QuotaUpdate struct {
	SubscriptionID int64
	ExpectedCount  int
	ExpectedDate   string
	NewCount       int
	NewDate        string
}

// DeliveryRepository stores delivery receipts.
type DeliveryRepository interface {
	// RecordDelivery inserts the receipt and applies the quota update in one transaction.
	// Returns ErrDuplicateEntry if the receipt exists and ErrConflict if the counter moved.
	RecordDelivery(ctx context.Context, d *domain.Delivery, quota QuotaUpdate) (int64, error)
	ListDeliveriesForSignal(ctx context.Context, signalID int64) ([]*domain.Delivery, error)
	HasDelivery(ctx context.Context, signalID, subscriberID int64) (bool, error)
}

// TaskRepository stores durable delivery tasks.
type TaskRepository interface {
	// EnqueueTask inserts the task unless an identical one exists; reports whether it was created.
	EnqueueTask(ctx context.Context, task *domain.DeliveryTask) (bool, error)
	// ClaimDueTasks marks up to limit pending tasks due at or before now as in flight and returns them.
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryTask, error)
	// NextDueAt returns the earliest pending due time, or nil when nothing is pending.
	NextDueAt(ctx context.Context) (*time.Time, error)
	// CompleteTask records the final state of an in-flight task.
	CompleteTask(ctx context.Context, id int64, state domain.TaskState, lastErr string) error
	// ResetInFlight returns in-flight tasks to pending and reports how many were reset.
	ResetInFlight(ctx context.Context) (int64, error)
}
