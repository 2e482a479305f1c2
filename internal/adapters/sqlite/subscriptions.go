package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

const subscriptionColumns = `id, subscriber_id, tier, period_start, period_end, signals_received_today,
	last_signal_date, destination, active`

// CreateSubscription saves a subscription. A subscriber may hold only one active subscription.
func (r *Repository) CreateSubscription(ctx context.Context, sub *domain.Subscription) (int64, error) {
	if sub == nil {
		return 0, fmt.Errorf("subscription is nil: %w", ports.ErrInvalidRequest)
	}
	query := `INSERT INTO subscriptions (subscriber_id, tier, period_start, period_end, signals_received_today,
		last_signal_date, destination, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		sub.SubscriberID, sub.Tier, toMillis(sub.PeriodStart), toMillis(sub.PeriodEnd),
		sub.SignalsReceivedDay, sub.LastSignalDate, sub.Destination, sub.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("subscriber %d already has an active subscription: %w", sub.SubscriberID, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to create subscription for subscriber %d: %w: %w", sub.SubscriberID, ports.ErrQueryFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for subscription: %w", err)
	}
	sub.ID = id

	r.logger.Debug(ctx, "Created subscription", map[string]interface{}{
		"id":           id,
		"subscriberID": sub.SubscriberID,
		"tier":         sub.Tier,
	})
	return id, nil
}

// FindActiveSubscription returns the subscriber's active subscription, or nil, nil if none.
func (r *Repository) FindActiveSubscription(ctx context.Context, subscriberID int64) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscriber_id = ? AND active = 1`
	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, subscriberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No active subscription found", map[string]interface{}{"subscriberID": subscriberID})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription for subscriber %d: %w: %w", subscriberID, ports.ErrQueryFailed, err)
	}
	return sub, nil
}

// ListActiveSubscriptions returns all active subscriptions ordered by ID.
func (r *Repository) ListActiveSubscriptions(ctx context.Context) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE active = 1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

// DeactivateSubscription marks a subscription inactive.
func (r *Repository) DeactivateSubscription(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET active = 0 WHERE id = ? AND active = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription %d: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for subscription %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("active subscription %d: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Deactivated subscription", map[string]interface{}{"id": id})
	return nil
}

func scanSubscription(s scanner) (*domain.Subscription, error) {
	var (
		sub         domain.Subscription
		periodStart int64
		periodEnd   int64
	)
	err := s.Scan(
		&sub.ID, &sub.SubscriberID, &sub.Tier, &periodStart, &periodEnd, &sub.SignalsReceivedDay,
		&sub.LastSignalDate, &sub.Destination, &sub.Active,
	)
	if err != nil {
		return nil, err
	}
	sub.PeriodStart = fromMillis(periodStart)
	sub.PeriodEnd = fromMillis(periodEnd)
	return &sub, nil
}
