package sqlite

import (
	"context"
	"fmt"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

// RecordDelivery inserts the receipt and advances the subscription counter in one transaction.
// The counter only moves if it still holds the expected values; otherwise nothing is written.
func (r *Repository) RecordDelivery(ctx context.Context, d *domain.Delivery, quota ports.QuotaUpdate) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("delivery is nil: %w", ports.ErrInvalidRequest)
	}
	deliveredAt := d.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin delivery transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO deliveries (signal_id, subscriber_id, tier, delivered_at) VALUES (?, ?, ?, ?)`,
		d.SignalID, d.SubscriberID, d.Tier, toMillis(deliveredAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("signal %d already delivered to subscriber %d: %w", d.SignalID, d.SubscriberID, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert delivery: %w: %w", ports.ErrQueryFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for delivery: %w", err)
	}

	upd, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET signals_received_today = ?, last_signal_date = ?
		WHERE id = ? AND active = 1 AND signals_received_today = ? AND last_signal_date = ?`,
		quota.NewCount, quota.NewDate, quota.SubscriptionID, quota.ExpectedCount, quota.ExpectedDate,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update quota of subscription %d: %w: %w", quota.SubscriptionID, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := upd.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for subscription %d: %w", quota.SubscriptionID, err)
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("quota of subscription %d changed concurrently: %w", quota.SubscriptionID, ports.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delivery: %w: %w", ports.ErrUpdateFailed, err)
	}

	d.ID = id
	d.DeliveredAt = deliveredAt
	r.logger.Debug(ctx, "Recorded delivery", map[string]interface{}{
		"id":           id,
		"signalID":     d.SignalID,
		"subscriberID": d.SubscriberID,
		"count":        quota.NewCount,
		"day":          quota.NewDate,
	})
	return id, nil
}

// ListDeliveriesForSignal returns receipts for a signal ordered by delivery time.
func (r *Repository) ListDeliveriesForSignal(ctx context.Context, signalID int64) ([]*domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, signal_id, subscriber_id, tier, delivered_at FROM deliveries WHERE signal_id = ? ORDER BY delivered_at, id`,
		signalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for signal %d: %w: %w", signalID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	deliveries := make([]*domain.Delivery, 0)
	for rows.Next() {
		var (
			d           domain.Delivery
			deliveredAt int64
		)
		if err := rows.Scan(&d.ID, &d.SignalID, &d.SubscriberID, &d.Tier, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		d.DeliveredAt = fromMillis(deliveredAt)
		deliveries = append(deliveries, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery rows: %w", err)
	}
	return deliveries, nil
}

// HasDelivery reports whether a receipt exists for the pair.
func (r *Repository) HasDelivery(ctx context.Context, signalID, subscriberID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM deliveries WHERE signal_id = ? AND subscriber_id = ?`,
		signalID, subscriberID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w: %w", ports.ErrQueryFailed, err)
	}
	return count > 0, nil
}
