package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

const taskColumns = `id, signal_id, subscriber_id, destination, tier, kind, status_tag, due_at, state,
	attempts, last_error, created_at, updated_at`

// EnqueueTask inserts the task unless one with the same signal, subscriber, kind, status and destination exists.
func (r *Repository) EnqueueTask(ctx context.Context, task *domain.DeliveryTask) (bool, error) {
	if task == nil {
		return false, fmt.Errorf("task is nil: %w", ports.ErrInvalidRequest)
	}
	now := time.Now().UTC()
	if task.State == "" {
		task.State = domain.TaskPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivery_tasks (signal_id, subscriber_id, destination, tier, kind, status_tag, due_at,
		state, attempts, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.SignalID, task.SubscriberID, task.Destination, task.Tier, string(task.Kind), task.StatusTag,
		toMillis(task.DueAt), string(task.State), task.Attempts, task.LastError,
		toMillis(task.CreatedAt), toMillis(task.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue task for signal %d: %w: %w", task.SignalID, ports.ErrQueryFailed, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for task: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Debug(ctx, "Task already enqueued", map[string]interface{}{
			"signalID":     task.SignalID,
			"subscriberID": task.SubscriberID,
			"kind":         task.Kind,
		})
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert ID for task: %w", err)
	}
	task.ID = id
	return true, nil
}

// ClaimDueTasks moves up to limit due pending tasks to in flight and returns them, oldest due first.
func (r *Repository) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryTask, error) {
	if limit <= 0 {
		limit = 50
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w: %w", ports.ErrDBConnection, err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM delivery_tasks WHERE state = ? AND due_at <= ? ORDER BY due_at, id LIMIT ?`,
		string(domain.TaskPending), toMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select due tasks: %w: %w", ports.ErrQueryFailed, err)
	}
	tasks := make([]*domain.DeliveryTask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	rows.Close()

	updatedAt := time.Now().UTC()
	for _, task := range tasks {
		_, err := tx.ExecContext(ctx,
			`UPDATE delivery_tasks SET state = ?, attempts = attempts + 1, updated_at = ? WHERE id = ? AND state = ?`,
			string(domain.TaskInFlight), toMillis(updatedAt), task.ID, string(domain.TaskPending),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task %d: %w: %w", task.ID, ports.ErrUpdateFailed, err)
		}
		task.State = domain.TaskInFlight
		task.Attempts++
		task.UpdatedAt = updatedAt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task claim: %w: %w", ports.ErrUpdateFailed, err)
	}
	if len(tasks) > 0 {
		r.logger.Debug(ctx, "Claimed due tasks", map[string]interface{}{"count": len(tasks)})
	}
	return tasks, nil
}

// NextDueAt returns the earliest due time of a pending task, or nil when none is pending.
func (r *Repository) NextDueAt(ctx context.Context) (*time.Time, error) {
	var dueAt sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(due_at) FROM delivery_tasks WHERE state = ?`, string(domain.TaskPending),
	).Scan(&dueAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query next due task: %w: %w", ports.ErrQueryFailed, err)
	}
	if !dueAt.Valid {
		return nil, nil
	}
	t := fromMillis(dueAt.Int64)
	return &t, nil
}

// CompleteTask records the outcome of an in-flight task.
func (r *Repository) CompleteTask(ctx context.Context, id int64, state domain.TaskState, lastErr string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE delivery_tasks SET state = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(state), lastErr, toMillis(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task %d: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for task %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task %d: %w", id, ports.ErrNotFound)
	}
	return nil
}

// ResetInFlight returns tasks left in flight by an interrupted run to pending.
func (r *Repository) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE delivery_tasks SET state = ?, updated_at = ? WHERE state = ?`,
		string(domain.TaskPending), toMillis(time.Now().UTC()), string(domain.TaskInFlight),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight tasks: %w: %w", ports.ErrUpdateFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for reset: %w", err)
	}
	if n > 0 {
		r.logger.Info(ctx, "Reset in-flight delivery tasks", map[string]interface{}{"count": n})
	}
	return n, nil
}

func scanTask(s scanner) (*domain.DeliveryTask, error) {
	var (
		task      domain.DeliveryTask
		kind      string
		state     string
		dueAt     int64
		createdAt int64
		updatedAt int64
	)
	err := s.Scan(
		&task.ID, &task.SignalID, &task.SubscriberID, &task.Destination, &task.Tier, &kind, &task.StatusTag,
		&dueAt, &state, &task.Attempts, &task.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Kind = domain.TaskKind(kind)
	task.State = domain.TaskState(state)
	task.DueAt = fromMillis(dueAt)
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updatedAt)
	return &task, nil
}
