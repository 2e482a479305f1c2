package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

const signalColumns = `id, ref, binding_id, symbol, direction, entry, stop_loss, take_profits, risk_fraction,
	confidence, timeframe, priority, min_tier, source, analysis, status, result_pips, created_at, closed_at`

// CreateSignal saves a new signal and returns its assigned ID.
func (r *Repository) CreateSignal(ctx context.Context, sig *domain.Signal) (int64, error) {
	if sig == nil {
		return 0, fmt.Errorf("signal is nil: %w", ports.ErrInvalidRequest)
	}
	tps, err := json.Marshal(sig.TakeProfits)
	if err != nil {
		return 0, fmt.Errorf("failed to encode take profits: %w", err)
	}
	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `INSERT INTO signals (ref, binding_id, symbol, direction, entry, stop_loss, take_profits, risk_fraction,
		confidence, timeframe, priority, min_tier, source, analysis, status, result_pips, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		sig.Ref, sig.BindingID, sig.Symbol, string(sig.Direction), sig.Entry, sig.StopLoss, string(tps),
		sig.RiskFraction, sig.Confidence, sig.Timeframe, string(sig.Priority), sig.MinTier, string(sig.Source),
		sig.Analysis, string(sig.Status), nullFloat(sig.ResultPips), toMillis(createdAt), nullMillis(sig.ClosedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to create signal %s: %w", sig.Ref, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to create signal for %s: %w: %w", sig.Symbol, ports.ErrQueryFailed, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for signal: %w", err)
	}
	sig.ID = id
	sig.CreatedAt = createdAt

	r.logger.Debug(ctx, "Created signal", map[string]interface{}{
		"id":       id,
		"ref":      sig.Ref,
		"symbol":   sig.Symbol,
		"priority": sig.Priority,
	})
	return id, nil
}

// FindSignalByID retrieves a signal by its ID. Returns nil, nil if not found.
func (r *Repository) FindSignalByID(ctx context.Context, id int64) (*domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = ?`
	sig, err := scanSignal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Signal not found", map[string]interface{}{"id": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find signal %d: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return sig, nil
}

// ListSignals returns signals matching the filter, newest first.
func (r *Repository) ListSignals(ctx context.Context, filter ports.SignalFilter) ([]*domain.Signal, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Terminal != nil {
		terminal := "status IN (?, ?, ?)"
		if !*filter.Terminal {
			terminal = "status NOT IN (?, ?, ?)"
		}
		where = append(where, terminal)
		args = append(args, string(domain.StatusTP3Hit), string(domain.StatusSLHit), string(domain.StatusClosed))
	}

	query := `SELECT ` + signalColumns + ` FROM signals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	signals := make([]*domain.Signal, 0)
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}
	return signals, nil
}

// UpdateSignalStatus moves the signal from `from` to `to` if its stored status is still `from`.
func (r *Repository) UpdateSignalStatus(ctx context.Context, id int64, from, to domain.SignalStatus, resultPips *float64, closedAt *time.Time) error {
	query := `UPDATE signals
		SET status = ?, result_pips = COALESCE(?, result_pips), closed_at = COALESCE(?, closed_at)
		WHERE id = ? AND status = ?`

	res, err := r.db.ExecContext(ctx, query, string(to), nullFloat(resultPips), nullMillis(closedAt), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update status of signal %d: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for signal %d: %w", id, err)
	}
	if rowsAffected == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM signals WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check signal %d: %w: %w", id, ports.ErrQueryFailed, err)
		}
		if exists == 0 {
			return fmt.Errorf("signal %d: %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("signal %d is no longer %s: %w", id, from, ports.ErrConflict)
	}

	r.logger.Debug(ctx, "Updated signal status", map[string]interface{}{
		"id":   id,
		"from": from,
		"to":   to,
	})
	return nil
}

func scanSignal(s scanner) (*domain.Signal, error) {
	var (
		sig        domain.Signal
		direction  string
		tps        string
		priority   string
		source     string
		status     string
		resultPips sql.NullFloat64
		createdAt  int64
		closedAt   sql.NullInt64
	)
	err := s.Scan(
		&sig.ID, &sig.Ref, &sig.BindingID, &sig.Symbol, &direction, &sig.Entry, &sig.StopLoss, &tps,
		&sig.RiskFraction, &sig.Confidence, &sig.Timeframe, &priority, &sig.MinTier, &source, &sig.Analysis,
		&status, &resultPips, &createdAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tps), &sig.TakeProfits); err != nil {
		return nil, fmt.Errorf("failed to decode take profits of signal %d: %w", sig.ID, err)
	}
	sig.Direction = domain.Direction(direction)
	sig.Priority = domain.Priority(priority)
	sig.Source = domain.Source(source)
	sig.Status = domain.SignalStatus(status)
	sig.CreatedAt = fromMillis(createdAt)
	if resultPips.Valid {
		v := resultPips.Float64
		sig.ResultPips = &v
	}
	if closedAt.Valid {
		t := fromMillis(closedAt.Int64)
		sig.ClosedAt = &t
	}
	return &sig, nil
}
