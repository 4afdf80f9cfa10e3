package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func getAggregate(ctx context.Context, q querier, userID progression.UserID) (progression.XPAggregate, error) {
	agg := progression.XPAggregate{UserID: userID}
	var updatedAt int64

	err := q.QueryRowContext(ctx,
		`SELECT total_xp, current_level, updated_at FROM xp_aggregates WHERE user_id = ?`,
		string(userID),
	).Scan(&agg.TotalXP, &agg.CurrentLevel, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.NewXPAggregate(userID), nil
	}
	if err != nil {
		return progression.XPAggregate{}, fmt.Errorf("sqlite: get xp aggregate: %w", err)
	}
	agg.UpdatedAt = fromMillis(updatedAt)
	return agg, nil
}

func putAggregate(ctx context.Context, q querier, agg progression.XPAggregate) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO xp_aggregates (user_id, total_xp, current_level, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = excluded.total_xp,
			current_level = excluded.current_level,
			updated_at = excluded.updated_at`,
		string(agg.UserID), agg.TotalXP, agg.CurrentLevel, millis(agg.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put xp aggregate: %w", err)
	}
	return nil
}

// GetXPAggregate returns the cached aggregate.
func (s *Store) GetXPAggregate(ctx context.Context, userID progression.UserID) (progression.XPAggregate, error) {
	return getAggregate(ctx, s.db, userID)
}

// AppendXPEvent appends the event and moves the aggregate in one transaction.
func (s *Store) AppendXPEvent(ctx context.Context, event progression.XPEvent) (progression.XPAggregate, progression.XPAggregate, error) {
	var prev, next progression.XPAggregate

	payload, err := json.Marshal(event.Context)
	if err != nil {
		return prev, next, fmt.Errorf("sqlite: encode xp context: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		prev, err = getAggregate(ctx, tx, event.UserID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO xp_events (id, user_id, event_type, xp_earned, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID, string(event.UserID), string(event.EventType), event.Amount, string(payload), millis(event.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: append xp event: %w", err)
		}

		next = prev.Add(event.Amount, event.CreatedAt)
		return putAggregate(ctx, tx, next)
	})
	if err != nil {
		return progression.XPAggregate{}, progression.XPAggregate{}, err
	}
	return prev, next, nil
}

// PutXPAggregate overwrites the aggregate.
func (s *Store) PutXPAggregate(ctx context.Context, agg progression.XPAggregate) error {
	return putAggregate(ctx, s.db, agg)
}

// ListXPEvents returns newest first.
func (s *Store) ListXPEvents(ctx context.Context, userID progression.UserID, limit int) ([]progression.XPEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, xp_earned, context, created_at
		FROM xp_events
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list xp events: %w", err)
	}
	defer rows.Close()

	var events []progression.XPEvent
	for rows.Next() {
		var (
			ev        = progression.XPEvent{UserID: userID}
			eventType string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&ev.ID, &eventType, &ev.Amount, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan xp event: %w", err)
		}
		ev.EventType = progression.EventType(eventType)
		ev.CreatedAt = fromMillis(createdAt)
		if err := json.Unmarshal([]byte(payload), &ev.Context); err != nil {
			return nil, fmt.Errorf("sqlite: decode xp context: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
