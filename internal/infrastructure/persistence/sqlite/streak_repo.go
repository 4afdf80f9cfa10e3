package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const selectStreakSQL = `
	SELECT current_streak, longest_streak, last_active_date, total_days,
	       grace_used, grace_last_used,
	       prayer_current, prayer_longest, prayer_last_active, updated_at
	FROM streak_states
	WHERE user_id = ?`

const upsertStreakSQL = `
	INSERT INTO streak_states (
		user_id, current_streak, longest_streak, last_active_date, total_days,
		grace_used, grace_last_used, prayer_current, prayer_longest, prayer_last_active, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		current_streak     = excluded.current_streak,
		longest_streak     = excluded.longest_streak,
		last_active_date   = excluded.last_active_date,
		total_days         = excluded.total_days,
		grace_used         = excluded.grace_used,
		grace_last_used    = excluded.grace_last_used,
		prayer_current     = excluded.prayer_current,
		prayer_longest     = excluded.prayer_longest,
		prayer_last_active = excluded.prayer_last_active,
		updated_at         = excluded.updated_at`

func getStreak(ctx context.Context, q querier, userID progression.UserID) (*progression.StreakState, error) {
	var (
		s                          = progression.StreakState{UserID: userID}
		last, graceLast, prayerDay sql.NullString
		graceUsed                  int
		updatedAt                  int64
	)
	err := q.QueryRowContext(ctx, selectStreakSQL, string(userID)).Scan(
		&s.CurrentStreak, &s.LongestStreak, &last, &s.TotalDays,
		&graceUsed, &graceLast,
		&s.PrayerCurrent, &s.PrayerLongest, &prayerDay, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get streak state: %w", err)
	}

	if s.LastActiveDate, err = scanDay(last); err != nil {
		return nil, err
	}
	if s.GraceLastUsed, err = scanDay(graceLast); err != nil {
		return nil, err
	}
	if s.PrayerLastActive, err = scanDay(prayerDay); err != nil {
		return nil, err
	}
	s.GraceUsed = graceUsed == 1
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

func putStreak(ctx context.Context, q querier, s *progression.StreakState) error {
	_, err := q.ExecContext(ctx, upsertStreakSQL,
		string(s.UserID), s.CurrentStreak, s.LongestStreak, dayValue(s.LastActiveDate), s.TotalDays,
		boolInt(s.GraceUsed), dayValue(s.GraceLastUsed),
		s.PrayerCurrent, s.PrayerLongest, dayValue(s.PrayerLastActive), millis(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put streak state: %w", err)
	}
	return nil
}

// GetStreakState returns the user's state or nil.
func (s *Store) GetStreakState(ctx context.Context, userID progression.UserID) (*progression.StreakState, error) {
	return getStreak(ctx, s.db, userID)
}

// UpdateStreakState implements the locked read-modify-write.
func (s *Store) UpdateStreakState(ctx context.Context, userID progression.UserID, fn progression.StreakMutation) (*progression.StreakState, error) {
	var result *progression.StreakState

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getStreak(ctx, tx, userID)
		if err != nil {
			return err
		}

		next, err := fn(current.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			result = current
			return nil
		}

		next.UserID = userID
		if err := next.Validate(); err != nil {
			return err
		}
		if err := putStreak(ctx, tx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PutStreakState upserts a state.
func (s *Store) PutStreakState(ctx context.Context, state *progression.StreakState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	return putStreak(ctx, s.db, state)
}
