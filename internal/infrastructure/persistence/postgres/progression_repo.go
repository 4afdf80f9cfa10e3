package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRepository implements progression.Store for PostgreSQL.
type ProgressionRepository struct {
	conn *Connection
}

var _ progression.Store = (*ProgressionRepository)(nil)

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(conn *Connection) *ProgressionRepository {
	return &ProgressionRepository{conn: conn}
}

func (r *ProgressionRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.conn.WithTx(ctx, fn)
}

// ─────────────────────────────────────────────────────────────────────────────
// Streak State
// ─────────────────────────────────────────────────────────────────────────────

const selectStreakQuery = `
	SELECT current_streak, longest_streak, last_active_date, total_days,
	       grace_used, grace_last_used,
	       prayer_current, prayer_longest, prayer_last_active, updated_at
	FROM streak_states
	WHERE user_id = $1`

func (r *ProgressionRepository) getStreak(ctx context.Context, q Querier, userID progression.UserID, forUpdate bool) (*progression.StreakState, error) {
	query := selectStreakQuery
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		s                          = progression.StreakState{UserID: userID}
		last, graceLast, prayerDay pgtype.Date
	)
	err := q.QueryRow(ctx, query, string(userID)).Scan(
		&s.CurrentStreak, &s.LongestStreak, &last, &s.TotalDays,
		&s.GraceUsed, &graceLast,
		&s.PrayerCurrent, &s.PrayerLongest, &prayerDay, &s.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak state: %w", err)
	}

	s.LastActiveDate = dayFromDate(last)
	s.GraceLastUsed = dayFromDate(graceLast)
	s.PrayerLastActive = dayFromDate(prayerDay)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (r *ProgressionRepository) putStreak(ctx context.Context, q Querier, s *progression.StreakState) error {
	query := `
		INSERT INTO streak_states (
			user_id, current_streak, longest_streak, last_active_date, total_days,
			grace_used, grace_last_used, prayer_current, prayer_longest, prayer_last_active, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_active_date = EXCLUDED.last_active_date,
			total_days = EXCLUDED.total_days,
			grace_used = EXCLUDED.grace_used,
			grace_last_used = EXCLUDED.grace_last_used,
			prayer_current = EXCLUDED.prayer_current,
			prayer_longest = EXCLUDED.prayer_longest,
			prayer_last_active = EXCLUDED.prayer_last_active,
			updated_at = EXCLUDED.updated_at
	`

	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx, query,
		string(s.UserID),
		s.CurrentStreak,
		s.LongestStreak,
		dateFromDay(s.LastActiveDate),
		s.TotalDays,
		s.GraceUsed,
		dateFromDay(s.GraceLastUsed),
		s.PrayerCurrent,
		s.PrayerLongest,
		dateFromDay(s.PrayerLastActive),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put streak state: %w", err)
	}
	return nil
}

// GetStreakState returns the user's state or nil.
func (r *ProgressionRepository) GetStreakState(ctx context.Context, userID progression.UserID) (*progression.StreakState, error) {
	return r.getStreak(ctx, r.conn, userID, false)
}

// UpdateStreakState serializes concurrent updates for one user. A
// transaction-scoped advisory lock covers the first write, when there is
// no row for FOR UPDATE to lock yet.
func (r *ProgressionRepository) UpdateStreakState(ctx context.Context, userID progression.UserID, fn progression.StreakMutation) (*progression.StreakState, error) {
	var result *progression.StreakState

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "streak:"+string(userID)); err != nil {
			return fmt.Errorf("failed to lock streak: %w", err)
		}

		current, err := r.getStreak(ctx, tx, userID, true)
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
		if err := r.putStreak(ctx, tx, next); err != nil {
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
func (r *ProgressionRepository) PutStreakState(ctx context.Context, state *progression.StreakState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	return r.putStreak(ctx, r.conn, state)
}

// ─────────────────────────────────────────────────────────────────────────────
// XP Ledger
// ─────────────────────────────────────────────────────────────────────────────

func (r *ProgressionRepository) getAggregate(ctx context.Context, q Querier, userID progression.UserID, forUpdate bool) (progression.XPAggregate, error) {
	query := `SELECT total_xp, current_level, updated_at FROM xp_aggregates WHERE user_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	agg := progression.XPAggregate{UserID: userID}
	err := q.QueryRow(ctx, query, string(userID)).Scan(&agg.TotalXP, &agg.CurrentLevel, &agg.UpdatedAt)
	if IsNoRows(err) {
		return progression.NewXPAggregate(userID), nil
	}
	if err != nil {
		return progression.XPAggregate{}, fmt.Errorf("failed to get xp aggregate: %w", err)
	}
	agg.UpdatedAt = agg.UpdatedAt.UTC()
	return agg, nil
}

func (r *ProgressionRepository) putAggregate(ctx context.Context, q Querier, agg progression.XPAggregate) error {
	query := `
		INSERT INTO xp_aggregates (user_id, total_xp, current_level, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			current_level = EXCLUDED.current_level,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := agg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := q.Exec(ctx, query, string(agg.UserID), agg.TotalXP, agg.CurrentLevel, updatedAt); err != nil {
		return fmt.Errorf("failed to put xp aggregate: %w", err)
	}
	return nil
}

// GetXPAggregate returns the cached aggregate.
func (r *ProgressionRepository) GetXPAggregate(ctx context.Context, userID progression.UserID) (progression.XPAggregate, error) {
	return r.getAggregate(ctx, r.conn, userID, false)
}

// AppendXPEvent appends the event and moves the aggregate in one transaction.
// The aggregate row is created first so FOR UPDATE always has a row to lock.
func (r *ProgressionRepository) AppendXPEvent(ctx context.Context, event progression.XPEvent) (progression.XPAggregate, progression.XPAggregate, error) {
	var prev, next progression.XPAggregate

	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return prev, next, fmt.Errorf("failed to marshal xp context: %w", err)
	}

	err = r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO xp_aggregates (user_id, total_xp, current_level, updated_at)
			VALUES ($1, 0, $2, NOW())
			ON CONFLICT (user_id) DO NOTHING`,
			string(event.UserID), progression.LevelFor(0).Number,
		)
		if err != nil {
			return fmt.Errorf("failed to ensure xp aggregate: %w", err)
		}

		prev, err = r.getAggregate(ctx, tx, event.UserID, true)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO xp_events (id, user_id, event_type, xp_earned, context, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			event.ID, string(event.UserID), string(event.EventType), event.Amount, contextJSON, event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append xp event: %w", err)
		}

		next = prev.Add(event.Amount, event.CreatedAt)
		return r.putAggregate(ctx, tx, next)
	})
	if err != nil {
		return progression.XPAggregate{}, progression.XPAggregate{}, err
	}
	return prev, next, nil
}

// PutXPAggregate overwrites the aggregate.
func (r *ProgressionRepository) PutXPAggregate(ctx context.Context, agg progression.XPAggregate) error {
	return r.putAggregate(ctx, r.conn, agg)
}

// ListXPEvents returns newest first.
func (r *ProgressionRepository) ListXPEvents(ctx context.Context, userID progression.UserID, limit int) ([]progression.XPEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id::text, event_type, xp_earned, context, created_at
		FROM xp_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list xp events: %w", err)
	}
	defer rows.Close()

	var events []progression.XPEvent
	for rows.Next() {
		var (
			ev          = progression.XPEvent{UserID: userID}
			eventType   string
			contextJSON []byte
		)
		if err := rows.Scan(&ev.ID, &eventType, &ev.Amount, &contextJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan xp event: %w", err)
		}
		if err := json.Unmarshal(contextJSON, &ev.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal xp context: %w", err)
		}
		ev.EventType = progression.EventType(eventType)
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

// ListAchievementDefs returns the catalog ordered for display.
func (r *ProgressionRepository) ListAchievementDefs(ctx context.Context) ([]progression.AchievementDef, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, key, name, description, xp_value, category, tier_required, hidden, sort_order, criteria
		FROM achievement_defs
		ORDER BY sort_order, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement defs: %w", err)
	}
	defer rows.Close()

	var defs []progression.AchievementDef
	for rows.Next() {
		var (
			d        progression.AchievementDef
			id       int64
			criteria []byte
		)
		if err := rows.Scan(&id, &d.Key, &d.Name, &d.Description, &d.XPValue,
			&d.Category, &d.TierRequired, &d.Hidden, &d.SortOrder, &criteria); err != nil {
			return nil, fmt.Errorf("failed to scan achievement def: %w", err)
		}
		if err := json.Unmarshal(criteria, &d.Rule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal criteria of %s: %w", d.Key, err)
		}
		d.ID = progression.AchievementID(id)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// SeedAchievementDefs inserts definitions whose key is not present yet.
func (r *ProgressionRepository) SeedAchievementDefs(ctx context.Context, defs []progression.AchievementDef) (int, error) {
	inserted := 0
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		inserted = 0
		for _, d := range defs {
			criteria, err := json.Marshal(d.Rule)
			if err != nil {
				return fmt.Errorf("failed to marshal criteria of %s: %w", d.Key, err)
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO achievement_defs
					(key, name, description, xp_value, category, tier_required, hidden, sort_order, criteria)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (key) DO NOTHING`,
				d.Key, d.Name, d.Description, d.XPValue, d.Category, d.TierRequired,
				d.Hidden, d.SortOrder, criteria,
			)
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", d.Key, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}

// GetEarnedAchievementIDs returns the user's unlocked ids.
func (r *ProgressionRepository) GetEarnedAchievementIDs(ctx context.Context, userID progression.UserID) (map[progression.AchievementID]struct{}, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = $1`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[progression.AchievementID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan earned achievement: %w", err)
		}
		earned[progression.AchievementID(id)] = struct{}{}
	}
	return earned, rows.Err()
}

// InsertUserAchievement records an unlock; the unique constraint turns a
// concurrent duplicate into shared.ErrAchievementUnlocked.
func (r *ProgressionRepository) InsertUserAchievement(ctx context.Context, userID progression.UserID, id progression.AchievementID, unlockedAt time.Time) error {
	_, err := r.conn.Exec(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES ($1, $2, $3)`,
		string(userID), int64(id), unlockedAt.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAchievementUnlocked
		}
		return fmt.Errorf("failed to insert user achievement: %w", err)
	}
	return nil
}

// ListUserAchievements returns unlocks oldest first.
func (r *ProgressionRepository) ListUserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT ua.achievement_id, d.key, ua.unlocked_at
		FROM user_achievements ua
		JOIN achievement_defs d ON d.id = ua.achievement_id
		WHERE ua.user_id = $1
		ORDER BY ua.unlocked_at, ua.id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	defer rows.Close()

	var out []progression.UserAchievement
	for rows.Next() {
		var (
			ua = progression.UserAchievement{UserID: userID}
			id int64
		)
		if err := rows.Scan(&id, &ua.Key, &ua.UnlockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user achievement: %w", err)
		}
		ua.AchievementID = progression.AchievementID(id)
		ua.UnlockedAt = ua.UnlockedAt.UTC()
		out = append(out, ua)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Book Progress
// ─────────────────────────────────────────────────────────────────────────────

// MarkBookCompleted records a finished book once.
func (r *ProgressionRepository) MarkBookCompleted(ctx context.Context, userID progression.UserID, book string, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO completed_books (user_id, book, completed_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book) DO NOTHING`,
		string(userID), progression.NormalizeBook(book), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark book completed: %w", err)
	}
	return nil
}

// CompletedBooks returns normalized names of finished books.
func (r *ProgressionRepository) CompletedBooks(ctx context.Context, userID progression.UserID) (map[string]struct{}, error) {
	rows, err := r.conn.Query(ctx, `SELECT book FROM completed_books WHERE user_id = $1`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list completed books: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var book string
		if err := rows.Scan(&book); err != nil {
			return nil, fmt.Errorf("failed to scan completed book: %w", err)
		}
		out[book] = struct{}{}
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func dateFromDay(d progression.Day) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func dayFromDate(d pgtype.Date) progression.Day {
	if !d.Valid {
		return progression.Day{}
	}
	return progression.NewDay(d.Time.Year(), d.Time.Month(), d.Time.Day())
}
