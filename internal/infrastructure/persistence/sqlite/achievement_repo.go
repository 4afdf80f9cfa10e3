package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ListAchievementDefs returns the catalog ordered for display.
func (s *Store) ListAchievementDefs(ctx context.Context) ([]progression.AchievementDef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, name, description, xp_value, category, tier_required, hidden, sort_order, criteria
		FROM achievement_defs
		ORDER BY sort_order, key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list achievement defs: %w", err)
	}
	defer rows.Close()

	var defs []progression.AchievementDef
	for rows.Next() {
		var (
			d        progression.AchievementDef
			hidden   int
			criteria string
		)
		if err := rows.Scan(&d.ID, &d.Key, &d.Name, &d.Description, &d.XPValue,
			&d.Category, &d.TierRequired, &hidden, &d.SortOrder, &criteria); err != nil {
			return nil, fmt.Errorf("sqlite: scan achievement def: %w", err)
		}
		if err := json.Unmarshal([]byte(criteria), &d.Rule); err != nil {
			return nil, fmt.Errorf("sqlite: decode criteria of %s: %w", d.Key, err)
		}
		d.Hidden = hidden == 1
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// SeedAchievementDefs inserts definitions whose key is not present yet.
func (s *Store) SeedAchievementDefs(ctx context.Context, defs []progression.AchievementDef) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		now := time.Now().UTC().UnixMilli()
		for _, d := range defs {
			criteria, err := json.Marshal(d.Rule)
			if err != nil {
				return fmt.Errorf("sqlite: encode criteria of %s: %w", d.Key, err)
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO achievement_defs
					(key, name, description, xp_value, category, tier_required, hidden, sort_order, criteria, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (key) DO NOTHING`,
				d.Key, d.Name, d.Description, d.XPValue, d.Category, d.TierRequired,
				boolInt(d.Hidden), d.SortOrder, string(criteria), now,
			)
			if err != nil {
				return fmt.Errorf("sqlite: seed %s: %w", d.Key, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

// GetEarnedAchievementIDs returns the user's unlocked ids.
func (s *Store) GetEarnedAchievementIDs(ctx context.Context, userID progression.UserID) (map[progression.AchievementID]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = ?`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get earned achievements: %w", err)
	}
	defer rows.Close()

	earned := make(map[progression.AchievementID]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan earned achievement: %w", err)
		}
		earned[progression.AchievementID(id)] = struct{}{}
	}
	return earned, rows.Err()
}

// InsertUserAchievement records an unlock; duplicates surface as a conflict.
func (s *Store) InsertUserAchievement(ctx context.Context, userID progression.UserID, id progression.AchievementID, unlockedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES (?, ?, ?)`,
		string(userID), int64(id), millis(unlockedAt),
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("sqlite: %w", shared.ErrAchievementUnlocked)
	}
	if err != nil {
		return fmt.Errorf("sqlite: insert user achievement: %w", err)
	}
	return nil
}

// ListUserAchievements returns unlocks oldest first.
func (s *Store) ListUserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ua.achievement_id, d.key, ua.unlocked_at
		FROM user_achievements ua
		JOIN achievement_defs d ON d.id = ua.achievement_id
		WHERE ua.user_id = ?
		ORDER BY ua.unlocked_at, ua.id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list user achievements: %w", err)
	}
	defer rows.Close()

	var out []progression.UserAchievement
	for rows.Next() {
		var (
			ua         = progression.UserAchievement{UserID: userID}
			id         int64
			unlockedAt int64
		)
		if err := rows.Scan(&id, &ua.Key, &unlockedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan user achievement: %w", err)
		}
		ua.AchievementID = progression.AchievementID(id)
		ua.UnlockedAt = fromMillis(unlockedAt)
		out = append(out, ua)
	}
	return out, rows.Err()
}

// MarkBookCompleted records a finished book once.
func (s *Store) MarkBookCompleted(ctx context.Context, userID progression.UserID, book string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completed_books (user_id, book, completed_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, book) DO NOTHING`,
		string(userID), progression.NormalizeBook(book), millis(at),
	)
	if err != nil {
		return fmt.Errorf("sqlite: mark book completed: %w", err)
	}
	return nil
}

// CompletedBooks returns normalized names of finished books.
func (s *Store) CompletedBooks(ctx context.Context, userID progression.UserID) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book FROM completed_books WHERE user_id = ?`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: completed books: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var book string
		if err := rows.Scan(&book); err != nil {
			return nil, fmt.Errorf("sqlite: scan completed book: %w", err)
		}
		out[book] = struct{}{}
	}
	return out, rows.Err()
}
