package progression

import (
	"context"
	"time"
)

// StreakMutation receives the locked current state (nil when the user has
// none) and returns the state to persist, or nil to write nothing.
type StreakMutation func(current *StreakState) (*StreakState, error)

// StreakRepository defines persistence for streak state.
type StreakRepository interface {
	// GetStreakState returns the user's state, or nil if none exists yet.
	GetStreakState(ctx context.Context, userID UserID) (*StreakState, error)

	// UpdateStreakState runs fn against the current state while holding a
	// per-user lock and persists its result in the same transaction.
	// Returns the state as stored after the call.
	UpdateStreakState(ctx context.Context, userID UserID, fn StreakMutation) (*StreakState, error)

	// PutStreakState upserts a state unconditionally.
	PutStreakState(ctx context.Context, state *StreakState) error
}

// XPRepository defines persistence for the XP ledger.
type XPRepository interface {
	// GetXPAggregate returns the cached aggregate; a user without events
	// gets NewXPAggregate.
	GetXPAggregate(ctx context.Context, userID UserID) (XPAggregate, error)

	// AppendXPEvent writes the event and updates the aggregate in one
	// transaction, locking the user's aggregate row. Returns the aggregate
	// before and after.
	AppendXPEvent(ctx context.Context, event XPEvent) (prev, next XPAggregate, err error)

	// PutXPAggregate overwrites the cached aggregate.
	PutXPAggregate(ctx context.Context, agg XPAggregate) error

	// ListXPEvents returns the newest events first.
	ListXPEvents(ctx context.Context, userID UserID, limit int) ([]XPEvent, error)
}

// AchievementRepository defines persistence for the catalog and unlocks.
type AchievementRepository interface {
	// ListAchievementDefs returns the catalog ordered by sort_order, key.
	ListAchievementDefs(ctx context.Context) ([]AchievementDef, error)

	// SeedAchievementDefs inserts missing definitions by key; existing rows
	// are left untouched.
	SeedAchievementDefs(ctx context.Context, defs []AchievementDef) (inserted int, err error)

	// GetEarnedAchievementIDs returns the ids the user has unlocked.
	GetEarnedAchievementIDs(ctx context.Context, userID UserID) (map[AchievementID]struct{}, error)

	// InsertUserAchievement records an unlock. A duplicate pair yields an
	// error matching shared.ErrConflict.
	InsertUserAchievement(ctx context.Context, userID UserID, id AchievementID, unlockedAt time.Time) error

	// ListUserAchievements returns unlocks, oldest first.
	ListUserAchievements(ctx context.Context, userID UserID) ([]UserAchievement, error)
}

// BookProgressRepository tracks which books a user has completed.
type BookProgressRepository interface {
	// MarkBookCompleted is idempotent.
	MarkBookCompleted(ctx context.Context, userID UserID, book string, at time.Time) error

	// CompletedBooks returns normalized book names.
	CompletedBooks(ctx context.Context, userID UserID) (map[string]struct{}, error)
}

// Store bundles every repository the engine needs.
type Store interface {
	StreakRepository
	XPRepository
	AchievementRepository
	BookProgressRepository
}
