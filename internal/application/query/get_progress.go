// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// One read of everything a profile screen shows: streak, XP, level and the
// achievements already earned.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressQuery contains the parameters of the query.
type GetProgressQuery struct {
	UserID progression.UserID
}

// Validate validates the query.
func (q GetProgressQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// ProgressDTO is the user's progression snapshot.
type ProgressDTO struct {
	UserID string `json:"user_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Streak
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	TotalDays      int    `json:"total_days"`
	LastActiveDate string `json:"last_active_date,omitempty"`
	GraceUsed      bool   `json:"grace_used"`
	GraceLastUsed  string `json:"grace_last_used,omitempty"`

	PrayerCurrent    int    `json:"prayer_current"`
	PrayerLongest    int    `json:"prayer_longest"`
	PrayerLastActive string `json:"prayer_last_active,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// XP and level
	// ─────────────────────────────────────────────────────────────────────────

	TotalXP    int    `json:"total_xp"`
	Level      int    `json:"level"`
	LevelTitle string `json:"level_title"`

	// NextLevelXP is zero at the top level.
	NextLevelXP   int     `json:"next_level_xp,omitempty"`
	XPToNextLevel int     `json:"xp_to_next_level"`
	LevelProgress float64 `json:"level_progress"`

	// ─────────────────────────────────────────────────────────────────────────
	// Achievements
	// ─────────────────────────────────────────────────────────────────────────

	Achievements []EarnedAchievementDTO `json:"achievements"`
}

// EarnedAchievementDTO is one unlock.
type EarnedAchievementDTO struct {
	Key        string    `json:"key"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ProgressReader is what GetProgress reads from.
type ProgressReader interface {
	GetStreakState(ctx context.Context, userID progression.UserID) (*progression.StreakState, error)
	GetXPAggregate(ctx context.Context, userID progression.UserID) (progression.XPAggregate, error)
	ListUserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error)
}

// GetProgressHandler handles GetProgressQuery.
type GetProgressHandler struct {
	store ProgressReader
}

// NewGetProgressHandler creates a new GetProgressHandler.
func NewGetProgressHandler(store ProgressReader) *GetProgressHandler {
	return &GetProgressHandler{store: store}
}

// Handle executes the query. A user with no history gets the zero snapshot.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	streak, err := h.store.GetStreakState(ctx, q.UserID)
	if err != nil {
		return nil, shared.Storage("progress", "Get", "read streak", err)
	}
	if streak == nil {
		streak = progression.NewStreakState(q.UserID)
	}

	agg, err := h.store.GetXPAggregate(ctx, q.UserID)
	if err != nil {
		return nil, shared.Storage("progress", "Get", "read xp aggregate", err)
	}

	earned, err := h.store.ListUserAchievements(ctx, q.UserID)
	if err != nil {
		return nil, shared.Storage("progress", "Get", "read achievements", err)
	}

	dto := &ProgressDTO{
		UserID:           q.UserID.String(),
		CurrentStreak:    streak.CurrentStreak,
		LongestStreak:    streak.LongestStreak,
		TotalDays:        streak.TotalDays,
		LastActiveDate:   streak.LastActiveDate.String(),
		GraceUsed:        streak.GraceUsed,
		GraceLastUsed:    streak.GraceLastUsed.String(),
		PrayerCurrent:    streak.PrayerCurrent,
		PrayerLongest:    streak.PrayerLongest,
		PrayerLastActive: streak.PrayerLastActive.String(),
		TotalXP:          agg.TotalXP,
		Achievements:     make([]EarnedAchievementDTO, 0, len(earned)),
	}

	level := progression.LevelFor(agg.TotalXP)
	dto.Level = level.Number
	dto.LevelTitle = level.Title
	if next, ok := progression.NextLevel(level); ok {
		dto.NextLevelXP = next.MinXP
		dto.XPToNextLevel = next.MinXP - agg.TotalXP
		dto.LevelProgress = float64(agg.TotalXP-level.MinXP) / float64(next.MinXP-level.MinXP)
	} else {
		dto.LevelProgress = 1
	}

	for _, a := range earned {
		dto.Achievements = append(dto.Achievements, EarnedAchievementDTO{Key: a.Key, UnlockedAt: a.UnlockedAt})
	}

	return dto, nil
}
