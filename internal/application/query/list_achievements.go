package query

import (
	"context"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// The catalog as a user sees it. Hidden entries stay secret until earned.
// ══════════════════════════════════════════════════════════════════════════════

const (
	hiddenName        = "Hidden achievement"
	hiddenDescription = "Keep going to discover this one."
)

// ListAchievementsQuery contains the parameters of the query.
type ListAchievementsQuery struct {
	// UserID is optional. Without it nothing is earned and every hidden
	// entry is redacted.
	UserID progression.UserID
}

// Validate validates the query.
func (q ListAchievementsQuery) Validate() error {
	if q.UserID != "" && !q.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// AchievementDTO is one catalog entry for display.
type AchievementDTO struct {
	Key          string     `json:"key"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	XPValue      int        `json:"xp_value"`
	Category     string     `json:"category"`
	TierRequired string     `json:"tier_required,omitempty"`
	Hidden       bool       `json:"hidden"`
	Earned       bool       `json:"earned"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementReader is what ListAchievements reads from.
type AchievementReader interface {
	ListAchievementDefs(ctx context.Context) ([]progression.AchievementDef, error)
	ListUserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error)
}

// ListAchievementsHandler handles ListAchievementsQuery.
type ListAchievementsHandler struct {
	repo AchievementReader
}

// NewListAchievementsHandler creates a new ListAchievementsHandler.
func NewListAchievementsHandler(repo AchievementReader) *ListAchievementsHandler {
	return &ListAchievementsHandler{repo: repo}
}

// Handle executes the query. Entries keep catalog order.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) ([]AchievementDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	defs, err := h.repo.ListAchievementDefs(ctx)
	if err != nil {
		return nil, shared.Storage("achievement", "List", "load catalog", err)
	}

	unlocked := make(map[progression.AchievementID]time.Time)
	if q.UserID != "" {
		earned, err := h.repo.ListUserAchievements(ctx, q.UserID)
		if err != nil {
			return nil, shared.Storage("achievement", "List", "load earned", err)
		}
		for _, a := range earned {
			unlocked[a.AchievementID] = a.UnlockedAt
		}
	}

	out := make([]AchievementDTO, 0, len(defs))
	for _, d := range defs {
		dto := AchievementDTO{
			Key:          d.Key,
			Name:         d.Name,
			Description:  d.Description,
			XPValue:      d.XPValue,
			Category:     d.Category,
			TierRequired: d.TierRequired,
			Hidden:       d.Hidden,
		}
		if at, ok := unlocked[d.ID]; ok {
			dto.Earned = true
			dto.UnlockedAt = &at
		} else if d.Hidden {
			dto.Name = hiddenName
			dto.Description = hiddenDescription
		}
		out = append(out, dto)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST XP HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListXPHistoryQuery contains the parameters of the query.
type ListXPHistoryQuery struct {
	UserID progression.UserID

	// Limit defaults to the store's page size when zero.
	Limit int
}

// Validate validates the query.
func (q ListXPHistoryQuery) Validate() error {
	if !q.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if q.Limit < 0 {
		return shared.Validation("xp", "History", "limit cannot be negative")
	}
	return nil
}

// XPEventDTO is one ledger row.
type XPEventDTO struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Amount    int            `json:"amount"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListXPHistoryHandler handles ListXPHistoryQuery.
type ListXPHistoryHandler struct {
	repo progression.XPRepository
}

// NewListXPHistoryHandler creates a new ListXPHistoryHandler.
func NewListXPHistoryHandler(repo progression.XPRepository) *ListXPHistoryHandler {
	return &ListXPHistoryHandler{repo: repo}
}

// Handle returns the newest events first.
func (h *ListXPHistoryHandler) Handle(ctx context.Context, q ListXPHistoryQuery) ([]XPEventDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	events, err := h.repo.ListXPEvents(ctx, q.UserID, q.Limit)
	if err != nil {
		return nil, shared.Storage("xp", "History", "list events", err)
	}

	out := make([]XPEventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, XPEventDTO{
			ID:        e.ID,
			EventType: string(e.EventType),
			Amount:    e.Amount,
			Context:   e.Context,
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}
