package command

import (
	"context"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Entry point for a qualifying activity: resolves "today" from the server
// clock, advances the streak and evaluates the activity's own achievements.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	UserID       progression.UserID
	ActivityType progression.ActivityType

	// Book and Chapter describe a chapter_read; Extra carries counters such
	// as {"count": 10} for count-based rules.
	Book    string
	Chapter int
	Extra   map[string]any

	// OccurredAt is informational. The credited day always comes from the
	// server clock.
	OccurredAt time.Time
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if err := c.ActivityType.Validate(); err != nil {
		return err
	}
	if c.Chapter < 0 {
		return shared.Validation("activity", "Record", "chapter must be >= 0, got %d", c.Chapter)
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	StreakState *progression.StreakState
	Transition  progression.StreakTransition

	// Credited is true when the main streak counted a new day.
	Credited bool

	XPDelta              int
	LeveledUp            bool
	UnlockedAchievements []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	streak       *AdvanceStreakHandler
	achievements AchievementUnlocker
	clock        timeutil.Clock
	log          *logger.Logger
}

// NewRecordActivityHandler creates a new RecordActivityHandler.
func NewRecordActivityHandler(
	streak *AdvanceStreakHandler,
	achievements AchievementUnlocker,
	clock timeutil.Clock,
	log *logger.Logger,
) *RecordActivityHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(time.UTC)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecordActivityHandler{
		streak:       streak,
		achievements: achievements,
		clock:        clock,
		log:          log.With(logger.Component("record_activity")),
	}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	today := progression.DayOf(h.clock.Now(), h.clock.Location())

	sr, err := h.streak.Handle(ctx, AdvanceStreakCommand{
		UserID:       cmd.UserID,
		ActivityType: cmd.ActivityType,
		Today:        today,
	})
	if err != nil {
		return nil, err
	}

	result := &RecordActivityResult{
		StreakState: sr.State,
		Transition:  sr.Outcome.Transition,
		Credited:    sr.Credited(),
		XPDelta:     sr.XPDelta,
		LeveledUp:   sr.LeveledUp,
	}
	unlocks := sr.Unlocks

	if kind, ok := activityTrigger(cmd.ActivityType); ok && h.achievements != nil {
		more, err := h.achievements.Unlock(ctx, cmd.UserID, progression.Trigger{
			Kind:    kind,
			Book:    cmd.Book,
			Chapter: cmd.Chapter,
			Extra:   cmd.Extra,
		})
		if err != nil {
			h.log.Error("activity achievement evaluation failed",
				logger.UserID(cmd.UserID.String()),
				logger.ActivityType(string(cmd.ActivityType)),
				logger.Err(err),
			)
		}
		for _, u := range more {
			result.XPDelta += u.XPAwarded
			result.LeveledUp = result.LeveledUp || u.LeveledUp
		}
		unlocks = append(unlocks, more...)
	}

	result.UnlockedAchievements = make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		result.UnlockedAchievements = append(result.UnlockedAchievements, u.Key)
	}

	h.log.Info("activity recorded",
		logger.UserID(cmd.UserID.String()),
		logger.ActivityType(string(cmd.ActivityType)),
		logger.String("day", today.String()),
		logger.String("transition", string(result.Transition)),
		logger.Streak(result.StreakState.CurrentStreak),
		logger.XPAmount(result.XPDelta),
		logger.Time("occurred_at", cmd.OccurredAt),
	)

	return result, nil
}

// activityTrigger maps an activity onto the achievement trigger it fires.
// Prayer, highlight and review activities only count toward streaks.
func activityTrigger(t progression.ActivityType) (progression.TriggerKind, bool) {
	switch t {
	case progression.ActivityChapterRead:
		return progression.TriggerChapterRead, true
	case progression.ActivityJournalAnswer:
		return progression.TriggerJournalAnswer, true
	case progression.ActivityMemoryVerseMastered:
		return progression.TriggerMemoryVerseMastered, true
	case progression.ActivityPrayerEntry, progression.ActivityHighlightAdded, progression.ActivityMemoryVerseReviewed:
		return "", false
	}
	return "", false
}
