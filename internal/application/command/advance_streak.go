package command

import (
	"context"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADVANCE STREAK COMMAND
// One atomic read-modify-write of the streak row, then best-effort XP and
// achievement side effects. Nothing after the commit can undo it.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementUnlocker evaluates a trigger and grants matching achievements.
type AchievementUnlocker interface {
	Unlock(ctx context.Context, userID progression.UserID, trigger progression.Trigger) ([]progression.Unlock, error)
}

// FeatureGate answers per-user feature toggles.
type FeatureGate interface {
	Enabled(feature, userID string) bool
}

// Toggles consulted by AdvanceStreakHandler.
const (
	// FeatureMilestoneBonus awards streak_7 and streak_30 bonus XP.
	FeatureMilestoneBonus = "progression.milestone_bonus"

	// FeaturePrayerAchievements evaluates prayer_streak triggers.
	FeaturePrayerAchievements = "progression.prayer_achievements"
)

// AdvanceStreakCommand credits one qualifying activity on a given day.
type AdvanceStreakCommand struct {
	UserID       progression.UserID
	ActivityType progression.ActivityType
	Today        progression.Day
}

// Validate validates the command.
func (c AdvanceStreakCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if err := c.ActivityType.Validate(); err != nil {
		return err
	}
	if c.Today.IsZero() {
		return shared.Validation("streak", "Advance", "today is required")
	}
	return nil
}

// AdvanceStreakResult contains the result of a streak update.
type AdvanceStreakResult struct {
	State   *progression.StreakState
	Outcome progression.StreakOutcome

	// XPDelta sums every award this call caused, achievement XP included.
	XPDelta   int
	LeveledUp bool
	Unlocks   []progression.Unlock
}

// Credited reports whether the main streak counted a new day.
func (r *AdvanceStreakResult) Credited() bool {
	return r.Outcome.Transition.Credited()
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceStreakHandler handles the AdvanceStreakCommand.
type AdvanceStreakHandler struct {
	repo           progression.StreakRepository
	xp             *AwardXPHandler
	achievements   AchievementUnlocker
	features       FeatureGate
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewAdvanceStreakHandler creates a new AdvanceStreakHandler. achievements,
// features and publisher may be nil.
func NewAdvanceStreakHandler(
	repo progression.StreakRepository,
	xp *AwardXPHandler,
	achievements AchievementUnlocker,
	features FeatureGate,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *AdvanceStreakHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AdvanceStreakHandler{
		repo:           repo,
		xp:             xp,
		achievements:   achievements,
		features:       features,
		eventPublisher: publisher,
		log:            log.With(logger.Component("advance_streak")),
	}
}

// Handle executes the advance streak command.
func (h *AdvanceStreakHandler) Handle(ctx context.Context, cmd AdvanceStreakCommand) (*AdvanceStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var outcome progression.StreakOutcome
	state, err := h.repo.UpdateStreakState(ctx, cmd.UserID, func(current *progression.StreakState) (*progression.StreakState, error) {
		if current == nil {
			current = progression.NewStreakState(cmd.UserID)
		}
		outcome = current.Apply(cmd.Today, cmd.ActivityType)
		if !outcome.Changed() {
			return nil, nil
		}
		return current, nil
	})
	if err != nil {
		return nil, shared.Storage("streak", "Advance", "update streak state", err)
	}
	if state == nil {
		state = progression.NewStreakState(cmd.UserID)
	}

	result := &AdvanceStreakResult{State: state, Outcome: outcome}
	if !outcome.Changed() {
		return result, nil
	}

	log := h.log.With(
		logger.UserID(cmd.UserID.String()),
		logger.ActivityType(string(cmd.ActivityType)),
	)
	user := cmd.UserID.String()

	if result.Credited() {
		log.Debug("streak advanced",
			logger.String("transition", string(outcome.Transition)),
			logger.Streak(state.CurrentStreak),
		)

		h.award(ctx, log, result, AwardXPCommand{
			UserID:    cmd.UserID,
			EventType: progression.EventStreakDay,
			Context:   map[string]any{"day": cmd.Today.String(), "streak": state.CurrentStreak},
		})

		if milestone, ok := progression.MilestoneFor(state.CurrentStreak); ok && h.enabled(FeatureMilestoneBonus, user) {
			h.award(ctx, log, result, AwardXPCommand{
				UserID:    cmd.UserID,
				EventType: milestone,
				Context:   map[string]any{"streak": state.CurrentStreak},
			})
		}

		h.unlock(ctx, log, result, cmd.UserID, progression.Trigger{
			Kind:   progression.TriggerStreak,
			Streak: state.CurrentStreak,
		})

		h.publish(log, shared.NewStreakUpdatedEvent(user, string(outcome.Transition), state.CurrentStreak, state.LongestStreak, state.GraceUsed))
	}

	if outcome.PrayerAdvanced && h.enabled(FeaturePrayerAchievements, user) {
		h.unlock(ctx, log, result, cmd.UserID, progression.Trigger{
			Kind:   progression.TriggerPrayerStreak,
			Streak: state.PrayerCurrent,
		})
	}

	return result, nil
}

func (h *AdvanceStreakHandler) award(ctx context.Context, log *logger.Logger, result *AdvanceStreakResult, cmd AwardXPCommand) {
	res, err := h.xp.Handle(ctx, cmd)
	if err != nil {
		log.Error("streak committed but xp award failed",
			logger.EventType(string(cmd.EventType)),
			logger.Err(err),
		)
		return
	}
	result.XPDelta += res.Amount
	result.LeveledUp = result.LeveledUp || res.LeveledUp
}

func (h *AdvanceStreakHandler) unlock(ctx context.Context, log *logger.Logger, result *AdvanceStreakResult, userID progression.UserID, trigger progression.Trigger) {
	if h.achievements == nil {
		return
	}
	unlocks, err := h.achievements.Unlock(ctx, userID, trigger)
	for _, u := range unlocks {
		result.XPDelta += u.XPAwarded
		result.LeveledUp = result.LeveledUp || u.LeveledUp
	}
	result.Unlocks = append(result.Unlocks, unlocks...)
	if err != nil {
		log.Error("achievement evaluation failed",
			logger.String("trigger", string(trigger.Kind)),
			logger.Err(err),
		)
	}
}

func (h *AdvanceStreakHandler) enabled(feature, userID string) bool {
	return h.features == nil || h.features.Enabled(feature, userID)
}

func (h *AdvanceStreakHandler) publish(log *logger.Logger, event shared.Event) {
	if err := h.eventPublisher.Publish(event); err != nil {
		log.Warn("failed to publish event", logger.EventType(string(event.EventType())), logger.Err(err))
	}
}
