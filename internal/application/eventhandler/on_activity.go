// Package eventhandler contains the hooks other features call after their
// own write has committed. Hooks never fail the caller.
package eventhandler

import (
	"context"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACTIVITY HANDLER
// Steps per event:
// 1. Record the activity against the streak when it is a daily activity
// 2. Award the base XP of the event once the streak write has committed
// 3. Evaluate achievements for events that do not touch the streak
// ═══════════════════════════════════════════════════════════════════════════

// ActivityEvent is a finished user action reported by a calling feature.
type ActivityEvent struct {
	UserID progression.UserID
	Kind   progression.EventType

	Book    string
	Chapter int

	// Count is an optional running total (answers written, trails followed)
	// for count-based achievements. Zero means unknown.
	Count int
}

// Summary is the best-effort outcome of one hook call.
type Summary struct {
	XPDelta              int                          `json:"xp_delta"`
	LeveledUp            bool                         `json:"leveled_up"`
	StreakState          *progression.StreakState     `json:"-"`
	Transition           progression.StreakTransition `json:"transition,omitempty"`
	UnlockedAchievements []string                     `json:"unlocked_achievements"`

	// Failures counts the steps that were logged and skipped.
	Failures int `json:"failures"`
}

// ActivityHandler is the integration boundary of the progression engine.
type ActivityHandler struct {
	xp           *command.AwardXPHandler
	record       *command.RecordActivityHandler
	achievements command.AchievementUnlocker
	log          *logger.Logger
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(
	xp *command.AwardXPHandler,
	record *command.RecordActivityHandler,
	achievements command.AchievementUnlocker,
	log *logger.Logger,
) *ActivityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ActivityHandler{
		xp:           xp,
		record:       record,
		achievements: achievements,
		log:          log.With(logger.Component("activity_handler")),
	}
}

// OnChapterRead is called after a chapter is marked read.
func (h *ActivityHandler) OnChapterRead(ctx context.Context, userID progression.UserID, book string, chapter int) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventChapterRead, Book: book, Chapter: chapter})
}

// OnJournalAnswered is called after a journal answer is saved. count is
// the user's total number of answers, or zero when unknown.
func (h *ActivityHandler) OnJournalAnswered(ctx context.Context, userID progression.UserID, count int) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventJournalAnswer, Count: count})
}

// OnPrayerLogged is called after a prayer entry is saved.
func (h *ActivityHandler) OnPrayerLogged(ctx context.Context, userID progression.UserID) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventPrayerEntry})
}

// OnHighlightAdded is called after a highlight is saved.
func (h *ActivityHandler) OnHighlightAdded(ctx context.Context, userID progression.UserID) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventHighlightAdded})
}

// OnMemoryVerseReviewed is called after a review session.
func (h *ActivityHandler) OnMemoryVerseReviewed(ctx context.Context, userID progression.UserID) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventMemoryVerseReviewed})
}

// OnMemoryVerseMastered is called when a verse reaches mastery.
func (h *ActivityHandler) OnMemoryVerseMastered(ctx context.Context, userID progression.UserID, count int) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventMemoryVerseMastered, Count: count})
}

// OnTrailFollowed is called after a cross-reference trail is followed.
func (h *ActivityHandler) OnTrailFollowed(ctx context.Context, userID progression.UserID, count int) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventTrailFollowed, Count: count})
}

// OnBookCompleted is called when the last chapter of a book is read.
func (h *ActivityHandler) OnBookCompleted(ctx context.Context, userID progression.UserID, book string) Summary {
	return h.Handle(ctx, ActivityEvent{UserID: userID, Kind: progression.EventBookCompleted, Book: book})
}

// Handle runs every step for ev, logging and skipping failed ones.
func (h *ActivityHandler) Handle(ctx context.Context, ev ActivityEvent) Summary {
	log := h.log.With(logger.UserID(ev.UserID.String()), logger.EventType(string(ev.Kind)))
	sum := Summary{UnlockedAchievements: []string{}}

	var extra map[string]any
	if ev.Count > 0 {
		extra = map[string]any{"count": ev.Count}
	}

	activity, err := progression.ParseActivityType(string(ev.Kind))
	if err == nil {
		// The streak write gates the activity's own XP: nothing is granted
		// for an activity whose streak update did not commit.
		rr, err := h.record.Handle(ctx, command.RecordActivityCommand{
			UserID:       ev.UserID,
			ActivityType: activity,
			Book:         ev.Book,
			Chapter:      ev.Chapter,
			Extra:        extra,
		})
		if err != nil {
			sum.Failures++
			log.Error("recording activity failed", logger.Err(err))
			return sum
		}
		sum.StreakState = rr.StreakState
		sum.Transition = rr.Transition

		h.awardBase(ctx, ev, log, &sum)

		sum.XPDelta += rr.XPDelta
		sum.LeveledUp = sum.LeveledUp || rr.LeveledUp
		sum.UnlockedAchievements = append(sum.UnlockedAchievements, rr.UnlockedAchievements...)
		return sum
	}

	if !h.awardBase(ctx, ev, log, &sum) {
		return sum
	}

	kind, ok := eventTrigger(ev.Kind)
	if !ok {
		return sum
	}
	unlocks, err := h.achievements.Unlock(ctx, ev.UserID, progression.Trigger{
		Kind:  kind,
		Book:  ev.Book,
		Extra: extra,
	})
	if err != nil {
		sum.Failures++
		log.Error("achievement evaluation failed", logger.Err(err))
	}
	for _, u := range unlocks {
		sum.XPDelta += u.XPAwarded
		sum.LeveledUp = sum.LeveledUp || u.LeveledUp
		sum.UnlockedAchievements = append(sum.UnlockedAchievements, u.Key)
	}
	return sum
}

// awardBase grants the event's own XP. It reports false when the event
// itself is invalid and no further step should run.
func (h *ActivityHandler) awardBase(ctx context.Context, ev ActivityEvent, log *logger.Logger, sum *Summary) bool {
	res, err := h.xp.Handle(ctx, command.AwardXPCommand{
		UserID:    ev.UserID,
		EventType: ev.Kind,
		Context:   eventContext(ev),
	})
	if err != nil {
		sum.Failures++
		log.Error("base xp award failed", logger.Err(err))
		return !shared.IsValidation(err)
	}
	sum.XPDelta += res.Amount
	sum.LeveledUp = sum.LeveledUp || res.LeveledUp
	return true
}

// eventTrigger maps the non-streak events onto their trigger.
func eventTrigger(t progression.EventType) (progression.TriggerKind, bool) {
	switch t {
	case progression.EventTrailFollowed:
		return progression.TriggerTrailFollowed, true
	case progression.EventBookCompleted:
		return progression.TriggerBookCompleted, true
	}
	return "", false
}

func eventContext(ev ActivityEvent) map[string]any {
	ctx := map[string]any{}
	if ev.Book != "" {
		ctx["book"] = ev.Book
	}
	if ev.Chapter > 0 {
		ctx["chapter"] = ev.Chapter
	}
	return ctx
}
