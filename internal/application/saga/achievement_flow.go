// Package saga contains business processes that span several repositories
// and tolerate partial failure after their first durable write.
package saga

import (
	"context"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW
// Flow: Validate Trigger → Load Catalog + Earned → (Record Book) →
//
//	Match Rules → Insert Unlock → Award XP → Publish Event
//
// The unlock row is the commit point. Everything after it is best-effort.
// ══════════════════════════════════════════════════════════════════════════════

// XPAwarder is the slice of the XP ledger the flow needs.
type XPAwarder interface {
	Handle(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error)
}

// AchievementEvaluator unlocks catalog entries whose rule matches a trigger.
type AchievementEvaluator struct {
	catalog        progression.AchievementRepository
	books          progression.BookProgressRepository
	xp             XPAwarder
	eventPublisher shared.EventPublisher
	now            func() time.Time
	log            *logger.Logger
}

// NewAchievementEvaluator creates a new AchievementEvaluator. catalog may be
// a caching decorator; unlock reads always reach the store through it.
func NewAchievementEvaluator(
	catalog progression.AchievementRepository,
	books progression.BookProgressRepository,
	xp XPAwarder,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *AchievementEvaluator {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementEvaluator{
		catalog:        catalog,
		books:          books,
		xp:             xp,
		eventPublisher: publisher,
		now:            time.Now,
		log:            log.With(logger.Component("achievement_flow")),
	}
}

// Evaluate returns the keys unlocked by trigger, in catalog order.
func (e *AchievementEvaluator) Evaluate(ctx context.Context, userID progression.UserID, trigger progression.Trigger) ([]string, error) {
	unlocks, err := e.Unlock(ctx, userID, trigger)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		keys = append(keys, u.Key)
	}
	return keys, nil
}

// Unlock evaluates trigger and grants every matching, unearned achievement.
// Replaying the same trigger unlocks nothing.
func (e *AchievementEvaluator) Unlock(ctx context.Context, userID progression.UserID, trigger progression.Trigger) ([]progression.Unlock, error) {
	if !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	now := e.now()

	if trigger.Kind == progression.TriggerBookCompleted {
		enriched, err := e.withCompletedBooks(ctx, userID, trigger, now)
		if err != nil {
			return nil, err
		}
		trigger = enriched
	}

	defs, err := e.catalog.ListAchievementDefs(ctx)
	if err != nil {
		return nil, shared.Storage("achievement", "Evaluate", "load catalog", err)
	}
	earned, err := e.catalog.GetEarnedAchievementIDs(ctx, userID)
	if err != nil {
		return nil, shared.Storage("achievement", "Evaluate", "load earned", err)
	}

	var unlocks []progression.Unlock
	for _, def := range defs {
		if _, ok := earned[def.ID]; ok {
			continue
		}
		if !def.Rule.Matches(trigger) {
			continue
		}

		if err := e.catalog.InsertUserAchievement(ctx, userID, def.ID, now); err != nil {
			if shared.IsConflict(err) {
				// A concurrent evaluation got there first.
				continue
			}
			return unlocks, shared.Storage("achievement", "Evaluate", "insert unlock "+def.Key, err)
		}

		unlocks = append(unlocks, e.grant(ctx, userID, def))
	}

	return unlocks, nil
}

// withCompletedBooks records trigger.Book and attaches the user's full set
// of finished books, so multi-book rules see every earlier completion.
func (e *AchievementEvaluator) withCompletedBooks(ctx context.Context, userID progression.UserID, trigger progression.Trigger, at time.Time) (progression.Trigger, error) {
	if err := e.books.MarkBookCompleted(ctx, userID, trigger.Book, at); err != nil {
		return trigger, shared.Storage("achievement", "Evaluate", "mark book completed", err)
	}
	completed, err := e.books.CompletedBooks(ctx, userID)
	if err != nil {
		return trigger, shared.Storage("achievement", "Evaluate", "load completed books", err)
	}
	if completed == nil {
		completed = make(map[string]struct{})
	}
	completed[progression.NormalizeBook(trigger.Book)] = struct{}{}
	trigger.CompletedBooks = completed
	return trigger, nil
}

// grant runs the post-commit steps of one unlock. Failures are logged.
func (e *AchievementEvaluator) grant(ctx context.Context, userID progression.UserID, def progression.AchievementDef) progression.Unlock {
	u := progression.Unlock{Key: def.Key, Name: def.Name, XPValue: def.XPValue}
	log := e.log.With(logger.UserID(userID.String()), logger.AchievementKey(def.Key))

	if def.XPValue > 0 {
		amount := def.XPValue
		res, err := e.xp.Handle(ctx, command.AwardXPCommand{
			UserID:    userID,
			EventType: progression.AchievementEventType(def.Key),
			Amount:    &amount,
			Context:   map[string]any{"achievement_key": def.Key},
		})
		if err != nil {
			log.Error("achievement unlocked but xp award failed", logger.XPAmount(amount), logger.Err(err))
		} else if res.Awarded {
			u.XPAwarded = res.Amount
			u.LeveledUp = res.LeveledUp
		}
	}

	log.Info("achievement unlocked", logger.XPAmount(u.XPAwarded))

	if err := e.eventPublisher.Publish(shared.NewAchievementUnlockedEvent(userID.String(), def.Key, def.XPValue)); err != nil {
		log.Warn("failed to publish event", logger.Err(err))
	}
	return u
}
