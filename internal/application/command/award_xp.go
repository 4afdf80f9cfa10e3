// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Appends one immutable ledger row and moves the cached aggregate with it.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data to award XP.
type AwardXPCommand struct {
	UserID    progression.UserID
	EventType progression.EventType

	// Amount overrides the fixed table amount when non-nil.
	Amount *int

	// Context is stored with the ledger row (book, chapter, achievement key...).
	Context map[string]any
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	return c.EventType.Validate()
}

// AwardXPResult contains the result of an award.
type AwardXPResult struct {
	// Awarded is false when the resolved amount was not positive; nothing
	// was written in that case.
	Awarded bool

	Event     progression.XPEvent
	Amount    int
	Previous  progression.XPAggregate
	Aggregate progression.XPAggregate

	LeveledUp bool
	Level     progression.Level
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPHandler handles the AwardXPCommand.
type AwardXPHandler struct {
	repo           progression.XPRepository
	eventPublisher shared.EventPublisher
	now            func() time.Time
	log            *logger.Logger
}

// NewAwardXPHandler creates a new AwardXPHandler. publisher may be nil.
func NewAwardXPHandler(repo progression.XPRepository, publisher shared.EventPublisher, log *logger.Logger) *AwardXPHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AwardXPHandler{
		repo:           repo,
		eventPublisher: publisher,
		now:            time.Now,
		log:            log.With(logger.Component("award_xp")),
	}
}

// Handle executes the award XP command.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	amount, err := cmd.EventType.ResolveAmount(cmd.Amount)
	if err != nil {
		return nil, err
	}

	if amount <= 0 {
		agg, err := h.repo.GetXPAggregate(ctx, cmd.UserID)
		if err != nil {
			return nil, shared.Storage("xp", "Award", "read aggregate", err)
		}
		return &AwardXPResult{
			Previous:  agg,
			Aggregate: agg,
			Level:     agg.Level(),
		}, nil
	}

	event, err := progression.NewXPEvent(uuid.NewString(), cmd.UserID, cmd.EventType, amount, cmd.Context, h.now())
	if err != nil {
		return nil, err
	}

	prev, next, err := h.repo.AppendXPEvent(ctx, event)
	if err != nil {
		return nil, shared.Storage("xp", "Award", "append event", err)
	}

	result := &AwardXPResult{
		Awarded:   true,
		Event:     event,
		Amount:    amount,
		Previous:  prev,
		Aggregate: next,
		LeveledUp: next.CurrentLevel > prev.CurrentLevel,
		Level:     next.Level(),
	}

	h.log.Debug("xp awarded",
		logger.UserID(cmd.UserID.String()),
		logger.EventType(string(cmd.EventType)),
		logger.XPAmount(amount),
		logger.Int("total_xp", next.TotalXP),
	)

	h.publish(shared.NewXPAwardedEvent(cmd.UserID.String(), string(cmd.EventType), amount, next.TotalXP))
	if result.LeveledUp {
		h.publish(shared.NewLevelUpEvent(cmd.UserID.String(), prev.CurrentLevel, next.CurrentLevel, result.Level.Title))
	}

	return result, nil
}

func (h *AwardXPHandler) publish(event shared.Event) {
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event",
			logger.EventType(string(event.EventType())),
			logger.Err(err),
		)
	}
}
