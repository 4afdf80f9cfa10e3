package progression

import (
	"fmt"
	"strings"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// EventType identifies why XP was awarded. The set is closed except for the
// achievement family, which is keyed by catalog entry.
type EventType string

const (
	EventChapterRead         EventType = "chapter_read"
	EventJournalAnswer       EventType = "journal_answer"
	EventPrayerEntry         EventType = "prayer_entry"
	EventHighlightAdded      EventType = "highlight_added"
	EventMemoryVerseReviewed EventType = "memory_verse_reviewed"
	EventMemoryVerseMastered EventType = "memory_verse_mastered"
	EventTrailFollowed       EventType = "trail_followed"
	EventBookCompleted       EventType = "book_completed"
	EventStreakDay           EventType = "streak_day"
	EventStreak7             EventType = "streak_7"
	EventStreak30            EventType = "streak_30"
)

const achievementEventPrefix = "achievement_"

// AchievementEventType returns the event type used when an achievement pays out.
func AchievementEventType(key string) EventType {
	return EventType(achievementEventPrefix + key)
}

// IsAchievement reports whether the event belongs to the achievement family.
func (t EventType) IsAchievement() bool {
	return strings.HasPrefix(string(t), achievementEventPrefix) && len(t) > len(achievementEventPrefix)
}

// AchievementKey returns the catalog key of an achievement event, or "".
func (t EventType) AchievementKey() string {
	if !t.IsAchievement() {
		return ""
	}
	return strings.TrimPrefix(string(t), achievementEventPrefix)
}

// Validate rejects unknown event types.
func (t EventType) Validate() error {
	_, err := t.BaseXP()
	if err != nil && t.IsAchievement() {
		return nil
	}
	return err
}

// BaseXP returns the fixed amount for the event type. Achievement events have
// no fixed amount; they are always paid with the catalog's xp_value.
func (t EventType) BaseXP() (int, error) {
	switch t {
	case EventChapterRead:
		return 10, nil
	case EventJournalAnswer:
		return 15, nil
	case EventPrayerEntry:
		return 5, nil
	case EventHighlightAdded:
		return 2, nil
	case EventMemoryVerseReviewed:
		return 5, nil
	case EventMemoryVerseMastered:
		return 25, nil
	case EventTrailFollowed:
		return 10, nil
	case EventBookCompleted:
		return 50, nil
	case EventStreakDay:
		return 10, nil
	case EventStreak7:
		return 50, nil
	case EventStreak30:
		return 200, nil
	}
	if t.IsAchievement() {
		return 0, shared.Validation("xp", "Resolve", "achievement event %q requires an explicit amount", string(t))
	}
	return 0, fmt.Errorf("%w: %q", shared.ErrUnknownEventType, string(t))
}

// ResolveAmount picks the override when present, otherwise the table amount.
func (t EventType) ResolveAmount(override *int) (int, error) {
	if override != nil {
		if err := t.Validate(); err != nil {
			return 0, err
		}
		return *override, nil
	}
	return t.BaseXP()
}

// XPEvent is one immutable ledger row.
type XPEvent struct {
	ID        string
	UserID    UserID
	EventType EventType
	Amount    int
	Context   map[string]any
	CreatedAt time.Time
}

// NewXPEvent builds a ledger row. Amount must be positive: non-positive
// awards are never written.
func NewXPEvent(id string, userID UserID, eventType EventType, amount int, context map[string]any, at time.Time) (XPEvent, error) {
	if !userID.IsValid() {
		return XPEvent{}, shared.ErrInvalidUserID
	}
	if err := eventType.Validate(); err != nil {
		return XPEvent{}, err
	}
	if amount <= 0 {
		return XPEvent{}, shared.Validation("xp", "NewEvent", "amount must be positive, got %d", amount)
	}
	if context == nil {
		context = map[string]any{}
	}
	return XPEvent{
		ID:        id,
		UserID:    userID,
		EventType: eventType,
		Amount:    amount,
		Context:   context,
		CreatedAt: at.UTC(),
	}, nil
}

// XPAggregate is the cached total of a user's ledger.
type XPAggregate struct {
	UserID       UserID
	TotalXP      int
	CurrentLevel int
	UpdatedAt    time.Time
}

// NewXPAggregate returns the aggregate of a user with an empty ledger.
func NewXPAggregate(userID UserID) XPAggregate {
	return XPAggregate{UserID: userID, CurrentLevel: LevelFor(0).Number}
}

// Add returns the aggregate after appending amount to the ledger.
func (a XPAggregate) Add(amount int, at time.Time) XPAggregate {
	a.TotalXP += amount
	a.CurrentLevel = LevelFor(a.TotalXP).Number
	a.UpdatedAt = at.UTC()
	return a
}

// Level returns the level entry matching the total.
func (a XPAggregate) Level() Level {
	return LevelFor(a.TotalXP)
}
