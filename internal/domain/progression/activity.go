package progression

import (
	"fmt"
	"strings"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// UserID identifies the account whose progression is tracked.
type UserID string

// IsValid checks that the ID is usable as a store key.
func (id UserID) IsValid() bool {
	s := strings.TrimSpace(string(id))
	return s != "" && len(s) <= 128
}

// String returns the string representation.
func (id UserID) String() string {
	return string(id)
}

// ActivityType is a day-qualifying user action.
type ActivityType string

const (
	// ActivityChapterRead - a chapter was marked read.
	ActivityChapterRead ActivityType = "chapter_read"

	// ActivityJournalAnswer - a journal prompt was answered.
	ActivityJournalAnswer ActivityType = "journal_answer"

	// ActivityPrayerEntry - a prayer was logged. Also feeds the prayer sub-streak.
	ActivityPrayerEntry ActivityType = "prayer_entry"

	// ActivityHighlightAdded - a verse was highlighted.
	ActivityHighlightAdded ActivityType = "highlight_added"

	// ActivityMemoryVerseReviewed - a memory verse review session was finished.
	ActivityMemoryVerseReviewed ActivityType = "memory_verse_reviewed"

	// ActivityMemoryVerseMastered - a memory verse reached mastery.
	ActivityMemoryVerseMastered ActivityType = "memory_verse_mastered"
)

// ActivityTypes lists every activity type in a stable order.
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityChapterRead,
		ActivityJournalAnswer,
		ActivityPrayerEntry,
		ActivityHighlightAdded,
		ActivityMemoryVerseReviewed,
		ActivityMemoryVerseMastered,
	}
}

// ParseActivityType converts raw input into an ActivityType.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(strings.TrimSpace(s))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate rejects anything outside the closed set.
func (t ActivityType) Validate() error {
	switch t {
	case ActivityChapterRead, ActivityJournalAnswer, ActivityPrayerEntry,
		ActivityHighlightAdded, ActivityMemoryVerseReviewed, ActivityMemoryVerseMastered:
		return nil
	default:
		return fmt.Errorf("%w: %q", shared.ErrUnknownActivityType, string(t))
	}
}

// EventType maps the activity onto the XP event it earns.
func (t ActivityType) EventType() EventType {
	switch t {
	case ActivityChapterRead:
		return EventChapterRead
	case ActivityJournalAnswer:
		return EventJournalAnswer
	case ActivityPrayerEntry:
		return EventPrayerEntry
	case ActivityHighlightAdded:
		return EventHighlightAdded
	case ActivityMemoryVerseReviewed:
		return EventMemoryVerseReviewed
	case ActivityMemoryVerseMastered:
		return EventMemoryVerseMastered
	default:
		return ""
	}
}

// IsPrayer reports whether the activity feeds the prayer sub-streak.
func (t ActivityType) IsPrayer() bool {
	return t == ActivityPrayerEntry
}
