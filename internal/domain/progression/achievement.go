package progression

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// Catalog entries carry a data-driven Rule; evaluation is a pure function of
// (Rule, Trigger). At-most-once unlocking is enforced by the store.
// ═══════════════════════════════════════════════════════════════════════════

// AchievementID is the store identity of a catalog entry.
type AchievementID int64

// TriggerKind is the kind of state change being evaluated.
type TriggerKind string

const (
	TriggerChapterRead         TriggerKind = "chapter_read"
	TriggerStreak              TriggerKind = "streak"
	TriggerPrayerStreak        TriggerKind = "prayer_streak"
	TriggerJournalAnswer       TriggerKind = "journal_answer"
	TriggerMemoryVerseMastered TriggerKind = "memory_verse_mastered"
	TriggerTrailFollowed       TriggerKind = "trail_followed"
	TriggerBookCompleted       TriggerKind = "book_completed"
)

// TriggerKinds lists every trigger kind in a stable order.
func TriggerKinds() []TriggerKind {
	return []TriggerKind{
		TriggerChapterRead,
		TriggerStreak,
		TriggerPrayerStreak,
		TriggerJournalAnswer,
		TriggerMemoryVerseMastered,
		TriggerTrailFollowed,
		TriggerBookCompleted,
	}
}

// Validate rejects unknown kinds.
func (k TriggerKind) Validate() error {
	switch k {
	case TriggerChapterRead, TriggerStreak, TriggerPrayerStreak, TriggerJournalAnswer,
		TriggerMemoryVerseMastered, TriggerTrailFollowed, TriggerBookCompleted:
		return nil
	default:
		return fmt.Errorf("%w: %q", shared.ErrUnknownTriggerKind, string(k))
	}
}

// Trigger is the payload describing what just happened.
type Trigger struct {
	Kind    TriggerKind
	Streak  int
	Book    string
	Chapter int
	Extra   map[string]any

	// CompletedBooks is filled by the evaluator for book_completed triggers
	// with every book the user has finished, normalized.
	CompletedBooks map[string]struct{}
}

// Validate checks that the payload fits its kind.
func (t Trigger) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	switch t.Kind {
	case TriggerStreak, TriggerPrayerStreak:
		if t.Streak < 0 {
			return shared.Validation("achievement", "Validate", "streak must be >= 0, got %d", t.Streak)
		}
	case TriggerBookCompleted:
		if NormalizeBook(t.Book) == "" {
			return shared.Validation("achievement", "Validate", "book_completed trigger requires a book")
		}
	case TriggerChapterRead:
		if t.Chapter < 0 {
			return shared.Validation("achievement", "Validate", "chapter must be >= 0, got %d", t.Chapter)
		}
	case TriggerJournalAnswer, TriggerMemoryVerseMastered, TriggerTrailFollowed:
	}
	return nil
}

// Count reads Extra["count"] as an integer. JSON numbers arrive as float64.
func (t Trigger) Count() (int, bool) {
	v, ok := t.Extra["count"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Rule is the unlock criterion stored with each catalog entry.
type Rule struct {
	Trigger   TriggerKind `json:"trigger"`
	MinStreak int         `json:"min_streak,omitempty"`
	MinCount  int         `json:"min_count,omitempty"`
	Book      string      `json:"book,omitempty"`
	Chapter   int         `json:"chapter,omitempty"`
	Books     []string    `json:"books,omitempty"`
}

// Validate checks that the rule can ever match.
func (r Rule) Validate() error {
	if err := r.Trigger.Validate(); err != nil {
		return err
	}
	if r.MinStreak < 0 || r.MinCount < 0 || r.Chapter < 0 {
		return shared.Validation("achievement", "ValidateRule", "negative thresholds")
	}
	return nil
}

// Matches is the unlock predicate.
func (r Rule) Matches(t Trigger) bool {
	if t.Kind != r.Trigger {
		return false
	}

	switch r.Trigger {
	case TriggerStreak, TriggerPrayerStreak:
		return t.Streak >= r.MinStreak && t.Streak > 0

	case TriggerChapterRead:
		if r.Book != "" && NormalizeBook(r.Book) != NormalizeBook(t.Book) {
			return false
		}
		if r.Chapter > 0 && r.Chapter != t.Chapter {
			return false
		}
		return r.countSatisfied(t)

	case TriggerJournalAnswer, TriggerMemoryVerseMastered, TriggerTrailFollowed:
		return r.countSatisfied(t)

	case TriggerBookCompleted:
		finished := NormalizeBook(t.Book)
		if r.Book != "" && NormalizeBook(r.Book) != finished {
			return false
		}
		for _, required := range r.Books {
			b := NormalizeBook(required)
			if b == finished {
				continue
			}
			if _, ok := t.CompletedBooks[b]; !ok {
				return false
			}
		}
		return true
	}
	return false
}

func (r Rule) countSatisfied(t Trigger) bool {
	if r.MinCount <= 1 {
		return true
	}
	n, ok := t.Count()
	return ok && n >= r.MinCount
}

// NormalizeBook canonicalizes a book name for comparisons.
func NormalizeBook(book string) string {
	return strings.ToLower(strings.Join(strings.Fields(book), " "))
}

// AchievementDef is one catalog entry. Immutable after seeding.
type AchievementDef struct {
	ID           AchievementID
	Key          string
	Name         string
	Description  string
	XPValue      int
	Category     string
	TierRequired string
	Hidden       bool
	SortOrder    int
	Rule         Rule
}

// Validate checks a definition before it is seeded.
func (d AchievementDef) Validate() error {
	switch {
	case strings.TrimSpace(d.Key) == "":
		return shared.Validation("achievement", "ValidateDef", "key is required")
	case strings.TrimSpace(d.Name) == "":
		return shared.Validation("achievement", "ValidateDef", "%s: name is required", d.Key)
	case d.XPValue < 0:
		return shared.Validation("achievement", "ValidateDef", "%s: xp_value must be >= 0", d.Key)
	}
	if err := d.Rule.Validate(); err != nil {
		return fmt.Errorf("achievement %s: %w", d.Key, err)
	}
	return nil
}

// UserAchievement is the evidence of an unlock.
type UserAchievement struct {
	UserID        UserID
	AchievementID AchievementID
	Key           string
	UnlockedAt    time.Time
}

// Unlock reports one achievement granted by an evaluation.
type Unlock struct {
	Key     string
	Name    string
	XPValue int

	// XPAwarded is what actually reached the ledger; zero when the award
	// failed after the unlock was recorded.
	XPAwarded int
	LeveledUp bool
}
