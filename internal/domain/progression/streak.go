package progression

import (
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// Day-granularity streak with a one-time grace day and a prayer sub-streak.
// ═══════════════════════════════════════════════════════════════════════════

// GraceRegenerationDays is how long after redeeming a grace day the user
// must keep a consecutive run before another grace day becomes available.
const GraceRegenerationDays = 7

// StreakTransition names the branch a day took through the state machine.
type StreakTransition string

const (
	// TransitionStarted - first-ever qualifying day.
	TransitionStarted StreakTransition = "started"

	// TransitionContinued - activity on the day after the last one.
	TransitionContinued StreakTransition = "continued"

	// TransitionGraceApplied - one missed day was forgiven.
	TransitionGraceApplied StreakTransition = "grace_applied"

	// TransitionReset - the streak was broken and restarts at 1.
	TransitionReset StreakTransition = "reset"

	// TransitionUnchanged - same-day repeat (or a day already in the past).
	TransitionUnchanged StreakTransition = "unchanged"
)

// Credited reports whether the transition counted a new active day.
func (t StreakTransition) Credited() bool {
	switch t {
	case TransitionStarted, TransitionContinued, TransitionGraceApplied, TransitionReset:
		return true
	case TransitionUnchanged:
		return false
	default:
		return false
	}
}

// StreakState is the per-user streak record. Zero Day values mean "never".
type StreakState struct {
	UserID UserID

	CurrentStreak  int
	LongestStreak  int
	LastActiveDate Day
	TotalDays      int

	// GraceLastUsed is set iff GraceUsed is true.
	GraceUsed     bool
	GraceLastUsed Day

	PrayerCurrent    int
	PrayerLongest    int
	PrayerLastActive Day

	UpdatedAt time.Time
}

// NewStreakState returns the state of a user with no history.
func NewStreakState(userID UserID) *StreakState {
	return &StreakState{UserID: userID}
}

// StreakOutcome describes what one activity did to the state.
type StreakOutcome struct {
	Transition     StreakTransition
	PrayerAdvanced bool
	GraceRestored  bool
}

// Changed reports whether the state must be written back.
func (o StreakOutcome) Changed() bool {
	return o.Transition.Credited() || o.PrayerAdvanced
}

// Apply runs one qualifying activity through the state machine.
func (s *StreakState) Apply(today Day, activity ActivityType) StreakOutcome {
	out := s.Advance(today)
	if activity.IsPrayer() {
		out.PrayerAdvanced = s.AdvancePrayer(today)
	}
	if out.Changed() {
		s.UpdatedAt = time.Now().UTC()
	}
	return out
}

// Advance credits today to the main streak.
func (s *StreakState) Advance(today Day) StreakOutcome {
	if s.LastActiveDate.IsZero() {
		s.CurrentStreak = 1
		s.GraceUsed = false
		s.GraceLastUsed = Day{}
		s.finishDay(today)
		return StreakOutcome{Transition: TransitionStarted}
	}

	gap := today.DaysSince(s.LastActiveDate)
	out := StreakOutcome{}

	switch {
	case gap <= 0:
		// Same day, or the clock went backwards. Neither may rewrite history.
		return StreakOutcome{Transition: TransitionUnchanged}

	case gap == 1:
		s.CurrentStreak++
		if s.GraceUsed && today.DaysSince(s.GraceLastUsed) >= GraceRegenerationDays {
			s.GraceUsed = false
			s.GraceLastUsed = Day{}
			out.GraceRestored = true
		}
		out.Transition = TransitionContinued

	case gap == 2 && !s.GraceUsed:
		s.CurrentStreak++
		s.GraceUsed = true
		s.GraceLastUsed = today
		out.Transition = TransitionGraceApplied

	default:
		s.CurrentStreak = 1
		out.Transition = TransitionReset
	}

	s.finishDay(today)
	return out
}

func (s *StreakState) finishDay(today Day) {
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.TotalDays++
	s.LastActiveDate = today
}

// AdvancePrayer credits today to the prayer sub-streak. There is no grace
// day here. Returns false on a same-day repeat.
func (s *StreakState) AdvancePrayer(today Day) bool {
	if !s.PrayerLastActive.IsZero() {
		gap := today.DaysSince(s.PrayerLastActive)
		switch {
		case gap <= 0:
			return false
		case gap == 1:
			s.PrayerCurrent++
		default:
			s.PrayerCurrent = 1
		}
	} else {
		s.PrayerCurrent = 1
	}

	if s.PrayerCurrent > s.PrayerLongest {
		s.PrayerLongest = s.PrayerCurrent
	}
	s.PrayerLastActive = today
	return true
}

// Validate checks the structural invariants of a stored state.
func (s StreakState) Validate() error {
	switch {
	case s.CurrentStreak < 0 || s.TotalDays < 0 || s.PrayerCurrent < 0:
		return shared.Validation("streak", "Validate", "negative counters")
	case s.LongestStreak < s.CurrentStreak:
		return shared.Validation("streak", "Validate", "longest streak %d below current %d", s.LongestStreak, s.CurrentStreak)
	case s.PrayerLongest < s.PrayerCurrent:
		return shared.Validation("streak", "Validate", "longest prayer streak below current")
	case s.GraceUsed != !s.GraceLastUsed.IsZero():
		return shared.Validation("streak", "Validate", "grace_last_used must be set iff grace_used")
	}
	return nil
}

// Clone returns an independent copy.
func (s *StreakState) Clone() *StreakState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// MilestoneFor returns the bonus XP event for hitting exactly 7 or 30 days.
func MilestoneFor(current int) (EventType, bool) {
	switch current {
	case 7:
		return EventStreak7, true
	case 30:
		return EventStreak30, true
	}
	return "", false
}
