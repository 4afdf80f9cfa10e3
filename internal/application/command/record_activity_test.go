package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/timeutil"
)

func (h *harness) read(t *testing.T, book string, chapter int) *command.RecordActivityResult {
	t.Helper()
	res, err := h.record.Handle(context.Background(), command.RecordActivityCommand{
		UserID:       testUser,
		ActivityType: progression.ActivityChapterRead,
		Book:         book,
		Chapter:      chapter,
	})
	require.NoError(t, err)
	return res
}

func TestRecordActivityNewUserFirstChapter(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.read(t, "Mark", 1)

	assert.True(t, res.Credited)
	assert.Equal(t, progression.TransitionStarted, res.Transition)
	assert.Equal(t, 1, res.StreakState.CurrentStreak)
	assert.Equal(t, 1, res.StreakState.LongestStreak)
	assert.Equal(t, 1, res.StreakState.TotalDays)
	assert.Equal(t, []string{"first_chapter"}, res.UnlockedAchievements)
	assert.Equal(t, 10+20, res.XPDelta)
	assert.Equal(t, 30, h.totalXP(t))
}

func TestRecordActivityReachesSevenDays(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.earn(t, "first_chapter")
	h.putStreak(t, progression.StreakState{
		CurrentStreak:  6,
		LongestStreak:  6,
		TotalDays:      6,
		LastActiveDate: h.clock.today().AddDays(-1),
	})

	res := h.read(t, "Mark", 2)

	assert.Equal(t, 7, res.StreakState.CurrentStreak)
	assert.Equal(t, 7, res.StreakState.LongestStreak)
	assert.Equal(t, []string{"week_in_the_word"}, res.UnlockedAchievements)
	assert.Equal(t, 10+50+75, res.XPDelta)
	assert.True(t, res.LeveledUp)

	history, err := h.store.ListXPEvents(context.Background(), testUser, 10)
	require.NoError(t, err)
	var types []progression.EventType
	for _, e := range history {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []progression.EventType{
		progression.EventStreakDay,
		progression.EventStreak7,
		progression.AchievementEventType("week_in_the_word"),
	}, types)
}

func TestRecordActivityGapTooLargeForGrace(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.earn(t, "first_chapter")
	h.putStreak(t, progression.StreakState{
		CurrentStreak:  10,
		LongestStreak:  10,
		TotalDays:      10,
		LastActiveDate: h.clock.today().AddDays(-3),
	})

	res := h.read(t, "Mark", 3)

	assert.Equal(t, progression.TransitionReset, res.Transition)
	assert.Equal(t, 1, res.StreakState.CurrentStreak)
	assert.Equal(t, 10, res.StreakState.LongestStreak)
	assert.False(t, res.StreakState.GraceUsed)
	assert.Equal(t, 10, res.XPDelta)
}

func TestRecordActivityGraceDay(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.earn(t, "first_chapter")
	h.putStreak(t, progression.StreakState{
		CurrentStreak:  4,
		LongestStreak:  4,
		TotalDays:      4,
		LastActiveDate: h.clock.today().AddDays(-2),
	})

	res := h.read(t, "Mark", 4)

	assert.Equal(t, progression.TransitionGraceApplied, res.Transition)
	assert.Equal(t, 5, res.StreakState.CurrentStreak)
	assert.True(t, res.StreakState.GraceUsed)
	assert.Equal(t, h.clock.today().String(), res.StreakState.GraceLastUsed.String())
}

func TestRecordActivityReplayIsNoop(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.read(t, "Mark", 1)
	res := h.read(t, "Mark", 1)

	assert.False(t, res.Credited)
	assert.Equal(t, progression.TransitionUnchanged, res.Transition)
	assert.Equal(t, 0, res.XPDelta)
	assert.Empty(t, res.UnlockedAchievements)
	assert.Equal(t, 1, res.StreakState.TotalDays)
	assert.Equal(t, 30, h.totalXP(t))
}

func TestRecordActivitySameDayStillEvaluatesChapter(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.read(t, "Mark", 1)
	res := h.read(t, "Genesis", 1)

	assert.False(t, res.Credited)
	assert.Equal(t, []string{"in_the_beginning"}, res.UnlockedAchievements)
	assert.Equal(t, 15, res.XPDelta)
}

func TestRecordActivityConsecutiveDays(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	for day := 1; day <= 3; day++ {
		res := h.read(t, "John", day)
		assert.Equal(t, day, res.StreakState.CurrentStreak)
		h.clock.addDays(1)
	}
}

func TestRecordActivityUsesClockLocation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	central := time.FixedZone("CST", -6*60*60)

	// 03:00 UTC on the 11th is still the 10th six hours west.
	clock := timeutil.FixedClock{At: time.Date(2024, time.March, 11, 3, 0, 0, 0, time.UTC), Loc: central}
	record := command.NewRecordActivityHandler(h.streak, h.evaluator, clock, nil)

	res, err := record.Handle(context.Background(), command.RecordActivityCommand{
		UserID:       testUser,
		ActivityType: progression.ActivityHighlightAdded,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", res.StreakState.LastActiveDate.String())
}

func TestRecordActivityValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	tests := []struct {
		name string
		cmd  command.RecordActivityCommand
	}{
		{"missing user", command.RecordActivityCommand{ActivityType: progression.ActivityChapterRead}},
		{"unknown activity", command.RecordActivityCommand{UserID: testUser, ActivityType: "trail_followed"}},
		{"negative chapter", command.RecordActivityCommand{UserID: testUser, ActivityType: progression.ActivityChapterRead, Chapter: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.record.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}

	state, err := h.store.GetStreakState(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, 0, h.totalXP(t))
}
