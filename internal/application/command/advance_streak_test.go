package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

func (h *harness) putStreak(t *testing.T, s progression.StreakState) {
	t.Helper()
	s.UserID = testUser
	require.NoError(t, h.store.PutStreakState(context.Background(), &s))
}

func (h *harness) advance(t *testing.T, activity progression.ActivityType) *command.AdvanceStreakResult {
	t.Helper()
	res, err := h.streak.Handle(context.Background(), command.AdvanceStreakCommand{
		UserID:       testUser,
		ActivityType: activity,
		Today:        h.clock.today(),
	})
	require.NoError(t, err)
	return res
}

func unlockKeys(unlocks []progression.Unlock) []string {
	keys := make([]string, 0, len(unlocks))
	for _, u := range unlocks {
		keys = append(keys, u.Key)
	}
	return keys
}

func TestAdvanceStreakFirstDay(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	res := h.advance(t, progression.ActivityHighlightAdded)

	assert.Equal(t, progression.TransitionStarted, res.Outcome.Transition)
	assert.Equal(t, 1, res.State.CurrentStreak)
	assert.Equal(t, 1, res.State.LongestStreak)
	assert.Equal(t, 1, res.State.TotalDays)
	assert.Equal(t, 10, res.XPDelta)
	assert.Equal(t, 10, h.totalXP(t))
	assert.Contains(t, h.publisher.types(), shared.EventStreakUpdated)
}

func TestAdvanceStreakSameDayIsIdempotent(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.advance(t, progression.ActivityHighlightAdded)
	res := h.advance(t, progression.ActivityJournalAnswer)

	assert.Equal(t, progression.TransitionUnchanged, res.Outcome.Transition)
	assert.Equal(t, 0, res.XPDelta)
	assert.Equal(t, 1, res.State.CurrentStreak)
	assert.Equal(t, 1, res.State.TotalDays)
	assert.Equal(t, 10, h.totalXP(t))
}

func TestAdvanceStreakThirtyDayMilestone(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.earn(t, "week_in_the_word")
	h.putStreak(t, progression.StreakState{
		CurrentStreak:  29,
		LongestStreak:  29,
		TotalDays:      40,
		LastActiveDate: h.clock.today().AddDays(-1),
	})

	res := h.advance(t, progression.ActivityHighlightAdded)

	assert.Equal(t, 30, res.State.CurrentStreak)
	assert.Equal(t, []string{"month_of_faithfulness"}, unlockKeys(res.Unlocks))
	assert.Equal(t, 10+200+300, res.XPDelta)
	assert.True(t, res.LeveledUp)
}

func TestAdvanceStreakMilestoneBonusCanBeDisabled(t *testing.T) {
	h := newHarness(t, harnessOptions{features: gate{command.FeatureMilestoneBonus: true}})
	h.putStreak(t, progression.StreakState{
		CurrentStreak:  6,
		LongestStreak:  6,
		TotalDays:      6,
		LastActiveDate: h.clock.today().AddDays(-1),
	})

	res := h.advance(t, progression.ActivityHighlightAdded)

	assert.Equal(t, 7, res.State.CurrentStreak)
	assert.Equal(t, 10+75, res.XPDelta)
	assert.Equal(t, []string{"week_in_the_word"}, unlockKeys(res.Unlocks))
}

func TestAdvanceStreakPrayerSubStreak(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.earn(t, "week_in_the_word")
	h.putStreak(t, progression.StreakState{
		CurrentStreak:    2,
		LongestStreak:    6,
		TotalDays:        9,
		LastActiveDate:   h.clock.today().AddDays(-1),
		PrayerCurrent:    6,
		PrayerLongest:    6,
		PrayerLastActive: h.clock.today().AddDays(-1),
	})

	res := h.advance(t, progression.ActivityPrayerEntry)

	assert.True(t, res.Outcome.PrayerAdvanced)
	assert.Equal(t, 3, res.State.CurrentStreak)
	assert.Equal(t, 7, res.State.PrayerCurrent)
	assert.Equal(t, 7, res.State.PrayerLongest)
	assert.Equal(t, []string{"prayer_warrior"}, unlockKeys(res.Unlocks))
	assert.Equal(t, 10+75, res.XPDelta)
}

func TestAdvanceStreakPrayerAfterOtherActivitySameDay(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	h.advance(t, progression.ActivityChapterRead)
	res := h.advance(t, progression.ActivityPrayerEntry)

	assert.Equal(t, progression.TransitionUnchanged, res.Outcome.Transition)
	assert.True(t, res.Outcome.PrayerAdvanced, "prayer sub-streak has its own same-day check")
	assert.Equal(t, 0, res.XPDelta)

	stored, err := h.store.GetStreakState(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PrayerCurrent)
	assert.Equal(t, 1, stored.CurrentStreak)

	again := h.advance(t, progression.ActivityPrayerEntry)
	assert.False(t, again.Outcome.Changed())
}

func TestAdvanceStreakPrayerTriggersCanBeDisabled(t *testing.T) {
	h := newHarness(t, harnessOptions{features: gate{command.FeaturePrayerAchievements: true}})
	h.putStreak(t, progression.StreakState{
		CurrentStreak:    1,
		LongestStreak:    6,
		TotalDays:        9,
		LastActiveDate:   h.clock.today().AddDays(-1),
		PrayerCurrent:    6,
		PrayerLongest:    6,
		PrayerLastActive: h.clock.today().AddDays(-1),
	})

	res := h.advance(t, progression.ActivityPrayerEntry)

	assert.Equal(t, 7, res.State.PrayerCurrent)
	assert.Empty(t, res.Unlocks)
}

func TestAdvanceStreakStorageFailureSkipsSideEffects(t *testing.T) {
	h := newHarness(t, harnessOptions{streakRepo: failingStreakRepo{}})

	_, err := h.streak.Handle(context.Background(), command.AdvanceStreakCommand{
		UserID:       testUser,
		ActivityType: progression.ActivityChapterRead,
		Today:        h.clock.today(),
	})
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))
	assert.ErrorIs(t, err, errDiskFull)

	events, err := h.store.ListXPEvents(context.Background(), testUser, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, h.publisher.types())
}

func TestAdvanceStreakXPFailureKeepsStreak(t *testing.T) {
	h := newHarness(t, harnessOptions{xpRepo: failingXPRepo{}})

	res := h.advance(t, progression.ActivityChapterRead)
	assert.Equal(t, 1, res.State.CurrentStreak)
	assert.Equal(t, 0, res.XPDelta)

	stored, err := h.store.GetStreakState(context.Background(), testUser)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.CurrentStreak)
}

func TestAdvanceStreakValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	tests := []struct {
		name string
		cmd  command.AdvanceStreakCommand
	}{
		{"missing user", command.AdvanceStreakCommand{ActivityType: progression.ActivityChapterRead, Today: h.clock.today()}},
		{"unknown activity", command.AdvanceStreakCommand{UserID: testUser, ActivityType: "sermon_slept", Today: h.clock.today()}},
		{"missing day", command.AdvanceStreakCommand{UserID: testUser, ActivityType: progression.ActivityChapterRead}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.streak.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}

	state, err := h.store.GetStreakState(context.Background(), testUser)
	require.NoError(t, err)
	assert.Nil(t, state)
}
