package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDefs(t *testing.T, s *Store) map[string]progression.AchievementDef {
	t.Helper()
	defs := []progression.AchievementDef{
		{Key: "first_chapter", Name: "First Chapter", XPValue: 20, SortOrder: 10,
			Rule: progression.Rule{Trigger: progression.TriggerChapterRead}},
		{Key: "week_in_the_word", Name: "Week in the Word", XPValue: 75, SortOrder: 20,
			Rule: progression.Rule{Trigger: progression.TriggerStreak, MinStreak: 7}},
	}
	_, err := s.SeedAchievementDefs(context.Background(), defs)
	require.NoError(t, err)

	stored, err := s.ListAchievementDefs(context.Background())
	require.NoError(t, err)
	byKey := make(map[string]progression.AchievementDef, len(stored))
	for _, d := range stored {
		byKey[d.Key] = d
	}
	return byKey
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestStreakStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetStreakState(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	state := &progression.StreakState{
		UserID:           "u1",
		CurrentStreak:    4,
		LongestStreak:    9,
		LastActiveDate:   progression.MustParseDay("2026-04-20"),
		TotalDays:        30,
		GraceUsed:        true,
		GraceLastUsed:    progression.MustParseDay("2026-04-18"),
		PrayerCurrent:    2,
		PrayerLongest:    3,
		PrayerLastActive: progression.MustParseDay("2026-04-20"),
		UpdatedAt:        time.UnixMilli(1_700_000_000_000).UTC(),
	}
	require.NoError(t, s.PutStreakState(ctx, state))

	got, err = s.GetStreakState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestUpdateStreakStateNilWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.UpdateStreakState(ctx, "u1", func(current *progression.StreakState) (*progression.StreakState, error) {
		assert.Nil(t, current)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := s.GetStreakState(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdateStreakStateAppliesMutation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	today := progression.MustParseDay("2026-04-20")

	for i := 0; i < 3; i++ {
		day := today.AddDays(i)
		_, err := s.UpdateStreakState(ctx, "u1", func(current *progression.StreakState) (*progression.StreakState, error) {
			if current == nil {
				current = progression.NewStreakState("u1")
			}
			current.Apply(day, progression.ActivityChapterRead)
			return current, nil
		})
		require.NoError(t, err)
	}

	stored, err := s.GetStreakState(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 3, stored.CurrentStreak)
	assert.Equal(t, 3, stored.TotalDays)
	assert.Equal(t, today.AddDays(2), stored.LastActiveDate)
}

func TestUpdateStreakStateErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	_, err := s.UpdateStreakState(ctx, "u1", func(*progression.StreakState) (*progression.StreakState, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.UpdateStreakState(ctx, "u1", func(*progression.StreakState) (*progression.StreakState, error) {
		return &progression.StreakState{CurrentStreak: 5, LongestStreak: 1}, nil
	})
	assert.True(t, shared.IsValidation(err))

	stored, err := s.GetStreakState(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAppendXPEventMovesAggregate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

	agg, err := s.GetXPAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.TotalXP)
	assert.Equal(t, 1, agg.CurrentLevel)

	ev1, err := progression.NewXPEvent("e1", "u1", progression.EventChapterRead, 60, map[string]any{"book": "John"}, at)
	require.NoError(t, err)
	prev, next, err := s.AppendXPEvent(ctx, ev1)
	require.NoError(t, err)
	assert.Equal(t, 0, prev.TotalXP)
	assert.Equal(t, 60, next.TotalXP)

	ev2, err := progression.NewXPEvent("e2", "u1", progression.EventStreak7, 50, nil, at.Add(time.Minute))
	require.NoError(t, err)
	prev, next, err = s.AppendXPEvent(ctx, ev2)
	require.NoError(t, err)
	assert.Equal(t, 60, prev.TotalXP)
	assert.Equal(t, 110, next.TotalXP)
	assert.Equal(t, 2, next.CurrentLevel)

	events, err := s.ListXPEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.Equal(t, "John", events[1].Context["book"])

	stored, err := s.GetXPAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 110, stored.TotalXP)
}

func TestAppendXPEventDuplicateIDLeavesTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev, err := progression.NewXPEvent("e1", "u1", progression.EventChapterRead, 10, nil, time.Now())
	require.NoError(t, err)
	_, _, err = s.AppendXPEvent(ctx, ev)
	require.NoError(t, err)
	_, _, err = s.AppendXPEvent(ctx, ev)
	require.Error(t, err)

	agg, err := s.GetXPAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, agg.TotalXP)
}

func TestSeedAchievementDefsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	byKey := seedDefs(t, s)
	require.Len(t, byKey, 2)
	assert.Equal(t, 7, byKey["week_in_the_word"].Rule.MinStreak)

	n, err := s.SeedAchievementDefs(ctx, []progression.AchievementDef{
		{Key: "first_chapter", Name: "Renamed", Rule: progression.Rule{Trigger: progression.TriggerChapterRead}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	defs, err := s.ListAchievementDefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first_chapter", defs[0].Key)
	assert.Equal(t, "First Chapter", defs[0].Name)
}

func TestInsertUserAchievementAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	def := seedDefs(t, s)["first_chapter"]

	require.NoError(t, s.InsertUserAchievement(ctx, "u1", def.ID, time.Now()))

	err := s.InsertUserAchievement(ctx, "u1", def.ID, time.Now())
	assert.ErrorIs(t, err, shared.ErrAchievementUnlocked)
	assert.True(t, shared.IsConflict(err))

	require.NoError(t, s.InsertUserAchievement(ctx, "u2", def.ID, time.Now()))

	earned, err := s.GetEarnedAchievementIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, earned, def.ID)

	list, err := s.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first_chapter", list[0].Key)
}

func TestCompletedBooks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.MarkBookCompleted(ctx, "u1", "  Song of  Songs ", time.Now()))
	require.NoError(t, s.MarkBookCompleted(ctx, "u1", "song of songs", time.Now()))
	require.NoError(t, s.MarkBookCompleted(ctx, "u1", "Ruth", time.Now()))

	books, err := s.CompletedBooks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, books, 2)
	assert.Contains(t, books, "song of songs")
	assert.Contains(t, books, "ruth")
}

func TestConfigDSN(t *testing.T) {
	dsn := Config{Path: MemoryPath}.DSN()
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.NotContains(t, dsn, "journal_mode")

	dsn = Config{Path: "p.db", BusyTimeout: 2 * time.Second}.DSN()
	assert.Contains(t, dsn, "busy_timeout(2000)")
	assert.Contains(t, dsn, "journal_mode(WAL)")
}

func TestErrorClassifiersIgnoreForeignErrors(t *testing.T) {
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.False(t, IsUniqueViolation(nil))
}
