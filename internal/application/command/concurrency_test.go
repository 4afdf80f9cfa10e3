package command_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/persistence/sqlite"
)

const racers = 20

// newFileHarness runs the handlers on a WAL database file so that writers
// really contend for the lock, unlike the single-connection memory store.
func newFileHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:        filepath.Join(t.TempDir(), "progression.db"),
		BusyTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	return newHarness(t, harnessOptions{store: store})
}

// race runs fn from racers goroutines released together and returns their
// errors.
func race(fn func() error) []error {
	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		errs  = make([]error, racers)
	)
	start.Add(1)
	for i := 0; i < racers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			start.Wait()
			errs[i] = fn()
		}(i)
	}
	start.Done()
	done.Wait()
	return errs
}

func ledgerSum(t *testing.T, h *harness) int {
	t.Helper()
	events, err := h.store.ListXPEvents(context.Background(), testUser, 500)
	require.NoError(t, err)
	sum := 0
	for _, e := range events {
		sum += e.Amount
	}
	return sum
}

func unlockCounts(t *testing.T, h *harness) map[string]int {
	t.Helper()
	unlocks, err := h.store.ListUserAchievements(context.Background(), testUser)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, u := range unlocks {
		counts[u.Key]++
	}
	return counts
}

func TestConcurrentRecordActivityCreditsEachDayOnce(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()

	credited := 0
	var mu sync.Mutex

	for day := 0; day < 3; day++ {
		if day > 0 {
			h.clock.addDays(1)
		}
		errs := race(func() error {
			res, err := h.record.Handle(ctx, command.RecordActivityCommand{
				UserID:       testUser,
				ActivityType: progression.ActivityChapterRead,
				Book:         "Ruth",
				Chapter:      1,
			})
			if err == nil && res.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
			return err
		})
		for _, err := range errs {
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 3, credited, "one credited call per day")

	state, err := h.store.GetStreakState(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3, state.CurrentStreak)
	assert.Equal(t, 3, state.TotalDays)
	assert.Equal(t, h.clock.today(), state.LastActiveDate)

	assert.Equal(t, map[string]int{"first_chapter": 1}, unlockCounts(t, h))

	// 3 streak days at 10 plus first_chapter at 20
	assert.Equal(t, 50, h.totalXP(t))
	assert.Equal(t, h.totalXP(t), ledgerSum(t, h))
}

func TestConcurrentUnlockGrantsAtMostOnce(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		granted = map[string]int{}
		xp      int
	)
	trigger := progression.Trigger{
		Kind:  progression.TriggerJournalAnswer,
		Extra: map[string]any{"count": 25},
	}

	errs := race(func() error {
		unlocks, err := h.evaluator.Unlock(ctx, testUser, trigger)
		mu.Lock()
		defer mu.Unlock()
		for _, u := range unlocks {
			granted[u.Key]++
			xp += u.XPAwarded
		}
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	want := map[string]int{"first_reflection": 1, "faithful_scribe": 1}
	assert.Equal(t, want, granted)
	assert.Equal(t, want, unlockCounts(t, h))

	assert.Equal(t, 20+100, xp)
	assert.Equal(t, xp, h.totalXP(t))
	assert.Equal(t, h.totalXP(t), ledgerSum(t, h))
}
