package command_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/saga"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/persistence/sqlite"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/infrastructure/seed"
)

const testUser = progression.UserID("user-1")

// stepClock is a settable clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Location() *time.Location { return time.UTC }

func (c *stepClock) addDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

func (c *stepClock) today() progression.Day {
	return progression.DayOf(c.Now(), time.UTC)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// gate is a FeatureGate backed by a set of disabled features.
type gate map[string]bool

func (g gate) Enabled(feature, _ string) bool { return !g[feature] }

type harness struct {
	store     *sqlite.Store
	clock     *stepClock
	publisher *recordingPublisher
	award     *command.AwardXPHandler
	evaluator *saga.AchievementEvaluator
	streak    *command.AdvanceStreakHandler
	record    *command.RecordActivityHandler
}

type harnessOptions struct {
	// store defaults to a fresh in-memory database.
	store      *sqlite.Store
	streakRepo progression.StreakRepository
	xpRepo     progression.XPRepository
	features   command.FeatureGate
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	ctx := context.Background()

	store := opts.store
	if store == nil {
		var err error
		store, err = sqlite.OpenMemory(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	_, err := seed.Apply(ctx, store, nil)
	require.NoError(t, err)

	if opts.streakRepo == nil {
		opts.streakRepo = store
	}
	if opts.xpRepo == nil {
		opts.xpRepo = store
	}

	h := &harness{
		store:     store,
		clock:     &stepClock{now: time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
	}
	h.award = command.NewAwardXPHandler(opts.xpRepo, h.publisher, nil)
	h.evaluator = saga.NewAchievementEvaluator(store, store, h.award, h.publisher, nil)
	h.streak = command.NewAdvanceStreakHandler(opts.streakRepo, h.award, h.evaluator, opts.features, h.publisher, nil)
	h.record = command.NewRecordActivityHandler(h.streak, h.evaluator, h.clock, nil)
	return h
}

func (h *harness) earn(t *testing.T, key string) {
	t.Helper()
	defs, err := h.store.ListAchievementDefs(context.Background())
	require.NoError(t, err)
	for _, d := range defs {
		if d.Key == key {
			require.NoError(t, h.store.InsertUserAchievement(context.Background(), testUser, d.ID, h.clock.Now()))
			return
		}
	}
	t.Fatalf("no achievement %q in catalog", key)
}

func (h *harness) totalXP(t *testing.T) int {
	t.Helper()
	agg, err := h.store.GetXPAggregate(context.Background(), testUser)
	require.NoError(t, err)
	return agg.TotalXP
}

func intPtr(n int) *int { return &n }

var errDiskFull = errors.New("disk full")

type failingXPRepo struct {
	progression.XPRepository
}

func (failingXPRepo) GetXPAggregate(context.Context, progression.UserID) (progression.XPAggregate, error) {
	return progression.XPAggregate{}, errDiskFull
}

func (failingXPRepo) AppendXPEvent(context.Context, progression.XPEvent) (progression.XPAggregate, progression.XPAggregate, error) {
	return progression.XPAggregate{}, progression.XPAggregate{}, errDiskFull
}

type failingStreakRepo struct {
	progression.StreakRepository
}

func (failingStreakRepo) UpdateStreakState(context.Context, progression.UserID, progression.StreakMutation) (*progression.StreakState, error) {
	return nil, errDiskFull
}
