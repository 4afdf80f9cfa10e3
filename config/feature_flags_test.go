package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
)

func TestDefaults(t *testing.T) {
	ff := NewFeatureFlags()

	assert.True(t, ff.Enabled(FeatureMilestoneBonus, "u1"))
	assert.True(t, ff.Enabled(FeaturePrayerAchievements, "u1"))
	assert.False(t, ff.Enabled(FeatureEventPublishing, "u1"))
	assert.False(t, ff.Enabled("progression.unknown", "u1"))
}

func TestFlagsSatisfyStreakGate(t *testing.T) {
	var gate command.FeatureGate = NewFeatureFlags()

	assert.True(t, gate.Enabled(command.FeatureMilestoneBonus, "u1"))
	assert.True(t, gate.Enabled(command.FeaturePrayerAchievements, "u1"))
	assert.Contains(t, NewFeatureFlags().GetAllFeatures(), command.FeatureMilestoneBonus)
}

func TestLoadFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		enabled bool
		percent int
	}{
		{"bool true", "true", true, 100},
		{"bool false", "false", false, 0},
		{"percent", "25", true, 25},
		{"zero percent", "0", false, 0},
		{"out of range ignored", "150", false, 0},
		{"garbage ignored", "maybe", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff := NewFeatureFlags()
			ff.loadFromEnvironment(func(key string) string {
				if key == "FEATURE_PROGRESSION_EVENT_PUBLISHING" {
					return tt.value
				}
				return ""
			})

			f := ff.GetAllFeatures()[FeatureEventPublishing]
			assert.Equal(t, tt.enabled, f.Enabled)
			assert.Equal(t, tt.percent, f.RolloutPercent)
		})
	}
}

func TestRolloutIsDeterministic(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureEventPublishing, 50))

	on := 0
	for i := 0; i < 1000; i++ {
		user := fmt.Sprintf("user-%d", i)
		first := ff.Enabled(FeatureEventPublishing, user)
		assert.Equal(t, first, ff.Enabled(FeatureEventPublishing, user))
		if first {
			on++
		}
	}
	assert.InDelta(t, 500, on, 100)

	assert.False(t, ff.Enabled(FeatureEventPublishing, ""), "anonymous callers only see full rollouts")
}

func TestUserOverrides(t *testing.T) {
	ff := NewFeatureFlags()

	ff.SetUserOverride("u1", FeatureMilestoneBonus, false)
	assert.False(t, ff.Enabled(FeatureMilestoneBonus, "u1"))
	assert.True(t, ff.Enabled(FeatureMilestoneBonus, "u2"))

	ff.ClearUserOverrides("u1")
	assert.True(t, ff.Enabled(FeatureMilestoneBonus, "u1"))
}

func TestSetRolloutPercentErrors(t *testing.T) {
	ff := NewFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureMilestoneBonus, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.DisableFeature(FeatureMilestoneBonus))
	assert.False(t, ff.Enabled(FeatureMilestoneBonus, "u1"))
	require.NoError(t, ff.EnableFeature(FeatureMilestoneBonus))
	assert.True(t, ff.Enabled(FeatureMilestoneBonus, "u1"))
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_PROGRESSION_MILESTONE_BONUS", featureNameToEnvKey(FeatureMilestoneBonus))
}
