package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/application/command"
)

// FeatureFlags manages progression feature toggles with deterministic
// per-user rollout. The core streak and XP rules are not behind flags;
// only the optional extras are.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides pins a feature on or off for one user.
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) assigns users by a hash of their id.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// Predefined feature flag names.
const (
	FeatureMilestoneBonus     = command.FeatureMilestoneBonus
	FeaturePrayerAchievements = command.FeaturePrayerAchievements

	// FeatureEventPublishing forwards progression events to Redis.
	FeatureEventPublishing = "progression.event_publishing"
)

// LoadFeatureFlags builds the defaults and applies FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment(os.Getenv)
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureMilestoneBonus] = &Feature{
		Name:           FeatureMilestoneBonus,
		Description:    "Bonus XP on 7 and 30 day streaks",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeaturePrayerAchievements] = &Feature{
		Name:           FeaturePrayerAchievements,
		Description:    "Evaluate prayer streak achievements",
		Enabled:        true,
		RolloutPercent: 100,
	}
	ff.features[FeatureEventPublishing] = &Feature{
		Name:           FeatureEventPublishing,
		Description:    "Publish progression events to Redis",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment reads FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_PROGRESSION_MILESTONE_BONUS=false
func (ff *FeatureFlags) loadFromEnvironment(getenv func(string) string) {
	for name, feature := range ff.features {
		val := getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts "progression.milestone_bonus" to
// "FEATURE_PROGRESSION_MILESTONE_BONUS".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// Enabled reports whether featureName is on for userID. An empty userID
// only sees fully rolled-out features.
func (ff *FeatureFlags) Enabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if userID == "" {
		return false
	}
	return isInRollout(userID, featureName, feature.RolloutPercent)
}

// isInRollout hashes user and feature so a user keeps their bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride pins a feature for one user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
