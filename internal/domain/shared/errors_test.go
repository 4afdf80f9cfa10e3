package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError("streak", "Advance", ErrStorage, "failed to save", cause)

	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsValidation(err))
	assert.Equal(t, "streak.Advance: failed to save: disk full", err.Error())
}

func TestValidation(t *testing.T) {
	err := Validation("activity", "Validate", "unknown activity type %q", "dance")
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), `"dance"`)
}

func TestStorage_KeepsExistingKinds(t *testing.T) {
	assert.Nil(t, Storage("xp", "Award", "x", nil))

	conflict := fmt.Errorf("insert: %w", ErrAchievementUnlocked)
	assert.Equal(t, conflict, Storage("achievement", "Insert", "x", conflict))
	assert.True(t, IsConflict(Storage("achievement", "Insert", "x", conflict)))

	wrapped := Storage("xp", "Award", "failed", errors.New("boom"))
	assert.True(t, IsStorage(wrapped))
	assert.Equal(t, wrapped, Storage("xp", "Award", "again", wrapped))
}

func TestPredefinedErrors(t *testing.T) {
	assert.True(t, IsValidation(ErrUnknownActivityType))
	assert.True(t, IsValidation(ErrUnknownEventType))
	assert.True(t, IsConflict(ErrAchievementUnlocked))
	assert.True(t, IsNotFound(ErrAchievementNotFound))
	assert.True(t, IsRetryable(fmt.Errorf("tx: %w", ErrConcurrentModification)))
	assert.False(t, IsRetryable(ErrConflict))
}
