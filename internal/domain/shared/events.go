package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Progression events. They are notifications for UI toasts and audit
// consumers; the store remains the source of truth.
const (
	EventStreakUpdated       EventType = "streak.updated"
	EventXPAwarded           EventType = "xp.awarded"
	EventLevelUp             EventType = "xp.level_up"
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progression Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted when a day was credited to a user's streak.
type StreakUpdatedEvent struct {
	BaseEvent
	Transition    string `json:"transition"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	GraceUsed     bool   `json:"grace_used"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"transition":     e.Transition,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
		"grace_used":     e.GraceUsed,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID, transition string, current, longest int, graceUsed bool) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID),
		Transition:    transition,
		CurrentStreak: current,
		LongestStreak: longest,
		GraceUsed:     graceUsed,
	}
}

// XPAwardedEvent is emitted after an XP event was appended to the ledger.
type XPAwardedEvent struct {
	BaseEvent
	Source   string `json:"source"`
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"source":    e.Source,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
	}
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID, source string, amount, newTotal int) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID),
		Source:    source,
		Amount:    amount,
		NewTotal:  newTotal,
	}
}

// LevelUpEvent is emitted when an award moved a user to a higher level.
type LevelUpEvent struct {
	BaseEvent
	PreviousLevel int    `json:"previous_level"`
	NewLevel      int    `json:"new_level"`
	Title         string `json:"title"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_level": e.PreviousLevel,
		"new_level":      e.NewLevel,
		"title":          e.Title,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, previous, level int, title string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     NewBaseEvent(EventLevelUp, userID),
		PreviousLevel: previous,
		NewLevel:      level,
		Title:         title,
	}
}

// AchievementUnlockedEvent is emitted once per (user, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	Key     string `json:"key"`
	XPValue int    `json:"xp_value"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"key":      e.Key,
		"xp_value": e.XPValue,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, key string, xp int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent: NewBaseEvent(EventAchievementUnlocked, userID),
		Key:       key,
		XPValue:   xp,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event payload into an envelope.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ baseEvent() BaseEvent }); ok {
		env.CorrelationID = b.baseEvent().CorrelationID
	}
	return env, nil
}

func (e BaseEvent) baseEvent() BaseEvent { return e }

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
