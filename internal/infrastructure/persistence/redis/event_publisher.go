package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/shared"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/circuitbreaker"
)

// EventPublisher pushes domain events to a Redis channel as
// shared.EventEnvelope JSON. Delivery is best effort.
type EventPublisher struct {
	cache   *Cache
	channel string
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

var _ shared.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher on channel (DefaultEventChannel when empty).
func NewEventPublisher(cache *Cache, channel string, breaker *circuitbreaker.Breaker) *EventPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	return &EventPublisher{
		cache:   cache,
		channel: channel,
		breaker: breaker,
		timeout: time.Second,
	}
}

// Channel returns the channel name.
func (p *EventPublisher) Channel() string {
	return p.channel
}

// Publish implements shared.EventPublisher.
func (p *EventPublisher) Publish(event shared.Event) error {
	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Publish(ctx, p.channel, env)
	})
}
