package pubsub

import (
	"context"

	"github.com/pkg/errors"
)

// InMemoryPubSub is a simple in-memory pubsub implementation used for testing
// and single-process deployments.
type InMemoryPubSub[T any] struct {
	SingletonPubSub[T]
}

func NewInMemoryPubSub[T any]() *InMemoryPubSub[T] {
	return &InMemoryPubSub[T]{}
}

func (p *InMemoryPubSub[T]) Publish(ctx context.Context, message T) error {
	if p.Subscriber != nil {
		return p.Subscriber.Handle(ctx, message)
	}
	return nil
}

func (p *InMemoryPubSub[T]) Close(ctx context.Context) error {
	return nil
}

// InMemorySubscriber records handled messages for inspection in tests.
type InMemorySubscriber[T any] struct {
	events        []T
	badSubscriber bool
}

func NewInMemorySubscriber[T any]() *InMemorySubscriber[T] {
	return &InMemorySubscriber[T]{
		events: make([]T, 0),
	}
}

func (s *InMemorySubscriber[T]) Handle(ctx context.Context, message T) error {
	if s.badSubscriber {
		return errors.New("failed to handle message as I am a bad subscriber")
	}
	s.events = append(s.events, message)
	return nil
}

// Events drains and returns the messages handled so far.
func (s *InMemorySubscriber[T]) Events() []T {
	res := s.events
	s.events = make([]T, 0)
	return res
}

// NoopSubscriber is a subscriber that does nothing. Useful for nodes that
// only participate in the gossip protocol without handling messages.
type NoopSubscriber[T any] struct{}

func NewNoopSubscriber[T any]() *NoopSubscriber[T] {
	return &NoopSubscriber[T]{}
}

func (c *NoopSubscriber[T]) Handle(ctx context.Context, message T) error {
	return nil
}

// compile-time interface assertions
var _ PubSub[string] = (*InMemoryPubSub[string])(nil)
var _ Subscriber[string] = (*InMemorySubscriber[string])(nil)
var _ Subscriber[string] = (*NoopSubscriber[string])(nil)
