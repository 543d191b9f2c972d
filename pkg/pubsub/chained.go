package pubsub

import (
	"context"
	"reflect"

	"github.com/rs/zerolog/log"
)

// ChainedPublisher publishes a message to multiple publishers in order.
type ChainedPublisher[T any] struct {
	publishers   []Publisher[T]
	ignoreErrors bool
}

func NewChainedPublisher[T any](ignoreErrors bool) *ChainedPublisher[T] {
	return &ChainedPublisher[T]{
		ignoreErrors: ignoreErrors,
	}
}

// Add publisher to the chain
func (c *ChainedPublisher[T]) Add(publisher Publisher[T]) {
	c.publishers = append(c.publishers, publisher)
}

func (c *ChainedPublisher[T]) Publish(ctx context.Context, message T) error {
	for _, publisher := range c.publishers {
		err := publisher.Publish(ctx, message)
		if err != nil {
			if !c.ignoreErrors {
				return err
			}
			log.Ctx(ctx).Warn().Err(err).Msgf("error publishing message by %s", reflect.TypeOf(publisher))
		}
	}
	return nil
}

// ChainedSubscriber routes a message to multiple subscribers in order.
type ChainedSubscriber[T any] struct {
	subscribers  []Subscriber[T]
	ignoreErrors bool
}

func NewChainedSubscriber[T any](ignoreErrors bool) *ChainedSubscriber[T] {
	return &ChainedSubscriber[T]{
		ignoreErrors: ignoreErrors,
	}
}

// Add subscriber to the chain
func (c *ChainedSubscriber[T]) Add(subscriber Subscriber[T]) {
	c.subscribers = append(c.subscribers, subscriber)
}

func (c *ChainedSubscriber[T]) Handle(ctx context.Context, message T) error {
	for _, subscriber := range c.subscribers {
		err := subscriber.Handle(ctx, message)
		if err != nil {
			if !c.ignoreErrors {
				return err
			}
			log.Ctx(ctx).Warn().Err(err).Msgf("error handling message by %s", reflect.TypeOf(subscriber))
		}
	}
	return nil
}

// compile-time interface assertions
var _ Publisher[string] = (*ChainedPublisher[string])(nil)
var _ Subscriber[string] = (*ChainedSubscriber[string])(nil)
