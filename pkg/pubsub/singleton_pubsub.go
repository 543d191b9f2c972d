package pubsub

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// SingletonPubSub is an abstract pubsub that only allows one subscriber
type SingletonPubSub[T any] struct {
	Subscriber     Subscriber[T]
	subscriberOnce sync.Once
}

func (p *SingletonPubSub[T]) Subscribe(ctx context.Context, subscriber Subscriber[T]) error {
	var firstSubscriber bool
	p.subscriberOnce.Do(func() {
		p.Subscriber = subscriber
		firstSubscriber = true
	})
	if !firstSubscriber {
		return errors.New("only a single subscriber is allowed. Use ChainedSubscriber to chain multiple subscribers")
	}
	return nil
}
