//go:build unit || !integration

package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type InMemoryPubSubSuite struct {
	suite.Suite
	pubSub     *InMemoryPubSub[string]
	subscriber *InMemorySubscriber[string]
}

func TestInMemoryPubSubSuite(t *testing.T) {
	suite.Run(t, new(InMemoryPubSubSuite))
}

func (s *InMemoryPubSubSuite) SetupTest() {
	s.pubSub = NewInMemoryPubSub[string]()
	s.subscriber = NewInMemorySubscriber[string]()
	s.Require().NoError(s.pubSub.Subscribe(context.Background(), s.subscriber))
}

func (s *InMemoryPubSubSuite) TestPubSub() {
	msg := "hello"
	s.NoError(s.pubSub.Publish(context.Background(), msg))
	s.Equal([]string{msg}, s.subscriber.Events())
}

func (s *InMemoryPubSubSuite) TestSecondSubscriberRejected() {
	err := s.pubSub.Subscribe(context.Background(), NewInMemorySubscriber[string]())
	s.Error(err)
}

func (s *InMemoryPubSubSuite) TestChainedSubscriber() {
	first := NewInMemorySubscriber[string]()
	second := NewInMemorySubscriber[string]()
	chain := NewChainedSubscriber[string](true)
	chain.Add(first)
	chain.Add(second)

	s.NoError(chain.Handle(context.Background(), "fan-out"))
	s.Equal([]string{"fan-out"}, first.Events())
	s.Equal([]string{"fan-out"}, second.Events())
}

func (s *InMemoryPubSubSuite) TestChainedSubscriberStopsOnError() {
	bad := &InMemorySubscriber[string]{badSubscriber: true}
	after := NewInMemorySubscriber[string]()
	chain := NewChainedSubscriber[string](false)
	chain.Add(bad)
	chain.Add(after)

	s.Error(chain.Handle(context.Background(), "dropped"))
	s.Empty(after.Events())
}
