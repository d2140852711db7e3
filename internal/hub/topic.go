package hub

import (
	"sync"

	"delivery/internal/domain"
)

// TopicKind is the key space a subscription listens on.
type TopicKind string

const (
	TopicRider TopicKind = "rider"
	TopicOrder TopicKind = "order"
	TopicAll   TopicKind = "all"
)

// Topic identifies a broadcast stream.
type Topic struct {
	Kind TopicKind
	ID   string
}

func RiderTopic(riderID string) Topic { return Topic{Kind: TopicRider, ID: riderID} }
func OrderTopic(orderID string) Topic { return Topic{Kind: TopicOrder, ID: orderID} }
func AllTopic() Topic                 { return Topic{Kind: TopicAll} }

func (t Topic) valid() bool {
	switch t.Kind {
	case TopicRider, TopicOrder:
		return t.ID != ""
	case TopicAll:
		return t.ID == ""
	}
	return false
}

// Subscription is a buffered event stream for one topic. Events that do not
// fit in the buffer are dropped for this subscriber only.
type Subscription struct {
	id     string
	topic  Topic
	events chan domain.TrackingEvent
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) ID() string   { return s.id }
func (s *Subscription) Topic() Topic { return s.topic }

// Events is closed after Close or when the hub shuts down.
func (s *Subscription) Events() <-chan domain.TrackingEvent {
	return s.events
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// offer is a non-blocking send. The caller holds the hub's subscriber read lock.
func (s *Subscription) offer(ev domain.TrackingEvent) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}
