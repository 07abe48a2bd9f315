package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event is one published message: a topic, a data payload, and metadata.
type Event struct {
	ID        string
	Topic     Topic
	Data      map[string]interface{}
	Timestamp time.Time
}

// Subscription is a registered listener's interest in a set of topics,
// matching the teacher's EventSubscription shape.
type Subscription struct {
	ID        string
	Topics    map[Topic]bool
	Ch        chan Event
	createdAt time.Time
}

// Bus is a topic-keyed publish/subscribe hub. The zero value is not usable;
// construct with New.
type Bus struct {
	mu                  sync.RWMutex
	subscriptions       map[string]*Subscription
	topicSubscriptions  map[Topic]map[string]*Subscription
	publishedTotal      int64
	activeSubscriptions int64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		subscriptions:      make(map[string]*Subscription),
		topicSubscriptions: make(map[Topic]map[string]*Subscription),
	}
}

// Subscribe registers interest in the given topics and returns a
// Subscription whose Ch receives matching events. bufferSize bounds the
// channel so one slow subscriber cannot block Publish; events are dropped
// for a subscriber whose channel is full.
func Subscribe(b *Bus, topics []Topic, bufferSize int) *Subscription {
	sub := &Subscription{
		ID:        uuid.New().String(),
		Topics:    make(map[Topic]bool, len(topics)),
		Ch:        make(chan Event, bufferSize),
		createdAt: time.Now(),
	}
	for _, t := range topics {
		sub.Topics[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[sub.ID] = sub
	for t := range sub.Topics {
		if b.topicSubscriptions[t] == nil {
			b.topicSubscriptions[t] = make(map[string]*Subscription)
		}
		b.topicSubscriptions[t][sub.ID] = sub
	}
	atomic.AddInt64(&b.activeSubscriptions, 1)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscriptions[id]
	if !ok {
		return
	}
	delete(b.subscriptions, id)
	for t := range sub.Topics {
		delete(b.topicSubscriptions[t], id)
	}
	close(sub.Ch)
	atomic.AddInt64(&b.activeSubscriptions, -1)
}

// Publish sends an event to every subscriber interested in topic. Delivery
// is non-blocking: a subscriber whose buffered channel is full misses the
// event rather than stalling the publisher.
func (b *Bus) Publish(topic Topic, data map[string]interface{}) {
	ev := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
	}
	atomic.AddInt64(&b.publishedTotal, 1)

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.topicSubscriptions[topic]))
	for _, s := range b.topicSubscriptions[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.Ch <- ev:
		default:
		}
	}
}

// Stats returns a snapshot of bus activity.
func (b *Bus) Stats() (published int64, active int64) {
	return atomic.LoadInt64(&b.publishedTotal), atomic.LoadInt64(&b.activeSubscriptions)
}
