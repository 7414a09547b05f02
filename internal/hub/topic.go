package hub

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadySubscribed = errors.New("hub: subscriber already present")
	ErrNilDelivery       = errors.New("hub: delivery callback is nil")
)

// SubscriberID is the stable identity of one delivery endpoint, the
// session id.
type SubscriberID string

// TopicMessage is one chat message fanned out to topic subscribers.
type TopicMessage struct {
	TopicID uint64
	User    string
	At      time.Time
	Body    string
}

// TopicDelivery receives one topic message. It runs synchronously on the
// publisher's goroutine and must not call back into the same topic.
type TopicDelivery func(TopicMessage)

// Topic is the runtime fan-out handle for one durable topic id. The handle
// mutex serializes subscription changes and publishes, so every subscriber
// observes publishes on one topic in a single consistent order.
type Topic struct {
	id   uint64
	mu   sync.Mutex
	subs map[SubscriberID]TopicDelivery
}

// ID returns the durable topic id this handle fans out for.
func (t *Topic) ID() uint64 {
	return t.id
}

// Subscribe registers a delivery callback under the subscriber id.
// Subscribing an id that is already present is a caller error.
func (t *Topic) Subscribe(id SubscriberID, fn TopicDelivery) error {
	if fn == nil {
		return ErrNilDelivery
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[id]; ok {
		return ErrAlreadySubscribed
	}
	t.subs[id] = fn
	return nil
}

// Unsubscribe removes the subscriber. Unknown ids are a no-op.
func (t *Topic) Unsubscribe(id SubscriberID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

// Publish delivers one message to every current subscriber, the sender's
// session included, and returns the delivered count. The handle lock is
// held for the whole fan-out: a slow subscriber backpressures every
// publisher into this topic.
func (t *Topic) Publish(user string, at time.Time, body string) int {
	msg := TopicMessage{TopicID: t.id, User: user, At: at, Body: body}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, fn := range t.subs {
		fn(msg)
	}
	return len(t.subs)
}

// SubscriberCount returns the current number of subscribers.
func (t *Topic) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// TopicRegistry maps durable topic ids to their unique runtime handles.
// Handles are created lazily on first reference and never evicted.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[uint64]*Topic
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[uint64]*Topic)}
}

// GetOrCreate returns the handle for topicID, creating it on first use.
// Idempotent: concurrent first references all receive the same handle.
func (r *TopicRegistry) GetOrCreate(topicID uint64) *Topic {
	r.mu.RLock()
	topic, ok := r.topics[topicID]
	r.mu.RUnlock()
	if ok {
		return topic
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if topic, ok := r.topics[topicID]; ok {
		return topic
	}
	topic = &Topic{id: topicID, subs: make(map[SubscriberID]TopicDelivery)}
	r.topics[topicID] = topic
	return topic
}

// Get returns the handle for topicID if it exists.
func (r *TopicRegistry) Get(topicID uint64) (*Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topic, ok := r.topics[topicID]
	return topic, ok
}

// Len returns the number of live topic handles.
func (r *TopicRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
