package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/testutil/testlog"
)

func TestGetOrCreateConcurrentSingleHandle(t *testing.T) {
	testlog.Start(t)
	r := NewTopicRegistry()

	const workers = 32
	handles := make([]*Topic, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			handles[n] = r.GetOrCreate(7)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("handle %d differs from handle 0", i)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("expected one topic handle, got %d", r.Len())
	}
}

func TestFanOutToAllSubscribers(t *testing.T) {
	testlog.Start(t)
	r := NewTopicRegistry()
	topic := r.GetOrCreate(1)

	got := make(map[SubscriberID][]string)
	var mu sync.Mutex
	record := func(id SubscriberID) TopicDelivery {
		return func(m TopicMessage) {
			mu.Lock()
			got[id] = append(got[id], m.Body)
			mu.Unlock()
		}
	}

	for _, id := range []SubscriberID{"a", "b", "c"} {
		if err := topic.Subscribe(id, record(id)); err != nil {
			t.Fatalf("subscribe %s: %v", id, err)
		}
	}

	if n := topic.Publish("alice", time.Now(), "hello"); n != 3 {
		t.Fatalf("expected 3 deliveries, got %d", n)
	}
	for _, id := range []SubscriberID{"a", "b", "c"} {
		if len(got[id]) != 1 || got[id][0] != "hello" {
			t.Fatalf("subscriber %s got %v", id, got[id])
		}
	}

	topic.Unsubscribe("b")
	if n := topic.Publish("alice", time.Now(), "again"); n != 2 {
		t.Fatalf("expected 2 deliveries after unsubscribe, got %d", n)
	}
	if len(got["b"]) != 1 {
		t.Fatalf("b received a message after unsubscribe: %v", got["b"])
	}
	if len(got["a"]) != 2 || len(got["c"]) != 2 {
		t.Fatalf("a/c missed delivery: a=%v c=%v", got["a"], got["c"])
	}
}

func TestPublishOrderPreservedPerSubscriber(t *testing.T) {
	testlog.Start(t)
	r := NewTopicRegistry()
	topic := r.GetOrCreate(2)

	var mu sync.Mutex
	seen := make(map[SubscriberID][]string)
	for _, id := range []SubscriberID{"a", "b", "c"} {
		sub := id
		if err := topic.Subscribe(sub, func(m TopicMessage) {
			mu.Lock()
			seen[sub] = append(seen[sub], m.Body)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	topic.Publish("alice", time.Now(), "X")
	topic.Publish("alice", time.Now(), "Y")

	for id, bodies := range seen {
		if len(bodies) != 2 || bodies[0] != "X" || bodies[1] != "Y" {
			t.Fatalf("subscriber %s observed %v, want [X Y]", id, bodies)
		}
	}
}

func TestConcurrentPublishersConsistentOrder(t *testing.T) {
	testlog.Start(t)
	r := NewTopicRegistry()
	topic := r.GetOrCreate(3)

	var mu sync.Mutex
	orders := make(map[SubscriberID][]string)
	for _, id := range []SubscriberID{"a", "b"} {
		sub := id
		if err := topic.Subscribe(sub, func(m TopicMessage) {
			mu.Lock()
			orders[sub] = append(orders[sub], m.Body)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	const publishers = 8
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic.Publish("user", time.Now(), string(rune('0'+n)))
		}(i)
	}
	wg.Wait()

	if len(orders["a"]) != publishers || len(orders["b"]) != publishers {
		t.Fatalf("missed deliveries: a=%d b=%d", len(orders["a"]), len(orders["b"]))
	}
	for i := range orders["a"] {
		if orders["a"][i] != orders["b"][i] {
			t.Fatalf("subscribers observed different orders: a=%v b=%v", orders["a"], orders["b"])
		}
	}
}

func TestDuplicateSubscribeIsCallerError(t *testing.T) {
	testlog.Start(t)
	topic := NewTopicRegistry().GetOrCreate(4)
	fn := func(TopicMessage) {}

	if err := topic.Subscribe("a", fn); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := topic.Subscribe("a", fn); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestSubscribeNilDelivery(t *testing.T) {
	testlog.Start(t)
	topic := NewTopicRegistry().GetOrCreate(5)
	if err := topic.Subscribe("a", nil); !errors.Is(err, ErrNilDelivery) {
		t.Fatalf("expected ErrNilDelivery, got %v", err)
	}
}

func TestUnsubscribeUnknownIsNoOp(t *testing.T) {
	testlog.Start(t)
	topic := NewTopicRegistry().GetOrCreate(6)
	topic.Unsubscribe("nobody")
	if topic.SubscriberCount() != 0 {
		t.Fatalf("expected empty subscriber set")
	}
}

func TestZeroSubscriberHandlesAreNotEvicted(t *testing.T) {
	testlog.Start(t)
	r := NewTopicRegistry()
	topic := r.GetOrCreate(9)
	if err := topic.Subscribe("a", func(TopicMessage) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	topic.Unsubscribe("a")

	if r.Len() != 1 {
		t.Fatalf("zero-subscriber handle was evicted")
	}
	if again := r.GetOrCreate(9); again != topic {
		t.Fatalf("handle identity changed after draining subscribers")
	}
}
