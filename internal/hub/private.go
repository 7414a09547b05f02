package hub

import (
	"strings"
	"sync"
	"time"
)

// Status is the outcome of one private delivery attempt.
type Status int

const (
	Delivered Status = iota
	UserOffline
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case UserOffline:
		return "user_offline"
	default:
		return "unknown"
	}
}

// PrivateMessage is one direct message handed to a user's endpoint.
type PrivateMessage struct {
	From string
	At   time.Time
	Body string
}

// PrivateDelivery receives one private message on the sender's goroutine.
type PrivateDelivery func(PrivateMessage)

type privateEndpoint struct {
	owner SubscriberID
	fn    PrivateDelivery
}

// Exchange maps each online user to exactly one delivery callback.
// Registration happens at login, removal at logout or disconnect.
// Endpoints carry the owning session id so a stale session cannot
// deregister the endpoint a later login installed.
type Exchange struct {
	mu   sync.Mutex
	subs map[string]privateEndpoint
}

// NewExchange creates an empty private-message exchange.
func NewExchange() *Exchange {
	return &Exchange{subs: make(map[string]privateEndpoint)}
}

// Register installs the delivery callback for user, replacing any previous
// one. A second login for the same account deterministically wins the
// endpoint; the reported bool says whether a callback was replaced.
func (e *Exchange) Register(user string, owner SubscriberID, fn PrivateDelivery) bool {
	key := strings.TrimSpace(user)
	if key == "" || fn == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, replaced := e.subs[key]
	e.subs[key] = privateEndpoint{owner: owner, fn: fn}
	return replaced
}

// Deregister removes the user's endpoint if it is still owned by owner.
// Unknown users and endpoints owned by another session are a no-op.
func (e *Exchange) Deregister(user string, owner SubscriberID) {
	key := strings.TrimSpace(user)
	e.mu.Lock()
	defer e.mu.Unlock()
	if ep, ok := e.subs[key]; ok && ep.owner == owner {
		delete(e.subs, key)
	}
}

// Deliver hands the message to the target's endpoint if one is registered.
// An offline target returns UserOffline and the message is dropped; the
// caller decides whether to surface that (the session engine only logs it,
// the sender is not notified).
func (e *Exchange) Deliver(from, to string, at time.Time, body string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	ep, ok := e.subs[strings.TrimSpace(to)]
	if !ok {
		return UserOffline
	}
	ep.fn(PrivateMessage{From: from, At: at, Body: body})
	return Delivered
}

// Online reports whether the user currently has an endpoint.
func (e *Exchange) Online(user string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.subs[strings.TrimSpace(user)]
	return ok
}

// OnlineCount returns the number of registered endpoints.
func (e *Exchange) OnlineCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
