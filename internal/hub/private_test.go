package hub

import (
	"testing"
	"time"

	"github.com/parleychat/parley/internal/testutil/testlog"
)

func TestDeliverToRegisteredUser(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()

	var got PrivateMessage
	e.Register("bob", "s1", func(m PrivateMessage) { got = m })

	at := time.Now()
	if status := e.Deliver("alice", "bob", at, "hello"); status != Delivered {
		t.Fatalf("expected Delivered, got %v", status)
	}
	if got.From != "alice" || got.Body != "hello" || !got.At.Equal(at) {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestDeliverToOfflineUserIsDropped(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()

	received := 0
	e.Register("bob", "s1", func(PrivateMessage) { received++ })
	e.Deregister("bob", "s1")

	if status := e.Deliver("alice", "bob", time.Now(), "hello"); status != UserOffline {
		t.Fatalf("expected UserOffline, got %v", status)
	}
	if received != 0 {
		t.Fatalf("offline user received a message")
	}
}

func TestRegisterReplacesPreviousEndpoint(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()

	first, second := 0, 0
	if replaced := e.Register("carol", "s1", func(PrivateMessage) { first++ }); replaced {
		t.Fatalf("first registration reported replacement")
	}
	if replaced := e.Register("carol", "s2", func(PrivateMessage) { second++ }); !replaced {
		t.Fatalf("second registration did not report replacement")
	}

	e.Deliver("alice", "carol", time.Now(), "hi")
	if first != 0 || second != 1 {
		t.Fatalf("delivery went to stale endpoint: first=%d second=%d", first, second)
	}
	if e.OnlineCount() != 1 {
		t.Fatalf("expected one endpoint, got %d", e.OnlineCount())
	}
}

func TestStaleOwnerCannotDeregisterReplacedEndpoint(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()

	e.Register("carol", "s1", func(PrivateMessage) {})
	e.Register("carol", "s2", func(PrivateMessage) {})

	// The replaced session tears down after the new login.
	e.Deregister("carol", "s1")
	if !e.Online("carol") {
		t.Fatalf("stale teardown removed the live endpoint")
	}

	e.Deregister("carol", "s2")
	if e.Online("carol") {
		t.Fatalf("owner deregistration did not remove the endpoint")
	}
}

func TestDeregisterUnknownIsNoOp(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()
	e.Deregister("nobody", "s1")
	if e.Online("nobody") {
		t.Fatalf("unknown user reported online")
	}
}

func TestRegisterRejectsEmptyUserAndNilCallback(t *testing.T) {
	testlog.Start(t)
	e := NewExchange()
	e.Register("", "s1", func(PrivateMessage) {})
	e.Register("dave", "s1", nil)
	if e.OnlineCount() != 0 {
		t.Fatalf("invalid registration was accepted")
	}
}
