package chat

import (
	"errors"
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/testutil/testlog"
)

func newDetachedSession(t *testing.T) (*Session, *hub.TopicRegistry, *hub.Exchange) {
	t.Helper()
	srvConn, cliConn := net.Pipe()
	t.Cleanup(func() {
		_ = srvConn.Close()
		_ = cliConn.Close()
	})
	// Drain the peer end so reply writes never block the session.
	go func() { _, _ = io.Copy(io.Discard, cliConn) }()
	topics := hub.NewTopicRegistry()
	private := hub.NewExchange()
	sess := newSession(srvConn, DefaultConfig(), store.NewMemoryStore(), topics, private, zerolog.Nop())
	return sess, topics, private
}

func TestSubscribeAfterTeardownIsRefused(t *testing.T) {
	testlog.Start(t)
	sess, topics, _ := newDetachedSession(t)

	sess.teardown()
	if err := sess.subscribeTopic(42); !errors.Is(err, errSessionClosed) {
		t.Fatalf("expected errSessionClosed, got %v", err)
	}
	if n := topics.GetOrCreate(42).SubscriberCount(); n != 0 {
		t.Fatalf("dead session left %d subscription(s) in the registry", n)
	}
	if sess.JoinedCount() != 0 {
		t.Fatalf("dead session tracks %d joined topics", sess.JoinedCount())
	}
}

func TestLoginAfterTeardownLeavesUserOffline(t *testing.T) {
	testlog.Start(t)
	sess, _, private := newDetachedSession(t)

	sess.teardown()
	if sess.handleLogin(protocol.NewCreateAccount(1, "alice", "pw"), true) {
		t.Fatal("expected login on a dead session to stop the loop")
	}
	if private.Online("alice") {
		t.Fatal("dead session registered a private endpoint")
	}
	if sess.State() != StateDisconnected {
		t.Fatalf("state got=%v", sess.State())
	}
}

func TestTeardownRemovesEverySubscription(t *testing.T) {
	testlog.Start(t)
	sess, topics, private := newDetachedSession(t)

	if !sess.handleLogin(protocol.NewCreateAccount(1, "alice", "pw"), true) {
		t.Fatal("login failed")
	}
	if !private.Online("alice") {
		t.Fatal("login did not register the endpoint")
	}
	if err := sess.subscribeTopic(7); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sess.subscribeTopic(8); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sess.teardown()
	if private.Online("alice") {
		t.Fatal("endpoint survived teardown")
	}
	for _, id := range []uint64{7, 8} {
		if n := topics.GetOrCreate(id).SubscriberCount(); n != 0 {
			t.Fatalf("topic %d kept %d subscribers after teardown", id, n)
		}
	}
}
