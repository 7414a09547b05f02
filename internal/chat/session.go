package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/hub"
	"github.com/parleychat/parley/internal/observability"
	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/store"
)

var errSessionClosed = errors.New("chat: session closed")

// State is the session authentication state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the per-connection worker and state holder for one client.
// It reads inbound messages one at a time and handles each to completion;
// registry delivery callbacks write to the same socket from publisher
// goroutines, serialized by the write mutex.
type Session struct {
	id      hub.SubscriberID
	conn    net.Conn
	cfg     Config
	store   store.Store
	topics  *hub.TopicRegistry
	private *hub.Exchange
	logger  zerolog.Logger

	writeMu sync.Mutex
	pushID  atomic.Uint64

	mu     sync.Mutex // guards state, user, joined
	state  State
	user   string
	joined map[uint64]*hub.Topic

	teardownOnce sync.Once
	dead         atomic.Bool
}

func newSession(conn net.Conn, cfg Config, st store.Store, topics *hub.TopicRegistry, private *hub.Exchange, logger zerolog.Logger) *Session {
	id := hub.SubscriberID(uuid.NewString())
	return &Session{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		store:   st,
		topics:  topics,
		private: private,
		logger:  logger.With().Str("session", string(id)).Logger(),
		state:   StateUnauthenticated,
		joined:  make(map[uint64]*hub.Topic),
	}
}

// ID returns the stable subscriber identity of this session.
func (s *Session) ID() hub.SubscriberID { return s.id }

// Done reports whether the session has finished and awaits purging.
func (s *Session) Done() bool { return s.dead.Load() }

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the authenticated user, or "".
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// JoinedCount returns the number of joined topics.
func (s *Session) JoinedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.joined)
}

// run is the session worker loop: block on the next inbound frame,
// handle it to completion, repeat. Any decode failure is session-fatal.
func (s *Session) run() {
	defer s.teardown()

	for {
		msg, err := protocol.Decode(s.conn, s.cfg.Limits)
		if err != nil {
			if errors.Is(err, io.EOF) || s.dead.Load() {
				s.logger.Info().Msg("connection closed")
			} else {
				s.logger.Warn().Err(err).Msg("protocol error, dropping connection")
			}
			return
		}
		if err := protocol.Validate(msg); err != nil {
			s.logger.Warn().Err(err).Msg("schema violation, dropping connection")
			return
		}
		if !s.handle(msg) {
			return
		}
	}
}

// handle dispatches one inbound message. It returns false when the
// session should stop reading.
func (s *Session) handle(msg *protocol.Message) bool {
	s.logger.Debug().
		Uint64("msg_id", msg.Header.MessageID).
		Uint32("msg_type", uint32(msg.Header.MessageType)).
		Msg("inbound")

	switch msg.Header.MessageType {
	case protocol.MessageProbe:
		// Stray probe after handshake; harmless.
		return true
	case protocol.MessageLogin:
		return s.handleLogin(msg, false)
	case protocol.MessageCreateAccount:
		return s.handleLogin(msg, true)
	case protocol.MessageCreateTopic:
		return s.handleCreateTopic(msg)
	case protocol.MessageListTopics:
		return s.handleListTopics(msg)
	case protocol.MessageJoinTopic:
		return s.handleJoinTopic(msg)
	case protocol.MessageLeaveTopic:
		return s.handleLeaveTopic(msg)
	case protocol.MessageChatTopic:
		return s.handleChatTopic(msg)
	case protocol.MessageChatPrivate:
		return s.handleChatPrivate(msg)
	case protocol.MessageDisconnect:
		return false
	case protocol.MessageExit:
		_ = s.write(protocol.NewOk(msg.Header.MessageID))
		return false
	default:
		// Validate admits only the closed set; response kinds from a
		// client are meaningless and fatal.
		s.logger.Warn().Uint32("msg_type", uint32(msg.Header.MessageType)).Msg("unexpected message kind")
		return false
	}
}

func (s *Session) handleLogin(msg *protocol.Message, create bool) bool {
	login, password, err := protocol.Credentials(msg)
	if err != nil {
		s.logger.Warn().Err(err).Msg("bad credentials payload")
		return false
	}

	if s.State() == StateAuthenticated {
		return s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeInternal, "already authenticated"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	if create {
		err = s.store.CreateAccount(ctx, login, password)
	} else {
		err = s.store.AuthenticateAccount(ctx, login, password)
	}
	switch {
	case errors.Is(err, store.ErrBadCredentials):
		return s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeBadCredentials, "login or password incorrect"))
	case errors.Is(err, store.ErrLoginExists):
		return s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeLoginExists, "login exists"))
	case err != nil:
		s.logger.Error().Err(err).Msg("store failure during authentication")
		return false
	}

	s.mu.Lock()
	if s.state == StateDisconnected {
		// Teardown won the race; registering now would leave the user
		// permanently online with nothing left to deregister it.
		s.mu.Unlock()
		return false
	}
	s.state = StateAuthenticated
	s.user = login
	s.private.Register(login, s.id, s.deliverPrivate)
	s.mu.Unlock()

	s.logger.Info().Str("user", login).Bool("created", create).Msg("authenticated")
	return s.write(protocol.NewOk(msg.Header.MessageID, protocol.NewFieldString(protocol.FieldIDLogin, login)))
}

// requireUser returns the authenticated user or replies with an auth error.
func (s *Session) requireUser(msg *protocol.Message) (string, bool) {
	s.mu.Lock()
	user := s.user
	authed := s.state == StateAuthenticated
	s.mu.Unlock()
	if !authed {
		_ = s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeNotAuthenticated, "not authenticated"))
		return "", false
	}
	return user, true
}

func (s *Session) handleCreateTopic(msg *protocol.Message) bool {
	user, ok := s.requireUser(msg)
	if !ok {
		return true
	}
	name, err := protocol.TopicName(msg)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	topic, err := s.store.CreateTopic(ctx, name)
	switch {
	case errors.Is(err, store.ErrTopicExists):
		return s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeTopicExists, "topic exists"))
	case err != nil:
		s.logger.Error().Err(err).Msg("store failure during topic creation")
		return false
	}

	// The creator joins its new topic immediately.
	if err := s.subscribeTopic(topic.ID); errors.Is(err, errSessionClosed) {
		return false
	}
	s.logger.Info().Str("user", user).Uint64("topic", topic.ID).Str("name", topic.Name).Msg("topic created")
	return s.write(protocol.NewTopicAck(msg.Header.MessageID, topic.ID, topic.Name))
}

func (s *Session) handleListTopics(msg *protocol.Message) bool {
	if _, ok := s.requireUser(msg); !ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	topics, err := s.store.ListTopics(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("store failure during topic listing")
		return false
	}
	for _, topic := range topics {
		if !s.write(protocol.NewTopicItem(msg.Header.MessageID, topic.ID, topic.Name)) {
			return false
		}
	}
	return s.write(protocol.NewEndOfList(msg.Header.MessageID))
}

func (s *Session) handleJoinTopic(msg *protocol.Message) bool {
	user, ok := s.requireUser(msg)
	if !ok {
		return true
	}
	topicID, err := protocol.TopicID(msg)
	if err != nil {
		return false
	}

	if err := s.subscribeTopic(topicID); err != nil {
		if errors.Is(err, errSessionClosed) {
			return false
		}
		return s.write(protocol.NewError(msg.Header.MessageID, protocol.CodeAlreadyJoined, "already joined"))
	}
	s.logger.Info().Str("user", user).Uint64("topic", topicID).Msg("joined topic")
	return s.write(protocol.NewTopicAck(msg.Header.MessageID, topicID, s.topicName(topicID)))
}

func (s *Session) handleLeaveTopic(msg *protocol.Message) bool {
	user, ok := s.requireUser(msg)
	if !ok {
		return true
	}
	topicID, err := protocol.TopicID(msg)
	if err != nil {
		return false
	}

	s.mu.Lock()
	topic, joined := s.joined[topicID]
	delete(s.joined, topicID)
	s.mu.Unlock()
	if joined {
		topic.Unsubscribe(s.id)
	}
	s.logger.Info().Str("user", user).Uint64("topic", topicID).Msg("left topic")
	return s.write(protocol.NewTopicAck(msg.Header.MessageID, topicID, s.topicName(topicID)))
}

func (s *Session) handleChatTopic(msg *protocol.Message) bool {
	user, ok := s.requireUser(msg)
	if !ok {
		return true
	}
	topicID, err := protocol.TopicID(msg)
	if err != nil {
		return false
	}
	body, err := protocol.Body(msg)
	if err != nil {
		return false
	}

	delivered := s.topics.GetOrCreate(topicID).Publish(user, time.Now(), body)
	observability.RecordTopicPublish(delivered)
	s.logger.Debug().Str("user", user).Uint64("topic", topicID).Int("delivered", delivered).Msg("topic publish")
	return true
}

func (s *Session) handleChatPrivate(msg *protocol.Message) bool {
	user, ok := s.requireUser(msg)
	if !ok {
		return true
	}
	target, err := protocol.Target(msg)
	if err != nil {
		return false
	}
	body, err := protocol.Body(msg)
	if err != nil {
		return false
	}

	status := s.private.Deliver(user, target, time.Now(), body)
	observability.RecordPrivateMessage(status.String())
	// An offline target drops the message; the sender is not told.
	s.logger.Debug().Str("user", user).Str("target", target).Stringer("status", status).Msg("private send")
	return true
}

// subscribeTopic registers this session on the topic handle and tracks it
// in the joined set. Registration and the joined-set update happen under
// the session mutex so a concurrent teardown either sees the subscription
// or refuses it; nothing can slip in after the teardown snapshot.
func (s *Session) subscribeTopic(topicID uint64) error {
	topic := s.topics.GetOrCreate(topicID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return errSessionClosed
	}
	if err := topic.Subscribe(s.id, s.deliverTopic); err != nil {
		return err
	}
	s.joined[topicID] = topic
	return nil
}

// topicName resolves a topic name from the store, best effort. The ack
// carries "" when the id has no durable record.
func (s *Session) topicName(topicID uint64) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()
	topic, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return ""
	}
	return topic.Name
}

// deliverTopic runs on a publisher's goroutine while the topic lock is
// held. It must not call back into registries; a write failure only marks
// the connection dead and leaves cleanup to the read loop and the sweep.
func (s *Session) deliverTopic(m hub.TopicMessage) {
	push := protocol.NewTopicPush(s.pushID.Add(1), m.TopicID, m.User, m.At, m.Body)
	s.write(push)
}

func (s *Session) deliverPrivate(m hub.PrivateMessage) {
	push := protocol.NewPrivatePush(s.pushID.Add(1), m.From, m.At, m.Body)
	s.write(push)
}

// write serializes one frame onto the socket under the write deadline.
// On failure it closes the connection so the read loop unblocks; it never
// tears registries down itself (the caller may hold a registry lock).
func (s *Session) write(msg *protocol.Message) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.dead.Load() {
		return false
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		s.markDead()
		return false
	}
	if err := protocol.Encode(s.conn, msg); err != nil {
		s.logger.Warn().Err(err).Msg("write failed")
		s.markDead()
		return false
	}
	return true
}

// markDead closes the socket without touching registries.
func (s *Session) markDead() {
	if s.dead.CompareAndSwap(false, true) {
		_ = s.conn.Close()
	}
}

// teardown deregisters the session everywhere and closes the socket.
// Idempotent: the read loop, the sweep, and shutdown may all race here.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		user := s.user
		joined := s.joined
		s.state = StateDisconnected
		s.user = ""
		s.joined = make(map[uint64]*hub.Topic)
		s.mu.Unlock()

		for _, topic := range joined {
			topic.Unsubscribe(s.id)
		}
		if user != "" {
			s.private.Deregister(user, s.id)
		}
		s.markDead()
		observability.RecordSessionClosed()
		s.logger.Info().Str("user", user).Int("topics", len(joined)).Msg("session closed")
	})
}
