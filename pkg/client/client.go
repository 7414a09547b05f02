// Package client is the Go client for the parley chat service. It dials
// with a probe handshake retried under a fixed budget, multiplexes
// request/reply pairs over one socket via per-request futures, and hands
// server-initiated chat deliveries to a buffered push channel.
package client

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parleychat/parley/internal/protocol"
)

var (
	ErrClosed       = errors.New("client: connection closed")
	ErrTimeout      = errors.New("client: request timed out")
	ErrDialBudget   = errors.New("client: dial budget exhausted")
	ErrBadHandshake = errors.New("client: handshake reply mismatch")
)

// ServerError is an error reply from the service.
type ServerError struct {
	Code   uint32
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("client: server error %d: %s", e.Code, e.Reason)
}

// Topic is one entry of a topic listing.
type Topic struct {
	ID   uint64
	Name string
}

// TopicMessage is a chat delivery fanned out from a topic.
type TopicMessage struct {
	TopicID uint64
	From    string
	At      time.Time
	Body    string
}

// PrivateMessage is a direct chat delivery.
type PrivateMessage struct {
	From string
	At   time.Time
	Body string
}

// Push is one server-initiated delivery; exactly one field is set.
type Push struct {
	Topic   *TopicMessage
	Private *PrivateMessage
}

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	DialBudget     time.Duration // total time allowed for connect+handshake retries
	RequestTimeout time.Duration // per-request reply wait
	PushBuffer     int           // capacity of the push channel
	Backoff        BackoffConfig
	Limits         protocol.Limits
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.DialBudget <= 0 {
		c.DialBudget = 15 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.PushBuffer <= 0 {
		c.PushBuffer = 64
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = DefaultBackoff()
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = protocol.DefaultLimits()
	}
	return c
}

// Client is a connected chat client. Safe for concurrent use.
type Client struct {
	cfg    Config
	conn   net.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	msgID   atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *protocol.Message

	pushes chan Push

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to addr, retrying the connect and probe handshake with
// backoff until the dial budget runs out.
func Dial(addr string, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	logger := log.With().Str("component", "client").Str("addr", addr).Logger()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	deadline := time.Now().Add(cfg.DialBudget)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if time.Now().After(deadline) {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrDialBudget, lastErr)
			}
			return nil, ErrDialBudget
		}
		conn, err := dialOnce(addr, cfg, deadline)
		if err == nil {
			c := &Client{
				cfg:     cfg,
				conn:    conn,
				logger:  logger,
				pending: make(map[uint64]chan *protocol.Message),
				pushes:  make(chan Push, cfg.PushBuffer),
				done:    make(chan struct{}),
			}
			go c.readLoop()
			logger.Debug().Int("attempt", attempt).Msg("connected")
			return c, nil
		}
		lastErr = err
		logger.Debug().Err(err).Int("attempt", attempt).Msg("dial attempt failed")
		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		// Never sleep past the dial budget; the next pass reports it spent.
		if remaining := time.Until(deadline); delay > remaining {
			delay = remaining
		}
		time.Sleep(delay)
	}
}

// dialOnce performs one connect and probe/ack exchange.
func dialOnce(addr string, cfg Config, deadline time.Time) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Until(deadline))
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, err
	}
	probeID := uint64(1)
	if err := protocol.Encode(conn, protocol.NewProbe(probeID)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	ack, err := protocol.Decode(conn, cfg.Limits)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if ack.Header.MessageType != protocol.MessageProbeAck || !ack.IsResponse() || ack.Header.MessageID != probeID {
		_ = conn.Close()
		return nil, ErrBadHandshake
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// readLoop routes inbound frames: pushes to the push channel, replies to
// the pending future keyed by message id. Only this goroutine sends on
// the push channel, so it alone may close it.
func (c *Client) readLoop() {
	defer func() {
		c.Close()
		close(c.pushes)
	}()
	for {
		msg, err := protocol.Decode(c.conn, c.cfg.Limits)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		if msg.IsPush() {
			c.routePush(msg)
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.Header.MessageID]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug().Uint64("msg_id", msg.Header.MessageID).Msg("reply with no waiter dropped")
			continue
		}
		select {
		case ch <- msg:
		default:
			c.logger.Warn().Uint64("msg_id", msg.Header.MessageID).Msg("reply buffer full, dropped")
		}
	}
}

func (c *Client) routePush(msg *protocol.Message) {
	var push Push
	switch msg.Header.MessageType {
	case protocol.MessageChatTopic:
		topicID, err := protocol.TopicID(msg)
		if err != nil {
			return
		}
		from, _ := protocol.User(msg)
		at, _ := protocol.Timestamp(msg)
		body, _ := protocol.Body(msg)
		push.Topic = &TopicMessage{TopicID: topicID, From: from, At: at, Body: body}
	case protocol.MessageChatPrivate:
		from, _ := protocol.User(msg)
		at, _ := protocol.Timestamp(msg)
		body, _ := protocol.Body(msg)
		push.Private = &PrivateMessage{From: from, At: at, Body: body}
	default:
		return
	}
	select {
	case c.pushes <- push:
	default:
		// Slow consumer; the delivery is dropped rather than stalling
		// the read loop.
		c.logger.Warn().Msg("push buffer full, delivery dropped")
	}
}

// Pushes returns the channel of server-initiated deliveries. It is
// closed once the connection ends.
func (c *Client) Pushes() <-chan Push { return c.pushes }

// send writes one frame under the write lock.
func (c *Client) send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Encode(c.conn, msg)
}

// register installs a reply future for a request id. The buffer covers
// streaming replies.
func (c *Client) register(id uint64) chan *protocol.Message {
	ch := make(chan *protocol.Message, 16)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) unregister(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// roundTrip sends one request and waits for its single reply.
func (c *Client) roundTrip(msg *protocol.Message) (*protocol.Message, error) {
	id := msg.Header.MessageID
	ch := c.register(id)
	defer c.unregister(id)
	if err := c.send(msg); err != nil {
		return nil, err
	}
	return c.await(ch)
}

func (c *Client) await(ch chan *protocol.Message) (*protocol.Message, error) {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		if reply.IsError() {
			code, reason, err := protocol.ErrorFields(reply)
			if err != nil {
				return nil, err
			}
			return nil, &ServerError{Code: code, Reason: reason}
		}
		return reply, nil
	case <-c.done:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (c *Client) nextID() uint64 { return c.msgID.Add(1) }

// Login authenticates against an existing account.
func (c *Client) Login(login, password string) error {
	_, err := c.roundTrip(protocol.NewLogin(c.nextID(), login, password))
	return err
}

// CreateAccount registers a new account and authenticates as it.
func (c *Client) CreateAccount(login, password string) error {
	_, err := c.roundTrip(protocol.NewCreateAccount(c.nextID(), login, password))
	return err
}

// CreateTopic creates a topic and joins it.
func (c *Client) CreateTopic(name string) (Topic, error) {
	reply, err := c.roundTrip(protocol.NewCreateTopic(c.nextID(), name))
	if err != nil {
		return Topic{}, err
	}
	return topicFromAck(reply)
}

// ListTopics fetches the full topic listing.
func (c *Client) ListTopics() ([]Topic, error) {
	id := c.nextID()
	ch := c.register(id)
	defer c.unregister(id)
	if err := c.send(protocol.NewListTopics(id)); err != nil {
		return nil, err
	}

	var topics []Topic
	for {
		reply, err := c.await(ch)
		if err != nil {
			return nil, err
		}
		switch reply.Header.MessageType {
		case protocol.MessageTopicItem:
			topic, err := topicFromAck(reply)
			if err != nil {
				return nil, err
			}
			topics = append(topics, topic)
		case protocol.MessageEndOfList:
			return topics, nil
		default:
			return nil, fmt.Errorf("client: unexpected listing reply kind %d", reply.Header.MessageType)
		}
	}
}

// Join subscribes to a topic.
func (c *Client) Join(topicID uint64) (Topic, error) {
	reply, err := c.roundTrip(protocol.NewJoinTopic(c.nextID(), topicID))
	if err != nil {
		return Topic{}, err
	}
	return topicFromAck(reply)
}

// Leave unsubscribes from a topic.
func (c *Client) Leave(topicID uint64) error {
	_, err := c.roundTrip(protocol.NewLeaveTopic(c.nextID(), topicID))
	return err
}

// ChatTopic publishes a chat line to a topic. Fire and forget: the
// server confirms nothing, delivery arrives as a push to subscribers.
func (c *Client) ChatTopic(topicID uint64, body string) error {
	return c.send(protocol.NewChatTopic(c.nextID(), topicID, body))
}

// ChatPrivate sends a direct message. Fire and forget; an offline target
// drops the message silently.
func (c *Client) ChatPrivate(target, body string) error {
	return c.send(protocol.NewChatPrivate(c.nextID(), target, body))
}

// Disconnect tells the server to tear the session down, then closes.
func (c *Client) Disconnect() error {
	err := c.send(protocol.NewDisconnect(c.nextID()))
	c.Close()
	return err
}

// Exit requests an acknowledged shutdown, waits for the reply, then
// closes.
func (c *Client) Exit() error {
	_, err := c.roundTrip(protocol.NewExit(c.nextID()))
	c.Close()
	return err
}

// Close tears the connection down. Pending round trips fail with
// ErrClosed. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func topicFromAck(msg *protocol.Message) (Topic, error) {
	id, err := protocol.TopicID(msg)
	if err != nil {
		return Topic{}, err
	}
	name, err := protocol.TopicName(msg)
	if err != nil {
		return Topic{}, err
	}
	return Topic{ID: id, Name: name}, nil
}
