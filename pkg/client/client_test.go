package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/parleychat/parley/internal/protocol"
	"github.com/parleychat/parley/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	if cfg.DialBudget != 15*time.Second {
		t.Fatalf("dial budget got=%v", cfg.DialBudget)
	}
	if cfg.RequestTimeout <= 0 || cfg.PushBuffer <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		t.Fatal("limits not defaulted")
	}
}

func TestDialBudgetExhausted(t *testing.T) {
	testlog.Start(t)
	// Grab a port that refuses connections by closing its listener.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := Config{
		DialBudget: 300 * time.Millisecond,
		Backoff:    BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 1.0},
	}
	start := time.Now()
	_, err = Dial(addr, cfg)
	if !errors.Is(err, ErrDialBudget) {
		t.Fatalf("expected dial budget error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("gave up before budget: %v", elapsed)
	}
}

func TestDialBackoffDoesNotOvershootBudget(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	// A backoff delay far larger than the budget must be clipped so Dial
	// returns once the budget is spent, not a full delay later.
	cfg := Config{
		DialBudget: 300 * time.Millisecond,
		Backoff:    BackoffConfig{InitialDelay: 10 * time.Second, Multiplier: 1.0},
	}
	start := time.Now()
	_, err = Dial(addr, cfg)
	if !errors.Is(err, ErrDialBudget) {
		t.Fatalf("expected dial budget error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("dial slept past its budget: %v", elapsed)
	}
}

func TestDialRejectsBadHandshakeReply(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				msg, err := protocol.Decode(conn, protocol.DefaultLimits())
				if err != nil {
					return
				}
				// Reply with the wrong kind instead of a probe ack.
				_ = protocol.Encode(conn, protocol.NewOk(msg.Header.MessageID))
			}(conn)
		}
	}()

	cfg := Config{
		DialBudget: 300 * time.Millisecond,
		Backoff:    BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 1.0},
	}
	_, err = Dial(ln.Addr().String(), cfg)
	if !errors.Is(err, ErrDialBudget) {
		t.Fatalf("expected dial budget error, got %v", err)
	}
}

func TestDialSucceedsAfterServerComesUp(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	// Rebind the same port shortly after the first attempts fail.
	ready := make(chan net.Listener, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		ready <- ln
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		msg, err := protocol.Decode(conn, protocol.DefaultLimits())
		if err != nil || msg.Header.MessageType != protocol.MessageProbe {
			return
		}
		_ = protocol.Encode(conn, protocol.NewProbeAck(msg.Header.MessageID))
		time.Sleep(time.Second)
	}()

	cfg := Config{
		DialBudget: 5 * time.Second,
		Backoff:    BackoffConfig{InitialDelay: 50 * time.Millisecond, Multiplier: 1.0},
	}
	c, err := Dial(addr, cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.Close()
	select {
	case ln := <-ready:
		_ = ln.Close()
	default:
	}
}

func TestServerErrorMessage(t *testing.T) {
	testlog.Start(t)
	err := &ServerError{Code: protocol.CodeTopicExists, Reason: "topic exists"}
	want := "client: server error 3: topic exists"
	if err.Error() != want {
		t.Fatalf("got=%q want=%q", err.Error(), want)
	}
}
