package chat

import (
	"time"

	"github.com/parleychat/parley/internal/protocol"
)

// Config defines transport and lifecycle defaults for the chat server.
type Config struct {
	// HandshakeTimeout bounds the probe/ack exchange on a new connection.
	HandshakeTimeout time.Duration
	// SweepInterval is the period of the dead-session cleanup sweep.
	SweepInterval time.Duration
	// WriteTimeout bounds every outbound frame write, pushes included.
	// A stalled subscriber backpressures publishers at most this long
	// before its connection errors out.
	WriteTimeout time.Duration
	// StoreTimeout bounds each call into the account/topic store.
	StoreTimeout time.Duration
	// Limits constrains inbound frame decoding.
	Limits protocol.Limits
}

// DefaultConfig returns the contract defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 1000 * time.Millisecond,
		SweepInterval:    5 * time.Second,
		WriteTimeout:     10 * time.Second,
		StoreTimeout:     5 * time.Second,
		Limits:           protocol.DefaultLimits(),
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
