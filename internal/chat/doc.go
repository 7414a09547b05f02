// Package chat runs the TCP chat service: the connection supervisor with
// its probe handshake and periodic sweep, and the per-connection session
// state machine that dispatches protocol messages against the account
// store and the pub/sub registries.
package chat
