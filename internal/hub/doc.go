// Package hub owns the in-memory publish/subscribe routing layer.
//
// Ownership boundary:
// - topic registry: per-topic subscriber set and serialized fan-out
// - private exchange: one delivery endpoint per online user
//
// Delivery callbacks run synchronously on the publisher's goroutine.
// Registry locks are scoped per structure and never held across calls
// into the store or the supervisor.
package hub
