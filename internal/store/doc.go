// Package store owns the persistence boundary for accounts and topics.
//
// Ownership boundary:
// - Store interface consumed by the session engine
// - sentinel errors surfaced to protocol error replies
// - in-memory implementation for tests and standalone runs
//
// Password handling lives behind this boundary; the session engine never
// sees stored credentials.
package store
