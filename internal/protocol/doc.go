// Package protocol owns the chat wire contract and parsing primitives.
//
// Ownership boundary:
// - fixed frame header primitives
// - tlv payload primitives
// - per-message-type schema validation
// - typed message builders and field extractors
package protocol
