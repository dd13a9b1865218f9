// Package session owns exchange reliability primitives.
//
// Ownership boundary:
// - retry bounds and interest lifetimes
// - reconnect backoff
// - pending-exchange registries keyed by nonce or query id
package session
