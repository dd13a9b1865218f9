// Package protocol owns the revocation wire contract.
//
// Ownership boundary:
// - append exchange payloads (parameters, command, notify ack)
// - revocation record and nack content
// - the error taxonomy shared by the exchange engines
package protocol
