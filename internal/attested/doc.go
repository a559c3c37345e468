// Package attested layers a mutually verified secure channel on top of the
// orchestrator's WebSocket connection.
//
// The attestation cryptography itself is not implemented here: callers
// supply a Handshaker capability, and this package drives the message flow
// around it: auth-header injection on every candidate route, route-level
// error classification, and the handshake exchange once a connection is
// live.
package attested
