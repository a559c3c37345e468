// Package ws is the application stage of the connector pipeline: it
// upgrades an already-established transport stream to a WebSocket and
// classifies upgrade failures for the route classifier.
package ws
