// Package route describes candidate network paths to the service before
// DNS resolution.
//
// A route carries everything needed to establish a transport stream (host,
// port, optional proxy, TLS parameters) plus the HTTP and WebSocket
// fragments layered above it. Routes are immutable once built; equality of
// their Key determines identity for outcome tracking.
//
// Hostnames are sensitive: every textual rendering of a route goes through
// the redacted Description so raw hostnames never reach logs.
package route
