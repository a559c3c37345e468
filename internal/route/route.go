package route

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
)

// UnresolvedHost is a hostname that has not been through DNS resolution.
// Its String form is always "REDACTED" so it can be dropped into log lines
// and error messages without leaking the name. Use string(h) to get the raw
// value for resolution.
type UnresolvedHost string

func (h UnresolvedHost) String() string { return "REDACTED" }

// TCPRoute is the innermost hop: a host and port to dial.
type TCPRoute struct {
	Host UnresolvedHost
	Port uint16
}

// ProxyRoute points the TCP dial at an intermediary instead of the target.
type ProxyRoute struct {
	Address UnresolvedHost
	Port    uint16
}

// TLSFragment holds the TLS parameters layered over the TCP stream.
type TLSFragment struct {
	// SNI is the server name sent in the ClientHello. For fronted routes
	// this is the front's name, not the service's.
	SNI     string
	ALPN    []string
	RootCAs *x509.CertPool // nil means host roots
}

// TransportRoute is a dialable path up to (and including) TLS.
type TransportRoute struct {
	TCP   TCPRoute
	Proxy *ProxyRoute  // non-nil when the stream goes through a proxy
	TLS   *TLSFragment // nil means a plaintext stream
}

// HTTPFragment carries the HTTP-level identity of the route.
type HTTPFragment struct {
	HostHeader string
	PathPrefix string
	// FrontName labels the fronting provider for fronted routes, empty for
	// direct ones. It is considered log-safe.
	FrontName string
}

// WebSocketFragment carries the upgrade-level pieces of the route.
type WebSocketFragment struct {
	Endpoint string
	Headers  http.Header
}

// WebSocketRoute is a full unresolved route to the service's WebSocket
// endpoint: transport, then HTTP, then the upgrade.
type WebSocketRoute struct {
	Fragment  WebSocketFragment
	HTTP      HTTPFragment
	Transport TransportRoute
}

// Clone returns a deep enough copy that the caller can add headers without
// touching the original.
func (r *WebSocketRoute) Clone() *WebSocketRoute {
	c := *r
	c.Fragment.Headers = r.Fragment.Headers.Clone()
	if c.Fragment.Headers == nil {
		c.Fragment.Headers = http.Header{}
	}
	return &c
}

// Key identifies a route for outcome tracking. Two routes with the same key
// are the same candidate path as far as failure history is concerned.
type Key string

// Key derives the route's identity from every field that changes where or
// how the dial happens. Headers are excluded: auth material must not widen
// identity.
func (r *WebSocketRoute) Key() Key {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d", string(r.Transport.TCP.Host), r.Transport.TCP.Port)
	if p := r.Transport.Proxy; p != nil {
		fmt.Fprintf(&b, "|proxy=%s:%d", string(p.Address), p.Port)
	}
	if t := r.Transport.TLS; t != nil {
		fmt.Fprintf(&b, "|sni=%s|alpn=%s", t.SNI, strings.Join(t.ALPN, ","))
	}
	fmt.Fprintf(&b, "|%s|%s|%s|%s",
		r.HTTP.HostHeader, r.HTTP.PathPrefix, r.HTTP.FrontName, r.Fragment.Endpoint)
	return Key(b.String())
}

// Description is the redacted, log-safe rendering of a route. It is what
// callers get back alongside a successful connection.
type Description struct {
	port  uint16
	front string
}

// Describe builds the log-safe description for a route.
func Describe(r *WebSocketRoute) *Description {
	return &Description{
		port:  r.Transport.TCP.Port,
		front: r.HTTP.FrontName,
	}
}

func (d *Description) String() string {
	if d.front == "" {
		return fmt.Sprintf("REDACTED:%d", d.port)
	}
	return fmt.Sprintf("REDACTED:%d fronted by %s", d.port, d.front)
}
