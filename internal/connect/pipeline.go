package connect

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/tetherline/routedial/internal/route"
)

// TransportConnector turns an unresolved transport route into a live
// stream: name resolution, TCP establishment, and TLS if the route asks
// for it. Implementations are stateless and shared across routes.
type TransportConnector interface {
	ConnectTransport(ctx context.Context, r *route.TransportRoute) (net.Conn, error)
}

// AppConnector layers the application stage (e.g. a WebSocket upgrade) over
// an established transport stream. The route is passed alongside so the
// stage can use its HTTP and upgrade fragments.
type AppConnector[C any] interface {
	ConnectApp(ctx context.Context, transport net.Conn, r *route.WebSocketRoute) (C, error)
}

// ConnectFn adapts a function to AppConnector.
type ConnectFn[C any] func(ctx context.Context, transport net.Conn, r *route.WebSocketRoute) (C, error)

func (f ConnectFn[C]) ConnectApp(ctx context.Context, transport net.Conn, r *route.WebSocketRoute) (C, error) {
	return f(ctx, transport, r)
}

// TransportFn adapts a function to TransportConnector.
type TransportFn func(ctx context.Context, r *route.TransportRoute) (net.Conn, error)

func (f TransportFn) ConnectTransport(ctx context.Context, r *route.TransportRoute) (net.Conn, error) {
	return f(ctx, r)
}

var errNoAddresses = errors.New("resolution returned no addresses")

// StatelessTransport is the production transport stage. It resolves the
// route's host (or its proxy's), dials the returned addresses in order, and
// layers TLS per the route's fragment.
type StatelessTransport struct {
	resolver route.Resolver
	dialer   net.Dialer
}

// NewStatelessTransport builds a transport connector over the resolver.
func NewStatelessTransport(resolver route.Resolver) *StatelessTransport {
	return &StatelessTransport{resolver: resolver}
}

func (t *StatelessTransport) ConnectTransport(ctx context.Context, r *route.TransportRoute) (net.Conn, error) {
	tcp := r.TCP
	if p := r.Proxy; p != nil {
		tcp = route.TCPRoute{Host: p.Address, Port: p.Port}
	}

	addrs, err := t.resolver.LookupIP(ctx, string(tcp.Host))
	if err != nil {
		// tcp.Host renders as REDACTED.
		return nil, fmt.Errorf("resolve %s: %w", tcp.Host, err)
	}
	if len(addrs) == 0 {
		return nil, errNoAddresses
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := t.dialer.DialContext(ctx, "tcp", netip.AddrPortFrom(addr, tcp.Port).String())
		if err != nil {
			lastErr = err
			continue
		}
		if r.TLS == nil {
			return conn, nil
		}
		tlsConn := tls.Client(conn, tlsClientConfig(r.TLS))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		return tlsConn, nil
	}
	return nil, lastErr
}

func tlsClientConfig(f *route.TLSFragment) *tls.Config {
	return &tls.Config{
		ServerName: f.SNI,
		NextProtos: f.ALPN,
		RootCAs:    f.RootCAs,
		MinVersion: tls.VersionTLS12,
	}
}
