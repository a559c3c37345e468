package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tetherline/routedial/internal/route"
)

// Connector performs the WebSocket upgrade over a transport stream that the
// transport stage already established (including TLS, when the route has
// it). It satisfies the orchestrator's AppConnector for *Conn.
type Connector struct {
	// HandshakeTimeout bounds the upgrade exchange itself. Zero means the
	// overall attempt deadline is the only limit.
	HandshakeTimeout time.Duration
}

func (c *Connector) ConnectApp(ctx context.Context, transport net.Conn, r *route.WebSocketRoute) (*Conn, error) {
	dialer := websocket.Dialer{
		// The stream is already established; hand it to the dialer so it
		// only runs the HTTP upgrade on top.
		NetDialContext: func(context.Context, string, string) (net.Conn, error) {
			return transport, nil
		},
		HandshakeTimeout: c.HandshakeTimeout,
	}

	u := url.URL{
		Scheme: "ws",
		Host:   r.HTTP.HostHeader,
		Path:   path.Join("/", r.HTTP.PathPrefix, r.Fragment.Endpoint),
	}

	header := http.Header{}
	for k, vs := range r.Fragment.Headers {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, upgradeError(err, resp)
	}
	return NewConn(conn), nil
}

// StatusError is an upgrade rejected by the server with an HTTP status.
type StatusError struct {
	Code       int
	RetryAfter time.Duration // from the Retry-After header, zero if absent
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("websocket upgrade rejected: HTTP %d", e.Code)
}

func upgradeError(err error, resp *http.Response) error {
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil {
		return err
	}
	se := &StatusError{Code: resp.StatusCode}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, parseErr := strconv.Atoi(v); parseErr == nil && secs > 0 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return se
}
