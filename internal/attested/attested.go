package attested

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tetherline/routedial/internal/auth"
	"github.com/tetherline/routedial/internal/connect"
	"github.com/tetherline/routedial/internal/route"
	"github.com/tetherline/routedial/internal/ws"
)

// ErrConnectionTimedOut is the single caller-facing kind that timeouts,
// empty route sets, and fully exhausted attempts all collapse to. The
// distinctions matter to the orchestrator's operator logs, not to callers
// deciding whether to retry.
var ErrConnectionTimedOut = errors.New("connection timed out")

// EndpointParams identifies the remote endpoint the handshake verifies
// against.
type EndpointParams struct {
	// EnclaveID is the expected identity of the remote enclave.
	EnclaveID []byte
}

// Session is an established secure channel's crypto state.
type Session interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Handshake is an in-progress attestation handshake.
type Handshake interface {
	// InitialRequest is the first message to send to the remote side.
	InitialRequest() []byte

	// Complete consumes the remote side's response and yields the session.
	Complete(response []byte) (Session, error)
}

// Handshaker starts a handshake from the endpoint parameters and the raw
// attestation message the server sent.
type Handshaker interface {
	NewHandshake(params *EndpointParams, attestationMsg []byte) (Handshake, error)
}

// ConnectWS establishes an attested connection: it injects the caller's
// Authorization header into every candidate route, delegates to the
// orchestrator with this layer's classification policy, then runs the
// attestation handshake over the winning WebSocket.
//
// Handshake failures surface as-is; route-level retry already happened
// below, so they are not retried here.
func ConnectWS(
	ctx context.Context,
	state *connect.ConnectState,
	provider route.Provider,
	creds *auth.Credentials,
	wsConnector connect.AppConnector[*ws.Conn],
	handshaker Handshaker,
	params *EndpointParams,
	logTag string,
) (*Connection, *route.Description, error) {
	authed := route.MapRoutes(provider, func(r *route.WebSocketRoute) *route.WebSocketRoute {
		r = r.Clone()
		r.Fragment.Headers.Set("Authorization", creds.Header())
		return r
	})

	conn, desc, err := connect.ConnectWS(ctx, state, authed, wsConnector, classifyConnectError, logTag)
	if err != nil {
		return nil, nil, collapseConnectError(err)
	}

	attested, err := Connect(conn, handshaker, params)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return attested, desc, nil
}

// classifyConnectError is this layer's per-route policy: intermittent
// trouble moves on to the next route, everything the server meant is fatal
// for the whole attempt.
func classifyConnectError(err error) error {
	switch ws.Classify(err) {
	case ws.Intermittent:
		return nil
	case ws.RetryLater:
		return &RateLimitedError{Err: err}
	default:
		return fmt.Errorf("websocket connect: %w", err)
	}
}

// collapseConnectError narrows the orchestrator's taxonomy for callers.
func collapseConnectError(err error) error {
	var fatal *connect.FatalConnectError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	var timeout *connect.TimeoutError
	if errors.As(err, &timeout) ||
		errors.Is(err, connect.ErrNoResolvedRoutes) ||
		errors.Is(err, connect.ErrAllAttemptsFailed) {
		return ErrConnectionTimedOut
	}
	return err
}

// RateLimitedError is a connect failure where the server asked us to back
// off rather than try another route.
type RateLimitedError struct {
	Err error
}

func (e *RateLimitedError) Error() string {
	if se := statusError(e.Err); se != nil && se.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", se.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func statusError(err error) *ws.StatusError {
	var se *ws.StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		return se
	}
	return nil
}
