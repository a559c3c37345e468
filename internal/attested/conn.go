package attested

import (
	"fmt"

	"github.com/tetherline/routedial/internal/ws"
)

// Connection is a WebSocket whose payloads are sealed by an attested
// session.
type Connection struct {
	conn    *ws.Conn
	session Session
}

// Connect runs the attestation exchange over a live WebSocket:
//
//	server -> client: attestation message
//	client -> server: handshake initial request
//	server -> client: handshake response
//
// The handshake capability decides whether the attestation and response
// are acceptable; its errors are returned untouched.
func Connect(conn *ws.Conn, handshaker Handshaker, params *EndpointParams) (*Connection, error) {
	attestationMsg, err := conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive attestation message: %w", err)
	}

	handshake, err := handshaker.NewHandshake(params, attestationMsg)
	if err != nil {
		return nil, err
	}

	if err := conn.Send(handshake.InitialRequest()); err != nil {
		return nil, fmt.Errorf("send handshake request: %w", err)
	}

	response, err := conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive handshake response: %w", err)
	}

	session, err := handshake.Complete(response)
	if err != nil {
		return nil, err
	}

	return &Connection{conn: conn, session: session}, nil
}

// Send seals and writes one message.
func (c *Connection) Send(plaintext []byte) error {
	sealed, err := c.session.Seal(plaintext)
	if err != nil {
		return err
	}
	return c.conn.Send(sealed)
}

// Receive reads and opens the next message.
func (c *Connection) Receive() ([]byte, error) {
	sealed, err := c.conn.Receive()
	if err != nil {
		return nil, err
	}
	return c.session.Open(sealed)
}

// Close tears down the underlying WebSocket.
func (c *Connection) Close() error {
	return c.conn.Close()
}
