package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tetherline/routedial/internal/route"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

// dialTransport opens the raw TCP stream the transport stage would have
// produced for the test server.
func dialTransport(t *testing.T, server *httptest.Server) net.Conn {
	t.Helper()
	addr := strings.TrimPrefix(server.URL, "http://")
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial transport: %v", err)
	}
	return conn
}

func testWSRoute(endpoint string) *route.WebSocketRoute {
	return &route.WebSocketRoute{
		Fragment: route.WebSocketFragment{
			Endpoint: endpoint,
			Headers:  http.Header{},
		},
		HTTP: route.HTTPFragment{HostHeader: "service-host"},
		Transport: route.TransportRoute{
			TCP: route.TCPRoute{Host: "direct-host", Port: 443},
		},
	}
}

func TestConnectorUpgradesOverTransport(t *testing.T) {
	gotPath := make(chan string, 1)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Echo one message back.
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(mt, data)
	}))
	defer server.Close()

	transport := dialTransport(t, server)
	r := testWSRoute("/v1/connect")
	r.HTTP.PathPrefix = "/prefix"

	connector := &Connector{HandshakeTimeout: 5 * time.Second}
	conn, err := connector.ConnectApp(context.Background(), transport, r)
	if err != nil {
		t.Fatalf("ConnectApp failed: %v", err)
	}
	defer conn.Close()

	if path := <-gotPath; path != "/prefix/v1/connect" {
		t.Errorf("upgrade path = %q, want %q", path, "/prefix/v1/connect")
	}

	if err := conn.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	data, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(data) != "ping" {
		t.Errorf("echoed %q, want %q", data, "ping")
	}
}

func TestConnectorSendsRouteHeaders(t *testing.T) {
	gotAuth := make(chan string, 1)
	gotHost := make(chan string, 1)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		gotHost <- r.Host
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	transport := dialTransport(t, server)
	r := testWSRoute("/v1/connect")
	r.Fragment.Headers.Set("Authorization", "key:1:signature")

	connector := &Connector{HandshakeTimeout: 5 * time.Second}
	conn, err := connector.ConnectApp(context.Background(), transport, r)
	if err != nil {
		t.Fatalf("ConnectApp failed: %v", err)
	}
	defer conn.Close()

	if auth := <-gotAuth; auth != "key:1:signature" {
		t.Errorf("Authorization = %q", auth)
	}
	if host := <-gotHost; host != "service-host" {
		t.Errorf("Host = %q, want the route's host header", host)
	}
}

func TestConnectorRejectedUpgrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := dialTransport(t, server)
	connector := &Connector{HandshakeTimeout: 5 * time.Second}

	_, err := connector.ConnectApp(context.Background(), transport, testWSRoute("/v1/connect"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want StatusError", err)
	}
	if se.Code != http.StatusTooManyRequests {
		t.Errorf("Code = %d, want 429", se.Code)
	}
	if se.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", se.RetryAfter)
	}
}

func TestConnectorNetworkErrorPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	transport := dialTransport(t, server)
	// Kill the server before the upgrade happens.
	server.Close()
	transport.Close()

	connector := &Connector{HandshakeTimeout: time.Second}
	_, err := connector.ConnectApp(context.Background(), transport, testWSRoute("/v1/connect"))
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("network failure should not be a StatusError, got %v", err)
	}
}
