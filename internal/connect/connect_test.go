package connect

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/tetherline/routedial/internal/outcome"
	"github.com/tetherline/routedial/internal/route"
)

var errConnClosed = errors.New("connection closed")

// seqEntropy makes ranking preserve the provider's order for routes with
// equal cooldown.
type seqEntropy struct{ next uint64 }

func (e *seqEntropy) Uint64() uint64 {
	v := e.next
	e.next++
	return v
}

func newTestState(timeout time.Duration) *ConnectState {
	transport := TransportFn(func(context.Context, *route.TransportRoute) (net.Conn, error) {
		return nil, nil
	})
	state := NewConnectStateWithTransport(Config{
		ConnectParams:  outcome.SuggestedParams,
		ConnectTimeout: timeout,
	}, transport, nil)
	state.entropy = &seqEntropy{}
	return state
}

func fakeWebSocketRoutes() (failing, succeeding *route.WebSocketRoute) {
	transport := route.TransportRoute{
		TCP: route.TCPRoute{Host: "direct-host", Port: 1234},
		TLS: &route.TLSFragment{SNI: "fake-sni", ALPN: []string{"http/1.1"}},
	}
	failing = &route.WebSocketRoute{
		Fragment:  route.WebSocketFragment{Endpoint: "/first", Headers: http.Header{}},
		HTTP:      route.HTTPFragment{HostHeader: "first-host"},
		Transport: transport,
	}
	succeeding = &route.WebSocketRoute{
		Fragment:  route.WebSocketFragment{Endpoint: "/second", Headers: http.Header{}},
		HTTP:      route.HTTPFragment{HostHeader: "second-host", FrontName: "proxyf"},
		Transport: transport,
	}
	return failing, succeeding
}

func TestConnectWSSuccessAfterContinue(t *testing.T) {
	failing, succeeding := fakeWebSocketRoutes()
	state := newTestState(time.Hour)

	app := ConnectFn[*route.WebSocketRoute](func(_ context.Context, _ net.Conn, r *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		if r.Fragment.Endpoint == failing.Fragment.Endpoint {
			return nil, errConnClosed
		}
		return r, nil
	})

	classified := 0
	conn, desc, err := ConnectWS(context.Background(), state,
		route.StaticProvider{failing, succeeding}, app,
		func(err error) error {
			classified++
			if !errors.Is(err, errConnClosed) {
				t.Errorf("classifier got %v, want %v", err, errConnClosed)
			}
			return nil
		}, "test")
	if err != nil {
		t.Fatalf("ConnectWS failed: %v", err)
	}
	if conn != succeeding {
		t.Errorf("connection came from the wrong route")
	}
	if classified != 1 {
		t.Errorf("classifier called %d times, want 1", classified)
	}

	if got, want := desc.String(), "REDACTED:1234 fronted by proxyf"; got != want {
		t.Errorf("RouteInfo = %q, want %q", got, want)
	}

	// One failure and one success merged into shared state.
	snap := state.OutcomeSnapshot()
	if rec, ok := snap[failing.Key()]; !ok || rec.Weight == 0 {
		t.Errorf("failing route should have a recorded failure, got %+v", snap)
	}
	if _, ok := snap[succeeding.Key()]; ok {
		t.Errorf("succeeding route should have been reset, got %+v", snap)
	}
}

func TestConnectWSTimeout(t *testing.T) {
	failing, succeeding := fakeWebSocketRoutes()

	const connectTimeout = 31 * time.Second

	state := newTestState(connectTimeout)
	var timerRequested time.Duration
	state.after = func(d time.Duration) <-chan time.Time {
		timerRequested = d
		fired := make(chan time.Time, 1)
		fired <- time.Now()
		return fired
	}

	before := state.OutcomeSnapshot()

	hangs := ConnectFn[*route.WebSocketRoute](func(ctx context.Context, _ net.Conn, _ *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, _, err := ConnectWS(context.Background(), state,
		route.StaticProvider{failing, succeeding}, hangs,
		func(error) error {
			t.Error("no errors should be classified")
			return nil
		}, "test")

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("got %v, want TimeoutError", err)
	}
	if timeoutErr.AttemptDuration != connectTimeout {
		t.Errorf("AttemptDuration = %v, want %v", timeoutErr.AttemptDuration, connectTimeout)
	}
	if timerRequested != connectTimeout {
		t.Errorf("deadline timer armed for %v, want %v", timerRequested, connectTimeout)
	}

	after := state.OutcomeSnapshot()
	if len(before) != 0 || len(after) != 0 {
		t.Errorf("outcome state changed across a timeout: before %v, after %v", before, after)
	}
}

func TestConnectWSTimeoutDiscardsPartialUpdates(t *testing.T) {
	failing, hanging := fakeWebSocketRoutes()
	state := newTestState(31 * time.Second)

	timer := make(chan time.Time)
	state.after = func(time.Duration) <-chan time.Time { return timer }

	secondStarted := make(chan struct{})
	app := ConnectFn[*route.WebSocketRoute](func(ctx context.Context, _ net.Conn, r *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		if r.Fragment.Endpoint == failing.Fragment.Endpoint {
			return nil, errConnClosed
		}
		close(secondStarted)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := ConnectWS(context.Background(), state,
			route.StaticProvider{failing, hanging}, app,
			func(error) error { return nil }, "test")
		done <- err
	}()

	// Let the first route fail and the second one hang, then expire the
	// deadline.
	<-secondStarted
	timer <- time.Now()

	err := <-done
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("got %v, want TimeoutError", err)
	}

	if snap := state.OutcomeSnapshot(); len(snap) != 0 {
		t.Errorf("partial updates from the aborted attempt were merged: %v", snap)
	}
}

func TestConnectWSBreakAborts(t *testing.T) {
	failing, second := fakeWebSocketRoutes()
	state := newTestState(time.Hour)

	errFatal := errors.New("server said no")
	attempts := 0
	app := ConnectFn[*route.WebSocketRoute](func(_ context.Context, _ net.Conn, _ *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		attempts++
		return nil, errConnClosed
	})

	_, _, err := ConnectWS(context.Background(), state,
		route.StaticProvider{failing, second}, app,
		func(error) error { return errFatal }, "test")

	var fatal *FatalConnectError
	if !errors.As(err, &fatal) {
		t.Fatalf("got %v, want FatalConnectError", err)
	}
	if !errors.Is(err, errFatal) {
		t.Errorf("FatalConnectError should carry the classifier's payload")
	}
	if attempts != 1 {
		t.Errorf("attempted %d routes after break, want 1", attempts)
	}

	// A break is not a timeout: the collected updates still merge.
	snap := state.OutcomeSnapshot()
	if rec, ok := snap[failing.Key()]; !ok || rec.Weight == 0 {
		t.Errorf("breaking route's failure should be recorded, got %v", snap)
	}
}

func TestConnectWSNoRoutes(t *testing.T) {
	state := newTestState(time.Hour)

	app := ConnectFn[struct{}](func(context.Context, net.Conn, *route.WebSocketRoute) (struct{}, error) {
		t.Error("no routes should be attempted")
		return struct{}{}, nil
	})

	_, _, err := ConnectWS(context.Background(), state,
		route.StaticProvider(nil), app,
		func(error) error { return nil }, "test")
	if !errors.Is(err, ErrNoResolvedRoutes) {
		t.Fatalf("got %v, want ErrNoResolvedRoutes", err)
	}
}

func TestConnectWSAllAttemptsFailed(t *testing.T) {
	failing, second := fakeWebSocketRoutes()
	state := newTestState(time.Hour)

	app := ConnectFn[*route.WebSocketRoute](func(context.Context, net.Conn, *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		return nil, errConnClosed
	})

	_, _, err := ConnectWS(context.Background(), state,
		route.StaticProvider{failing, second}, app,
		func(error) error { return nil }, "test")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("got %v, want ErrAllAttemptsFailed", err)
	}

	snap := state.OutcomeSnapshot()
	for _, r := range []*route.WebSocketRoute{failing, second} {
		if rec, ok := snap[r.Key()]; !ok || rec.Weight == 0 {
			t.Errorf("route %s missing its failure record", r.Fragment.Endpoint)
		}
	}
}

func TestConnectWSTransportErrorsReachClassifier(t *testing.T) {
	failing, second := fakeWebSocketRoutes()

	errDial := errors.New("dial refused")
	transport := TransportFn(func(context.Context, *route.TransportRoute) (net.Conn, error) {
		return nil, errDial
	})
	state := NewConnectStateWithTransport(Config{
		ConnectParams:  outcome.SuggestedParams,
		ConnectTimeout: time.Hour,
	}, transport, nil)
	state.entropy = &seqEntropy{}

	app := ConnectFn[struct{}](func(context.Context, net.Conn, *route.WebSocketRoute) (struct{}, error) {
		t.Error("app stage should not run when transport fails")
		return struct{}{}, nil
	})

	classified := 0
	_, _, err := ConnectWS(context.Background(), state,
		route.StaticProvider{failing, second}, app,
		func(err error) error {
			classified++
			if !errors.Is(err, errDial) {
				t.Errorf("classifier got %v, want %v", err, errDial)
			}
			return nil
		}, "test")
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Fatalf("got %v, want ErrAllAttemptsFailed", err)
	}
	if classified != 2 {
		t.Errorf("classifier called %d times, want 2", classified)
	}
}

func TestConnectWSCanceledContext(t *testing.T) {
	failing, second := fakeWebSocketRoutes()
	state := newTestState(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hangs := ConnectFn[*route.WebSocketRoute](func(ctx context.Context, _ net.Conn, _ *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, _, err := ConnectWS(ctx, state,
		route.StaticProvider{failing, second}, hangs,
		func(error) error { return nil }, "test")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestConnectWSConcurrentCallers(t *testing.T) {
	failing, succeeding := fakeWebSocketRoutes()
	state := newTestState(time.Hour)
	// seqEntropy is not safe under concurrent ranking; the order of tied
	// routes doesn't matter in this test.
	state.entropy = route.CryptoEntropy{}

	app := ConnectFn[*route.WebSocketRoute](func(_ context.Context, _ net.Conn, r *route.WebSocketRoute) (*route.WebSocketRoute, error) {
		if r.Fragment.Endpoint == failing.Fragment.Endpoint {
			return nil, errConnClosed
		}
		return r, nil
	})

	const callers = 8
	done := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, _, err := ConnectWS(context.Background(), state,
				route.StaticProvider{failing, succeeding}, app,
				func(error) error { return nil }, "concurrent")
			done <- err
		}()
	}
	for i := 0; i < callers; i++ {
		if err := <-done; err != nil {
			t.Errorf("caller %d failed: %v", i, err)
		}
	}

	// However the merges interleaved, the succeeding route must not carry
	// failure weight.
	if _, ok := state.OutcomeSnapshot()[succeeding.Key()]; ok {
		t.Error("succeeding route ended up with a failure record")
	}
}
