package connect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tetherline/routedial/internal/outcome"
	"github.com/tetherline/routedial/internal/route"
)

// Config is the orchestrator's static configuration, immutable once the
// ConnectState is built.
type Config struct {
	ConnectParams outcome.Params

	// ConnectTimeout covers one full multi-route attempt; there is no
	// per-route sub-timeout.
	ConnectTimeout time.Duration
}

// SuggestedConfig are reasonable production values.
var SuggestedConfig = Config{
	ConnectParams:  outcome.SuggestedParams,
	ConnectTimeout: 30 * time.Second,
}

// ConnectState is the endpoint-agnostic shared state for connection
// attempts: outcome history, the shared transport connector, and the
// attempt timeout. Reads (ranking, dialing) run under the read lock so
// concurrent attempts never block each other; only the final outcome merge
// takes the write lock.
type ConnectState struct {
	mu sync.RWMutex

	outcomes       *outcome.Records
	transport      TransportConnector
	connectTimeout time.Duration
	providerCtx    route.ProviderContext
	entropy        route.Entropy
	logger         *slog.Logger

	// after is time.After, replaceable for deterministic timeout tests.
	after func(time.Duration) <-chan time.Time
}

// NewConnectState builds shared state with the production transport stage.
func NewConnectState(cfg Config, resolver route.Resolver, logger *slog.Logger) *ConnectState {
	return NewConnectStateWithTransport(cfg, NewStatelessTransport(resolver), logger)
}

// NewConnectStateWithTransport is the constructor used by tests and by
// callers that bring their own transport stage.
func NewConnectStateWithTransport(cfg Config, transport TransportConnector, logger *slog.Logger) *ConnectState {
	if logger == nil {
		logger = slog.Default()
	}
	entropy := route.CryptoEntropy{}
	return &ConnectState{
		outcomes:       outcome.NewRecords(cfg.ConnectParams),
		transport:      transport,
		connectTimeout: cfg.ConnectTimeout,
		providerCtx:    route.ProviderContext{Entropy: entropy},
		entropy:        entropy,
		logger:         logger,
		after:          time.After,
	}
}

// OnError is the per-failure classifier. Returning nil means try the next
// ranked route; returning an error aborts the attempt immediately and the
// returned value becomes the FatalConnectError payload.
type OnError func(err error) error

type attemptResult[C any] struct {
	conn    C
	desc    *route.Description
	updates []outcome.Update
	err     error
}

// ConnectWS drives one connection attempt: rank the provider's candidates
// by outcome history, try them in order through the transport and
// application stages, and race the whole thing against the configured
// timeout.
//
// On success the winning connection is returned with the route's redacted
// description. On timeout the collected outcome updates are discarded,
// since routes in an aborted attempt were not given a fair chance. Every other
// resolution (success, exhaustion, classifier break) merges its updates
// into shared state before returning.
func ConnectWS[C any](
	ctx context.Context,
	state *ConnectState,
	provider route.Provider,
	app AppConnector[C],
	onError OnError,
	logTag string,
) (C, *route.Description, error) {
	var zero C
	logger := state.logger.With("tag", logTag)

	state.mu.RLock()
	routes := provider.Routes(state.providerCtx)
	if len(routes) == 0 {
		state.mu.RUnlock()
		return zero, nil, ErrNoResolvedRoutes
	}
	// Ranking reads the outcome table, so it happens under the read lock;
	// the attempt goroutine below only touches stateless pieces.
	ranked := state.outcomes.Rank(routes, time.Now(), state.entropy)

	logger.Info("starting connection attempt", "routes", len(ranked))
	start := time.Now()

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan attemptResult[C], 1)
	go func() {
		results <- runAttempts(attemptCtx, state.transport, ranked, app, onError)
	}()

	select {
	case <-ctx.Done():
		state.mu.RUnlock()
		return zero, nil, ctx.Err()

	case <-state.after(state.connectTimeout):
		state.mu.RUnlock()
		logger.Info("connection attempt timed out",
			"elapsed", time.Since(start),
			"timeout", state.connectTimeout,
		)
		return zero, nil, &TimeoutError{AttemptDuration: state.connectTimeout}

	case res := <-results:
		state.mu.RUnlock()

		// Re-acquire as a writer for the merge. Racing other callers'
		// merges is fine: updates commute, so the order they land in
		// doesn't matter.
		state.mu.Lock()
		state.outcomes.ApplyUpdates(res.updates, time.Now())
		state.mu.Unlock()

		if res.err != nil {
			logger.Info("connection attempt failed",
				"elapsed", time.Since(start),
				"error", res.err,
			)
			return zero, nil, res.err
		}
		logger.Info("connection succeeded",
			"elapsed", time.Since(start),
			"route", res.desc,
		)
		return res.conn, res.desc, nil
	}
}

// runAttempts tries the ranked candidates one at a time; the first success
// or classifier break wins. Each attempt carries its originating route so
// failures are attributed to the right identity.
func runAttempts[C any](
	ctx context.Context,
	transport TransportConnector,
	ranked []outcome.RankedRoute,
	app AppConnector[C],
	onError OnError,
) attemptResult[C] {
	var updates []outcome.Update
	for _, cand := range ranked {
		if cand.Delay > 0 {
			select {
			case <-ctx.Done():
				return attemptResult[C]{updates: updates, err: ctx.Err()}
			case <-time.After(cand.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return attemptResult[C]{updates: updates, err: err}
		}

		r := cand.Route
		conn, err := connectRoute(ctx, transport, r, app)
		if err == nil {
			updates = append(updates, outcome.Update{Key: r.Key(), Success: true})
			return attemptResult[C]{conn: conn, desc: route.Describe(r), updates: updates}
		}

		// A failure induced by cancellation is not the route's fault and
		// is never classified.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult[C]{updates: updates, err: ctxErr}
		}

		updates = append(updates, outcome.Update{Key: r.Key(), Success: false})
		if stop := onError(err); stop != nil {
			return attemptResult[C]{updates: updates, err: &FatalConnectError{Err: stop}}
		}
	}
	return attemptResult[C]{updates: updates, err: ErrAllAttemptsFailed}
}

func connectRoute[C any](
	ctx context.Context,
	transport TransportConnector,
	r *route.WebSocketRoute,
	app AppConnector[C],
) (C, error) {
	var zero C
	stream, err := transport.ConnectTransport(ctx, &r.Transport)
	if err != nil {
		return zero, err
	}
	conn, err := app.ConnectApp(ctx, stream, r)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		return zero, err
	}
	return conn, nil
}

// OutcomeSnapshot returns a copy of the current outcome table. Read-only;
// intended for diagnostics.
func (s *ConnectState) OutcomeSnapshot() map[route.Key]outcome.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcomes.Snapshot()
}
