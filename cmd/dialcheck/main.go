// dialcheck establishes one connection to the configured service, trying
// every candidate route in history-informed order, and reports which route
// won. With -probe it instead dials every candidate concurrently and
// reports per-route health.
//
// Usage: go run ./cmd/dialcheck --config configs/dialcheck.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tetherline/routedial/internal/auth"
	"github.com/tetherline/routedial/internal/config"
	"github.com/tetherline/routedial/internal/connect"
	"github.com/tetherline/routedial/internal/outcome"
	"github.com/tetherline/routedial/internal/route"
	"github.com/tetherline/routedial/internal/version"
	"github.com/tetherline/routedial/internal/ws"
)

func main() {
	configPath := flag.String("config", "configs/dialcheck.yaml", "path to config file")
	probe := flag.Bool("probe", false, "dial every candidate route concurrently and report per-route health")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dialcheck",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	routes := buildRoutes(cfg)
	logger.Info("configuration loaded",
		"routes", len(routes),
		"connect_timeout", cfg.Connect.Timeout,
	)

	if cfg.Auth.KeyID != "" {
		creds, err := auth.NewCredentials(cfg.Auth.KeyID, []byte(cfg.Auth.Secret))
		if err != nil {
			logger.Error("invalid credentials", "error", err)
			os.Exit(1)
		}
		for i, r := range routes {
			r = r.Clone()
			r.Fragment.Headers.Set("Authorization", creds.Header())
			routes[i] = r
		}
	}

	ctx := context.Background()
	state := connect.NewConnectState(connectConfig(cfg), &route.NetResolver{}, logger)
	connector := &ws.Connector{HandshakeTimeout: 10 * time.Second}

	if *probe {
		if err := probeRoutes(ctx, cfg, routes, connector, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	tag := uuid.NewString()[:8]
	conn, desc, err := connect.ConnectWS(ctx, state, route.StaticProvider(routes), connector, classify, tag)
	if err != nil {
		logger.Error("connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected via %s\n", desc)
}

// classify lets intermittent failures move on to the next route and stops
// the attempt when the server actively rejected us.
func classify(err error) error {
	if ws.Classify(err) == ws.Intermittent {
		return nil
	}
	return err
}

// probeRoutes dials every candidate in parallel, each through its own
// state so one route's outcome does not reorder the others.
func probeRoutes(
	ctx context.Context,
	cfg *config.Config,
	routes []*route.WebSocketRoute,
	connector *ws.Connector,
	logger *slog.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)

	type result struct {
		desc    *route.Description
		elapsed time.Duration
		err     error
	}
	results := make([]result, len(routes))

	for i, r := range routes {
		i, r := i, r
		g.Go(func() error {
			state := connect.NewConnectState(connectConfig(cfg), &route.NetResolver{}, logger)
			tag := uuid.NewString()[:8]
			start := time.Now()
			conn, desc, err := connect.ConnectWS(
				gctx, state, route.StaticProvider{r}, connector, classify, tag)
			results[i] = result{desc: desc, elapsed: time.Since(start), err: err}
			if err == nil {
				conn.Close()
			} else {
				results[i].desc = route.Describe(r)
			}
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Printf("FAIL %-40s %v\n", res.desc, res.err)
			continue
		}
		fmt.Printf("OK   %-40s %v\n", res.desc, res.elapsed.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d routes failed", failed, len(routes))
	}
	return nil
}

func connectConfig(cfg *config.Config) connect.Config {
	return connect.Config{
		ConnectParams: outcome.Params{
			AgeCutoff:            cfg.Connect.AgeCutoff,
			CooldownGrowthFactor: cfg.Connect.CooldownGrowthFactor,
			CountGrowthFactor:    cfg.Connect.CountGrowthFactor,
			MaxCount:             uint8(cfg.Connect.MaxCount),
			MaxDelay:             cfg.Connect.MaxDelay,
		},
		ConnectTimeout: cfg.Connect.Timeout,
	}
}

// buildRoutes turns the config's service description into candidate
// routes: the direct path first, then one per configured front.
func buildRoutes(cfg *config.Config) []*route.WebSocketRoute {
	svc := cfg.Service

	sni := svc.SNI
	if sni == "" {
		sni = svc.Host
	}

	routes := []*route.WebSocketRoute{{
		Fragment: route.WebSocketFragment{
			Endpoint: svc.Endpoint,
			Headers:  http.Header{},
		},
		HTTP: route.HTTPFragment{
			HostHeader: svc.Host,
			PathPrefix: svc.PathPrefix,
		},
		Transport: route.TransportRoute{
			TCP: route.TCPRoute{Host: route.UnresolvedHost(svc.Host), Port: svc.Port},
			TLS: &route.TLSFragment{SNI: sni, ALPN: []string{"http/1.1"}},
		},
	}}

	for _, front := range svc.Fronts {
		hostHeader := front.HostHeader
		if hostHeader == "" {
			hostHeader = svc.Host
		}
		routes = append(routes, &route.WebSocketRoute{
			Fragment: route.WebSocketFragment{
				Endpoint: svc.Endpoint,
				Headers:  http.Header{},
			},
			HTTP: route.HTTPFragment{
				HostHeader: hostHeader,
				PathPrefix: front.PathPrefix,
				FrontName:  front.Name,
			},
			Transport: route.TransportRoute{
				TCP: route.TCPRoute{Host: route.UnresolvedHost(front.Domain), Port: svc.Port},
				TLS: &route.TLSFragment{SNI: front.Domain, ALPN: []string{"http/1.1"}},
			},
		})
	}
	return routes
}
