package route

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Resolver maps an unresolved hostname to addresses. Failures propagate as
// connect errors for the route being attempted.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// NetResolver resolves through the standard library's resolver.
type NetResolver struct {
	// Inner overrides the resolver used for lookups. Nil means
	// net.DefaultResolver.
	Inner *net.Resolver
}

func (r *NetResolver) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	inner := r.Inner
	if inner == nil {
		inner = net.DefaultResolver
	}
	return inner.LookupNetIP(ctx, "ip", host)
}

// StaticResolver resolves from a fixed table. Used in tests and for
// endpoints with pinned addresses.
type StaticResolver map[string][]netip.Addr

func (r StaticResolver) LookupIP(_ context.Context, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok || len(addrs) == 0 {
		// The hostname is deliberately not included in the error.
		return nil, fmt.Errorf("no static lookup entry for host")
	}
	out := make([]netip.Addr, len(addrs))
	copy(out, addrs)
	return out, nil
}
