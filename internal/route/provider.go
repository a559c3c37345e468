package route

import (
	"crypto/rand"
	"encoding/binary"
)

// Entropy is a source of random values for tie-breaking and jitter. The
// production implementation is cryptographically strong and carries no
// mutable state, so it can be copied and used concurrently without locking.
type Entropy interface {
	Uint64() uint64
}

// CryptoEntropy reads from the operating system's CSPRNG.
type CryptoEntropy struct{}

func (CryptoEntropy) Uint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand is documented to never fail on supported platforms.
		panic("route: crypto/rand read failed: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// ProviderContext is handed to route providers when they enumerate
// candidates. It supplies randomness so providers can jitter ordering
// without owning an RNG.
type ProviderContext struct {
	Entropy Entropy
}

// RandomUint64 returns a random value from the context's entropy source.
func (c ProviderContext) RandomUint64() uint64 {
	e := c.Entropy
	if e == nil {
		e = CryptoEntropy{}
	}
	return e.Uint64()
}

// Provider produces the candidate routes for one connection attempt.
// Implementations must return routes that the caller is free to hold past
// the call; they are never mutated.
type Provider interface {
	Routes(ctx ProviderContext) []*WebSocketRoute
}

// StaticProvider returns a fixed candidate list.
type StaticProvider []*WebSocketRoute

func (p StaticProvider) Routes(ProviderContext) []*WebSocketRoute {
	out := make([]*WebSocketRoute, len(p))
	copy(out, p)
	return out
}

type mappedProvider struct {
	inner Provider
	fn    func(*WebSocketRoute) *WebSocketRoute
}

// MapRoutes wraps a provider so every produced route passes through fn.
// fn receives the provider's route and returns the one to use; it must not
// mutate its argument (Clone first).
func MapRoutes(p Provider, fn func(*WebSocketRoute) *WebSocketRoute) Provider {
	return &mappedProvider{inner: p, fn: fn}
}

func (m *mappedProvider) Routes(ctx ProviderContext) []*WebSocketRoute {
	routes := m.inner.Routes(ctx)
	out := make([]*WebSocketRoute, len(routes))
	for i, r := range routes {
		out[i] = m.fn(r)
	}
	return out
}
