package outcome

import (
	"math"
	"sort"
	"time"

	"github.com/tetherline/routedial/internal/route"
)

// Params tunes how failure history translates into cooldowns. Immutable
// after construction.
type Params struct {
	// AgeCutoff is how long a route's history stays relevant. Updates
	// arriving later than this after the previous one discard the prior
	// weight first, so stale history never compounds.
	AgeCutoff time.Duration

	// CooldownGrowthFactor is the base of the exponential cooldown curve.
	CooldownGrowthFactor float64

	// CountGrowthFactor is how much one failure adds to the route's weight.
	CountGrowthFactor float64

	// MaxCount caps the failure weight.
	MaxCount uint8

	// MaxDelay caps the derived cooldown.
	MaxDelay time.Duration
}

// SuggestedParams are reasonable production values.
var SuggestedParams = Params{
	AgeCutoff:            5 * time.Minute,
	CooldownGrowthFactor: 10.0,
	CountGrowthFactor:    10.0,
	MaxCount:             5,
	MaxDelay:             30 * time.Second,
}

// baseCooldown anchors the exponential curve: a route at weight 1 waits
// baseCooldown * CooldownGrowthFactor before being attempted again.
const baseCooldown = 500 * time.Millisecond

// Record is a read-only view of one route's tracked state.
type Record struct {
	Weight  float64
	Updated time.Time
}

// Update is one route's result from a finished connection attempt. A batch
// of updates commutes with any other batch: each update only increments or
// resets the weight of its own route.
type Update struct {
	Key     route.Key
	Success bool
}

// Records remembers recent connection outcomes per route. Not safe for
// concurrent use; the owner serializes access.
type Records struct {
	params  Params
	byRoute map[route.Key]Record
}

// NewRecords creates an empty table with the given parameters.
func NewRecords(params Params) *Records {
	return &Records{
		params:  params,
		byRoute: make(map[route.Key]Record),
	}
}

// RecordOutcome applies a single result observed at now.
func (r *Records) RecordOutcome(key route.Key, success bool, now time.Time) {
	if success {
		delete(r.byRoute, key)
		return
	}
	rec := r.byRoute[key]
	if !rec.Updated.IsZero() && now.Sub(rec.Updated) > r.params.AgeCutoff {
		rec.Weight = 0
	}
	rec.Weight = math.Min(rec.Weight+r.params.CountGrowthFactor, float64(r.params.MaxCount))
	rec.Updated = now
	r.byRoute[key] = rec
}

// ApplyUpdates merges a finished attempt's per-route results. finishedAt is
// when the attempt resolved; all updates in the batch share it.
func (r *Records) ApplyUpdates(updates []Update, finishedAt time.Time) {
	for _, u := range updates {
		r.RecordOutcome(u.Key, u.Success, finishedAt)
	}
}

// CooldownFor derives the delay before the route should be attempted again.
// Zero weight (or fully aged-out history) means no delay.
func (r *Records) CooldownFor(key route.Key, now time.Time) time.Duration {
	rec, ok := r.byRoute[key]
	if !ok || rec.Weight == 0 {
		return 0
	}
	if now.Sub(rec.Updated) > r.params.AgeCutoff {
		return 0
	}
	d := time.Duration(float64(baseCooldown) * math.Pow(r.params.CooldownGrowthFactor, rec.Weight))
	if d < 0 || d > r.params.MaxDelay {
		// Negative means the float overflowed the Duration range.
		d = r.params.MaxDelay
	}
	return d
}

// RankedRoute is a candidate route paired with the delay it should wait
// before being attempted.
type RankedRoute struct {
	Route *route.WebSocketRoute
	Delay time.Duration
}

// Rank orders candidates by ascending cooldown. Routes with equal cooldown
// are ordered by a random key drawn from entropy, so a fresh route set is
// attempted in an unpredictable order.
func (r *Records) Rank(routes []*route.WebSocketRoute, now time.Time, entropy route.Entropy) []RankedRoute {
	type scored struct {
		RankedRoute
		tiebreak uint64
	}
	ranked := make([]scored, len(routes))
	for i, rt := range routes {
		ranked[i] = scored{
			RankedRoute: RankedRoute{Route: rt, Delay: r.CooldownFor(rt.Key(), now)},
			tiebreak:    entropy.Uint64(),
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Delay != ranked[j].Delay {
			return ranked[i].Delay < ranked[j].Delay
		}
		return ranked[i].tiebreak < ranked[j].tiebreak
	})
	out := make([]RankedRoute, len(ranked))
	for i, s := range ranked {
		out[i] = s.RankedRoute
	}
	return out
}

// Snapshot returns a copy of the table for read-only inspection.
func (r *Records) Snapshot() map[route.Key]Record {
	out := make(map[route.Key]Record, len(r.byRoute))
	for k, v := range r.byRoute {
		out[k] = v
	}
	return out
}
