package boost

import (
	"sort"
	"time"
)

// EffectiveMultiplier composes the grants valid at the given instant into a
// single multiplier for the scope: 1.0 plus the sum of each matching grant's
// bonus (multiplier - 1). Two simultaneous +50% grants therefore yield x2.0,
// not x2.25: stacking is additive on the bonus, never compounding.
//
// The instant may be any time inside the current accrual window, not just
// now; the accrual engine evaluates past sub-intervals through this same
// function.
func EffectiveMultiplier(grants []Grant, scope Scope, at time.Time) float64 {
	m := 1.0
	for _, g := range grants {
		if g.AppliesTo(scope) && g.ActiveAt(at) {
			m += g.Bonus()
		}
	}
	return m
}

// Boundaries returns every grant start or end instant strictly inside
// (from, to), sorted and de-duplicated. Between consecutive boundaries the
// effective multiplier is constant, which is what lets the accrual engine
// integrate piecewise.
func Boundaries(grants []Grant, scope Scope, from, to time.Time) []time.Time {
	var points []time.Time
	add := func(t time.Time) {
		if t.After(from) && t.Before(to) {
			points = append(points, t)
		}
	}

	for _, g := range grants {
		if !g.AppliesTo(scope) {
			continue
		}
		add(g.StartTime)
		if g.EndTime != nil {
			add(*g.EndTime)
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	// De-duplicate coincident boundaries.
	out := points[:0]
	for i, p := range points {
		if i == 0 || !p.Equal(out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}

// Breakdown describes one active grant's contribution at an instant. The UI
// layer renders these; the engine itself never formats them.
type Breakdown struct {
	Source     Source
	Multiplier float64
	Permanent  bool
	Remaining  time.Duration
}

// Compose returns the effective multiplier together with the per-grant
// breakdown of everything active at the instant.
func Compose(grants []Grant, scope Scope, at time.Time) (float64, []Breakdown) {
	m := 1.0
	var parts []Breakdown
	for _, g := range grants {
		if !g.AppliesTo(scope) || !g.ActiveAt(at) {
			continue
		}
		m += g.Bonus()
		b := Breakdown{
			Source:     g.Source,
			Multiplier: g.Multiplier,
			Permanent:  g.Permanent(),
		}
		if g.EndTime != nil {
			b.Remaining = g.EndTime.Sub(at)
		}
		parts = append(parts, b)
	}
	return m, parts
}
