package boost

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func timed(source Source, multiplier float64, scope Scope, start, end time.Time) Grant {
	return Grant{
		Source:     source,
		Multiplier: multiplier,
		StartTime:  start,
		EndTime:    &end,
		Scope:      scope,
	}
}

func permanent(source Source, multiplier float64, scope Scope, start time.Time) Grant {
	return Grant{
		Source:     source,
		Multiplier: multiplier,
		StartTime:  start,
		Scope:      scope,
	}
}

func TestEffectiveMultiplier_NoGrants(t *testing.T) {
	if m := EffectiveMultiplier(nil, ScopeMining, t0); m != 1.0 {
		t.Errorf("EffectiveMultiplier() = %v, want 1.0", m)
	}
}

func TestEffectiveMultiplier_AdditiveBonus(t *testing.T) {
	// Two simultaneous +50% grants stack to x2.0, not x2.25.
	grants := []Grant{
		timed(SourceEvent, 1.5, ScopeMining, t0, t0.Add(time.Hour)),
		timed(SourceLuckyNumber, 1.5, ScopeMining, t0, t0.Add(time.Hour)),
	}
	if m := EffectiveMultiplier(grants, ScopeMining, t0.Add(time.Minute)); !approx(m, 2.0) {
		t.Errorf("EffectiveMultiplier() = %v, want 2.0", m)
	}
}

func TestEffectiveMultiplier_ScopeFilter(t *testing.T) {
	grants := []Grant{
		timed(SourceEvent, 1.5, ScopeSpin, t0, t0.Add(time.Hour)),
		permanent(SourceAchievement, 1.1, ScopeAll, t0),
	}

	// Spin-scoped grant must not amplify mining; ScopeAll must.
	if m := EffectiveMultiplier(grants, ScopeMining, t0.Add(time.Minute)); !approx(m, 1.1) {
		t.Errorf("mining multiplier = %v, want 1.1", m)
	}
	if m := EffectiveMultiplier(grants, ScopeSpin, t0.Add(time.Minute)); !approx(m, 1.6) {
		t.Errorf("spin multiplier = %v, want 1.6", m)
	}
}

func TestEffectiveMultiplier_ExpiryBoundary(t *testing.T) {
	end := t0.Add(time.Hour)
	grants := []Grant{timed(SourceAdWatch, 2.0, ScopeMining, t0, end)}

	if m := EffectiveMultiplier(grants, ScopeMining, end.Add(-time.Nanosecond)); m != 2.0 {
		t.Errorf("multiplier just before expiry = %v, want 2.0", m)
	}
	// A grant with endTime <= at is excluded.
	if m := EffectiveMultiplier(grants, ScopeMining, end); m != 1.0 {
		t.Errorf("multiplier at expiry = %v, want 1.0", m)
	}
}

func TestEffectiveMultiplier_NonOverlappingIndependence(t *testing.T) {
	g1 := timed(SourceEvent, 1.5, ScopeMining, t0, t0.Add(time.Hour))
	g2 := timed(SourceLuckyNumber, 3.0, ScopeMining, t0.Add(2*time.Hour), t0.Add(3*time.Hour))

	at := t0.Add(30 * time.Minute) // inside g1 only

	with := EffectiveMultiplier([]Grant{g1, g2}, ScopeMining, at)
	without := EffectiveMultiplier([]Grant{g1}, ScopeMining, at)
	if with != without {
		t.Errorf("multiplier inside g1 depends on g2: with=%v without=%v", with, without)
	}
}

func TestEffectiveMultiplier_OverlappingGrants(t *testing.T) {
	// Grant A +50% on [0, 1800), Grant B +20% on [900, 2700).
	a := timed(SourceEvent, 1.5, ScopeMining, t0, t0.Add(1800*time.Second))
	b := timed(SourceLuckyNumber, 1.2, ScopeMining, t0.Add(900*time.Second), t0.Add(2700*time.Second))
	grants := []Grant{a, b}

	cases := []struct {
		atSec int
		want  float64
	}{
		{0, 1.5},
		{899, 1.5},
		{900, 1.7},
		{1799, 1.7},
		{1800, 1.2},
		{2699, 1.2},
		{2700, 1.0},
	}
	for _, tc := range cases {
		at := t0.Add(time.Duration(tc.atSec) * time.Second)
		if m := EffectiveMultiplier(grants, ScopeMining, at); !approx(m, tc.want) {
			t.Errorf("multiplier at t=%ds = %v, want %v", tc.atSec, m, tc.want)
		}
	}
}

func TestBoundaries(t *testing.T) {
	a := timed(SourceEvent, 1.5, ScopeMining, t0, t0.Add(1800*time.Second))
	b := timed(SourceLuckyNumber, 1.2, ScopeMining, t0.Add(900*time.Second), t0.Add(2700*time.Second))
	grants := []Grant{a, b}

	points := Boundaries(grants, ScopeMining, t0, t0.Add(2700*time.Second))
	want := []time.Duration{900 * time.Second, 1800 * time.Second}
	if len(points) != len(want) {
		t.Fatalf("Boundaries() = %v, want offsets %v", points, want)
	}
	for i, p := range points {
		if !p.Equal(t0.Add(want[i])) {
			t.Errorf("boundary[%d] = %v, want %v", i, p, t0.Add(want[i]))
		}
	}
}

func TestBoundaries_ExcludesEndpointsAndDuplicates(t *testing.T) {
	end := t0.Add(time.Hour)
	grants := []Grant{
		timed(SourceEvent, 1.5, ScopeMining, t0, end),
		timed(SourceLuckyNumber, 1.2, ScopeMining, t0, end), // coincident
	}

	points := Boundaries(grants, ScopeMining, t0, end)
	if len(points) != 0 {
		t.Errorf("Boundaries() = %v, want none (interval endpoints excluded)", points)
	}

	points = Boundaries(grants, ScopeMining, t0.Add(-time.Hour), t0.Add(2*time.Hour))
	if len(points) != 2 {
		t.Errorf("Boundaries() = %v, want 2 de-duplicated points", points)
	}
}

func TestCompose_Breakdown(t *testing.T) {
	end := t0.Add(time.Hour)
	grants := []Grant{
		timed(SourceAdWatch, 2.0, ScopeMining, t0, end),
		permanent(SourceVerificationTier, 1.2, ScopeMining, t0),
	}

	m, parts := Compose(grants, ScopeMining, t0.Add(30*time.Minute))
	if !approx(m, 2.2) {
		t.Errorf("Compose() multiplier = %v, want 2.2", m)
	}
	if len(parts) != 2 {
		t.Fatalf("Compose() parts = %d, want 2", len(parts))
	}
	if parts[0].Source != SourceAdWatch || parts[0].Remaining != 30*time.Minute {
		t.Errorf("ad part = %+v, want 30m remaining", parts[0])
	}
	if !parts[1].Permanent {
		t.Errorf("tier part should be permanent: %+v", parts[1])
	}
}

func TestCatalogHelpers(t *testing.T) {
	if got := StreakMultiplier(0); got != 1.0 {
		t.Errorf("StreakMultiplier(0) = %v, want 1.0", got)
	}
	if got := StreakMultiplier(7); got != 1.25 {
		t.Errorf("StreakMultiplier(7) = %v, want 1.25", got)
	}
	if got := StreakMultiplier(400); got != 3.0 {
		t.Errorf("StreakMultiplier(400) = %v, want 3.0", got)
	}
	if got := CircleMultiplier(3); !approx(got, 1.3) {
		t.Errorf("CircleMultiplier(3) = %v, want 1.3", got)
	}
	if got := CircleMultiplier(9); !approx(got, 1.5) {
		t.Errorf("CircleMultiplier(9) = %v, want cap at 1.5", got)
	}
	if got := LuckyMultiplier(7, 7); got != 3.0 {
		t.Errorf("LuckyMultiplier(exact) = %v, want 3.0", got)
	}
	if got := LuckyMultiplier(7, 8); got != 1.5 {
		t.Errorf("LuckyMultiplier(close) = %v, want 1.5", got)
	}
	if got := LuckyMultiplier(7, 5); got != 1.2 {
		t.Errorf("LuckyMultiplier(near) = %v, want 1.2", got)
	}
	if got := LuckyMultiplier(7, 1); got != 1.0 {
		t.Errorf("LuckyMultiplier(miss) = %v, want 1.0", got)
	}
	if got := TierFull.Multiplier(); !approx(got, 1.2) {
		t.Errorf("TierFull.Multiplier() = %v, want 1.2", got)
	}
}
