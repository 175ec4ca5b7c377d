package mining

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func newTestEngine(t *testing.T) (*Engine, *boost.GrantStore) {
	t.Helper()
	gs := boost.NewGrantStore(docstore.NewMemoryStore(), logging.Nop())
	return NewEngine(gs, logging.Nop(), nil), gs
}

func putGrant(t *testing.T, gs *boost.GrantStore, source boost.Source, multiplier float64, start, end time.Time) {
	t.Helper()
	g := boost.Grant{
		Source:     source,
		Multiplier: multiplier,
		StartTime:  start,
		EndTime:    &end,
		Scope:      boost.ScopeMining,
	}
	if err := gs.Put(context.Background(), "u1", g); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
}

func TestAccrue_FirstValuationInitializes(t *testing.T) {
	e, _ := newTestEngine(t)

	w := AccrualWindow{}
	if err := e.Accrue(context.Background(), "u1", &w, 1.0, t0); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if w.AccruedUnclaimed != 0 {
		t.Errorf("accrued = %v, want 0 on first valuation", w.AccruedUnclaimed)
	}
	if !w.LastValuationTime.Equal(t0) {
		t.Errorf("last valuation = %v, want %v", w.LastValuationTime, t0)
	}
	if !w.LastClaimTime.Equal(t0) {
		t.Errorf("window start = %v, want %v", w.LastClaimTime, t0)
	}
}

func TestAccrue_BaseRateOnly(t *testing.T) {
	e, _ := newTestEngine(t)

	w := AccrualWindow{LastValuationTime: t0}
	if err := e.Accrue(context.Background(), "u1", &w, 1.0, t0.Add(100*time.Second)); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if !approx(w.AccruedUnclaimed, 100.0) {
		t.Errorf("accrued = %v, want 100", w.AccruedUnclaimed)
	}
}

func TestAccrue_AdWatchHour(t *testing.T) {
	// 0.00125 units/sec doubled by one ad grant for a full hour.
	e, gs := newTestEngine(t)
	putGrant(t, gs, boost.SourceAdWatch, 2.0, t0, t0.Add(24*time.Hour))

	w := AccrualWindow{LastValuationTime: t0}
	if err := e.Accrue(context.Background(), "u1", &w, 0.00125, t0.Add(time.Hour)); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if !approx(w.AccruedUnclaimed, 9.0) {
		t.Errorf("accrued = %v, want 9.0", w.AccruedUnclaimed)
	}
}

func TestAccrue_OverlappingGrantsPartition(t *testing.T) {
	// +50% on [0,1800) and +20% on [900,2700) against 1 unit/sec:
	// [0,900) x1.5 = 1350, [900,1800) x1.7 = 1530, [1800,2700) x1.2 = 1080.
	e, gs := newTestEngine(t)
	putGrant(t, gs, boost.SourceEvent, 1.5, t0, t0.Add(1800*time.Second))
	putGrant(t, gs, boost.SourceLuckyNumber, 1.2, t0.Add(900*time.Second), t0.Add(2700*time.Second))

	w := AccrualWindow{LastValuationTime: t0}
	if err := e.Accrue(context.Background(), "u1", &w, 1.0, t0.Add(2700*time.Second)); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if !approx(w.AccruedUnclaimed, 3960.0) {
		t.Errorf("accrued = %v, want 3960", w.AccruedUnclaimed)
	}
}

func TestAccrue_TimeAdditive(t *testing.T) {
	// Valuing at t1 then t2 accrues the same as valuing once at t2, no
	// matter where the grant boundaries fall relative to t1.
	steps := []time.Duration{
		450 * time.Second,
		900 * time.Second,
		1799 * time.Second,
		1800 * time.Second,
		2100 * time.Second,
	}
	for _, step := range steps {
		e, gs := newTestEngine(t)
		putGrant(t, gs, boost.SourceEvent, 1.5, t0, t0.Add(1800*time.Second))
		putGrant(t, gs, boost.SourceLuckyNumber, 1.2, t0.Add(900*time.Second), t0.Add(2700*time.Second))

		end := t0.Add(2700 * time.Second)

		split := AccrualWindow{LastValuationTime: t0}
		if err := e.Accrue(context.Background(), "u1", &split, 1.0, t0.Add(step)); err != nil {
			t.Fatalf("Accrue(step) error: %v", err)
		}
		if err := e.Accrue(context.Background(), "u1", &split, 1.0, end); err != nil {
			t.Fatalf("Accrue(end) error: %v", err)
		}

		single := AccrualWindow{LastValuationTime: t0}
		if err := e.Accrue(context.Background(), "u1", &single, 1.0, end); err != nil {
			t.Fatalf("Accrue(single) error: %v", err)
		}

		if !approx(split.AccruedUnclaimed, single.AccruedUnclaimed) {
			t.Errorf("step %v: split accrual %v != single accrual %v",
				step, split.AccruedUnclaimed, single.AccruedUnclaimed)
		}
	}
}

func TestAccrue_ClockRollback(t *testing.T) {
	e, _ := newTestEngine(t)

	w := AccrualWindow{AccruedUnclaimed: 5.0, LastValuationTime: t0}
	if err := e.Accrue(context.Background(), "u1", &w, 1.0, t0.Add(-time.Minute)); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if w.AccruedUnclaimed != 5.0 {
		t.Errorf("accrued = %v, want unchanged 5.0", w.AccruedUnclaimed)
	}
	if !w.LastValuationTime.Equal(t0) {
		t.Errorf("last valuation = %v, want unchanged %v", w.LastValuationTime, t0)
	}
}

func TestAccrue_ScopeFiltered(t *testing.T) {
	// A spin-scoped grant must not change mining accrual.
	e, gs := newTestEngine(t)
	g := boost.Grant{
		Source:     boost.SourceManual,
		Multiplier: 5.0,
		StartTime:  t0,
		Scope:      boost.ScopeSpin,
	}
	if err := gs.Put(context.Background(), "u1", g); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	w := AccrualWindow{LastValuationTime: t0}
	if err := e.Accrue(context.Background(), "u1", &w, 1.0, t0.Add(10*time.Second)); err != nil {
		t.Fatalf("Accrue() error: %v", err)
	}
	if !approx(w.AccruedUnclaimed, 10.0) {
		t.Errorf("accrued = %v, want 10 (spin grant ignored)", w.AccruedUnclaimed)
	}
}
