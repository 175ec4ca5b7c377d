package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
)

// Engine integrates the mining rate over time. It is evaluated lazily, on
// read, so time spent offline is folded in the moment the caller returns;
// there is no separate catch-up path.
type Engine struct {
	grants  *boost.GrantStore
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an accrual engine over the grant store. metrics may be
// nil.
func NewEngine(grants *boost.GrantStore, logger *logging.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{grants: grants, logger: logger, metrics: m}
}

// Accrue advances the window from its last valuation to at, adding
// baseRate x effectiveMultiplier integrated over the interval. The
// multiplier is piecewise-constant between grant boundaries, so the
// interval is partitioned at every boundary inside it and each piece is
// integrated at the multiplier holding at its start.
//
// A zero LastValuationTime means the window has never been valued; it is
// initialized to at with nothing accrued. If at is earlier than the last
// valuation the clock went backwards; the window is left untouched.
func (e *Engine) Accrue(ctx context.Context, userID string, w *AccrualWindow, baseRate float64, at time.Time) error {
	if w.LastValuationTime.IsZero() {
		w.LastValuationTime = at
		if w.LastClaimTime.IsZero() {
			w.LastClaimTime = at
		}
		return nil
	}
	if at.Before(w.LastValuationTime) {
		e.logger.Warn("clock moved backwards, skipping accrual",
			"user", userID, "at", at, "last_valuation", w.LastValuationTime)
		return nil
	}
	if at.Equal(w.LastValuationTime) {
		return nil
	}

	grants, err := e.grants.Grants(ctx, userID)
	if err != nil {
		return fmt.Errorf("load grants: %w", err)
	}

	added := integrate(grants, baseRate, w.LastValuationTime, at)
	w.AccruedUnclaimed += added
	w.LastValuationTime = at

	if e.metrics != nil {
		e.metrics.AccruedUnits.Add(added)
	}
	return nil
}

// integrate sums baseRate x multiplier over [from, to), splitting the
// interval at each grant start or end inside it.
func integrate(grants []boost.Grant, baseRate float64, from, to time.Time) float64 {
	points := boost.Boundaries(grants, boost.ScopeMining, from, to)

	total := 0.0
	t0 := from
	for i := 0; i <= len(points); i++ {
		t1 := to
		if i < len(points) {
			t1 = points[i]
		}
		m := boost.EffectiveMultiplier(grants, boost.ScopeMining, t0)
		total += baseRate * m * t1.Sub(t0).Seconds()
		t0 = t1
	}
	return total
}
