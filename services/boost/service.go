package boost

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/base"
)

const (
	ServiceID   = "boost"
	ServiceName = "Boost Service"
	Version     = "1.0.0"
)

// Service owns the grant store and the source adapters for one process.
type Service struct {
	*base.BaseService

	store    *GrantStore
	adapters *Adapters
	clock    quartz.Clock
}

// New creates a new Boost service over the given document store.
func New(ds docstore.Store, clk quartz.Clock, logger *logging.Logger, m *metrics.Metrics) *Service {
	if clk == nil {
		clk = quartz.NewReal()
	}
	baseService := base.NewBaseService(ServiceID, ServiceName, Version, logger)

	store := NewGrantStore(ds, baseService.Logger())
	adapters := NewAdapters(store, clk, baseService.Logger(), m)

	return &Service{
		BaseService: baseService,
		store:       store,
		adapters:    adapters,
		clock:       clk,
	}
}

// Store exposes the grant store.
func (s *Service) Store() *GrantStore {
	return s.store
}

// Adapters exposes the boost source adapters.
func (s *Service) Adapters() *Adapters {
	return s.adapters
}

// EffectiveMultiplier returns the composed multiplier for a user and scope
// at the given instant.
func (s *Service) EffectiveMultiplier(ctx context.Context, userID string, scope Scope, at time.Time) (float64, error) {
	if s.State() != base.StateRunning {
		return 0, fmt.Errorf("service not running")
	}

	grants, err := s.store.Grants(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load grants: %w", err)
	}
	return EffectiveMultiplier(grants, scope, at), nil
}

// RateBreakdown returns the composed multiplier and the active grants
// behind it, for display.
func (s *Service) RateBreakdown(ctx context.Context, userID string, scope Scope) (float64, []Breakdown, error) {
	if s.State() != base.StateRunning {
		return 0, nil, fmt.Errorf("service not running")
	}

	grants, err := s.store.Grants(ctx, userID)
	if err != nil {
		return 0, nil, fmt.Errorf("load grants: %w", err)
	}
	m, parts := Compose(grants, scope, s.clock.Now())
	return m, parts, nil
}
