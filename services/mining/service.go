package mining

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/base"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
)

const (
	ServiceID   = "mining"
	ServiceName = "Mining Service"
	Version     = "1.0.0"
)

// Options tune the mining service. Zero values fall back to defaults.
type Options struct {
	BaseRate      float64
	SessionLength time.Duration
	ClaimsPerMin  float64
	ClaimBurst    int
}

// Service owns the accrual engine, the claim coordinator and the live
// per-user sessions of one process.
type Service struct {
	*base.BaseService

	store    docstore.Store
	boosts   *boost.Service
	engine   *Engine
	claims   *Coordinator
	streaks  *StreakTracker
	activity *ActivityTracker
	clock    quartz.Clock
	metrics  *metrics.Metrics
	opts     Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a new Mining service sharing the boost service's grant
// store.
func New(ds docstore.Store, boosts *boost.Service, clk quartz.Clock, logger *logging.Logger, m *metrics.Metrics, opts Options) *Service {
	if clk == nil {
		clk = quartz.NewReal()
	}
	baseService := base.NewBaseService(ServiceID, ServiceName, Version, logger)

	if opts.BaseRate <= 0 {
		opts.BaseRate = DefaultBaseRate
	}
	if opts.SessionLength <= 0 {
		opts.SessionLength = DefaultSessionLength
	}

	s := &Service{
		BaseService: baseService,
		store:       ds,
		boosts:      boosts,
		engine:      NewEngine(boosts.Store(), baseService.Logger(), m),
		claims:      NewCoordinator(ds, clk, baseService.Logger(), m, opts.ClaimsPerMin, opts.ClaimBurst),
		streaks:     NewStreakTracker(ds, clk, baseService.Logger()),
		activity:    NewActivityTracker(ds, clk),
		clock:       clk,
		metrics:     m,
		opts:        opts,
		sessions:    make(map[string]*Session),
	}
	s.SetHooks(base.LifecycleHooks{OnBeforeStop: s.closeSessions})
	return s
}

// Session returns the live session for the user, creating one bound to
// this device on first use.
func (s *Service) Session(userID, deviceID string) (*Session, error) {
	if s.State() != base.StateRunning {
		return nil, errs.Newf(errs.CodeUnavailable, "mining service is %s", s.State())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}

	sess := NewSession(userID, deviceID, SessionDeps{
		Store:    s.store,
		Adapters: s.boosts.Adapters(),
		Engine:   s.engine,
		Claims:   s.claims,
		Streaks:  s.streaks,
		Activity: s.activity,
		Clock:    s.clock,
		Logger:   s.Logger(),
		BaseRate: s.opts.BaseRate,
		Length:   s.opts.SessionLength,
	})
	s.sessions[userID] = sess

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	return sess, nil
}

// EndSession tears down the user's live session, settling accrual first.
func (s *Service) EndSession(ctx context.Context, userID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if _, err := sess.StopMining(ctx); err != nil {
		s.Logger().Warn("session settle on logout failed", "user", userID, "error", err)
	}
	sess.Close()
	s.engine.grants.Forget(userID)

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	return nil
}

// ReleaseSession drops the user's live session without touching the remote
// mining document, so a session another device started keeps running. The
// unclaimed window is rederived from the ledger's last claim on the next
// attach, so nothing accrued is lost.
func (s *Service) ReleaseSession(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.Close()
	s.engine.grants.Forget(userID)

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
}

// SetBaseRate changes the rate used by sessions created from now on. Live
// sessions keep the rate they were built with.
func (s *Service) SetBaseRate(r float64) {
	if r <= 0 {
		return
	}
	s.mu.Lock()
	s.opts.BaseRate = r
	s.mu.Unlock()
}

// Coordinator exposes the claim coordinator for callers that only need
// ledger reads.
func (s *Service) Coordinator() *Coordinator {
	return s.claims
}

// Streaks exposes the streak tracker.
func (s *Service) Streaks() *StreakTracker {
	return s.streaks
}

// Activity exposes the activity tracker.
func (s *Service) Activity() *ActivityTracker {
	return s.activity
}

// closeSessions drops local session state on shutdown. Remote mining
// sessions keep running: accrual is lazy, so the next attach picks up where
// the ledger left off.
func (s *Service) closeSessions(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	return nil
}
