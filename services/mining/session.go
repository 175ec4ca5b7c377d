package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
)

// DefaultSessionLength is how long one started mining session keeps
// accruing.
const DefaultSessionLength = 24 * time.Hour

// Session is the single logical owner of one user's mining state. Grants,
// accrual and claims all execute on its mutation queue, one at a time, so
// a grant that lands before a valuation is always visible to it. The host
// may call into the session from any goroutine.
type Session struct {
	userID   string
	deviceID string

	store    docstore.Store
	adapters *boost.Adapters
	engine   *Engine
	claims   *Coordinator
	mirror   *LedgerMirror
	streaks  *StreakTracker
	activity *ActivityTracker
	clock    quartz.Clock
	logger   *logging.Logger

	baseRate float64
	length   time.Duration

	// Owned by the queue goroutine; never touched outside it.
	window AccrualWindow
	info   SessionInfo

	queue   chan func()
	closed  chan struct{}
	drained chan struct{}
}

// SessionDeps bundles the collaborators a session runs on.
type SessionDeps struct {
	Store    docstore.Store
	Adapters *boost.Adapters
	Engine   *Engine
	Claims   *Coordinator
	Streaks  *StreakTracker
	Activity *ActivityTracker
	Clock    quartz.Clock
	Logger   *logging.Logger
	BaseRate float64
	Length   time.Duration
}

// NewSession creates a session for one user on one device and starts its
// mutation queue. Call Close on logout.
func NewSession(userID, deviceID string, deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	baseRate := deps.BaseRate
	if baseRate <= 0 {
		baseRate = DefaultBaseRate
	}
	length := deps.Length
	if length <= 0 {
		length = DefaultSessionLength
	}

	s := &Session{
		userID:   userID,
		deviceID: deviceID,
		store:    deps.Store,
		adapters: deps.Adapters,
		engine:   deps.Engine,
		claims:   deps.Claims,
		mirror:   NewLedgerMirror(deps.Store, userID, logger),
		streaks:  deps.Streaks,
		activity: deps.Activity,
		clock:    clock,
		logger:   logger.With("user", userID, "device", deviceID),
		baseRate: baseRate,
		length:   length,
		queue:    make(chan func(), 16),
		closed:   make(chan struct{}),
		drained:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.drained)
	for {
		select {
		case fn := <-s.queue:
			fn()
		case <-s.closed:
			for {
				select {
				case fn := <-s.queue:
					fn()
				default:
					return
				}
			}
		}
	}
}

// do runs fn on the mutation queue and waits for it. Everything that
// reads or writes the window or the grant set goes through here.
func (s *Session) do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-s.closed:
		return errs.New(errs.CodeUnavailable, "session closed")
	default:
	}

	errc := make(chan error, 1)
	select {
	case s.queue <- func() { errc <- fn(ctx) }:
	case <-s.closed:
		return errs.New(errs.CodeUnavailable, "session closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-s.drained:
		// The queue goroutine drains pending work before exiting, so the
		// result may still have been produced.
		select {
		case err := <-errc:
			return err
		default:
			return errs.New(errs.CodeUnavailable, "session closed")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue after draining pending work and detaches the
// ledger mirror.
func (s *Session) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	<-s.drained
	s.mirror.Stop()
}

// Follow starts mirroring the remote ledger. Optional; reads fall back to
// the coordinator otherwise.
func (s *Session) Follow(ctx context.Context) error {
	return s.mirror.Start(ctx)
}

// Mirror exposes the read-only ledger mirror.
func (s *Session) Mirror() *LedgerMirror {
	return s.mirror
}

// ================================================================
// Mining lifecycle
// ================================================================

// StartMining begins or resumes a mining session. The remote session
// document is the truth: an active, unexpired session started elsewhere is
// adopted as-is, including its earlier start time, so two devices never
// mine two overlapping sessions.
func (s *Session) StartMining(ctx context.Context) (SessionInfo, error) {
	var out SessionInfo
	err := s.do(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		remote, ok, err := s.loadRemoteSession(ctx)
		if err != nil {
			return err
		}
		if ok && remote.Active && !remote.Expired(now, s.length) {
			s.info = remote
			s.logger.Info("adopted remote mining session",
				"started", remote.StartTime, "remote_device", remote.DeviceID)
		} else {
			s.info = SessionInfo{
				Active:     true,
				StartTime:  now,
				DeviceID:   s.deviceID,
				LastUpdate: now,
			}
			if err := s.persistSession(ctx); err != nil {
				return err
			}
			s.logger.Info("mining session started", "until", s.info.End(s.length))
		}

		if s.window.LastValuationTime.IsZero() {
			s.window.LastValuationTime = now
			s.window.LastClaimTime = now
		}

		if err := s.recordDailyMining(ctx, now); err != nil {
			// Streak bookkeeping never blocks mining.
			s.logger.Warn("streak update failed", "error", err)
		}
		out = s.info
		return nil
	})
	return out, err
}

// Sync adopts the remote session state without starting a new one. A
// fresh window begins valuing at the later of the session start and the
// last remote claim, so time already claimed from another device is not
// counted again.
func (s *Session) Sync(ctx context.Context) (SessionInfo, error) {
	var out SessionInfo
	err := s.do(ctx, func(ctx context.Context) error {
		remote, ok, err := s.loadRemoteSession(ctx)
		if err != nil {
			return err
		}
		if ok {
			s.info = remote
		}
		if s.window.LastValuationTime.IsZero() && s.info.Active {
			start := s.info.StartTime
			if ledger, lerr := s.claims.Balance(ctx, s.userID); lerr == nil && ledger.LastClaimTime.After(start) {
				start = ledger.LastClaimTime
			}
			s.window.LastValuationTime = start
			s.window.LastClaimTime = start
		}
		out = s.info
		return nil
	})
	return out, err
}

// StopMining settles accrual up to now and deactivates the session.
func (s *Session) StopMining(ctx context.Context) (AccrualWindow, error) {
	var out AccrualWindow
	err := s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		if s.info.Active {
			s.info.Active = false
			s.info.LastUpdate = s.clock.Now()
			if err := s.persistSession(ctx); err != nil {
				return err
			}
		}
		out = s.window
		return nil
	})
	return out, err
}

// Accrue settles accrual up to now and returns the updated window.
func (s *Session) Accrue(ctx context.Context) (AccrualWindow, error) {
	var out AccrualWindow
	err := s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		out = s.window
		return nil
	})
	return out, err
}

// Claim settles accrual and then credits the whole window to the remote
// ledger. On a retryable failure the window is untouched and the accrued
// amount remains pending.
func (s *Session) Claim(ctx context.Context) (ClaimResult, error) {
	var out ClaimResult
	err := s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		res, err := s.claims.Claim(ctx, s.userID, &s.window)
		if err != nil {
			return err
		}
		out = res
		if err := s.activity.Touch(ctx, s.userID); err != nil {
			s.logger.Warn("activity touch failed", "error", err)
		}
		return nil
	})
	return out, err
}

// Window returns a snapshot of the accrual window without advancing it.
func (s *Session) Window(ctx context.Context) (AccrualWindow, error) {
	var out AccrualWindow
	err := s.do(ctx, func(context.Context) error {
		out = s.window
		return nil
	})
	return out, err
}

// Info returns the current session state.
func (s *Session) Info(ctx context.Context) (SessionInfo, error) {
	var out SessionInfo
	err := s.do(ctx, func(context.Context) error {
		out = s.info
		return nil
	})
	return out, err
}

// accrueLocked integrates up to at, capped at the session's end. Runs on
// the queue goroutine only. An inactive session accrues nothing.
func (s *Session) accrueLocked(ctx context.Context, at time.Time) error {
	if !s.info.Active {
		return nil
	}
	end := s.info.End(s.length)
	capped := at
	if capped.After(end) {
		capped = end
	}
	if err := s.engine.Accrue(ctx, s.userID, &s.window, s.baseRate, capped); err != nil {
		return err
	}
	if !at.Before(end) {
		s.info.Active = false
		s.info.LastUpdate = at
		if err := s.persistSession(ctx); err != nil {
			return err
		}
		s.logger.Info("mining session expired", "accrued", s.window.AccruedUnclaimed)
	}
	return nil
}

func (s *Session) loadRemoteSession(ctx context.Context) (SessionInfo, bool, error) {
	raw, err := s.store.Get(ctx, sessionPath(s.userID))
	if docstore.IsNotFound(err) {
		return SessionInfo{}, false, nil
	}
	if err != nil {
		return SessionInfo{}, false, fmt.Errorf("load session: %w", err)
	}
	var doc sessionDoc
	if err := docstore.Decode(raw, &doc); err != nil {
		return SessionInfo{}, false, err
	}
	return doc.toInfo(), true, nil
}

func (s *Session) persistSession(ctx context.Context) error {
	if err := s.store.Set(ctx, sessionPath(s.userID), fromInfo(s.info)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *Session) recordDailyMining(ctx context.Context, now time.Time) error {
	if err := s.activity.Touch(ctx, s.userID); err != nil {
		return err
	}
	streak, err := s.streaks.RecordMiningDay(ctx, s.userID)
	if err != nil {
		return err
	}
	return s.adapters.RecordStreak(ctx, s.userID, streak.Current)
}

// ================================================================
// Boost entry points, serialized with accrual
// ================================================================

// WatchAd handles a completed rewarded ad on this session's timeline.
// Accrual is settled first so the doubled rate only applies forward.
func (s *Session) WatchAd(ctx context.Context) bool {
	granted := false
	err := s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		granted = s.adapters.OnRewardEarned(ctx, s.userID)
		return nil
	})
	return err == nil && granted
}

// SubmitLuckyGuess resolves a lucky-number guess on the session timeline
// and returns the multiplier won, 1.0 for a miss.
func (s *Session) SubmitLuckyGuess(ctx context.Context, guess, drawn int) (float64, error) {
	won := 1.0
	err := s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		m, err := s.adapters.SubmitLuckyGuess(ctx, s.userID, guess, drawn)
		if err != nil {
			return err
		}
		won = m
		return nil
	})
	return won, err
}

// ActivateEvent applies a limited-time event boost on the session
// timeline.
func (s *Session) ActivateEvent(ctx context.Context, multiplier float64, duration time.Duration) error {
	return s.do(ctx, func(ctx context.Context) error {
		if err := s.accrueLocked(ctx, s.clock.Now()); err != nil {
			return err
		}
		return s.adapters.ActivateEvent(ctx, s.userID, multiplier, duration)
	})
}

// Exec runs fn on the session's mutation queue. Host callbacks that touch
// grants outside the wrappers above go through here so they serialize with
// accrual and claims.
func (s *Session) Exec(ctx context.Context, fn func(context.Context) error) error {
	return s.do(ctx, fn)
}

// Rate settles accrual and returns the current effective rate in units
// per second together with the per-grant breakdown.
func (s *Session) Rate(ctx context.Context) (float64, []boost.Breakdown, error) {
	var (
		rate  float64
		parts []boost.Breakdown
	)
	err := s.do(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		if err := s.accrueLocked(ctx, now); err != nil {
			return err
		}
		grants, err := s.engine.grants.Grants(ctx, s.userID)
		if err != nil {
			return err
		}
		m, b := boost.Compose(grants, boost.ScopeMining, now)
		rate = s.baseRate * m
		parts = b
		return nil
	})
	return rate, parts, err
}
