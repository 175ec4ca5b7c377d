// Package sweep runs the periodic background pass over all known users:
// refresh activity, settle accrual and claim anything worth claiming, so
// balances stay current even for users who never foreground the app.
package sweep

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/mining"
)

// sweepDevice marks session writes made by the sweeper rather than a real
// device.
const sweepDevice = "sweepd"

// UserSource enumerates the users a sweep should visit.
type UserSource interface {
	UserIDs(ctx context.Context) ([]string, error)
}

// StaticUsers is a fixed user list, mostly for tests and small deploys.
type StaticUsers []string

func (s StaticUsers) UserIDs(context.Context) ([]string, error) {
	return []string(s), nil
}

const userIndexPath = "users/index"

type userIndexDoc struct {
	UserIDs []string `json:"userIds"`
}

// DocUserSource reads the user roster from the shared document store.
type DocUserSource struct {
	store docstore.Store
}

// NewDocUserSource creates a roster backed by the users/index document.
func NewDocUserSource(store docstore.Store) *DocUserSource {
	return &DocUserSource{store: store}
}

func (d *DocUserSource) UserIDs(ctx context.Context) ([]string, error) {
	raw, err := d.store.Get(ctx, userIndexPath)
	if docstore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc userIndexDoc
	if err := docstore.Decode(raw, &doc); err != nil {
		return nil, err
	}
	return doc.UserIDs, nil
}

// Register adds a user to the roster, once.
func (d *DocUserSource) Register(ctx context.Context, userID string) error {
	_, err := d.store.TransactionalUpdate(ctx, userIndexPath, func(current json.RawMessage) (json.RawMessage, error) {
		var doc userIndexDoc
		if current != nil {
			if uerr := json.Unmarshal(current, &doc); uerr != nil {
				return nil, errs.Wrap(errs.CodeCorruption, "malformed user index", uerr)
			}
		}
		for _, id := range doc.UserIDs {
			if id == userID {
				return current, nil
			}
		}
		doc.UserIDs = append(doc.UserIDs, userID)
		return json.Marshal(doc)
	})
	return err
}

// Options tune the sweeper.
type Options struct {
	// Spec is a six-field cron expression with seconds.
	Spec string
	// MinClaim is the smallest accrued amount worth a ledger write.
	MinClaim float64
	// Timeout bounds one whole sweep pass.
	Timeout time.Duration
	// Phases, when set, rederives the base mining rate from the roster
	// size at the start of every pass.
	Phases *mining.PhaseSchedule
}

// Sweeper visits every known user on a cron schedule.
type Sweeper struct {
	svc    *mining.Service
	users  UserSource
	logger *logging.Logger
	opts   Options

	cron *cron.Cron
}

// New creates a sweeper over the mining service.
func New(svc *mining.Service, users UserSource, logger *logging.Logger, opts Options) *Sweeper {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Spec == "" {
		opts.Spec = "0 10 4 * * *"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Sweeper{
		svc:    svc,
		users:  users,
		logger: logger.With("component", "sweep"),
		opts:   opts,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", "spec", s.opts.Spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sweeps every known user immediately.
func (s *Sweeper) RunOnce(ctx context.Context) {
	users, err := s.users.UserIDs(ctx)
	if err != nil {
		s.logger.Error("sweep cannot list users", "error", err)
		return
	}

	if s.opts.Phases != nil {
		n := int64(len(users))
		rate := s.opts.Phases.BaseRate(n)
		s.svc.SetBaseRate(rate)
		s.logger.Info("phase rate applied",
			"users", n, "phase", s.opts.Phases.PhaseFor(n), "rate", rate)
	}

	swept, claimed := 0, 0
	for _, userID := range users {
		if ctx.Err() != nil {
			s.logger.Warn("sweep aborted", "swept", swept, "error", ctx.Err())
			return
		}
		didClaim, err := s.sweepUser(ctx, userID)
		if err != nil {
			s.logger.Warn("sweep user failed", "user", userID, "error", err)
			continue
		}
		swept++
		if didClaim {
			claimed++
		}
	}
	s.logger.Info("sweep finished", "users", swept, "claims", claimed)
}

func (s *Sweeper) sweepUser(ctx context.Context, userID string) (bool, error) {
	sess, err := s.svc.Session(userID, sweepDevice)
	if err != nil {
		return false, err
	}
	// Release, never end: the session under sweep belongs to whatever
	// device started it, and ending it here would cut a live 24h session
	// short.
	defer s.svc.ReleaseSession(userID)

	if err := s.svc.Activity().Touch(ctx, userID); err != nil {
		return false, err
	}

	info, err := sess.Sync(ctx)
	if err != nil {
		return false, err
	}
	if !info.Active {
		return false, nil
	}

	w, err := sess.Accrue(ctx)
	if err != nil {
		return false, err
	}
	if w.AccruedUnclaimed < s.opts.MinClaim || w.AccruedUnclaimed <= 0 {
		return false, nil
	}

	res, err := sess.Claim(ctx)
	if errs.Is(err, errs.CodeNothingToClaim) || errs.Is(err, errs.CodeRateLimited) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Debug("sweep claimed", "user", userID, "amount", res.Amount)
	return true, nil
}
