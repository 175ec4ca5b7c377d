package mining

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
)

// errDuplicateToken aborts the transactional update when the ledger
// already carries this claim's token. It never leaves the coordinator.
var errDuplicateToken = errs.New(errs.CodeConflict, "claim token already applied")

// errWindowClaimed aborts the update when a claim from another device
// already covers the entire local window.
var errWindowClaimed = errs.New(errs.CodeNothingToClaim, "window already claimed from another device")

// Coordinator moves accrued units into the shared ledger. Every balance
// mutation goes through one transactional update; a fresh idempotency
// token guards each claim so a retry after a lost response cannot credit
// twice.
type Coordinator struct {
	store   docstore.Store
	clock   quartz.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	// pending holds the token of a claim whose outcome is unknown. A
	// retry after a transient failure reuses it so the remote guard can
	// detect an attempt that actually landed.
	pending map[string]string
}

// NewCoordinator creates a claim coordinator. perMinute/burst bound how
// often a single user may claim; metrics may be nil.
func NewCoordinator(store docstore.Store, clock quartz.Clock, logger *logging.Logger, m *metrics.Metrics, perMinute float64, burst int) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	if perMinute <= 0 {
		perMinute = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &Coordinator{
		store:    store,
		clock:    clock,
		logger:   logger,
		metrics:  m,
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		pending:  make(map[string]string),
	}
}

func (c *Coordinator) limiterFor(userID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(c.limit, c.burst)
		c.limiters[userID] = lim
	}
	return lim
}

func (c *Coordinator) takeToken(userID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.pending[userID]; ok {
		return tok
	}
	tok := uuid.NewString()
	c.pending[userID] = tok
	return tok
}

func (c *Coordinator) clearToken(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, userID)
}

// Claim credits the window's accrued amount to the remote ledger. The
// local window is reset only once the remote outcome is known: Committed,
// or Rejected because an earlier attempt with the same token already
// landed. On a retryable failure the window and the token are kept so the
// caller can try again without losing anything.
func (c *Coordinator) Claim(ctx context.Context, userID string, w *AccrualWindow) (ClaimResult, error) {
	now := c.clock.Now()

	// The limiter runs on the injected clock, not the wall clock, so it
	// stays coherent with the timestamps written to the ledger.
	if !c.limiterFor(userID).AllowN(now, 1) {
		return ClaimResult{State: ClaimIdle}, errs.New(errs.CodeRateLimited, "claim rate limit exceeded")
	}

	amount := w.AccruedUnclaimed
	if amount <= 0 {
		return ClaimResult{State: ClaimIdle}, errs.New(errs.CodeNothingToClaim, "nothing accrued to claim")
	}

	token := c.takeToken(userID)
	started := now

	c.logger.Debug("submitting claim", "user", userID, "token", token, "amount", amount)

	credit := amount
	committed, err := c.store.TransactionalUpdate(ctx, ledgerPath(userID), func(current json.RawMessage) (json.RawMessage, error) {
		var doc ledgerDoc
		if current != nil {
			if uerr := json.Unmarshal(current, &doc); uerr != nil {
				return nil, errs.Wrap(errs.CodeCorruption, "malformed ledger document", uerr)
			}
		}
		if doc.PendingClaimID == token {
			return nil, errDuplicateToken
		}
		if doc.TotalBalance < 0 {
			return nil, errs.Newf(errs.CodeCorruption, "negative ledger balance %v", doc.TotalBalance)
		}

		// Another device may have claimed part of this window's span
		// already. The ledger's lastClaimTime is the authority: only the
		// part of the window accrued after it is still owed, pro rata
		// over the window's duration.
		credit = amount
		if doc.LastClaimTime != 0 && !w.LastClaimTime.IsZero() {
			cut := time.UnixMilli(doc.LastClaimTime).UTC()
			from, to := w.LastClaimTime, w.LastValuationTime
			if cut.After(from) {
				if !cut.Before(to) {
					return nil, errWindowClaimed
				}
				credit = amount * to.Sub(cut).Seconds() / to.Sub(from).Seconds()
			}
		}

		doc.TotalBalance += credit
		doc.PendingClaimID = token
		if ms := now.UnixMilli(); ms > doc.LastClaimTime {
			doc.LastClaimTime = ms
		}
		return json.Marshal(doc)
	})

	if c.metrics != nil {
		c.metrics.ClaimDuration.Observe(c.clock.Now().Sub(started).Seconds())
	}

	switch {
	case err == nil:
		c.clearToken(userID)
		c.resetWindow(w, now)
		var doc ledgerDoc
		if uerr := json.Unmarshal(committed, &doc); uerr != nil {
			return ClaimResult{}, errs.Wrap(errs.CodeCorruption, "malformed committed ledger", uerr)
		}
		if c.metrics != nil {
			c.metrics.ClaimsCommitted.Inc()
			c.metrics.ClaimedUnits.Add(credit)
		}
		c.logger.Info("claim committed",
			"user", userID, "token", token, "amount", credit, "balance", doc.TotalBalance)
		return ClaimResult{State: ClaimCommitted, Token: token, Amount: credit, NewBalance: doc.TotalBalance}, nil

	case errors.Is(err, errWindowClaimed):
		// Everything in the window was paid out by another device's
		// claim. Drop it and start valuing past that claim.
		c.clearToken(userID)
		c.resetWindow(w, now)
		if ledger, gerr := c.Balance(ctx, userID); gerr == nil && ledger.LastClaimTime.After(w.LastValuationTime) {
			w.LastValuationTime = ledger.LastClaimTime
			w.LastClaimTime = ledger.LastClaimTime
		}
		c.logger.Info("claim superseded by another device", "user", userID, "token", token)
		return ClaimResult{State: ClaimIdle, Token: token}, err

	case errors.Is(err, errDuplicateToken):
		// A prior attempt with this token landed; the credit is already
		// on the ledger.
		c.clearToken(userID)
		c.resetWindow(w, now)
		if c.metrics != nil {
			c.metrics.ClaimsRejected.Inc()
		}
		res := ClaimResult{State: ClaimRejected, Token: token, Amount: amount}
		if raw, gerr := c.store.Get(ctx, ledgerPath(userID)); gerr == nil {
			var doc ledgerDoc
			if json.Unmarshal(raw, &doc) == nil {
				res.NewBalance = doc.TotalBalance
			}
		}
		c.logger.Info("claim already applied", "user", userID, "token", token)
		return res, nil

	default:
		// Window and token stay put; a retry with the same token is safe.
		if c.metrics != nil {
			c.metrics.ClaimsFailed.Inc()
		}
		c.logger.Warn("claim failed", "user", userID, "token", token, "error", err)
		return ClaimResult{State: ClaimFailed, Token: token}, err
	}
}

func (c *Coordinator) resetWindow(w *AccrualWindow, now time.Time) {
	w.AccruedUnclaimed = 0
	w.LastClaimTime = now
	if now.After(w.LastValuationTime) {
		w.LastValuationTime = now
	}
}

// Balance reads the current ledger. A missing document is an empty ledger,
// not an error.
func (c *Coordinator) Balance(ctx context.Context, userID string) (Ledger, error) {
	raw, err := c.store.Get(ctx, ledgerPath(userID))
	if docstore.IsNotFound(err) {
		return Ledger{}, nil
	}
	if err != nil {
		return Ledger{}, err
	}
	var doc ledgerDoc
	if err := docstore.Decode(raw, &doc); err != nil {
		return Ledger{}, err
	}
	if doc.TotalBalance < 0 {
		return Ledger{}, errs.Newf(errs.CodeCorruption, "negative ledger balance %v", doc.TotalBalance)
	}
	return doc.toLedger(), nil
}
