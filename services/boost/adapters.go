package boost

import (
	"context"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/metrics"
)

// RewardListener is the only ad-SDK signal that authorizes an ad-watch
// grant. Partial or ambiguous ad confirmation must not reach it.
type RewardListener interface {
	OnRewardEarned(ctx context.Context, userID string) bool
}

// Adapters produce grants from qualifying events, one entry point per
// source. No adapter knows about the others; they only share the store.
type Adapters struct {
	store   *GrantStore
	clock   quartz.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics

	// adWatchDuration is how long a rewarded ad doubles the rate. By
	// default it matches the mining session length.
	adWatchDuration time.Duration
}

// NewAdapters creates the adapter set. metrics may be nil.
func NewAdapters(store *GrantStore, clock quartz.Clock, logger *logging.Logger, m *metrics.Metrics) *Adapters {
	if logger == nil {
		logger = logging.Nop()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Adapters{
		store:           store,
		clock:           clock,
		logger:          logger,
		metrics:         m,
		adWatchDuration: 24 * time.Hour,
	}
}

// SetAdWatchDuration overrides the ad-watch boost lifetime.
func (a *Adapters) SetAdWatchDuration(d time.Duration) {
	a.adWatchDuration = d
}

// grant builds, validates and publishes a grant. duration == nil denotes a
// permanent grant.
func (a *Adapters) grant(ctx context.Context, userID string, source Source, multiplier float64, duration *time.Duration, scope Scope) (Grant, error) {
	g := Grant{
		Source:     source,
		Multiplier: multiplier,
		StartTime:  a.clock.Now(),
		Scope:      scope,
	}
	if duration != nil {
		if *duration <= 0 {
			return Grant{}, errs.Newf(errs.CodeValidation, "non-positive duration: %v", *duration)
		}
		end := g.StartTime.Add(*duration)
		g.EndTime = &end
	}

	if err := a.store.Put(ctx, userID, g); err != nil {
		return Grant{}, err
	}
	if a.metrics != nil {
		a.metrics.GrantsIssued.WithLabelValues(string(source)).Inc()
	}
	return g, nil
}

// OnRewardEarned handles a completed rewarded ad. Failures are absorbed:
// the caller only learns whether the boost took effect.
func (a *Adapters) OnRewardEarned(ctx context.Context, userID string) bool {
	d := a.adWatchDuration
	if _, err := a.grant(ctx, userID, SourceAdWatch, AdWatchMultiplier, &d, ScopeMining); err != nil {
		a.logger.Warn("ad watch grant failed", "user", userID, "error", err)
		return false
	}
	return true
}

// SetCircleMembers refreshes the referral-circle grant from the current
// count of active members. An empty circle clears the grant.
func (a *Adapters) SetCircleMembers(ctx context.Context, userID string, activeMembers int) error {
	m := CircleMultiplier(activeMembers)
	if m <= 1.0 {
		return a.store.Clear(ctx, userID, SourceReferralCircle)
	}
	_, err := a.grant(ctx, userID, SourceReferralCircle, m, nil, ScopeMining)
	return err
}

// SetVerificationTier publishes the permanent grant for a verification
// tier. The store keeps tiers monotonic: a re-publication of a lower tier
// is ignored.
func (a *Adapters) SetVerificationTier(ctx context.Context, userID string, tier VerificationTier) error {
	if tier == TierNone {
		return nil
	}
	_, err := a.grant(ctx, userID, SourceVerificationTier, tier.Multiplier(), nil, ScopeMining)
	return err
}

// RecordStreak refreshes the streak grant for a run of consecutive mining
// days. The grant expires after two days, so a broken streak lapses on its
// own.
func (a *Adapters) RecordStreak(ctx context.Context, userID string, days int) error {
	m := StreakMultiplier(days)
	if m <= 1.0 {
		return nil
	}
	d := 48 * time.Hour
	_, err := a.grant(ctx, userID, SourceStreak, m, &d, ScopeMining)
	return err
}

// ActivateEvent publishes a limited-time event grant (multiplier rush,
// social follow, daily check-in and the like).
func (a *Adapters) ActivateEvent(ctx context.Context, userID string, multiplier float64, duration time.Duration) error {
	_, err := a.grant(ctx, userID, SourceEvent, multiplier, &duration, ScopeMining)
	return err
}

// SubmitLuckyGuess resolves one lucky-number guess against the drawn
// number and grants the matching boost for 24 hours. It returns the won
// multiplier; 1.0 means no win and no grant.
func (a *Adapters) SubmitLuckyGuess(ctx context.Context, userID string, guess, drawn int) (float64, error) {
	m := LuckyMultiplier(guess, drawn)
	if m <= 1.0 {
		return 1.0, nil
	}
	d := DailyBoostDuration
	if _, err := a.grant(ctx, userID, SourceLuckyNumber, m, &d, ScopeMining); err != nil {
		return 1.0, err
	}
	return m, nil
}

// SetAchievementBonus publishes the permanent grant for the user's total
// achievement bonus (e.g. 0.15 for +15%).
func (a *Adapters) SetAchievementBonus(ctx context.Context, userID string, bonus float64) error {
	if bonus <= 0 {
		return a.store.Clear(ctx, userID, SourceAchievement)
	}
	_, err := a.grant(ctx, userID, SourceAchievement, 1.0+bonus, nil, ScopeAll)
	return err
}

// GrantManual publishes an operator grant. duration == nil is permanent.
func (a *Adapters) GrantManual(ctx context.Context, userID string, multiplier float64, duration *time.Duration, scope Scope) (Grant, error) {
	return a.grant(ctx, userID, SourceManual, multiplier, duration, scope)
}

var _ RewardListener = (*Adapters)(nil)
