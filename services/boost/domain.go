// Package boost tracks multiplier grants and composes them into an
// effective earn rate multiplier.
package boost

import (
	"time"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
)

// Source identifies the origin of a boost grant. Grants from distinct
// sources stack; a source replaces its own prior grant.
type Source string

const (
	SourceAdWatch          Source = "ad_watch"
	SourceReferralCircle   Source = "referral_circle"
	SourceVerificationTier Source = "verification_tier"
	SourceStreak           Source = "streak"
	SourceEvent            Source = "event"
	SourceLuckyNumber      Source = "lucky_number"
	SourceAchievement      Source = "achievement"
	SourceManual           Source = "manual"
)

// Sources lists every known source, in stable order. Used to enumerate
// per-source documents under a user's boosts path.
var Sources = []Source{
	SourceAdWatch,
	SourceReferralCircle,
	SourceVerificationTier,
	SourceStreak,
	SourceEvent,
	SourceLuckyNumber,
	SourceAchievement,
	SourceManual,
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Scope selects which rate stream a grant amplifies.
type Scope string

const (
	ScopeMining   Scope = "mining"
	ScopeReferral Scope = "referral"
	ScopeSpin     Scope = "spin"
	ScopeAll      Scope = "all"
)

// Valid reports whether sc is a known scope.
func (sc Scope) Valid() bool {
	switch sc {
	case ScopeMining, ScopeReferral, ScopeSpin, ScopeAll:
		return true
	}
	return false
}

// Grant is one unit of temporary or permanent rate amplification.
// EndTime == nil encodes a permanent grant.
type Grant struct {
	Source     Source
	Multiplier float64
	StartTime  time.Time
	EndTime    *time.Time
	Scope      Scope
}

// Validate rejects malformed grants before they reach the store.
func (g Grant) Validate() error {
	if !g.Source.Valid() {
		return errs.Newf(errs.CodeValidation, "unknown source: %s", g.Source)
	}
	if !g.Scope.Valid() {
		return errs.Newf(errs.CodeValidation, "unknown scope: %s", g.Scope)
	}
	if g.Multiplier < 1.0 {
		return errs.Newf(errs.CodeValidation, "multiplier %v below 1.0, a grant never decreases the rate", g.Multiplier)
	}
	if g.StartTime.IsZero() {
		return errs.New(errs.CodeValidation, "grant missing start time")
	}
	if g.EndTime != nil && !g.EndTime.After(g.StartTime) {
		return errs.New(errs.CodeValidation, "grant end time not after start time")
	}
	return nil
}

// Permanent reports whether the grant never expires.
func (g Grant) Permanent() bool {
	return g.EndTime == nil
}

// ActiveAt reports whether the grant contributes at the given instant.
// A grant is active on [StartTime, EndTime); it is inert once at >= EndTime.
func (g Grant) ActiveAt(at time.Time) bool {
	if at.Before(g.StartTime) {
		return false
	}
	if g.EndTime != nil && !at.Before(*g.EndTime) {
		return false
	}
	return true
}

// AppliesTo reports whether the grant amplifies the given rate stream.
func (g Grant) AppliesTo(scope Scope) bool {
	return g.Scope == ScopeAll || g.Scope == scope || scope == ScopeAll
}

// Bonus is the grant's contribution under the additive composition policy.
func (g Grant) Bonus() float64 {
	return g.Multiplier - 1.0
}

// Equal reports whether two grants are the same grant. Used for idempotent
// re-publication: issuing an identical grant twice is a no-op.
func (g Grant) Equal(other Grant) bool {
	if g.Source != other.Source || g.Scope != other.Scope || g.Multiplier != other.Multiplier {
		return false
	}
	if !g.StartTime.Equal(other.StartTime) {
		return false
	}
	if (g.EndTime == nil) != (other.EndTime == nil) {
		return false
	}
	if g.EndTime != nil && !g.EndTime.Equal(*other.EndTime) {
		return false
	}
	return true
}

// =============================================================================
// Boost catalog
// =============================================================================

// Multipliers and durations for the stock boost sources.
const (
	AdWatchMultiplier      = 2.0
	EventRushMultiplier    = 1.5
	SocialFollowMultiplier = 1.2
	DailyCheckinMultiplier = 1.1

	// Verification tier bonuses, cumulative.
	PhoneVerifyBonus = 0.05
	EmailVerifyBonus = 0.05
	FullKYCBonus     = 0.10

	// Referral circle: bonus per active member, capped at the circle size.
	CircleMemberBonus = 0.10
	CircleMaxMembers  = 5

	// Lucky number boosts by guess distance.
	LuckyExactMultiplier = 3.0
	LuckyCloseMultiplier = 1.5
	LuckyNearMultiplier  = 1.2

	// DailyBoostDuration bounds the daily boosts (lucky number, check-in,
	// social follow).
	DailyBoostDuration = 24 * time.Hour
)

// VerificationTier is a KYC verification level. Tiers are ordered; a user's
// tier only moves up.
type VerificationTier int

const (
	TierNone VerificationTier = iota
	TierPhone
	TierEmail
	TierFull
)

// Multiplier returns the cumulative mining multiplier for the tier.
func (t VerificationTier) Multiplier() float64 {
	switch t {
	case TierPhone:
		return 1.0 + PhoneVerifyBonus
	case TierEmail:
		return 1.0 + PhoneVerifyBonus + EmailVerifyBonus
	case TierFull:
		return 1.0 + PhoneVerifyBonus + EmailVerifyBonus + FullKYCBonus
	}
	return 1.0
}

func (t VerificationTier) String() string {
	switch t {
	case TierPhone:
		return "phone"
	case TierEmail:
		return "email"
	case TierFull:
		return "full"
	}
	return "none"
}

// streakMilestone maps a run of consecutive mining days to its multiplier.
type streakMilestone struct {
	days       int
	multiplier float64
	title      string
}

var streakMilestones = []streakMilestone{
	{1, 1.0, "Seedling"},
	{3, 1.1, "Sprout"},
	{7, 1.25, "Sapling"},
	{14, 1.4, "Tree"},
	{21, 1.5, "Mountain"},
	{30, 1.75, "Star Miner"},
	{45, 1.9, "Super Star"},
	{60, 2.0, "Mining Legend"},
	{90, 2.25, "Champion"},
	{180, 2.5, "Mining King"},
	{365, 3.0, "Diamond Miner"},
}

// StreakMultiplier returns the multiplier for a streak of the given length.
func StreakMultiplier(days int) float64 {
	m := 1.0
	for _, ms := range streakMilestones {
		if days >= ms.days {
			m = ms.multiplier
		}
	}
	return m
}

// StreakTitle returns the milestone title for a streak of the given length.
func StreakTitle(days int) string {
	title := streakMilestones[0].title
	for _, ms := range streakMilestones {
		if days >= ms.days {
			title = ms.title
		}
	}
	return title
}

// CircleMultiplier returns the referral-circle multiplier for the given
// number of active members.
func CircleMultiplier(activeMembers int) float64 {
	if activeMembers < 0 {
		activeMembers = 0
	}
	if activeMembers > CircleMaxMembers {
		activeMembers = CircleMaxMembers
	}
	return 1.0 + float64(activeMembers)*CircleMemberBonus
}

// LuckyMultiplier returns the boost multiplier for a lucky-number guess, or
// 1.0 when the guess was too far off to win anything.
func LuckyMultiplier(guess, drawn int) float64 {
	diff := guess - drawn
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 0:
		return LuckyExactMultiplier
	case 1:
		return LuckyCloseMultiplier
	case 2:
		return LuckyNearMultiplier
	}
	return 1.0
}
