package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

const dayFormat = "2006-01-02"

// StreakTracker maintains runs of consecutive mining days. A day with no
// mining breaks the run back to one.
type StreakTracker struct {
	store  docstore.Store
	clock  quartz.Clock
	logger *logging.Logger
}

// NewStreakTracker creates a streak tracker.
func NewStreakTracker(store docstore.Store, clock quartz.Clock, logger *logging.Logger) *StreakTracker {
	if logger == nil {
		logger = logging.Nop()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &StreakTracker{store: store, clock: clock, logger: logger}
}

// RecordMiningDay marks today (UTC) as mined and returns the updated
// streak. Recording the same day twice is a no-op; a gap of more than one
// day resets the run.
func (t *StreakTracker) RecordMiningDay(ctx context.Context, userID string) (Streak, error) {
	cur, err := t.Get(ctx, userID)
	if err != nil {
		return Streak{}, err
	}

	today := t.clock.Now().UTC().Format(dayFormat)
	if cur.LastMiningDay == today {
		return cur, nil
	}

	yesterday := t.clock.Now().UTC().AddDate(0, 0, -1).Format(dayFormat)
	if cur.LastMiningDay == yesterday {
		cur.Current++
	} else {
		cur.Current = 1
	}
	if cur.Current > cur.Longest {
		cur.Longest = cur.Current
	}
	cur.LastMiningDay = today

	doc := streakDoc{
		CurrentStreak: cur.Current,
		LongestStreak: cur.Longest,
		LastMiningDay: cur.LastMiningDay,
	}
	if err := t.store.Set(ctx, streakPath(userID), doc); err != nil {
		return Streak{}, fmt.Errorf("persist streak: %w", err)
	}

	t.logger.Debug("streak recorded", "user", userID, "current", cur.Current, "longest", cur.Longest)
	return cur, nil
}

// Get returns the user's persisted streak, zero when none exists.
func (t *StreakTracker) Get(ctx context.Context, userID string) (Streak, error) {
	raw, err := t.store.Get(ctx, streakPath(userID))
	if docstore.IsNotFound(err) {
		return Streak{}, nil
	}
	if err != nil {
		return Streak{}, err
	}
	var doc streakDoc
	if err := docstore.Decode(raw, &doc); err != nil {
		return Streak{}, err
	}
	return Streak{
		Current:       doc.CurrentStreak,
		Longest:       doc.LongestStreak,
		LastMiningDay: doc.LastMiningDay,
	}, nil
}

// activityThreshold is how long a user may go quiet before circle boosts
// stop counting them as active.
const activityThreshold = 72 * time.Hour

// ActivityTracker records last-active timestamps. Referral-circle boosts
// only count members seen within the activity threshold, and the daily
// sweep refreshes the timestamp for everyone it touches.
type ActivityTracker struct {
	store docstore.Store
	clock quartz.Clock
}

// NewActivityTracker creates an activity tracker.
func NewActivityTracker(store docstore.Store, clock quartz.Clock) *ActivityTracker {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &ActivityTracker{store: store, clock: clock}
}

// Touch records the user as active now.
func (t *ActivityTracker) Touch(ctx context.Context, userID string) error {
	doc := activityDoc{LastActive: t.clock.Now().UnixMilli()}
	if err := t.store.Set(ctx, activityPath(userID), doc); err != nil {
		return fmt.Errorf("persist activity: %w", err)
	}
	return nil
}

// LastActive returns the user's last recorded activity, zero when none.
func (t *ActivityTracker) LastActive(ctx context.Context, userID string) (time.Time, error) {
	raw, err := t.store.Get(ctx, activityPath(userID))
	if docstore.IsNotFound(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var doc activityDoc
	if err := docstore.Decode(raw, &doc); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(doc.LastActive).UTC(), nil
}

// IsActive reports whether the user was seen within the activity
// threshold.
func (t *ActivityTracker) IsActive(ctx context.Context, userID string) (bool, error) {
	last, err := t.LastActive(ctx, userID)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return false, nil
	}
	return t.clock.Now().Sub(last) <= activityThreshold, nil
}
