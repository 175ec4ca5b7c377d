package mining

import (
	"fmt"
	"time"
)

// AccrualWindow is the per-user running tally of units earned since the
// last claim. It lives in memory, owned by the user's session; only a
// confirmed claim resets it. LastClaimTime marks where the unclaimed span
// begins: the last local claim, or the first valuation for a window that
// has never claimed.
type AccrualWindow struct {
	AccruedUnclaimed  float64
	LastValuationTime time.Time
	LastClaimTime     time.Time
}

// ClaimState tracks a claim attempt through its lifecycle.
type ClaimState string

const (
	ClaimIdle       ClaimState = "idle"
	ClaimComputing  ClaimState = "computing"
	ClaimSubmitting ClaimState = "submitting"
	ClaimCommitted  ClaimState = "committed"
	ClaimRejected   ClaimState = "rejected"
	ClaimFailed     ClaimState = "failed"
)

// ClaimResult reports a finished claim. Rejected means a prior attempt
// with the same token already landed; the amount was credited exactly once
// either way.
type ClaimResult struct {
	State      ClaimState
	Token      string
	Amount     float64
	NewBalance float64
}

// Ledger is the shared per-user balance record. The remote copy is the
// only authority; local instances are read-only mirrors.
type Ledger struct {
	TotalBalance   float64
	PendingClaimID string
	LastClaimTime  time.Time
}

// SessionInfo is the persisted state of a mining session, shared across a
// user's devices.
type SessionInfo struct {
	Active     bool
	StartTime  time.Time
	DeviceID   string
	LastUpdate time.Time
}

// Expired reports whether the session's mining window has run out.
func (s SessionInfo) Expired(at time.Time, length time.Duration) bool {
	return !at.Before(s.StartTime.Add(length))
}

// End returns the instant the session stops accruing.
func (s SessionInfo) End(length time.Duration) time.Time {
	return s.StartTime.Add(length)
}

// Streak is the user's run of consecutive mining days.
type Streak struct {
	Current       int
	Longest       int
	LastMiningDay string
}

// ================================================================
// Document paths and persisted forms
// ================================================================

func ledgerPath(userID string) string   { return fmt.Sprintf("users/%s/ledger", userID) }
func sessionPath(userID string) string  { return fmt.Sprintf("users/%s/mining", userID) }
func activityPath(userID string) string { return fmt.Sprintf("users/%s/activity", userID) }
func streakPath(userID string) string   { return fmt.Sprintf("users/%s/streak", userID) }

type ledgerDoc struct {
	TotalBalance   float64 `json:"totalBalance"`
	PendingClaimID string  `json:"pendingClaimId,omitempty"`
	LastClaimTime  int64   `json:"lastClaimTime,omitempty"`
}

func (d ledgerDoc) toLedger() Ledger {
	l := Ledger{
		TotalBalance:   d.TotalBalance,
		PendingClaimID: d.PendingClaimID,
	}
	if d.LastClaimTime != 0 {
		l.LastClaimTime = time.UnixMilli(d.LastClaimTime).UTC()
	}
	return l
}

type sessionDoc struct {
	Active     bool   `json:"active"`
	StartTime  int64  `json:"startTime"`
	DeviceID   string `json:"deviceId"`
	LastUpdate int64  `json:"lastUpdate"`
}

func (d sessionDoc) toInfo() SessionInfo {
	return SessionInfo{
		Active:     d.Active,
		StartTime:  time.UnixMilli(d.StartTime).UTC(),
		DeviceID:   d.DeviceID,
		LastUpdate: time.UnixMilli(d.LastUpdate).UTC(),
	}
}

func fromInfo(s SessionInfo) sessionDoc {
	return sessionDoc{
		Active:     s.Active,
		StartTime:  s.StartTime.UnixMilli(),
		DeviceID:   s.DeviceID,
		LastUpdate: s.LastUpdate.UnixMilli(),
	}
}

type activityDoc struct {
	LastActive int64 `json:"lastActive"`
}

type streakDoc struct {
	CurrentStreak int    `json:"currentStreak"`
	LongestStreak int    `json:"longestStreak"`
	LastMiningDay string `json:"lastMiningDay,omitempty"`
}
