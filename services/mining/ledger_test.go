package mining

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

func TestLedgerMirror_FollowsRemote(t *testing.T) {
	ctx := context.Background()
	ds := docstore.NewMemoryStore()
	setLedger(t, ds, "u1", ledgerDoc{TotalBalance: 42, LastClaimTime: t0.UnixMilli()})

	m := NewLedgerMirror(ds, "u1", logging.Nop())
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Balance() == 42
	}, time.Second, 5*time.Millisecond, "initial snapshot never arrived")

	ledger, err := m.Ledger()
	require.NoError(t, err)
	require.Equal(t, 42.0, ledger.TotalBalance)
	require.True(t, ledger.LastClaimTime.Equal(t0), "lastClaimTime = %v", ledger.LastClaimTime)

	setLedger(t, ds, "u1", ledgerDoc{TotalBalance: 50, PendingClaimID: "tok-1"})
	require.Eventually(t, func() bool {
		return m.Balance() == 50
	}, time.Second, 5*time.Millisecond, "update never arrived")

	ledger, err = m.Ledger()
	require.NoError(t, err)
	require.Equal(t, "tok-1", ledger.PendingClaimID)
}

func TestLedgerMirror_SurfacesCorruption(t *testing.T) {
	ctx := context.Background()
	ds := docstore.NewMemoryStore()
	setLedger(t, ds, "u1", ledgerDoc{TotalBalance: 10})

	m := NewLedgerMirror(ds, "u1", logging.Nop())
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Balance() == 10
	}, time.Second, 5*time.Millisecond)

	// A negative balance from the remote store is an economic bug, not a
	// value to clamp. The mirror keeps the last good copy and errors.
	setLedger(t, ds, "u1", ledgerDoc{TotalBalance: -3})
	require.Eventually(t, func() bool {
		_, err := m.Ledger()
		return err != nil
	}, time.Second, 5*time.Millisecond, "corruption never surfaced")

	_, err := m.Ledger()
	require.True(t, errs.Is(err, errs.CodeCorruption), "err = %v", err)
	require.Equal(t, 10.0, m.Balance(), "last good balance discarded")
}

func TestLedgerMirror_StopWithoutStart(t *testing.T) {
	m := NewLedgerMirror(docstore.NewMemoryStore(), "u1", logging.Nop())
	m.Stop()
}

func TestPhaseSchedule(t *testing.T) {
	p := NewPhaseSchedule()

	cases := []struct {
		users int64
		phase Phase
		rate  float64
	}{
		{0, PhasePioneer, 2.0},
		{99_999, PhasePioneer, 2.0},
		{100_000, PhaseContributor, 1.0},
		{999_999, PhaseContributor, 1.0},
		{1_000_000, PhaseAmbassador, 0.5},
		{10_000_000, PhaseNode, 0.25},
		{50_000_000, PhaseNode, 0.25},
	}
	for _, tc := range cases {
		if got := p.PhaseFor(tc.users); got != tc.phase {
			t.Errorf("PhaseFor(%d) = %v, want %v", tc.users, got, tc.phase)
		}
		if got := p.HourlyRate(tc.users); got != tc.rate {
			t.Errorf("HourlyRate(%d) = %v, want %v", tc.users, got, tc.rate)
		}
	}

	if got := p.BaseRate(0); !approx(got, 2.0/3600.0) {
		t.Errorf("BaseRate(0) = %v, want %v", got, 2.0/3600.0)
	}
}
