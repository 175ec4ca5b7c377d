package mining

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

func newStreakFixture(t *testing.T) (*StreakTracker, *ActivityTracker, *quartz.Mock) {
	t.Helper()
	ds := docstore.NewMemoryStore()
	clk := quartz.NewMock(t)
	clk.Set(t0).MustWait(context.Background())
	return NewStreakTracker(ds, clk, logging.Nop()), NewActivityTracker(ds, clk), clk
}

func TestStreak_ConsecutiveDays(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStreakFixture(t)

	for day := 1; day <= 3; day++ {
		s, err := st.RecordMiningDay(ctx, "u1")
		if err != nil {
			t.Fatalf("RecordMiningDay() day %d error: %v", day, err)
		}
		if s.Current != day {
			t.Errorf("day %d: current = %d", day, s.Current)
		}
		clk.Advance(24 * time.Hour).MustWait(ctx)
	}
}

func TestStreak_SameDayNoOp(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStreakFixture(t)

	if _, err := st.RecordMiningDay(ctx, "u1"); err != nil {
		t.Fatalf("RecordMiningDay() error: %v", err)
	}
	clk.Advance(6 * time.Hour).MustWait(ctx)

	s, err := st.RecordMiningDay(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordMiningDay() error: %v", err)
	}
	if s.Current != 1 {
		t.Errorf("current = %d, want 1 after same-day re-record", s.Current)
	}
}

func TestStreak_MissedDayResets(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStreakFixture(t)

	for day := 0; day < 5; day++ {
		if _, err := st.RecordMiningDay(ctx, "u1"); err != nil {
			t.Fatalf("RecordMiningDay() error: %v", err)
		}
		clk.Advance(24 * time.Hour).MustWait(ctx)
	}

	// Skip a day, then mine again.
	clk.Advance(24 * time.Hour).MustWait(ctx)
	s, err := st.RecordMiningDay(ctx, "u1")
	if err != nil {
		t.Fatalf("RecordMiningDay() error: %v", err)
	}
	if s.Current != 1 {
		t.Errorf("current = %d, want reset to 1", s.Current)
	}
	if s.Longest != 5 {
		t.Errorf("longest = %d, want 5 preserved", s.Longest)
	}
}

func TestActivity_Threshold(t *testing.T) {
	ctx := context.Background()
	_, at, clk := newStreakFixture(t)

	active, err := at.IsActive(ctx, "u1")
	if err != nil {
		t.Fatalf("IsActive() error: %v", err)
	}
	if active {
		t.Error("never-seen user reported active")
	}

	if err := at.Touch(ctx, "u1"); err != nil {
		t.Fatalf("Touch() error: %v", err)
	}
	if active, _ = at.IsActive(ctx, "u1"); !active {
		t.Error("freshly touched user reported inactive")
	}

	clk.Advance(72*time.Hour + time.Minute).MustWait(ctx)
	if active, _ = at.IsActive(ctx, "u1"); active {
		t.Error("user active past the three-day threshold")
	}

	last, err := at.LastActive(ctx, "u1")
	if err != nil {
		t.Fatalf("LastActive() error: %v", err)
	}
	if !last.Equal(t0) {
		t.Errorf("last active = %v, want %v", last, t0)
	}
}
