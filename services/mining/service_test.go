package mining

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/base"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/services/boost"
)

func newTestService(t *testing.T) (*Service, *boost.Service, *quartz.Mock) {
	t.Helper()
	ds := docstore.NewMemoryStore()
	clk := quartz.NewMock(t)
	clk.Set(t0).MustWait(context.Background())

	boosts := boost.New(ds, clk, logging.Nop(), nil)
	svc := New(ds, boosts, clk, logging.Nop(), nil, Options{
		BaseRate:      1.0,
		SessionLength: time.Hour,
		ClaimsPerMin:  6000,
		ClaimBurst:    100,
	})
	return svc, boosts, clk
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, boosts, _ := newTestService(t)

	if _, err := svc.Session("u1", "d1"); !errs.Is(err, errs.CodeUnavailable) {
		t.Errorf("Session() before start error = %v, want unavailable", err)
	}

	if err := boosts.Start(ctx); err != nil {
		t.Fatalf("boost Start() error: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if svc.State() != base.StateRunning {
		t.Fatalf("state = %v, want running", svc.State())
	}

	sess, err := svc.Session("u1", "d1")
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	again, err := svc.Session("u1", "d2")
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if sess != again {
		t.Error("second Session() call returned a different session")
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if svc.State() != base.StateStopped {
		t.Errorf("state = %v, want stopped", svc.State())
	}
}

func TestService_SessionMinesEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, boosts, clk := newTestService(t)
	if err := boosts.Start(ctx); err != nil {
		t.Fatalf("boost Start() error: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer svc.Stop(ctx)

	sess, err := svc.Session("u1", "d1")
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if _, err := sess.StartMining(ctx); err != nil {
		t.Fatalf("StartMining() error: %v", err)
	}

	clk.Advance(30 * time.Minute).MustWait(ctx)
	res, err := sess.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if res.State != ClaimCommitted || !approx(res.NewBalance, 1800) {
		t.Errorf("claim = %+v, want committed balance 1800", res)
	}

	ledger, err := svc.Coordinator().Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if !approx(ledger.TotalBalance, 1800) {
		t.Errorf("balance = %v, want 1800", ledger.TotalBalance)
	}
}

func TestService_EndSession(t *testing.T) {
	ctx := context.Background()
	svc, boosts, _ := newTestService(t)
	if err := boosts.Start(ctx); err != nil {
		t.Fatalf("boost Start() error: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer svc.Stop(ctx)

	sess, err := svc.Session("u1", "d1")
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if err := svc.EndSession(ctx, "u1"); err != nil {
		t.Fatalf("EndSession() error: %v", err)
	}
	if _, err := sess.Accrue(ctx); !errs.Is(err, errs.CodeUnavailable) {
		t.Errorf("Accrue() after EndSession error = %v, want unavailable", err)
	}

	// A fresh session can be opened afterwards.
	if _, err := svc.Session("u1", "d1"); err != nil {
		t.Fatalf("Session() after EndSession error: %v", err)
	}
}
