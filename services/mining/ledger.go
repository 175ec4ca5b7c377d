package mining

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

// LedgerMirror keeps a read-only local copy of one user's remote ledger,
// refreshed by subscription. It never writes; the transactional claim path
// is the only writer.
type LedgerMirror struct {
	userID string
	store  docstore.Store
	logger *logging.Logger

	mu      sync.RWMutex
	ledger  Ledger
	haveDoc bool
	corrupt error

	cancel func()
	done   chan struct{}
}

// NewLedgerMirror creates a mirror for one user. Call Start to begin
// following the remote document.
func NewLedgerMirror(store docstore.Store, userID string, logger *logging.Logger) *LedgerMirror {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LedgerMirror{
		userID: userID,
		store:  store,
		logger: logger.With("user", userID),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the remote ledger and follows it until Stop or the
// context ends.
func (m *LedgerMirror) Start(ctx context.Context) error {
	sub, err := m.store.Subscribe(ctx, ledgerPath(m.userID))
	if err != nil {
		return err
	}
	m.cancel = sub.Cancel

	go func() {
		defer close(m.done)
		for doc := range sub.C {
			m.apply(doc)
		}
	}()
	return nil
}

// Stop cancels the subscription and waits for the follower to drain. A
// mirror that was never started stops trivially.
func (m *LedgerMirror) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// apply folds one snapshot into the mirror. A document that fails the
// shape probes is recorded as corrupt and the last good value is kept;
// corruption is surfaced on the next read, never clamped away.
func (m *LedgerMirror) apply(doc []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(doc) == 0 {
		// Document deleted; an absent ledger is an empty one.
		m.ledger = Ledger{}
		m.haveDoc = false
		m.corrupt = nil
		return
	}

	if err := probeLedger(doc); err != nil {
		m.logger.Error("ledger snapshot failed validation", "error", err)
		m.corrupt = err
		return
	}

	m.ledger = Ledger{
		TotalBalance:   gjson.GetBytes(doc, "totalBalance").Float(),
		PendingClaimID: gjson.GetBytes(doc, "pendingClaimId").String(),
	}
	if ms := gjson.GetBytes(doc, "lastClaimTime").Int(); ms != 0 {
		m.ledger.LastClaimTime = time.UnixMilli(ms).UTC()
	}
	m.haveDoc = true
	m.corrupt = nil
}

func probeLedger(doc []byte) error {
	if !gjson.ValidBytes(doc) {
		return errs.New(errs.CodeCorruption, "ledger document is not valid JSON")
	}
	balance := gjson.GetBytes(doc, "totalBalance")
	if balance.Exists() && balance.Type != gjson.Number {
		return errs.Newf(errs.CodeCorruption, "totalBalance has type %s", balance.Type)
	}
	if balance.Float() < 0 {
		return errs.Newf(errs.CodeCorruption, "negative ledger balance %v", balance.Float())
	}
	return nil
}

// Ledger returns the last good snapshot. It fails if the most recent
// remote snapshot was corrupt.
func (m *LedgerMirror) Ledger() (Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.corrupt != nil {
		return Ledger{}, m.corrupt
	}
	return m.ledger, nil
}

// Balance returns the mirrored balance, zero when no document has arrived
// yet.
func (m *LedgerMirror) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.TotalBalance
}
