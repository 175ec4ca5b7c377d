package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
)

// MemoryStore is an in-process Store used by tests and single-node runs.
// Writes fan out to subscribers synchronously under the store lock, so a
// subscriber created before a write always observes it.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]json.RawMessage
	subs  map[string]map[int]chan json.RawMessage
	next  int
	ready bool
}

// NewMemoryStore creates an empty in-memory store, ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]json.RawMessage),
		subs:  make(map[string]map[int]chan json.RawMessage),
		ready: true,
	}
}

// Initialize re-arms a store that was shut down.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

// Shutdown drops all data and subscribers.
func (s *MemoryStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subs := range s.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
	}
	s.data = make(map[string]json.RawMessage)
	s.ready = false
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Health checks store readiness.
func (s *MemoryStore) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return errs.New(errs.CodeUnavailable, "store not ready")
	}
	return nil
}

// Get returns the document at path.
func (s *MemoryStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, errs.New(errs.CodeUnavailable, "store not ready")
	}
	doc, ok := s.data[path]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "document not found: %s", path)
	}
	return doc, nil
}

// Set writes the document at path.
func (s *MemoryStore) Set(ctx context.Context, path string, value any) error {
	doc, err := Encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return errs.New(errs.CodeUnavailable, "store not ready")
	}
	s.data[path] = doc
	s.notifyLocked(path, doc)
	return nil
}

// Delete removes the document at path.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return errs.New(errs.CodeUnavailable, "store not ready")
	}
	delete(s.data, path)
	s.notifyLocked(path, nil)
	return nil
}

// TransactionalUpdate applies fn under the store lock, which makes the
// read-modify-write atomic with respect to every other writer.
func (s *MemoryStore) TransactionalUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, errs.New(errs.CodeUnavailable, "store not ready")
	}

	next, err := fn(s.data[path])
	if err != nil {
		return nil, err
	}
	s.data[path] = next
	s.notifyLocked(path, next)
	return next, nil
}

// Subscribe streams snapshots of the document at path, current value first.
func (s *MemoryStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, errs.New(errs.CodeUnavailable, "store not ready")
	}

	ch := make(chan json.RawMessage, 16)
	id := s.next
	s.next++

	if s.subs[path] == nil {
		s.subs[path] = make(map[int]chan json.RawMessage)
	}
	s.subs[path][id] = ch

	// Initial snapshot.
	if doc, ok := s.data[path]; ok {
		ch <- doc
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[path][id]; ok {
			close(sub)
			delete(s.subs[path], id)
		}
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return &Subscription{C: ch, Cancel: cancel}, nil
}

func (s *MemoryStore) notifyLocked(path string, doc json.RawMessage) {
	for _, ch := range s.subs[path] {
		select {
		case ch <- doc:
		default:
			// Slow subscriber; drop rather than block writers.
		}
	}
}

var _ Store = (*MemoryStore)(nil)

// FlakyStore wraps a Store and fails the next n mutating calls with a
// transient error. Tests use it to exercise retry paths.
type FlakyStore struct {
	Store
	mu        sync.Mutex
	FailNext  int
	failCount int
}

// NewFlakyStore wraps inner, failing the next failures mutations.
func NewFlakyStore(inner Store, failures int) *FlakyStore {
	return &FlakyStore{Store: inner, FailNext: failures}
}

// FailedCalls returns how many calls were failed so far.
func (f *FlakyStore) FailedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failCount
}

func (f *FlakyStore) shouldFail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext > 0 {
		f.FailNext--
		f.failCount++
		return true
	}
	return false
}

// Set fails while the failure budget lasts.
func (f *FlakyStore) Set(ctx context.Context, path string, value any) error {
	if f.shouldFail() {
		return errs.New(errs.CodeTransientStore, fmt.Sprintf("injected failure on set %s", path))
	}
	return f.Store.Set(ctx, path, value)
}

// TransactionalUpdate fails while the failure budget lasts.
func (f *FlakyStore) TransactionalUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	if f.shouldFail() {
		return nil, errs.New(errs.CodeTransientStore, fmt.Sprintf("injected failure on update %s", path))
	}
	return f.Store.TransactionalUpdate(ctx, path, fn)
}

var _ Store = (*FlakyStore)(nil)
