package boost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/docstore"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/logging"
)

// grantDoc is the persisted form of a grant, matching the per-user schema
// the mobile clients read: epoch-ms instants under boosts/<source>.
type grantDoc struct {
	Multiplier float64 `json:"multiplier"`
	StartTime  int64   `json:"startTime"`
	EndTime    *int64  `json:"endTime,omitempty"`
	Scope      string  `json:"scope"`
}

func toDoc(g Grant) grantDoc {
	doc := grantDoc{
		Multiplier: g.Multiplier,
		StartTime:  g.StartTime.UnixMilli(),
		Scope:      string(g.Scope),
	}
	if g.EndTime != nil {
		ms := g.EndTime.UnixMilli()
		doc.EndTime = &ms
	}
	return doc
}

func fromDoc(source Source, doc grantDoc) Grant {
	g := Grant{
		Source:     source,
		Multiplier: doc.Multiplier,
		StartTime:  time.UnixMilli(doc.StartTime),
		Scope:      Scope(doc.Scope),
	}
	if doc.EndTime != nil {
		end := time.UnixMilli(*doc.EndTime)
		g.EndTime = &end
	}
	return g
}

func grantPath(userID string, source Source) string {
	return fmt.Sprintf("users/%s/boosts/%s", userID, source)
}

// GrantStore holds each user's active grants, mirrored to the remote store
// one document per source. The cache is hydrated lazily on first access.
type GrantStore struct {
	mu     sync.Mutex
	store  docstore.Store
	logger *logging.Logger

	grants map[string]map[Source]Grant
	loaded map[string]bool
}

// NewGrantStore creates a grant store over the given document store.
func NewGrantStore(store docstore.Store, logger *logging.Logger) *GrantStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &GrantStore{
		store:  store,
		logger: logger,
		grants: make(map[string]map[Source]Grant),
		loaded: make(map[string]bool),
	}
}

// Put publishes a grant. Publication is idempotent: re-issuing an identical
// grant is a no-op. A source replaces its own prior grant; for the
// verification tier a permanent grant is only ever replaced upward.
func (s *GrantStore) Put(ctx context.Context, userID string, g Grant) error {
	if err := g.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, userID); err != nil {
		return err
	}

	if existing, ok := s.grants[userID][g.Source]; ok {
		if g.Equal(existing) {
			return nil
		}
		if g.Source == SourceVerificationTier && existing.Permanent() && g.Multiplier < existing.Multiplier {
			// Tiers never downgrade; keep the higher grant.
			s.logger.Warn("ignoring tier downgrade",
				"user", userID, "have", existing.Multiplier, "got", g.Multiplier)
			return nil
		}
	}

	if err := s.store.Set(ctx, grantPath(userID, g.Source), toDoc(g)); err != nil {
		return fmt.Errorf("persist grant: %w", err)
	}
	s.grants[userID][g.Source] = g

	s.logger.Info("grant published",
		"user", userID, "source", g.Source, "multiplier", g.Multiplier, "permanent", g.Permanent())
	return nil
}

// Grants returns the user's grants, expired ones included; composition
// treats expired grants as inert. The slice is a copy in stable source
// order.
func (s *GrantStore) Grants(ctx context.Context, userID string) ([]Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, userID); err != nil {
		return nil, err
	}

	out := make([]Grant, 0, len(s.grants[userID]))
	for _, source := range Sources {
		if g, ok := s.grants[userID][source]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// Get returns the user's grant from one source.
func (s *GrantStore) Get(ctx context.Context, userID string, source Source) (Grant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, userID); err != nil {
		return Grant{}, false, err
	}
	g, ok := s.grants[userID][source]
	return g, ok, nil
}

// Clear removes the user's grant from one source.
func (s *GrantStore) Clear(ctx context.Context, userID string, source Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, userID); err != nil {
		return err
	}
	if _, ok := s.grants[userID][source]; !ok {
		return nil
	}
	if err := s.store.Delete(ctx, grantPath(userID, source)); err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}
	delete(s.grants[userID], source)
	return nil
}

// PruneExpired removes temporal grants that expired before the given
// instant. Permanent grants are never pruned.
func (s *GrantStore) PruneExpired(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, userID); err != nil {
		return err
	}
	for source, g := range s.grants[userID] {
		if g.Permanent() || g.ActiveAt(at) || at.Before(g.StartTime) {
			continue
		}
		if err := s.store.Delete(ctx, grantPath(userID, source)); err != nil {
			return fmt.Errorf("prune grant: %w", err)
		}
		delete(s.grants[userID], source)
		s.logger.Debug("pruned expired grant", "user", userID, "source", source)
	}
	return nil
}

// Forget drops the user's cached grants. Called on session teardown; the
// remote documents are untouched.
func (s *GrantStore) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, userID)
	delete(s.loaded, userID)
}

// loadLocked hydrates the cache from the remote store on first access.
func (s *GrantStore) loadLocked(ctx context.Context, userID string) error {
	if s.loaded[userID] {
		return nil
	}
	if s.grants[userID] == nil {
		s.grants[userID] = make(map[Source]Grant)
	}

	for _, source := range Sources {
		raw, err := s.store.Get(ctx, grantPath(userID, source))
		if docstore.IsNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load grants: %w", err)
		}

		var doc grantDoc
		if err := docstore.Decode(raw, &doc); err != nil {
			return err
		}
		g := fromDoc(source, doc)
		if err := g.Validate(); err != nil {
			// A stored grant that fails validation means someone wrote
			// garbage to the shared store; surface it, do not clamp.
			return errs.Wrap(errs.CodeCorruption, "stored grant invalid", err)
		}
		s.grants[userID][source] = g
	}

	s.loaded[userID] = true
	return nil
}
