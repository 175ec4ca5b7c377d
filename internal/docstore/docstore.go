// Package docstore abstracts the remote document store the engine persists
// into. Documents are JSON values addressed by slash-separated paths, the way
// the mobile clients address the realtime database.
package docstore

import (
	"context"
	"encoding/json"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
)

// UpdateFunc transforms the current value of a document into its next value.
// current is nil when the document does not exist yet. Returning an error
// aborts the update without writing; the error is propagated to the caller.
type UpdateFunc func(current json.RawMessage) (json.RawMessage, error)

// Subscription streams document snapshots. The current snapshot is delivered
// first, then one per remote change, until Cancel is called or the
// subscribing context ends.
type Subscription struct {
	C      <-chan json.RawMessage
	Cancel func()
}

// Store is the document store contract. The claim coordinator requires
// TransactionalUpdate for every balance mutation; everything else may use
// Get, Set and Subscribe.
type Store interface {
	// Initialize prepares the store for use.
	Initialize(ctx context.Context) error
	// Shutdown releases the store's resources.
	Shutdown(ctx context.Context) error
	// Health checks connectivity.
	Health(ctx context.Context) error
	// Close closes the store (alias for Shutdown).
	Close(ctx context.Context) error

	// Get returns the document at path, or a not_found error.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	// Set writes the document at path unconditionally.
	Set(ctx context.Context, path string, value any) error
	// Delete removes the document at path. Missing documents are a no-op.
	Delete(ctx context.Context, path string) error
	// TransactionalUpdate applies fn to the document at path as a single
	// atomic read-modify-write and returns the committed value.
	TransactionalUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error)
	// Subscribe streams snapshots of the document at path.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
}

// Decode unmarshals a document into out, mapping malformed payloads to a
// corruption error so callers never silently misread the ledger.
func Decode(doc json.RawMessage, out any) error {
	if len(doc) == 0 {
		return errs.New(errs.CodeNotFound, "empty document")
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return errs.Wrap(errs.CodeCorruption, "malformed document", err)
	}
	return nil
}

// Encode marshals a value for storage.
func Encode(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, "encode document", err)
	}
	return data, nil
}

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	return errs.Is(err, errs.CodeNotFound)
}
