package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const notifyChannel = "docchange"

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// PostgresStore implements Store on a single jsonb documents table.
// TransactionalUpdate serializes writers per path with an advisory
// transaction lock; Subscribe rides LISTEN/NOTIFY.
type PostgresStore struct {
	dsn string
	db  *sqlx.DB
}

// NewPostgresStore creates a postgres-backed store.
func NewPostgresStore(cfg PostgresConfig) *PostgresStore {
	return &PostgresStore{dsn: cfg.DSN}
}

// Initialize connects and ensures the schema exists.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", s.dsn)
	if err != nil {
		return errs.Wrap(errs.CodeUnavailable, "postgres connect", err)
	}
	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		_ = db.Close()
		return errs.Wrap(errs.CodeUnavailable, "create documents table", err)
	}
	s.db = db
	return nil
}

// Shutdown closes the connection pool.
func (s *PostgresStore) Shutdown(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Close closes the store.
func (s *PostgresStore) Close(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	if s.db == nil {
		return errs.New(errs.CodeUnavailable, "store not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return errs.Wrap(errs.CodeUnavailable, "postgres ping", err)
	}
	return nil
}

// Get returns the document at path.
func (s *PostgresStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var doc []byte
	err := s.db.GetContext(ctx, &doc, `SELECT doc FROM documents WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Newf(errs.CodeNotFound, "document not found: %s", path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "select document", err)
	}
	return doc, nil
}

// Set upserts the document at path and notifies listeners.
func (s *PostgresStore) Set(ctx context.Context, path string, value any) error {
	doc, err := Encode(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		path, []byte(doc))
	if err != nil {
		return errs.Wrap(errs.CodeTransientStore, "upsert document", err)
	}
	return s.notify(ctx, path)
}

// Delete removes the document at path.
func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return errs.Wrap(errs.CodeTransientStore, "delete document", err)
	}
	return s.notify(ctx, path)
}

// TransactionalUpdate applies fn inside a transaction that holds an advisory
// lock on the path, so concurrent updates to the same document serialize even
// when the row does not exist yet.
func (s *PostgresStore) TransactionalUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, path); err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "acquire path lock", err)
	}

	var current []byte
	err = tx.GetContext(ctx, &current, `SELECT doc FROM documents WHERE path = $1`, path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.CodeTransientStore, "read document in txn", err)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (path, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		path, []byte(next)); err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "write document in txn", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "notify in txn", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "commit transaction", err)
	}
	return next, nil
}

// Subscribe streams snapshots of the document at path.
func (s *PostgresStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	listener := pq.NewListener(s.dsn, 2*time.Second, time.Minute, nil)
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, errs.Wrap(errs.CodeTransientStore, "listen", err)
	}

	out := make(chan json.RawMessage, 16)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer listener.Close()

		// Initial snapshot.
		if doc, err := s.Get(subCtx, path); err == nil {
			out <- doc
		}

		for {
			select {
			case <-subCtx.Done():
				return
			case n := <-listener.Notify:
				if n == nil || n.Extra != path {
					continue
				}
				doc, err := s.Get(subCtx, path)
				if err != nil {
					continue
				}
				out <- doc
			}
		}
	}()

	return &Subscription{C: out, Cancel: cancel}, nil
}

func (s *PostgresStore) notify(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return errs.Wrap(errs.CodeTransientStore, "notify", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
