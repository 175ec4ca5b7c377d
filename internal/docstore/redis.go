package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/vikramsomai/elixir-Mining-Network-sub001/internal/errs"
)

const (
	// keyPrefix namespaces documents in a shared redis instance.
	keyPrefix = "doc:"
	// channelPrefix namespaces change notifications.
	channelPrefix = "docchange:"

	// txRetries bounds the optimistic WATCH retry loop.
	txRetries = 16
)

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisStore implements Store on a redis instance. TransactionalUpdate uses
// optimistic WATCH/MULTI/EXEC; Subscribe uses pub/sub on a per-path channel
// fed by the store's own writes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed store.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Initialize pings the server.
func (s *RedisStore) Initialize(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errs.Wrap(errs.CodeUnavailable, "redis ping", err)
	}
	return nil
}

// Shutdown closes the client.
func (s *RedisStore) Shutdown(ctx context.Context) error {
	return s.client.Close()
}

// Close closes the store.
func (s *RedisStore) Close(ctx context.Context) error {
	return s.Shutdown(ctx)
}

// Health pings the server.
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errs.Wrap(errs.CodeUnavailable, "redis ping", err)
	}
	return nil
}

// Get returns the document at path.
func (s *RedisStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, keyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.Newf(errs.CodeNotFound, "document not found: %s", path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeTransientStore, "redis get", err)
	}
	return data, nil
}

// Set writes the document at path and notifies subscribers.
func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	doc, err := Encode(value)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+path, []byte(doc), 0)
	pipe.Publish(ctx, channelPrefix+path, []byte(doc))
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.CodeTransientStore, "redis set", err)
	}
	return nil
}

// Delete removes the document at path.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+path)
	pipe.Publish(ctx, channelPrefix+path, "")
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.CodeTransientStore, "redis delete", err)
	}
	return nil
}

// TransactionalUpdate applies fn under WATCH so a concurrent writer aborts
// the EXEC and the update retries against the fresh value.
func (s *RedisStore) TransactionalUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, error) {
	key := keyPrefix + path

	var committed json.RawMessage
	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return errs.Wrap(errs.CodeTransientStore, "redis read in txn", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, []byte(next), 0)
			pipe.Publish(ctx, channelPrefix+path, []byte(next))
			return nil
		})
		if err != nil {
			return err
		}
		committed = next
		return nil
	}

	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race; retry against the new value.
			continue
		}
		if errs.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.CodeTransientStore, "redis transaction", err)
	}
	return nil, errs.Newf(errs.CodeConflict, "update contention on %s", path)
}

// Subscribe streams snapshots of the document at path.
func (s *RedisStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channelPrefix+path)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errs.Wrap(errs.CodeTransientStore, "redis subscribe", err)
	}

	out := make(chan json.RawMessage, 16)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer pubsub.Close()

		// Initial snapshot.
		if doc, err := s.Get(subCtx, path); err == nil {
			out <- doc
		}

		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				out <- json.RawMessage(msg.Payload)
			}
		}
	}()

	return &Subscription{C: out, Cancel: cancel}, nil
}

var _ Store = (*RedisStore)(nil)
