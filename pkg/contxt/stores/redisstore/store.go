// Package redisstore is a contxt.CredentialStore backed by Redis, for
// services that share one session between replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every session key.
const DefaultPrefix = "contxt:session:"

var _ contxt.CredentialStore = (*Store)(nil)

type Store struct {
	client redis.UniversalClient
	prefix string
	key    string
	now    func() time.Time
}

type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New returns a store keeping the session for namespace under the key
// prefix+namespace.
func New(client redis.UniversalClient, namespace string, opts ...Option) *Store {
	if namespace == "" {
		namespace = "default"
	}
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.key = s.prefix + namespace
	return s
}

// Key returns the Redis key the session is stored under.
func (s *Store) Key() string { return s.key }

func (s *Store) Load(ctx context.Context) (contxt.Session, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return contxt.Session{}, nil
	}
	if err != nil {
		return contxt.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var session contxt.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return contxt.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

// Save writes session with a TTL matching its expiry. A session without an
// expiry is kept until cleared; one that has already expired is deleted.
func (s *Store) Save(ctx context.Context, session contxt.Session) error {
	ttl, keep := s.ttl(session)
	if !keep {
		return s.Clear(ctx)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// ttl returns the expiration to set and whether the session is worth
// storing at all. Zero means no expiration.
func (s *Store) ttl(session contxt.Session) (time.Duration, bool) {
	if session.ExpiresAt.IsZero() {
		return 0, true
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}
