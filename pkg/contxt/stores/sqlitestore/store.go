// Package sqlitestore is a contxt.CredentialStore backed by SQLite.
//
// Several processes or profiles can share one database file; each Store
// reads and writes the single row of its namespace.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	_ "modernc.org/sqlite"
)

// DefaultNamespace is used when Open is given an empty namespace.
const DefaultNamespace = "default"

var _ contxt.CredentialStore = (*Store)(nil)

// Store keeps expiry as unix milliseconds. A loaded ExpiresAt is the saved
// one truncated to the millisecond, in UTC, so it never expires later than
// the original.
type Store struct {
	db        *sql.DB
	namespace string
	now       func() time.Time
}

// Open opens the database at dsn, applies migrations and returns a store
// bound to namespace.
func Open(dsn, namespace string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure session database: %w", err)
	}

	s := New(db, namespace)
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return s, nil
}

// New wraps an open handle. The caller owns migrations and closing db.
func New(db *sql.DB, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{db: db, namespace: namespace, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Load(ctx context.Context) (contxt.Session, error) {
	var (
		session   contxt.Session
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, api_token, expires_at, redirect_path, state
		FROM sessions
		WHERE namespace = ?`, s.namespace,
	).Scan(&session.AccessToken, &session.APIToken, &expiresAt, &session.RedirectPath, &session.State)
	if errors.Is(err, sql.ErrNoRows) {
		return contxt.Session{}, nil
	}
	if err != nil {
		return contxt.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	session.ExpiresAt = fromMillis(expiresAt)
	return session, nil
}

func (s *Store) Save(ctx context.Context, session contxt.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (namespace, access_token, api_token, expires_at, redirect_path, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace) DO UPDATE SET
			access_token  = excluded.access_token,
			api_token     = excluded.api_token,
			expires_at    = excluded.expires_at,
			redirect_path = excluded.redirect_path,
			state         = excluded.state,
			updated_at    = excluded.updated_at`,
		s.namespace,
		session.AccessToken,
		session.APIToken,
		toMillis(session.ExpiresAt),
		session.RedirectPath,
		session.State,
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// DeleteExpired removes expired sessions in every namespace and returns how
// many rows went. Rows without an expiry, such as a pending redirect login,
// are kept.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
