package contxt

import (
	"context"
	"sync"
	"time"
)

// Session is the token state held by one session strategy.
//
// Browser and CLI sessions carry both tokens; machine sessions carry only
// APIToken. RedirectPath and State are set between the start of a redirect
// login and its callback, and are cleared once the callback completes.
type Session struct {
	AccessToken string    `json:"accessToken,omitempty"`
	APIToken    string    `json:"apiToken,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`

	RedirectPath string `json:"redirectPath,omitempty"`
	State        string `json:"state,omitempty"`
}

// IsZero reports whether the session holds nothing at all.
func (s Session) IsZero() bool {
	return s == Session{}
}

// Expired reports whether the session's expiry is at or before now. A session
// without an expiry is treated as expired.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CredentialStore persists a session across process restarts.
//
// Load returns a zero Session and a nil error when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, session Session) error
	Clear(ctx context.Context) error
}

// MemoryStore is a volatile CredentialStore. It is the default when none is
// configured and the usual test double.
type MemoryStore struct {
	mu      sync.RWMutex
	session Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}

func (m *MemoryStore) Save(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	return nil
}
