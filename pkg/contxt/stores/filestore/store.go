// Package filestore is a contxt.CredentialStore that keeps the session in a
// JSON file, optionally encrypted with a passphrase.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ndustrialio/contxt-go/pkg/contxt"
	"github.com/ndustrialio/contxt-go/pkg/cryptox"
)

// ErrPassphraseRequired is returned by Load when the file is encrypted and
// the store has no passphrase.
var ErrPassphraseRequired = errors.New("filestore: session file is encrypted, a passphrase is required")

var _ contxt.CredentialStore = (*Store)(nil)

type Store struct {
	path   string
	sealer *cryptox.Sealer

	mu sync.Mutex
}

type Option func(*Store) error

// WithPassphrase encrypts the file at rest. Plain files written before a
// passphrase was configured can still be read and are encrypted on the next
// Save.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) error {
		sealer, err := cryptox.NewSealer(passphrase)
		if err != nil {
			return err
		}
		s.sealer = sealer
		return nil
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("filestore: path is required")
	}
	s := &Store{path: path}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the session file location.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (contxt.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return contxt.Session{}, nil
	}
	if err != nil {
		return contxt.Session{}, fmt.Errorf("failed to read session file: %w", err)
	}

	if cryptox.IsSealed(data) {
		if s.sealer == nil {
			return contxt.Session{}, ErrPassphraseRequired
		}
		if data, err = s.sealer.Open(data); err != nil {
			return contxt.Session{}, fmt.Errorf("failed to decrypt session file: %w", err)
		}
	}

	var session contxt.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return contxt.Session{}, fmt.Errorf("failed to decode session file: %w", err)
	}
	return session, nil
}

func (s *Store) Save(_ context.Context, session contxt.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return fmt.Errorf("failed to encrypt session: %w", err)
		}
	}

	return writeFileAtomic(s.path, data)
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path with data, readable by the owner only.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
