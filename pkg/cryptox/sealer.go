package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used to stretch a passphrase into an AES-256 key.
const (
	sealIterations  = 1
	sealMemory      = 64 * 1024
	sealParallelism = 4
	sealKeyLength   = 32
	sealSaltLength  = 16
)

// sealMagic prefixes sealed blobs so a plaintext file is never mistaken for
// ciphertext.
var sealMagic = []byte("ctx1")

var (
	// ErrEmptyPassphrase is returned by NewSealer.
	ErrEmptyPassphrase = errors.New("cryptox: passphrase must not be empty")
	// ErrNotSealed is returned by Open when the input lacks the sealed header.
	ErrNotSealed = errors.New("cryptox: data is not sealed")
)

// Sealer encrypts small payloads at rest with AES-256-GCM under a key
// derived from a passphrase with Argon2id.
//
// Output format: [4-byte magic][16-byte salt][12-byte nonce][ciphertext+tag]
type Sealer struct {
	passphrase []byte
}

func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &Sealer{passphrase: []byte(passphrase)}, nil
}

// Seal encrypts plaintext with a fresh salt and nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, sealSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, sealMagic), nil
}

// Open reverses Seal.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return nil, ErrNotSealed
	}
	rest := data[len(sealMagic):]
	if len(rest) < sealSaltLength {
		return nil, fmt.Errorf("ciphertext too short")
	}
	salt, rest := rest[:sealSaltLength], rest[sealSaltLength:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the sealed header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(s.passphrase, salt, sealIterations, sealMemory, sealParallelism, sealKeyLength)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
