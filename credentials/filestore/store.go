package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/dortmed-client/credentials"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var _ credentials.Repo = (*Store)(nil)

// Store persists the session keys as a single JSON document on disk. Every write
// replaces the whole file through a rename, so a Clear or Upsert is never observed
// half applied. When a key is configured the document is sealed with secretbox.
type Store struct {
	path string
	key  *[keySize]byte
	mu   sync.Mutex
}

// Option configures a Store.
type Option func(*Store) error

// WithHexKey seals the file with the given 32-byte hex encoded key.
func WithHexKey(hexKey string) Option {
	return func(s *Store) error {
		if hexKey == "" {
			return nil
		}
		b, err := hex.DecodeString(hexKey)
		if err != nil {
			return fmt.Errorf("decode store key: %w", err)
		}
		if len(b) != keySize {
			return fmt.Errorf("store key must be %d bytes, got %d", keySize, len(b))
		}
		s.key = new([keySize]byte)
		copy(s.key[:], b)
		return nil
	}
}

// New creates a file store at path. The parent directory is created if needed.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	s := &Store{path: path}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return s, nil
}

func (s *Store) Upsert(_ context.Context, values map[string]string) error {
	if err := credentials.ValidateKeys(values); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		current[k] = v
	}
	return s.write(current)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := current[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return v, nil
}

// Clear removes the file, dropping every key at once.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if s.key != nil {
		if len(raw) < nonceSize {
			return nil, errors.New("session file is truncated")
		}
		var nonce [nonceSize]byte
		copy(nonce[:], raw[:nonceSize])
		opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
		if !ok {
			return nil, errors.New("session file could not be decrypted")
		}
		raw = opened
	}

	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return values, nil
}

func (s *Store) write(values map[string]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	if s.key != nil {
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		raw = secretbox.Seal(nonce[:], raw, &nonce, s.key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
