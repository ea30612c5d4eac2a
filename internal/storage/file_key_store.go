package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bhm-spectra/specviewer/internal/config"
)

const (
	keyCreated = "created"
	keyUpdated = "updated"
	keyDeleted = "deleted"
)

// KeyStoreConfig locates the hashed API key file.
type KeyStoreConfig struct {
	// Path is the key file (SPECVIEWER_API_KEYS_FILE). Empty disables API key authentication.
	Path string
}

// LoadKeyStoreConfig loads key store settings from environment variables.
func LoadKeyStoreConfig() *KeyStoreConfig {
	return &KeyStoreConfig{Path: strings.TrimSpace(config.GetEnvStr("SPECVIEWER_API_KEYS_FILE", ""))}
}

// Enabled reports whether API key authentication is configured.
func (c *KeyStoreConfig) Enabled() bool {
	return c.Path != ""
}

type keyFile struct {
	Keys []keyEntry `yaml:"keys"`
}

type keyEntry struct {
	APIKey `yaml:",inline"`

	Hash string `yaml:"hash"`
}

// FileKeyStore keeps bcrypt hashes of client keys in a YAML file. Plaintext
// keys are never written.
//
// Lookup compares the presented key against every stored hash, which is fine
// for the handful of dashboard deployments a relay serves.
type FileKeyStore struct {
	path    string
	mu      sync.RWMutex
	entries []keyEntry
	logger  *slog.Logger
}

// OpenFileKeyStore loads path. A missing file yields an empty store that is
// created on the first Add.
func OpenFileKeyStore(path string, logger *slog.Logger) (*FileKeyStore, error) {
	s := &FileKeyStore{path: path, logger: logger}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}

		return nil, fmt.Errorf("failed to read API key file: %w", err)
	}

	var parsed keyFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse API key file %s: %w", path, err)
	}

	s.entries = parsed.Keys

	return s, nil
}

// FindByKey implements APIKeyStore. Inactive and expired keys are returned so
// that callers can tell them apart from unknown ones. The Key field of the
// result is masked.
func (s *FileKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if CompareAPIKeyHash(entry.Hash, key) {
			found := entry.APIKey
			found.Key = MaskKey(key)

			return &found, true
		}
	}

	return nil, false
}

// Add implements APIKeyStore. The key is hashed before it is written.
func (s *FileKeyStore) Add(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if _, found := s.FindByKey(ctx, apiKey.Key); found {
		return ErrKeyAlreadyExists
	}

	hash, err := HashAPIKey(apiKey.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(apiKey.ID) >= 0 {
		return ErrKeyAlreadyExists
	}

	entry := keyEntry{APIKey: *apiKey, Hash: hash}
	entry.Key = ""

	s.entries = append(s.entries, entry)

	if err := s.save(); err != nil {
		s.entries = s.entries[:len(s.entries)-1]

		return err
	}

	s.audit(keyCreated, apiKey)

	return nil
}

// Update implements APIKeyStore. The hash itself cannot be changed.
func (s *FileKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(apiKey.ID)
	if i < 0 {
		return ErrKeyNotFound
	}

	previous := s.entries[i]

	s.entries[i].Name = apiKey.Name
	s.entries[i].Permissions = apiKey.Permissions
	s.entries[i].Active = apiKey.Active
	s.entries[i].ExpiresAt = apiKey.ExpiresAt

	if err := s.save(); err != nil {
		s.entries[i] = previous

		return err
	}

	s.audit(keyUpdated, &s.entries[i].APIKey)

	return nil
}

// Delete implements APIKeyStore as a soft delete: the key stays in the file, inactive.
func (s *FileKeyStore) Delete(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(keyID)
	if i < 0 {
		return ErrKeyNotFound
	}

	s.entries[i].Active = false

	if err := s.save(); err != nil {
		s.entries[i].Active = true

		return err
	}

	s.audit(keyDeleted, &s.entries[i].APIKey)

	return nil
}

// ListByClient implements APIKeyStore. Keys carry neither plaintext nor hash.
func (s *FileKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	if clientID == "" {
		return nil, ErrClientIDEmpty
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []*APIKey{}

	for _, entry := range s.entries {
		if entry.ClientID == clientID {
			key := entry.APIKey
			keys = append(keys, &key)
		}
	}

	return keys, nil
}

func (s *FileKeyStore) indexOf(keyID string) int {
	for i := range s.entries {
		if s.entries[i].ID == keyID {
			return i
		}
	}

	return -1
}

// save rewrites the key file through a temporary file and rename. Caller must hold the write lock.
func (s *FileKeyStore) save() error {
	data, err := yaml.Marshal(keyFile{Keys: s.entries})
	if err != nil {
		return fmt.Errorf("failed to encode API key file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".apikeys-*")
	if err != nil {
		return fmt.Errorf("failed to write API key file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name()) // No-op after a successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write API key file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write API key file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace API key file: %w", err)
	}

	return nil
}

func (s *FileKeyStore) audit(operation string, apiKey *APIKey) {
	s.logger.Info("API key changed",
		slog.String("operation", operation),
		slog.String("key_id", apiKey.ID),
		slog.String("client_id", apiKey.ClientID),
		slog.String("key", MaskKey(apiKey.Key)),
	)
}
