// Package storage holds the database connection of the catalog index and the
// API keys of relay clients.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// KeyPrefix starts every generated API key.
	KeyPrefix = "specviewer_ak_"

	randomBytesSize = 32
	apiKeyLength    = len(KeyPrefix) + 2*randomBytesSize // 78
	prefixLen       = 18                                 // Show "specviewer_ak_1234"
	suffixLen       = 4
)

var (
	// ErrKeyAlreadyExists is returned when attempting to add a key that already exists.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrKeyNotFound is returned when attempting to operate on a non-existent key.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrClientIDEmpty is returned when the client ID is empty during key generation.
	ErrClientIDEmpty = errors.New("client ID cannot be empty")
	// ErrKeyStringEmpty is returned when key string is empty during parsing.
	ErrKeyStringEmpty = errors.New("key string cannot be empty")
	// ErrInvalidKeyFormat is returned when API key doesn't match expected format.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKeyLength is returned when API key length is incorrect.
	ErrInvalidKeyLength = errors.New("invalid API key length")
)

// Permissions granted to relay clients.
const (
	PermissionSpectraRead = "spectra:read"
	PermissionCatalogRead = "catalog:read"
)

// APIKey identifies one client of the relay API, typically a dashboard deployment.
type APIKey struct {
	ID          string     `json:"id" yaml:"id"`
	Key         string     `json:"key" yaml:"-"`
	ClientID    string     `json:"clientId" yaml:"client_id"` //nolint:tagliatelle
	Name        string     `json:"name" yaml:"name"`
	Permissions []string   `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"created_at"` //nolint:tagliatelle
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"` //nolint:tagliatelle
	Active      bool       `json:"active" yaml:"active"`
}

// APIKeyStore stores client API keys.
type APIKeyStore interface {
	// FindByKey retrieves an API key by its plaintext value
	FindByKey(ctx context.Context, key string) (*APIKey, bool)
	// Add stores a new API key
	Add(ctx context.Context, apiKey *APIKey) error
	// Update modifies name, permissions, status and expiry of an existing key
	Update(ctx context.Context, apiKey *APIKey) error
	// Delete deactivates or removes an API key
	Delete(ctx context.Context, keyID string) error
	// ListByClient returns the keys of one client
	ListByClient(ctx context.Context, clientID string) ([]*APIKey, error)
}

// ValidateKey performs constant-time comparison of the provided key against this API key.
func (ak *APIKey) ValidateKey(providedKey string) bool {
	if providedKey == "" || ak.Key == "" || !ak.Active || ak.Expired(time.Now()) {
		return false
	}

	return SecureCompare(ak.Key, providedKey)
}

// Expired reports whether the key has an expiry before now.
func (ak *APIKey) Expired(now time.Time) bool {
	return ak.ExpiresAt != nil && now.After(*ak.ExpiresAt)
}

// HasPermission checks if the API key has a specific permission.
func (ak *APIKey) HasPermission(permission string) bool {
	return slices.Contains(ak.Permissions, permission)
}

// SecureCompare performs constant-time comparison of two strings to prevent timing attacks.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		// Still burn a comparison so that length mismatches take as long as matches.
		dummy := make([]byte, len(a))
		subtle.ConstantTimeCompare([]byte(a), dummy)

		return false
	}

	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskKey masks an API key for logging. Standard 78-character keys keep their
// prefix and last four characters; anything else is masked completely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}

	keyLen := len(key)
	if keyLen == apiKeyLength {
		return key[:prefixLen] + strings.Repeat("*", keyLen-prefixLen-suffixLen) + key[keyLen-suffixLen:]
	}

	return strings.Repeat("*", keyLen)
}

// GenerateAPIKey creates a new random API key for a client.
func GenerateAPIKey(clientID string) (string, error) {
	if clientID == "" {
		return "", ErrClientIDEmpty
	}

	randomBytes := make([]byte, randomBytesSize)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return KeyPrefix + hex.EncodeToString(randomBytes), nil
}

// ParseAPIKey extracts the API key from a header value, accepting an optional "Bearer " prefix.
func ParseAPIKey(keyString string) (string, error) {
	if keyString == "" {
		return "", ErrKeyStringEmpty
	}

	keyString = strings.TrimPrefix(keyString, "Bearer ")

	if !strings.HasPrefix(keyString, KeyPrefix) {
		return "", ErrInvalidKeyFormat
	}

	if len(keyString) != apiKeyLength {
		return "", ErrInvalidKeyLength
	}

	return keyString, nil
}
