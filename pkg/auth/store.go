package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token is an API token for the upstream service, stored under a host name
type Token struct {
	Host         string    `json:"host"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// ErrTokenNotFound is returned when no token is stored for a host
var ErrTokenNotFound = errors.New("token not found")

// ErrInvalidToken is returned for empty host names or token values
var ErrInvalidToken = errors.New("invalid token")

// TokenStore is the interface for storing and retrieving API tokens
type TokenStore interface {
	// Store saves a token for a host
	Store(token *Token) error

	// Retrieve gets the token for a host
	Retrieve(host string) (*Token, error)

	// Delete removes the token for a host
	Delete(host string) error
}

// Manager handles token storage with fallback mechanisms: the system
// keychain when available, an encrypted file otherwise.
type Manager struct {
	stores []TokenStore
}

// NewManager creates a token manager with the available storage backends.
// A backend that cannot be constructed is skipped; only a machine with no
// working backend at all is an error.
func NewManager(passphrase string) (*Manager, error) {
	var stores []TokenStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err == nil {
		if encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "tokens.enc"), passphrase); err == nil {
			stores = append(stores, encryptedStore)
		}
	}

	if len(stores) == 0 {
		return nil, fmt.Errorf("no usable token store backend")
	}
	return &Manager{stores: stores}, nil
}

// Store saves the token in the first backend that accepts it
func (m *Manager) Store(token *Token) error {
	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(token); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("all token stores failed: %w", lastErr)
}

// Retrieve returns the token from the first backend that has it
func (m *Manager) Retrieve(host string) (*Token, error) {
	for _, store := range m.stores {
		if token, err := store.Retrieve(host); err == nil {
			return token, nil
		}
	}
	return nil, ErrTokenNotFound
}

// Delete removes the token from every backend that holds it
func (m *Manager) Delete(host string) error {
	found := false
	for _, store := range m.stores {
		if err := store.Delete(host); err == nil {
			found = true
		}
	}
	if !found {
		return ErrTokenNotFound
	}
	return nil
}

// getConfigDir returns the directory for glexport's own files
func getConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "glexport")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
