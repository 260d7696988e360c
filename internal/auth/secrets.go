package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// SecretManager holds the active signing secret and the one it replaced.
// Tokens signed with either are accepted, so a secret change does not
// invalidate links that were already sent.
type SecretManager struct {
	currentSecret   string
	previousSecret  string
	secretMutex     sync.RWMutex
	secretStorageFn func(string) error
	lastRotation    time.Time
}

// NewSecretManager creates a manager from configured secrets. previous may be empty.
func NewSecretManager(current, previous string) *SecretManager {
	return &SecretManager{
		currentSecret:  current,
		previousSecret: previous,
		lastRotation:   time.Now(),
	}
}

// RotateSecret generates a new secret and demotes the current one to previous.
func (m *SecretManager) RotateSecret() error {
	newSecret, err := generateSecureSecret(32)
	if err != nil {
		return err
	}

	m.secretMutex.Lock()
	m.previousSecret = m.currentSecret
	m.currentSecret = newSecret
	m.lastRotation = time.Now()
	storeFn := m.secretStorageFn
	m.secretMutex.Unlock()

	if storeFn != nil {
		return storeFn(newSecret)
	}
	return nil
}

// GetCurrentSecret returns the secret new tokens are signed with.
func (m *SecretManager) GetCurrentSecret() string {
	m.secretMutex.RLock()
	defer m.secretMutex.RUnlock()
	return m.currentSecret
}

// GetValidSecrets returns the current secret followed by the previous one, if any.
func (m *SecretManager) GetValidSecrets() []string {
	m.secretMutex.RLock()
	defer m.secretMutex.RUnlock()

	if m.previousSecret != "" {
		return []string{m.currentSecret, m.previousSecret}
	}
	return []string{m.currentSecret}
}

// SetSecretStorageFunction sets a function that persists a rotated secret.
func (m *SecretManager) SetSecretStorageFunction(fn func(string) error) {
	m.secretMutex.Lock()
	defer m.secretMutex.Unlock()
	m.secretStorageFn = fn
}

func generateSecureSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
