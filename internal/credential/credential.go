// Package credential persists session secrets in the OS secret service.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/zalando/go-keyring"
)

// DefaultService is the secret-service application name.
const DefaultService = "hangar"

// activeKey holds the account id of the most recent login.
const activeKey = "_active"

// Backend is a string secret store addressed by user key.
type Backend interface {
	Set(user, secret string) error
	Get(user string) (string, error)
	Delete(user string) error
}

// Store implements domain.CredentialProvider. Backend failures other than
// "not found" surface as domain.ErrSecretsUnavailable.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

var _ domain.CredentialProvider = (*Store)(nil)

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// NewKeyring returns a Store backed by the platform keyring
// (Secret Service, macOS Keychain, Windows Credential Manager).
func NewKeyring(service string, logger *slog.Logger) *Store {
	if service == "" {
		service = DefaultService
	}
	return New(keyringBackend{service: service}, logger)
}

// NewMemory returns a Store that forgets everything when the process exits.
func NewMemory(logger *slog.Logger) *Store {
	return New(NewMemoryBackend(), logger)
}

func (s *Store) Store(accountID string, secret []byte) error {
	if accountID == "" {
		return errors.New("credential store: empty account id")
	}
	if err := s.backend.Set(accountID, string(secret)); err != nil {
		return s.unavailable("store", err)
	}
	return nil
}

func (s *Store) Retrieve(accountID string) ([]byte, error) {
	secret, err := s.backend.Get(accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, s.unavailable("retrieve", err)
	}
	return []byte(secret), nil
}

// Clear removes the account's secret. Failures are logged and returned
// but callers are expected to continue.
func (s *Store) Clear(accountID string) error {
	err := s.backend.Delete(accountID)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	s.logger.Warn("failed to clear credentials", "account", accountID, "error", err)
	return s.unavailable("clear", err)
}

// SetActive records which account to resume at next start.
func (s *Store) SetActive(accountID string) error {
	if accountID == "" {
		err := s.backend.Delete(activeKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return s.unavailable("clear active", err)
		}
		return nil
	}
	if err := s.backend.Set(activeKey, accountID); err != nil {
		return s.unavailable("set active", err)
	}
	return nil
}

// Active returns the account recorded by SetActive.
func (s *Store) Active() (string, error) {
	id, err := s.backend.Get(activeKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNotFound
		}
		return "", s.unavailable("active", err)
	}
	return id, nil
}

func (s *Store) unavailable(op string, err error) error {
	s.logger.Debug("secret storage error", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", domain.ErrSecretsUnavailable, op, err)
}

// keyringBackend adapts go-keyring.
type keyringBackend struct {
	service string
}

func (k keyringBackend) Set(user, secret string) error {
	return keyring.Set(k.service, user, secret)
}

func (k keyringBackend) Get(user string) (string, error) {
	secret, err := keyring.Get(k.service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", domain.ErrNotFound
	}
	return secret, err
}

func (k keyringBackend) Delete(user string) error {
	err := keyring.Delete(k.service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// MemoryBackend keeps secrets in process memory. Setting Fail makes every
// call return that error, simulating an absent secret service.
type MemoryBackend struct {
	mu      sync.Mutex
	secrets map[string]string
	Fail    error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{secrets: make(map[string]string)}
}

func (m *MemoryBackend) Set(user, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.secrets[user] = secret
	return nil
}

func (m *MemoryBackend) Get(user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", m.Fail
	}
	secret, ok := m.secrets[user]
	if !ok {
		return "", domain.ErrNotFound
	}
	return secret, nil
}

func (m *MemoryBackend) Delete(user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.secrets[user]; !ok {
		return domain.ErrNotFound
	}
	delete(m.secrets, user)
	return nil
}
