package service

import (
	"log/slog"
	"sync/atomic"

	"github.com/mmcdole/hangar/internal/credential"
	"github.com/mmcdole/hangar/internal/domain"
)

// secretStore is the credential store plus the active-account marker used
// to resume at startup.
type secretStore interface {
	domain.CredentialProvider
	SetActive(accountID string) error
	Active() (string, error)
}

// Sessions holds the active session. Workers read it concurrently; it is
// only replaced as a whole, by login, refresh, resume or logout.
type Sessions struct {
	creds   secretStore
	logger  *slog.Logger
	current atomic.Pointer[domain.Session]
}

// NewSessions creates an empty session holder backed by creds.
func NewSessions(creds secretStore, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{creds: creds, logger: logger}
}

// Current returns the active session or nil.
func (m *Sessions) Current() *domain.Session {
	return m.current.Load()
}

// Set makes s the active session and persists it. A persistence failure
// leaves s active in memory and is returned to the caller.
func (m *Sessions) Set(s *domain.Session) error {
	m.current.Store(s)
	return m.persist(s)
}

// Publish installs a refreshed session if it belongs to the active account.
// It is the protocol client's refresh callback.
func (m *Sessions) Publish(s *domain.Session) {
	if s == nil {
		return
	}
	for {
		cur := m.current.Load()
		if cur == nil || cur.DID != s.DID {
			m.logger.Debug("ignoring refreshed session of inactive account", "did", s.DID)
			return
		}
		if cur.AccessJWT == s.AccessJWT && cur.RefreshJWT == s.RefreshJWT {
			return
		}
		if m.current.CompareAndSwap(cur, s) {
			break
		}
	}
	if err := m.persist(s); err != nil {
		m.logger.Warn("refreshed session not persisted", "did", s.DID, "error", err)
	}
}

func (m *Sessions) persist(s *domain.Session) error {
	data, err := credential.EncodeSession(s)
	if err != nil {
		return err
	}
	if err := m.creds.Store(s.AccountID(), data); err != nil {
		return err
	}
	return m.creds.SetActive(s.AccountID())
}

// Resume loads the session saved by the most recent login and makes it active.
// It returns domain.ErrNotFound when nothing was saved.
func (m *Sessions) Resume() (*domain.Session, error) {
	id, err := m.creds.Active()
	if err != nil {
		return nil, err
	}
	data, err := m.creds.Retrieve(id)
	if err != nil {
		return nil, err
	}
	s, err := credential.DecodeSession(data)
	if err != nil {
		return nil, err
	}
	m.current.Store(s)
	m.logger.Info("session resumed", "did", s.DID, "handle", s.Handle)
	return s, nil
}

// Clear drops the active session and its stored secret and returns the
// session that was active. Secret storage failures are logged only.
func (m *Sessions) Clear() *domain.Session {
	s := m.current.Swap(nil)
	if s == nil {
		return nil
	}
	if err := m.creds.Clear(s.AccountID()); err != nil {
		m.logger.Warn("stored session not cleared", "did", s.DID, "error", err)
	}
	if err := m.creds.SetActive(""); err != nil {
		m.logger.Warn("active account marker not cleared", "error", err)
	}
	return s
}
