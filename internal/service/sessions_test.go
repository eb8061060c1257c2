package service

import (
	"sync"
	"testing"

	"github.com/mmcdole/hangar/internal/credential"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOnlyReplacesActiveAccount(t *testing.T) {
	creds := credential.NewMemory(nil)
	m := NewSessions(creds, nil)
	alice := &domain.Session{DID: "did:plc:alice", AccessJWT: "a1", RefreshJWT: "r1"}
	require.NoError(t, m.Set(alice))

	m.Publish(&domain.Session{DID: "did:plc:bob", AccessJWT: "b2", RefreshJWT: "rb"})
	assert.Same(t, alice, m.Current())

	fresh := &domain.Session{DID: "did:plc:alice", AccessJWT: "a2", RefreshJWT: "r2"}
	m.Publish(fresh)
	assert.Same(t, fresh, m.Current())

	data, err := creds.Retrieve("did:plc:alice")
	require.NoError(t, err)
	stored, err := credential.DecodeSession(data)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessJWT)
}

func TestConcurrentReadersSeeWholeSessions(t *testing.T) {
	m := NewSessions(credential.NewMemory(nil), nil)
	require.NoError(t, m.Set(&domain.Session{DID: "did:plc:alice", AccessJWT: "0", RefreshJWT: "r0"}))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tok := string(rune('a' + i))
			m.Publish(&domain.Session{DID: "did:plc:alice", AccessJWT: tok, RefreshJWT: "r" + tok})
		}()
		go func() {
			defer wg.Done()
			s := m.Current()
			assert.Equal(t, "did:plc:alice", s.DID)
			assert.Equal(t, "r"+s.AccessJWT, s.RefreshJWT, "access and refresh tokens come from the same session")
		}()
	}
	wg.Wait()
}

func TestClearWithoutSession(t *testing.T) {
	m := NewSessions(credential.NewMemory(nil), nil)
	assert.Nil(t, m.Clear())
	_, err := m.Resume()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
