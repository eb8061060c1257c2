package credential

import (
	"errors"
	"testing"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemory(nil)

	_, err := s.Retrieve("did:plc:a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Store("did:plc:a", []byte("secret")))
	got, err := s.Retrieve("did:plc:a")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))

	require.NoError(t, s.Clear("did:plc:a"))
	require.NoError(t, s.Clear("did:plc:a"), "clearing twice is not an error")
	_, err = s.Retrieve("did:plc:a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnavailableBackendIsDistinguishable(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Fail = errors.New("org.freedesktop.secrets was not provided by any .service files")
	s := New(backend, nil)

	err := s.Store("did:plc:a", []byte("secret"))
	assert.ErrorIs(t, err, domain.ErrSecretsUnavailable)

	_, err = s.Retrieve("did:plc:a")
	assert.ErrorIs(t, err, domain.ErrSecretsUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.Clear("did:plc:a"), domain.ErrSecretsUnavailable)
}

func TestActiveAccount(t *testing.T) {
	s := NewMemory(nil)
	_, err := s.Active()
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.SetActive("did:plc:a"))
	id, err := s.Active()
	require.NoError(t, err)
	assert.Equal(t, "did:plc:a", id)

	require.NoError(t, s.SetActive(""))
	_, err = s.Active()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeyringBackend(t *testing.T) {
	keyring.MockInit()
	s := NewKeyring("", nil)

	require.NoError(t, s.Store("did:plc:a", []byte("secret")))
	got, err := s.Retrieve("did:plc:a")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(got))
	require.NoError(t, s.Clear("did:plc:a"))

	_, err = s.Retrieve("did:plc:a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	keyring.MockInitWithError(errors.New("dbus: no session bus"))
	err = s.Store("did:plc:a", []byte("secret"))
	assert.ErrorIs(t, err, domain.ErrSecretsUnavailable)
}

func TestSessionEncoding(t *testing.T) {
	in := &domain.Session{DID: "did:plc:a", Handle: "alice.example", AccessJWT: "a", RefreshJWT: "r", Service: "https://pds.example"}
	data, err := EncodeSession(in)
	require.NoError(t, err)

	out, err := DecodeSession(data)
	require.NoError(t, err)
	assert.Equal(t, in.DID, out.DID)
	assert.Equal(t, in.RefreshJWT, out.RefreshJWT)
	assert.Equal(t, in.Service, out.Service)

	_, err = DecodeSession([]byte(`{"did":"did:plc:a"}`))
	assert.ErrorIs(t, err, domain.ErrDecode)
}
