package credential

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
)

// sessionSecret is the JSON blob kept in the secret service.
type sessionSecret struct {
	DID        string    `json:"did"`
	Handle     string    `json:"handle"`
	AccessJWT  string    `json:"access_jwt"`
	RefreshJWT string    `json:"refresh_jwt"`
	Service    string    `json:"service"`
	AccessExp  time.Time `json:"access_exp,omitempty"`
	RefreshExp time.Time `json:"refresh_exp,omitempty"`
}

// EncodeSession serializes the parts of a session needed to resume it.
func EncodeSession(s *domain.Session) ([]byte, error) {
	return json.Marshal(sessionSecret{
		DID:        s.DID,
		Handle:     s.Handle,
		AccessJWT:  s.AccessJWT,
		RefreshJWT: s.RefreshJWT,
		Service:    s.Service,
		AccessExp:  s.AccessExpiresAt,
		RefreshExp: s.RefreshExpiresAt,
	})
}

// DecodeSession restores a session written by EncodeSession.
func DecodeSession(data []byte) (*domain.Session, error) {
	var sec sessionSecret
	if err := json.Unmarshal(data, &sec); err != nil {
		return nil, fmt.Errorf("%w: stored session: %v", domain.ErrDecode, err)
	}
	if sec.DID == "" || sec.RefreshJWT == "" {
		return nil, fmt.Errorf("%w: stored session is incomplete", domain.ErrDecode)
	}
	return &domain.Session{
		DID:              sec.DID,
		Handle:           sec.Handle,
		AccessJWT:        sec.AccessJWT,
		RefreshJWT:       sec.RefreshJWT,
		Service:          sec.Service,
		AccessExpiresAt:  sec.AccessExp,
		RefreshExpiresAt: sec.RefreshExp,
	}, nil
}
