package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyType distinguishes the two WebAuthn ceremonies.
type CeremonyType string

const (
	CeremonyRegistration   CeremonyType = "registration"
	CeremonyAuthentication CeremonyType = "authentication"
)

// Challenge is the ephemeral state of a pending ceremony. It carries the
// full library session (challenge bytes, user binding, verification
// requirement) from option generation through to verification, and lives
// only in the challenge cache. It is consumed exactly once.
type Challenge struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id,omitempty"`
	Type      CeremonyType         `json:"type"`
	Session   webauthn.SessionData `json:"session"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// IsExpired checks if the challenge has expired
func (c *Challenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// NewChallengeID returns an unguessable cache key for a pending ceremony.
func NewChallengeID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
