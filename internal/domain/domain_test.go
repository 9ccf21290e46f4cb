package domain

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserHandleRoundTrip(t *testing.T) {
	id := NewUserID()

	handle := id.AsUserHandle()
	require.Len(t, handle, 16)

	recovered, err := UserIDFromUserHandle(handle)
	require.NoError(t, err)
	assert.Equal(t, id, recovered)
}

func TestUserHandleInvalid(t *testing.T) {
	_, err := UserIDFromUserHandle([]byte("too short"))
	assert.Error(t, err)
}

func TestFlagsRoundTrip(t *testing.T) {
	cases := []webauthn.CredentialFlags{
		{},
		{UserPresent: true},
		{UserPresent: true, UserVerified: true},
		{UserPresent: true, BackupEligible: true, BackupState: true},
		{UserPresent: true, UserVerified: true, BackupEligible: true, BackupState: true},
	}

	for _, flags := range cases {
		assert.Equal(t, flags, DecodeFlags(EncodeFlags(flags)))
	}
}

func TestNewCredentialCounterMonotonic(t *testing.T) {
	userID := NewUserID()

	zero := NewCredential(userID, &webauthn.Credential{
		ID:        []byte{1, 2, 3},
		PublicKey: []byte{4, 5, 6},
	})
	assert.False(t, zero.CounterMonotonic)
	assert.Equal(t, uint32(0), zero.SignCount)

	counting := NewCredential(userID, &webauthn.Credential{
		ID:            []byte{1, 2, 3},
		PublicKey:     []byte{4, 5, 6},
		Authenticator: webauthn.Authenticator{SignCount: 7},
	})
	assert.True(t, counting.CounterMonotonic)
	assert.Equal(t, uint32(7), counting.SignCount)
}

func TestCredentialConversionRoundTrip(t *testing.T) {
	userID := NewUserID()
	source := &webauthn.Credential{
		ID:              []byte{0xde, 0xad, 0xbe, 0xef},
		PublicKey:       []byte{1, 2, 3, 4},
		AttestationType: "none",
		Flags:           webauthn.CredentialFlags{UserPresent: true, UserVerified: true},
		Authenticator: webauthn.Authenticator{
			AAGUID:    []byte{9, 9, 9},
			SignCount: 42,
		},
	}

	stored := NewCredential(userID, source)
	back, err := stored.Webauthn()
	require.NoError(t, err)

	assert.Equal(t, source.ID, back.ID)
	assert.Equal(t, source.PublicKey, back.PublicKey)
	assert.Equal(t, source.AttestationType, back.AttestationType)
	assert.Equal(t, source.Flags, back.Flags)
	assert.Equal(t, source.Authenticator.AAGUID, back.Authenticator.AAGUID)
	assert.Equal(t, source.Authenticator.SignCount, back.Authenticator.SignCount)
}

func TestChallengeExpiry(t *testing.T) {
	challenge := &Challenge{
		ID:        NewChallengeID(),
		ExpiresAt: time.Now().Add(time.Minute),
	}
	assert.False(t, challenge.IsExpired())

	challenge.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, challenge.IsExpired())
}

func TestNewChallengeIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewChallengeID()
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}
