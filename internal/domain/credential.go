package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/passkeyhq/passkey-backend/pkg/b64url"
)

// Credential is one registered authenticator binding for a user.
// The credential ID is globally unique across all users; ID holds its
// Base64URL form and doubles as the storage key.
type Credential struct {
	ID              string   `json:"id" bson:"_id"`
	UserID          UserID   `json:"user_id" bson:"user_id"`
	PublicKey       []byte   `json:"public_key" bson:"public_key"`
	AttestationType string   `json:"attestation_type" bson:"attestation_type"`
	Transports      []string `json:"transports,omitempty" bson:"transports,omitempty"`
	Flags           uint8    `json:"flags" bson:"flags"`
	AAGUID          []byte   `json:"aaguid,omitempty" bson:"aaguid,omitempty"`

	// SignCount is the last counter value the authenticator reported.
	// It must strictly increase on every successful authentication.
	SignCount uint32 `json:"sign_count" bson:"sign_count"`

	// CounterMonotonic records whether this authenticator has ever reported
	// a nonzero counter. Authenticators that always report 0 are exempt
	// from the replay check.
	CounterMonotonic bool `json:"counter_monotonic" bson:"counter_monotonic"`

	// Revoked marks the credential unusable without deleting the row.
	Revoked bool `json:"revoked" bson:"revoked"`

	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" bson:"last_used_at,omitempty"`
}

// Credential flag bits, matching the authenticator data flags byte.
const (
	FlagUserPresent    uint8 = 0x01
	FlagUserVerified   uint8 = 0x04
	FlagBackupEligible uint8 = 0x08
	FlagBackupState    uint8 = 0x10
)

// NewCredential builds a Credential from a verified registration result.
func NewCredential(userID UserID, cred *webauthn.Credential) *Credential {
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}

	return &Credential{
		ID:               b64url.Encode(cred.ID),
		UserID:           userID,
		PublicKey:        cred.PublicKey,
		AttestationType:  cred.AttestationType,
		Transports:       transports,
		Flags:            EncodeFlags(cred.Flags),
		AAGUID:           cred.Authenticator.AAGUID,
		SignCount:        cred.Authenticator.SignCount,
		CounterMonotonic: cred.Authenticator.SignCount > 0,
		CreatedAt:        time.Now(),
	}
}

// RawID returns the decoded credential ID bytes.
func (c *Credential) RawID() ([]byte, error) {
	return b64url.Decode(c.ID)
}

// Descriptor returns the credential as a WebAuthn descriptor for
// allow/exclude lists.
func (c *Credential) Descriptor() (protocol.CredentialDescriptor, error) {
	rawID, err := c.RawID()
	if err != nil {
		return protocol.CredentialDescriptor{}, err
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: rawID,
		Transport:    transports,
	}, nil
}

// Webauthn converts the stored record back into the library's credential
// type for verification.
func (c *Credential) Webauthn() (webauthn.Credential, error) {
	rawID, err := c.RawID()
	if err != nil {
		return webauthn.Credential{}, err
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              rawID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags:           DecodeFlags(c.Flags),
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}, nil
}

// EncodeFlags packs credential flags into the authenticator-data flag bits.
func EncodeFlags(flags webauthn.CredentialFlags) uint8 {
	var result uint8
	if flags.UserPresent {
		result |= FlagUserPresent
	}
	if flags.UserVerified {
		result |= FlagUserVerified
	}
	if flags.BackupEligible {
		result |= FlagBackupEligible
	}
	if flags.BackupState {
		result |= FlagBackupState
	}
	return result
}

// DecodeFlags is the inverse of EncodeFlags.
func DecodeFlags(flags uint8) webauthn.CredentialFlags {
	return webauthn.CredentialFlags{
		UserPresent:    flags&FlagUserPresent != 0,
		UserVerified:   flags&FlagUserVerified != 0,
		BackupEligible: flags&FlagBackupEligible != 0,
		BackupState:    flags&FlagBackupState != 0,
	}
}
