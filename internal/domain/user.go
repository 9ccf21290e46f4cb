package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserID represents a unique user identifier
type UserID struct {
	ID string `json:"id" bson:"id"`
}

// NewUserID creates a new user ID
func NewUserID() UserID {
	return UserID{ID: uuid.New().String()}
}

// UserIDFromString creates a UserID from a string
func UserIDFromString(id string) UserID {
	return UserID{ID: id}
}

// String returns the string representation
func (u UserID) String() string {
	return u.ID
}

// AsUserHandle returns the WebAuthn user handle: the raw 16 UUID bytes.
// The handle is derived deterministically from the identifier and stays
// well under the 64-byte limit.
func (u UserID) AsUserHandle() []byte {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		// Non-UUID identifiers (only possible via hand-built values in
		// tests) fall back to the raw string bytes.
		return []byte(u.ID)
	}
	return id[:]
}

// UserIDFromUserHandle recovers a UserID from a WebAuthn user handle.
func UserIDFromUserHandle(handle []byte) (UserID, error) {
	id, err := uuid.FromBytes(handle)
	if err != nil {
		return UserID{}, fmt.Errorf("invalid user handle: %w", err)
	}
	return UserID{ID: id.String()}, nil
}

// User represents an account that authenticates with passkeys.
// The username is unique and immutable after creation.
type User struct {
	ID          UserID    `json:"id" bson:"_id"`
	Username    string    `json:"username" bson:"username"`
	DisplayName string    `json:"display_name" bson:"display_name"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
