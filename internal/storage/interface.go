package storage

import (
	"context"
	"errors"

	"github.com/passkeyhq/passkey-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStaleCounter is returned by UpdateSignCount when the stored
	// counter is not strictly less than the submitted one.
	ErrStaleCounter = errors.New("stale signature counter")
	ErrDatabase     = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user. Usernames are unique; a duplicate
	// returns ErrAlreadyExists.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// CredentialStore defines the interface for passkey credential storage
type CredentialStore interface {
	// Create creates a new credential. Credential IDs are globally
	// unique; a duplicate returns ErrAlreadyExists.
	Create(ctx context.Context, credential *domain.Credential) error

	// GetByID retrieves a credential by its Base64URL credential ID
	GetByID(ctx context.Context, id string) (*domain.Credential, error)

	// GetAllByUser retrieves all credentials registered to a user
	GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Credential, error)

	// UpdateSignCount sets the signature counter to signCount only if the
	// stored value is strictly smaller (atomic compare-and-set). It also
	// stamps last-use time and marks the counter monotonic. Returns
	// ErrStaleCounter when the guard fails, ErrNotFound when the
	// credential does not exist.
	UpdateSignCount(ctx context.Context, id string, signCount uint32) error

	// TouchLastUsed stamps the last-use time without moving the counter,
	// for authenticators that never report one.
	TouchLastUsed(ctx context.Context, id string) error

	// Revoke marks a credential unusable without deleting it.
	Revoke(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Credentials() CredentialStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
