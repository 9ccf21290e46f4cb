package memory

import (
	"context"
	"sync"
	"time"

	"github.com/passkeyhq/passkey-backend/internal/domain"
	"github.com/passkeyhq/passkey-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users       *UserStore
	credentials *CredentialStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users: &UserStore{
			data:       make(map[string]*domain.User),
			byUsername: make(map[string]string),
		},
		credentials: &CredentialStore{data: make(map[string]*domain.Credential)},
	}
}

func (s *Store) Users() storage.UserStore             { return s.users }
func (s *Store) Credentials() storage.CredentialStore { return s.credentials }
func (s *Store) Close() error                         { return nil }
func (s *Store) Ping(ctx context.Context) error       { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu         sync.RWMutex
	data       map[string]*domain.User
	byUsername map[string]string // username -> user ID
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID.String()]; exists {
		return storage.ErrAlreadyExists
	}
	if _, exists := s.byUsername[user.Username]; exists {
		return storage.ErrAlreadyExists
	}

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	s.data[user.ID.String()] = user
	s.byUsername[user.Username] = user.ID.String()
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id.String()]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byUsername[username]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.data[id], nil
}

// CredentialStore implements in-memory credential storage
type CredentialStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Credential // keyed by Base64URL credential ID
}

func (s *CredentialStore) Create(ctx context.Context, credential *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[credential.ID]; exists {
		return storage.ErrAlreadyExists
	}

	s.data[credential.ID] = credential
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return credential, nil
}

func (s *CredentialStore) GetAllByUser(ctx context.Context, userID domain.UserID) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credentials := make([]*domain.Credential, 0)
	for _, cred := range s.data {
		if cred.UserID == userID {
			credentials = append(credentials, cred)
		}
	}
	return credentials, nil
}

func (s *CredentialStore) UpdateSignCount(ctx context.Context, id string, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	// Compare-and-set under the store lock: two concurrent attempts with
	// the same counter can never both pass.
	if credential.SignCount >= signCount {
		return storage.ErrStaleCounter
	}

	now := time.Now()
	credential.SignCount = signCount
	credential.CounterMonotonic = true
	credential.LastUsedAt = &now
	return nil
}

func (s *CredentialStore) TouchLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	now := time.Now()
	credential.LastUsedAt = &now
	return nil
}

func (s *CredentialStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credential, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}

	credential.Revoked = true
	return nil
}
