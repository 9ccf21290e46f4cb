package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passkeyhq/passkey-backend/internal/domain"
	"github.com/passkeyhq/passkey-backend/internal/storage"
)

func newTestUser(username string) *domain.User {
	return &domain.User{
		ID:          domain.NewUserID(),
		Username:    username,
		DisplayName: username,
	}
}

func newTestCredential(id string, userID domain.UserID) *domain.Credential {
	return &domain.Credential{
		ID:        id,
		UserID:    userID,
		PublicKey: []byte{1, 2, 3},
	}
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := newTestUser("alice")
	require.NoError(t, store.Users().Create(ctx, user))

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	got, err = store.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.Users().GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUserStore_DuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Users().Create(ctx, newTestUser("alice")))
	err := store.Users().Create(ctx, newTestUser("alice"))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := newTestUser("alice")
	require.NoError(t, store.Users().Create(ctx, user))

	cred := newTestCredential("cred-1", user.ID)
	require.NoError(t, store.Credentials().Create(ctx, cred))

	err := store.Credentials().Create(ctx, newTestCredential("cred-1", user.ID))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := store.Credentials().GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	_, err = store.Credentials().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Credentials().Create(ctx, newTestCredential("cred-2", user.ID)))
	all, err := store.Credentials().GetAllByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := store.Credentials().GetAllByUser(ctx, domain.NewUserID())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateSignCount(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := newTestUser("alice")
	cred := newTestCredential("cred-1", user.ID)
	require.NoError(t, store.Credentials().Create(ctx, cred))

	require.NoError(t, store.Credentials().UpdateSignCount(ctx, "cred-1", 5))

	got, err := store.Credentials().GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.SignCount)
	assert.True(t, got.CounterMonotonic)
	assert.NotNil(t, got.LastUsedAt)

	// Equal and smaller counters must fail the guard.
	assert.ErrorIs(t, store.Credentials().UpdateSignCount(ctx, "cred-1", 5), storage.ErrStaleCounter)
	assert.ErrorIs(t, store.Credentials().UpdateSignCount(ctx, "cred-1", 3), storage.ErrStaleCounter)

	assert.ErrorIs(t, store.Credentials().UpdateSignCount(ctx, "missing", 1), storage.ErrNotFound)
}

func TestTouchLastUsed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cred := newTestCredential("cred-1", domain.NewUserID())
	require.NoError(t, store.Credentials().Create(ctx, cred))

	require.NoError(t, store.Credentials().TouchLastUsed(ctx, "cred-1"))

	got, err := store.Credentials().GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
	// The counter state is untouched.
	assert.Equal(t, uint32(0), got.SignCount)
	assert.False(t, got.CounterMonotonic)

	assert.ErrorIs(t, store.Credentials().TouchLastUsed(ctx, "missing"), storage.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cred := newTestCredential("cred-1", domain.NewUserID())
	require.NoError(t, store.Credentials().Create(ctx, cred))

	require.NoError(t, store.Credentials().Revoke(ctx, "cred-1"))

	got, err := store.Credentials().GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	assert.ErrorIs(t, store.Credentials().Revoke(ctx, "missing"), storage.ErrNotFound)
}

func TestUpdateSignCount_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cred := newTestCredential("cred-1", domain.NewUserID())
	cred.SignCount = 10
	require.NoError(t, store.Credentials().Create(ctx, cred))

	// All goroutines try to advance 10 -> 11. Exactly one must win.
	const workers = 32
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Credentials().UpdateSignCount(ctx, "cred-1", 11)
		}()
	}
	wg.Wait()
	close(results)

	var wins, stale int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, storage.ErrStaleCounter)
			stale++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, stale)

	got, err := store.Credentials().GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(11), got.SignCount)
}
