package cache

import (
	"context"
	"errors"
	"time"

	"github.com/passkeyhq/passkey-backend/internal/domain"
)

// ErrNotFound is returned by Take when the challenge does not exist, has
// expired, or was already consumed. Callers cannot distinguish the three
// cases, which is intentional.
var ErrNotFound = errors.New("challenge not found")

// ChallengeCache stores pending ceremony state for the window between
// option generation and response verification. Entries are single use:
// Take removes the entry atomically, so a challenge can never be
// consumed twice even under concurrent verification attempts.
type ChallengeCache interface {
	// Put stores a challenge with the given time-to-live.
	Put(ctx context.Context, challenge *domain.Challenge, ttl time.Duration) error

	// Take retrieves and removes a challenge in one atomic step.
	// Returns ErrNotFound if it is missing or expired.
	Take(ctx context.Context, id string) (*domain.Challenge, error)

	// Close releases any underlying resources.
	Close() error
}
