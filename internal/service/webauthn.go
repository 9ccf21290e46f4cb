package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/internal/cache"
	"github.com/passkeyhq/passkey-backend/internal/domain"
	"github.com/passkeyhq/passkey-backend/internal/storage"
	"github.com/passkeyhq/passkey-backend/pkg/b64url"
	"github.com/passkeyhq/passkey-backend/pkg/config"
)

// Ceremony errors. Handlers dispatch on these with errors.Is to pick
// status codes, so every error leaving this package wraps one of them.
var (
	// ErrValidation covers malformed or missing input before any
	// cryptographic check runs.
	ErrValidation = errors.New("validation failed")

	// ErrChallengeExpired covers a challenge that is unknown, expired,
	// or already consumed.
	ErrChallengeExpired = errors.New("challenge expired or not found")

	// ErrNotFound covers unknown users and unknown or revoked
	// credentials. A user with no registered credentials reports the
	// same error as an unknown user.
	ErrNotFound = errors.New("not found")

	// ErrVerification covers signature, origin, RP ID, and flag failures
	// during ceremony verification.
	ErrVerification = errors.New("verification failed")

	// ErrReplayDetected covers a signature counter that did not advance,
	// which indicates a replayed assertion or a cloned authenticator.
	ErrReplayDetected = errors.New("replay detected")
)

// RegistrationOptions is returned to the client to start a registration
// ceremony. ChallengeID keys the pending state and must be echoed back
// on finish.
type RegistrationOptions struct {
	ChallengeID string                       `json:"challenge_id"`
	PublicKey   *protocol.CredentialCreation `json:"options"`
}

// AuthenticationOptions is returned to the client to start an
// authentication ceremony.
type AuthenticationOptions struct {
	ChallengeID string                        `json:"challenge_id"`
	PublicKey   *protocol.CredentialAssertion `json:"options"`
}

// AuthResult is the outcome of a completed ceremony.
type AuthResult struct {
	Token      string             `json:"token"`
	User       *domain.User       `json:"user"`
	Credential *domain.Credential `json:"credential"`
}

// WebAuthnService runs registration and authentication ceremonies.
type WebAuthnService struct {
	store  storage.Store
	cache  cache.ChallengeCache
	tokens *TokenService
	web    *webauthn.WebAuthn
	cfg    *config.WebAuthnConfig
	ttl    time.Duration
	logger *zap.Logger
}

// NewWebAuthnService creates the ceremony engine.
func NewWebAuthnService(
	store storage.Store,
	challengeCache cache.ChallengeCache,
	tokens *TokenService,
	cfg *config.WebAuthnConfig,
	logger *zap.Logger,
) (*WebAuthnService, error) {
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &WebAuthnService{
		store:  store,
		cache:  challengeCache,
		tokens: tokens,
		web:    web,
		cfg:    cfg,
		ttl:    time.Duration(cfg.ChallengeTTLSeconds) * time.Second,
		logger: logger.Named("webauthn"),
	}, nil
}

// webauthnUser adapts a domain user and its credentials to the library's
// user interface. The WebAuthn user handle is the raw UUID bytes of the
// user ID, so discoverable assertions can be mapped back to an account.
type webauthnUser struct {
	user        *domain.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte          { return u.user.ID.AsUserHandle() }
func (u *webauthnUser) WebAuthnName() string        { return u.user.Username }
func (u *webauthnUser) WebAuthnDisplayName() string { return u.user.DisplayName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// activeCredentials loads the user's non-revoked credentials in both
// domain and library form.
func (s *WebAuthnService) activeCredentials(ctx context.Context, userID domain.UserID) ([]*domain.Credential, []webauthn.Credential, error) {
	stored, err := s.store.Credentials().GetAllByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	domainCreds := make([]*domain.Credential, 0, len(stored))
	webCreds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		if c.Revoked {
			continue
		}
		wc, err := c.Webauthn()
		if err != nil {
			return nil, nil, fmt.Errorf("corrupt credential %s: %w", c.ID, err)
		}
		domainCreds = append(domainCreds, c)
		webCreds = append(webCreds, wc)
	}
	return domainCreds, webCreds, nil
}

func (s *WebAuthnService) userVerification() protocol.UserVerificationRequirement {
	switch s.cfg.UserVerification {
	case "required":
		return protocol.VerificationRequired
	case "discouraged":
		return protocol.VerificationDiscouraged
	default:
		return protocol.VerificationPreferred
	}
}

func (s *WebAuthnService) conveyance() protocol.ConveyancePreference {
	switch s.cfg.Attestation {
	case "direct":
		return protocol.PreferDirectAttestation
	case "indirect":
		return protocol.PreferIndirectAttestation
	default:
		return protocol.PreferNoAttestation
	}
}

// BeginRegistration starts a registration ceremony. An unknown username
// creates a new account; a known one registers an additional credential,
// with existing credentials excluded so the authenticator refuses to
// re-enroll.
func (s *WebAuthnService) BeginRegistration(ctx context.Context, username, displayName string) (*RegistrationOptions, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if displayName == "" {
		displayName = username
	}

	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
		user = &domain.User{
			ID:          domain.NewUserID(),
			Username:    username,
			DisplayName: displayName,
		}
		if err := s.store.Users().Create(ctx, user); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Raced with a concurrent registration for the same name.
				user, err = s.store.Users().GetByUsername(ctx, username)
				if err != nil {
					return nil, fmt.Errorf("failed to look up user: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to create user: %w", err)
			}
		}
	}

	existing, webCreds, err := s.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, c := range existing {
		d, err := c.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("corrupt credential %s: %w", c.ID, err)
		}
		exclusions = append(exclusions, d)
	}

	wu := &webauthnUser{user: user, credentials: webCreds}
	options, session, err := s.web.BeginRegistration(wu,
		webauthn.WithExclusions(exclusions),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: s.userVerification(),
		}),
		webauthn.WithConveyancePreference(s.conveyance()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	challenge := &domain.Challenge{
		ID:      domain.NewChallengeID(),
		UserID:  user.ID.String(),
		Type:    domain.CeremonyRegistration,
		Session: *session,
	}
	if err := s.cache.Put(ctx, challenge, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Debug("registration started",
		zap.String("username", username),
		zap.String("challenge_id", challenge.ID))

	return &RegistrationOptions{ChallengeID: challenge.ID, PublicKey: options}, nil
}

// FinishRegistration verifies an attestation response and persists the
// new credential. The challenge is consumed whether or not verification
// succeeds; a failed attempt requires a fresh ceremony.
func (s *WebAuthnService) FinishRegistration(ctx context.Context, challengeID string, body io.Reader) (*AuthResult, error) {
	if challengeID == "" {
		return nil, fmt.Errorf("%w: challenge_id is required", ErrValidation)
	}

	challenge, err := s.cache.Take(ctx, challengeID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}
	if challenge.Type != domain.CeremonyRegistration {
		return nil, fmt.Errorf("%w: challenge is not a registration challenge", ErrValidation)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	user, err := s.store.Users().GetByID(ctx, domain.UserIDFromString(challenge.UserID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	_, webCreds, err := s.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	wu := &webauthnUser{user: user, credentials: webCreds}

	cred, err := s.web.CreateCredential(wu, challenge.Session, parsed)
	if err != nil {
		s.logger.Info("registration verification failed",
			zap.String("username", user.Username),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	credential := domain.NewCredential(user.ID, cred)
	if err := s.store.Credentials().Create(ctx, credential); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: credential already registered", ErrValidation)
		}
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("credential registered",
		zap.String("username", user.Username),
		zap.String("credential_id", credential.ID))

	return &AuthResult{Token: token, User: user, Credential: credential}, nil
}

// BeginLogin starts an authentication ceremony for a known username.
// An unknown username and a username with no usable credentials report
// the same error, so the endpoint does not leak which accounts exist.
func (s *WebAuthnService) BeginLogin(ctx context.Context, username string) (*AuthenticationOptions, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	_, webCreds, err := s.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(webCreds) == 0 {
		return nil, ErrNotFound
	}

	wu := &webauthnUser{user: user, credentials: webCreds}
	options, session, err := s.web.BeginLogin(wu,
		webauthn.WithUserVerification(s.userVerification()))
	if err != nil {
		return nil, fmt.Errorf("failed to begin login: %w", err)
	}

	challenge := &domain.Challenge{
		ID:      domain.NewChallengeID(),
		UserID:  user.ID.String(),
		Type:    domain.CeremonyAuthentication,
		Session: *session,
	}
	if err := s.cache.Put(ctx, challenge, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Debug("login started",
		zap.String("username", username),
		zap.String("challenge_id", challenge.ID))

	return &AuthenticationOptions{ChallengeID: challenge.ID, PublicKey: options}, nil
}

// BeginDiscoverableLogin starts a usernameless ceremony. The account is
// identified at finish time by the user handle the authenticator returns.
func (s *WebAuthnService) BeginDiscoverableLogin(ctx context.Context) (*AuthenticationOptions, error) {
	options, session, err := s.web.BeginDiscoverableLogin(
		webauthn.WithUserVerification(s.userVerification()))
	if err != nil {
		return nil, fmt.Errorf("failed to begin discoverable login: %w", err)
	}

	challenge := &domain.Challenge{
		ID:      domain.NewChallengeID(),
		Type:    domain.CeremonyAuthentication,
		Session: *session,
	}
	if err := s.cache.Put(ctx, challenge, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return &AuthenticationOptions{ChallengeID: challenge.ID, PublicKey: options}, nil
}

// FinishLogin verifies an assertion response, advances the signature
// counter, and issues a session token. The challenge is consumed on the
// first attempt regardless of outcome.
func (s *WebAuthnService) FinishLogin(ctx context.Context, challengeID string, body io.Reader) (*AuthResult, error) {
	if challengeID == "" {
		return nil, fmt.Errorf("%w: challenge_id is required", ErrValidation)
	}

	challenge, err := s.cache.Take(ctx, challengeID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}
	if challenge.Type != domain.CeremonyAuthentication {
		return nil, fmt.Errorf("%w: challenge is not an authentication challenge", ErrValidation)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	stored, err := s.store.Credentials().GetByID(ctx, b64url.Encode(parsed.RawID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if stored.Revoked {
		return nil, ErrNotFound
	}

	var (
		user     *domain.User
		verified *webauthn.Credential
	)
	if challenge.UserID != "" {
		user, verified, err = s.validateLogin(ctx, challenge, parsed, stored)
	} else {
		user, verified, err = s.validateDiscoverableLogin(ctx, challenge, parsed, stored)
	}
	if err != nil {
		return nil, err
	}

	if err := s.advanceCounter(ctx, stored, verified.Authenticator.SignCount); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded",
		zap.String("username", user.Username),
		zap.String("credential_id", stored.ID))

	return &AuthResult{Token: token, User: user, Credential: stored}, nil
}

// validateLogin handles the username flow: the challenge is bound to a
// user and the asserted credential must belong to that user.
func (s *WebAuthnService) validateLogin(ctx context.Context, challenge *domain.Challenge, parsed *protocol.ParsedCredentialAssertionData, stored *domain.Credential) (*domain.User, *webauthn.Credential, error) {
	user, err := s.store.Users().GetByID(ctx, domain.UserIDFromString(challenge.UserID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if stored.UserID != user.ID {
		return nil, nil, ErrNotFound
	}

	_, webCreds, err := s.activeCredentials(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	wu := &webauthnUser{user: user, credentials: webCreds}

	verified, err := s.web.ValidateLogin(wu, challenge.Session, parsed)
	if err != nil {
		s.logger.Info("login verification failed",
			zap.String("username", user.Username),
			zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return user, verified, nil
}

// validateDiscoverableLogin handles the usernameless flow: the account is
// resolved from the user handle inside the assertion.
func (s *WebAuthnService) validateDiscoverableLogin(ctx context.Context, challenge *domain.Challenge, parsed *protocol.ParsedCredentialAssertionData, stored *domain.Credential) (*domain.User, *webauthn.Credential, error) {
	var user *domain.User

	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		userID, err := domain.UserIDFromUserHandle(userHandle)
		if err != nil {
			return nil, err
		}
		u, err := s.store.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		_, webCreds, err := s.activeCredentials(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		user = u
		return &webauthnUser{user: u, credentials: webCreds}, nil
	}

	verified, err := s.web.ValidateDiscoverableLogin(handler, challenge.Session, parsed)
	if err != nil {
		s.logger.Info("discoverable login verification failed", zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if stored.UserID != user.ID {
		return nil, nil, ErrNotFound
	}
	return user, verified, nil
}

// advanceCounter applies the anti-replay rule. Authenticators that have
// never reported a nonzero counter are exempt; otherwise the counter
// must strictly increase, enforced by a compare-and-set at the storage
// layer so concurrent assertions cannot both win.
func (s *WebAuthnService) advanceCounter(ctx context.Context, stored *domain.Credential, newCount uint32) error {
	if newCount == 0 && stored.SignCount == 0 && !stored.CounterMonotonic {
		if err := s.store.Credentials().TouchLastUsed(ctx, stored.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update last used: %w", err)
		}
		now := time.Now()
		stored.LastUsedAt = &now
		return nil
	}
	if newCount <= stored.SignCount {
		s.logger.Warn("signature counter did not advance",
			zap.String("credential_id", stored.ID),
			zap.Uint32("stored", stored.SignCount),
			zap.Uint32("received", newCount))
		return fmt.Errorf("%w: counter %d not above %d", ErrReplayDetected, newCount, stored.SignCount)
	}

	if err := s.store.Credentials().UpdateSignCount(ctx, stored.ID, newCount); err != nil {
		if errors.Is(err, storage.ErrStaleCounter) {
			return fmt.Errorf("%w: concurrent assertion won the counter race", ErrReplayDetected)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update sign count: %w", err)
	}

	stored.SignCount = newCount
	stored.CounterMonotonic = true
	return nil
}

// Account returns the user record for a verified session subject.
func (s *WebAuthnService) Account(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// UserCredentials lists all credentials registered to a user, including
// revoked ones.
func (s *WebAuthnService) UserCredentials(ctx context.Context, username string) ([]*domain.Credential, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	credentials, err := s.store.Credentials().GetAllByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return credentials, nil
}
