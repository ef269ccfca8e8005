/**
 * @description
 * AuthService owns registration and login. It combines the credential store, the
 * password hasher and the token service.
 *
 * @notes
 * - Unknown usernames and wrong passwords produce the same ErrInvalidCredentials.
 *   The distinction is only logged.
 * - An unknown username still pays for one bcrypt comparison against a dummy hash
 *   so response timing does not reveal which accounts exist.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/market-service/internal/domain"
	"github.com/transfa/market-service/internal/security"
	"github.com/transfa/market-service/internal/store"
	"github.com/transfa/market-service/pkg/rabbitmq"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._]*[a-z0-9])?$`)

// AuthService handles account registration and credential verification.
type AuthService struct {
	users     store.UserRepository
	hasher    *security.PasswordHasher
	tokens    *security.TokenService
	events    rabbitmq.Publisher
	logger    *slog.Logger
	dummyHash []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users store.UserRepository,
	hasher *security.PasswordHasher,
	tokens *security.TokenService,
	events rabbitmq.Publisher,
	logger *slog.Logger,
) (*AuthService, error) {
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	if events == nil {
		events = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		events:    events,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Register stores a new credential. A taken username yields domain.ErrUsernameTaken.
func (s *AuthService) Register(ctx context.Context, req domain.CredentialsRequest) (*domain.UserCredential, error) {
	username, err := normalizeAndValidateUsernameInput(req.Username)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, domain.UpstreamError("could not register user", err)
	}

	user := &domain.UserCredential{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: digest,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, domain.UpstreamError("could not register user", err)
	}

	event := domain.UserRegisteredEvent{
		UserID:       user.ID.String(),
		Username:     user.Username,
		RegisteredAt: user.CreatedAt,
	}
	if err := s.events.Publish(ctx, rabbitmq.ExchangeUserEvents, rabbitmq.RoutingKeyUserRegistered, event); err != nil {
		s.logger.Error("failed to publish user.registered event", "user_id", user.ID, "error", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Authenticate checks username and password against the store.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.UserCredential, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))
	if normalized == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			s.logger.Info("login rejected", "reason", "unknown_user")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.UpstreamError("could not verify credentials", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Info("login rejected", "reason", "password_mismatch", "user_id", user.ID)
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the caller and issues a session token.
func (s *AuthService) Login(ctx context.Context, req domain.CredentialsRequest) (*domain.SessionToken, error) {
	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	session, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, domain.UpstreamError("could not issue token", err)
	}
	return session, nil
}

func normalizeAndValidateUsernameInput(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if username == "" {
		return "", domain.ValidationError("username is required")
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return "", domain.ValidationError(fmt.Sprintf("username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return "", domain.ValidationError("username may contain only letters, digits, '.' and '_', and must start and end with a letter or digit")
	}
	return username, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.ValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > security.MaxPasswordBytes {
		return domain.ValidationError(fmt.Sprintf("password must be at most %d bytes", security.MaxPasswordBytes))
	}
	return nil
}
