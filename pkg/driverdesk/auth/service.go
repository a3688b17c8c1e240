package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

// Service handles staff registration and login against the repository.
type Service struct {
	repo   driverdesk.Repository
	issuer *TokenIssuer
	now    func() time.Time
}

// NewService constructs an auth Service with required dependencies.
func NewService(repo driverdesk.Repository, issuer *TokenIssuer) *Service {
	return &Service{repo: repo, issuer: issuer, now: time.Now}
}

// Register creates a staff user with a per-user salt.
func (s *Service) Register(ctx context.Context, username, password, role string) (*driverdesk.StaffUser, error) {
	if username == "" || password == "" {
		return nil, &driverdesk.ValidationError{Field: "username", Msg: "username and password are required"}
	}
	if role == "" {
		role = "staff"
	}

	salt, err := RandBytes(16)
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	user := &driverdesk.StaffUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: HashPassword([]byte(password), salt),
		PasswordSalt: salt,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateStaffUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates a staff user and returns a signed access token.
// Wrong password and unknown username are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, err error) {
	user, err := s.repo.GetStaffUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, driverdesk.ErrUserNotFound) {
			return "", time.Time{}, driverdesk.ErrInvalidCredentials
		}
		return "", time.Time{}, err
	}
	if !VerifyPassword([]byte(password), user.PasswordSalt, user.PasswordHash) {
		return "", time.Time{}, driverdesk.ErrInvalidCredentials
	}
	return s.issuer.Issue(user.ID.String(), user.Role)
}
