package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// AuthService handles registration and the session lifecycle on top of the
// auth oracle.
type AuthService struct {
	oracle    ports.AuthOracle
	users     ports.UserRepository
	resolver  *SessionResolver
	validator *Validator
	logger    *logger.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(oracle ports.AuthOracle, users ports.UserRepository, resolver *SessionResolver, validator *Validator, logger *logger.Logger) *AuthService {
	return &AuthService{
		oracle:    oracle,
		users:     users,
		resolver:  resolver,
		validator: validator,
		logger:    logger.WithComponent("auth_service"),
		now:       time.Now,
	}
}

// Register creates the account, writes the profile at users/{id} and issues
// an email verification token.
func (s *AuthService) Register(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.oracle.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	profile := &entities.User{
		ID:         session.UserID,
		Email:      session.Email,
		FirstName:  firstName,
		LastName:   lastName,
		FullName:   strings.TrimSpace(firstName + " " + lastName),
		Role:       req.Role,
		Department: strings.TrimSpace(req.Department),
	}
	if err := s.users.Create(ctx, profile); err != nil {
		// The account exists without a profile; it resolves without a role
		// until the profile is written.
		s.logger.Errorw("Profile write failed after sign-up", "user_id", session.UserID, "error", err)
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.resolver.Refresh(ctx, session.UserID)

	verification, err := s.oracle.IssueVerification(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification: %w", err)
	}

	user, err := s.resolver.Current(ctx, session.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	s.logger.LogUserAction(user.ID, "user.register", map[string]interface{}{
		"role":       string(user.Role),
		"department": user.Department,
	})
	return &ports.RegisterResult{User: user, Session: session, VerificationToken: verification}, nil
}

// Login signs in and returns the resolved user with its session token.
func (s *AuthService) Login(ctx context.Context, req ports.LoginRequest) (*ports.AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	session, err := s.oracle.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	user, err := s.resolver.Current(ctx, session.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	s.logger.Infow("User logged in successfully", "user_id", user.ID)
	return s.SessionResponse(session, user), nil
}

// Logout ends the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.oracle.SignOut(ctx, token); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// VerifyEmail confirms the address behind a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, req ports.VerifyEmailRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}
	if err := s.oracle.ConfirmEmail(ctx, req.Token); err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	return nil
}

// ResendVerification issues a fresh verification token for user.
func (s *AuthService) ResendVerification(ctx context.Context, user *entities.User) (string, error) {
	if user == nil {
		return "", entities.Unauthenticatedf("sign in to request verification")
	}
	if user.EmailVerified {
		return "", entities.ValidationError("email", "is already verified")
	}
	token, err := s.oracle.IssueVerification(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to issue verification: %w", err)
	}
	s.logger.Infow("Verification token issued", "user_id", user.ID)
	return token, nil
}

// SessionResponse builds the token response for a signed-in session.
func (s *AuthService) SessionResponse(session *ports.Session, user *entities.User) *ports.AuthResponse {
	expiresIn := int64(session.ExpiresAt.Sub(s.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &ports.AuthResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		User:        user,
	}
}
