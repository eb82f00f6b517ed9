package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

type authFixture struct {
	oracle   *TokenOracle
	resolver *SessionResolver
	users    ports.UserRepository
	auth     *AuthService
	profiles *UserService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	users := repository.NewUserRepository(store)
	oracle := NewTokenOracle(repository.NewAccountRepository(store), testJWTConfig(), logger.Nop())
	resolver := NewSessionResolver(oracle, users, time.Second, logger.Nop())
	resolver.Start()
	t.Cleanup(resolver.Stop)

	validator := NewValidator()
	return &authFixture{
		oracle:   oracle,
		resolver: resolver,
		users:    users,
		auth:     NewAuthService(oracle, users, resolver, validator, logger.Nop()),
		profiles: NewUserService(users, resolver, validator, logger.Nop()),
	}
}

func registerRequest(email string, role entities.UserRole) ports.RegisterRequest {
	return ports.RegisterRequest{
		Email:      email,
		Password:   "secret1",
		FirstName:  "Alice",
		LastName:   "Ng",
		Role:       role,
		Department: "IT",
	}
}

func TestRegisterVerifyAndGate(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	result, err := f.auth.Register(ctx, registerRequest("alice@corp.io", entities.UserRoleTeamMember))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.User.FullName != "Alice Ng" || result.User.Role != entities.UserRoleTeamMember || result.User.Department != "IT" {
		t.Fatalf("profile not merged: %+v", result.User)
	}
	if result.User.EmailVerified {
		t.Fatalf("new registration must be unverified")
	}
	if d := EvaluateAccess(false, result.User, DashboardPath); d.Path != VerifyEmailPath {
		t.Fatalf("unverified user should be sent to verification, got %+v", d)
	}

	if err := f.auth.VerifyEmail(ctx, ports.VerifyEmailRequest{Token: result.VerificationToken}); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	user, err := f.resolver.Current(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !user.EmailVerified {
		t.Fatalf("verification did not reach the resolved user")
	}
	if d := EvaluateAccess(false, user, DashboardPath); !d.Allowed() {
		t.Fatalf("verified team member should see the dashboard, got %+v", d)
	}
	if d := EvaluateAccess(false, user, BoardPath); d.Path != DashboardPath {
		t.Fatalf("team member should be redirected from the board, got %+v", d)
	}

	if _, err := f.auth.ResendVerification(ctx, user); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected already-verified error, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)
	tests := []struct {
		name  string
		edit  func(*ports.RegisterRequest)
		field string
	}{
		{"bad email", func(r *ports.RegisterRequest) { r.Email = "nope" }, "email"},
		{"short password", func(r *ports.RegisterRequest) { r.Password = "123" }, "password"},
		{"unknown role", func(r *ports.RegisterRequest) { r.Role = "admin" }, "role"},
		{"missing department", func(r *ports.RegisterRequest) { r.Department = "" }, "department"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := registerRequest("v@corp.io", entities.UserRoleManager)
			tt.edit(&req)
			_, err := f.auth.Register(context.Background(), req)
			if !errors.Is(err, entities.ErrValidation) || entities.FieldOf(err) != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	if _, err := f.auth.Register(ctx, registerRequest("maria@corp.io", entities.UserRoleManager)); err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := f.auth.Login(ctx, ports.LoginRequest{Email: "maria@corp.io", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn <= 0 || resp.ExpiresIn > int64(time.Hour.Seconds()) {
		t.Fatalf("unexpected auth response %+v", resp)
	}
	if !resp.User.IsManager() {
		t.Fatalf("expected manager, got %+v", resp.User)
	}

	if _, err := f.auth.Login(ctx, ports.LoginRequest{Email: "maria@corp.io", Password: "wrong"}); !errors.Is(err, entities.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	if err := f.auth.Logout(ctx, resp.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, known := f.resolver.Lookup(resp.AccessToken); known {
		t.Fatalf("logged out session still resolved")
	}
	if _, err := f.resolver.Current(ctx, resp.AccessToken); !errors.Is(err, entities.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after logout, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	result, err := f.auth.Register(ctx, registerRequest("cara@corp.io", entities.UserRoleTeamMember))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := f.auth.ResendVerification(ctx, result.User)
	if err != nil || token == "" {
		t.Fatalf("resend: %q, %v", token, err)
	}
	if err := f.auth.VerifyEmail(ctx, ports.VerifyEmailRequest{Token: token}); err != nil {
		t.Fatalf("verify with resent token: %v", err)
	}
	if _, err := f.auth.ResendVerification(ctx, nil); !errors.Is(err, entities.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}
