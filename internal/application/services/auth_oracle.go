package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

const (
	purposeSession      = "session"
	purposeVerification = "verify_email"
)

// Claims represents the JWT claims
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Purpose       string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenOracle is the AuthOracle backed by the account repository. Sessions are
// signed JWTs; sign-out revokes a token by its id until it expires.
type TokenOracle struct {
	accounts  ports.AccountRepository
	jwtConfig config.JWTConfig
	logger    *logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	revoked   map[string]time.Time            // jti -> expiry
	live      map[string]map[string]time.Time // user id -> token -> expiry
	listeners map[int]func(ports.SessionEvent)
	nextID    int
}

// NewTokenOracle creates a new token-based auth oracle
func NewTokenOracle(accounts ports.AccountRepository, jwtConfig config.JWTConfig, logger *logger.Logger) *TokenOracle {
	return &TokenOracle{
		accounts:  accounts,
		jwtConfig: jwtConfig,
		logger:    logger.WithComponent("auth_oracle"),
		now:       time.Now,
		revoked:   make(map[string]time.Time),
		live:      make(map[string]map[string]time.Time),
		listeners: make(map[int]func(ports.SessionEvent)),
	}
}

// SignUp creates an account and signs it in.
func (o *TokenOracle) SignUp(ctx context.Context, email, password string) (*ports.Session, error) {
	email = strings.TrimSpace(email)
	if _, err := o.accounts.GetByEmail(ctx, email); err == nil {
		return nil, entities.ValidationError("email", "is already registered")
	} else if !errors.Is(err, entities.ErrNotFound) {
		return nil, fmt.Errorf("look up account: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &ports.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    o.now().UTC(),
	}
	if err := o.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	o.logger.Infow("Account created", "user_id", account.ID, "email", account.Email)
	return o.startSession(account)
}

func (o *TokenOracle) SignIn(ctx context.Context, email, password string) (*ports.Session, error) {
	account, err := o.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			o.logger.Warnw("Sign-in attempt with unknown email", "email", email)
			return nil, entities.Unauthenticatedf("invalid credentials")
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		o.logger.Warnw("Sign-in attempt with invalid password", "email", email, "user_id", account.ID)
		return nil, entities.Unauthenticatedf("invalid credentials")
	}

	return o.startSession(account)
}

func (o *TokenOracle) startSession(account *ports.Account) (*ports.Session, error) {
	now := o.now()
	expiresAt := now.Add(o.jwtConfig.ExpiresIn)
	claims := &Claims{
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		Purpose:       purposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    o.jwtConfig.Issuer,
			Subject:   account.ID,
		},
	}
	token, err := o.sign(claims)
	if err != nil {
		return nil, err
	}

	session := &ports.Session{
		UserID:        account.ID,
		Email:         account.Email,
		EmailVerified: account.EmailVerified,
		Token:         token,
		ExpiresAt:     expiresAt,
	}

	o.mu.Lock()
	if o.live[account.ID] == nil {
		o.live[account.ID] = make(map[string]time.Time)
	}
	o.live[account.ID][token] = expiresAt
	o.mu.Unlock()

	o.emit(ports.SessionEvent{Kind: ports.SessionSignedIn, Token: token, Session: session})
	return session, nil
}

func (o *TokenOracle) SignOut(ctx context.Context, token string) error {
	claims, err := o.parse(token, purposeSession)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.revoked[claims.ID] = claims.ExpiresAt.Time
	delete(o.live[claims.Subject], token)
	if len(o.live[claims.Subject]) == 0 {
		delete(o.live, claims.Subject)
	}
	o.pruneLocked()
	o.mu.Unlock()

	o.logger.Infow("Signed out", "user_id", claims.Subject)
	o.emit(ports.SessionEvent{Kind: ports.SessionSignedOut, Token: token})
	return nil
}

// Verify checks the token signature, purpose, expiry and revocation.
func (o *TokenOracle) Verify(ctx context.Context, token string) (*ports.Session, error) {
	claims, err := o.parse(token, purposeSession)
	if err != nil {
		return nil, err
	}
	return &ports.Session{
		UserID:        claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Token:         token,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

// Reload re-reads the account so a confirmed email shows up on a token that
// was issued before the confirmation.
func (o *TokenOracle) Reload(ctx context.Context, token string) (*ports.Session, error) {
	session, err := o.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	account, err := o.accounts.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			return nil, entities.Unauthenticatedf("account no longer exists")
		}
		return nil, fmt.Errorf("reload account: %w", err)
	}
	session.Email = account.Email
	session.EmailVerified = account.EmailVerified
	return session, nil
}

// IssueVerification returns a signed, single-purpose email verification token.
func (o *TokenOracle) IssueVerification(ctx context.Context, userID string) (string, error) {
	account, err := o.accounts.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("issue verification: %w", err)
	}
	now := o.now()
	claims := &Claims{
		Email:   account.Email,
		Purpose: purposeVerification,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.jwtConfig.VerificationExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    o.jwtConfig.Issuer,
			Subject:   account.ID,
		},
	}
	return o.sign(claims)
}

// ConfirmEmail marks the account verified and reloads its live sessions.
func (o *TokenOracle) ConfirmEmail(ctx context.Context, verificationToken string) error {
	claims, err := o.parse(verificationToken, purposeVerification)
	if err != nil {
		return err
	}
	if _, err := o.accounts.GetByID(ctx, claims.Subject); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if err := o.accounts.MarkVerified(ctx, claims.Subject); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	o.logger.Infow("Email verified", "user_id", claims.Subject)

	o.mu.Lock()
	tokens := make([]string, 0, len(o.live[claims.Subject]))
	for token := range o.live[claims.Subject] {
		tokens = append(tokens, token)
	}
	o.mu.Unlock()

	for _, token := range tokens {
		session, err := o.Reload(ctx, token)
		if err != nil {
			continue
		}
		o.emit(ports.SessionEvent{Kind: ports.SessionReloaded, Token: token, Session: session})
	}
	return nil
}

// OnSessionChange registers fn for every session event. Listeners run on the
// caller's goroutine, outside the oracle's lock.
func (o *TokenOracle) OnSessionChange(fn func(ports.SessionEvent)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

func (o *TokenOracle) emit(ev ports.SessionEvent) {
	o.mu.Lock()
	fns := make([]func(ports.SessionEvent), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (o *TokenOracle) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(o.jwtConfig.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (o *TokenOracle) parse(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(o.jwtConfig.Secret), nil
	}, jwt.WithTimeFunc(o.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, entities.Unauthenticatedf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Purpose != purpose || claims.Subject == "" {
		return nil, entities.Unauthenticatedf("invalid token claims")
	}

	o.mu.Lock()
	_, revoked := o.revoked[claims.ID]
	o.mu.Unlock()
	if revoked {
		return nil, entities.Unauthenticatedf("token has been revoked")
	}
	return claims, nil
}

func (o *TokenOracle) pruneLocked() {
	now := o.now()
	for jti, exp := range o.revoked {
		if now.After(exp) {
			delete(o.revoked, jti)
		}
	}
	for userID, tokens := range o.live {
		for token, exp := range tokens {
			if now.After(exp) {
				delete(tokens, token)
			}
		}
		if len(tokens) == 0 {
			delete(o.live, userID)
		}
	}
}
