package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// sharedOracle stands in for a token store shared by several API instances:
// revoke drops a session without telling this instance's resolver.
type sharedOracle struct {
	ports.AuthOracle

	mu       sync.Mutex
	sessions map[string]*ports.Session
}

func (o *sharedOracle) Verify(ctx context.Context, token string) (*ports.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[token]
	if !ok {
		return nil, entities.Unauthenticatedf("token has been revoked")
	}
	copied := *s
	return &copied, nil
}

func (o *sharedOracle) Reload(ctx context.Context, token string) (*ports.Session, error) {
	return o.Verify(ctx, token)
}

func (o *sharedOracle) OnSessionChange(fn func(ports.SessionEvent)) func() {
	return func() {}
}

func (o *sharedOracle) revoke(token string) {
	o.mu.Lock()
	delete(o.sessions, token)
	o.mu.Unlock()
}

type requestValidator struct {
	v *services.Validator
}

func (rv requestValidator) Validate(i interface{}) error { return rv.v.Validate(i) }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = requestValidator{v: services.NewValidator()}
	return e
}

func accessDecision(t *testing.T, e *echo.Echo, h *SessionHandler, token, path string) services.Decision {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/access?path="+path, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	if err := h.Access(e.NewContext(req, rec)); err != nil {
		t.Fatalf("access: %v", err)
	}
	var d services.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return d
}

func TestAccess_CachedSessionRevokedElsewhere(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(repository.NewMemoryStore())
	if err := users.Create(ctx, &entities.User{ID: "u1", Email: "alice@corp.io", Role: entities.UserRoleTeamMember, Department: "IT"}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	oracle := &sharedOracle{sessions: map[string]*ports.Session{
		"tok": {UserID: "u1", Email: "alice@corp.io", EmailVerified: true, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	resolver := services.NewSessionResolver(oracle, users, time.Second, logger.Nop())
	if _, err := resolver.Current(ctx, "tok"); err != nil {
		t.Fatalf("prime resolver: %v", err)
	}

	e := newEcho()
	h := NewSessionHandler(resolver, nil, logger.Nop())
	if d := accessDecision(t, e, h, "tok", services.DashboardPath); d.Kind != services.DecisionAllow {
		t.Fatalf("expected allow before revocation, got %+v", d)
	}

	oracle.revoke("tok")
	d := accessDecision(t, e, h, "tok", services.DashboardPath)
	if d.Kind != services.DecisionRedirect || d.Path != services.VerifyEmailPath {
		t.Fatalf("revoked session must not be allowed, got %+v", d)
	}
	if _, _, known := resolver.Lookup("tok"); known {
		t.Fatalf("revoked session still cached")
	}
}

func TestRegister_TokenLoggedOnlyWhenExposed(t *testing.T) {
	for _, expose := range []bool{false, true} {
		core, logs := observer.New(zapcore.DebugLevel)
		log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

		store := repository.NewMemoryStore()
		users := repository.NewUserRepository(store)
		oracle := services.NewTokenOracle(repository.NewAccountRepository(store), config.JWTConfig{
			Secret:                "test-secret",
			ExpiresIn:             time.Hour,
			VerificationExpiresIn: time.Hour,
			Issuer:                "deptflow-test",
		}, logger.Nop())
		resolver := services.NewSessionResolver(oracle, users, time.Second, logger.Nop())
		resolver.Start()
		auth := services.NewAuthService(oracle, users, resolver, services.NewValidator(), logger.Nop())
		h := NewAuthHandler(auth, expose, log)

		body := `{"email":"alice@corp.io","password":"secret1","firstName":"Alice","lastName":"Ng","role":"team-member","department":"IT"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		err := h.Register(newEcho().NewContext(req, rec))
		resolver.Stop()
		if err != nil {
			t.Fatalf("register (expose=%v): %v", expose, err)
		}

		var resp RegisterResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if (resp.VerificationToken != "") != expose {
			t.Fatalf("expose=%v but response token %q", expose, resp.VerificationToken)
		}

		issued := logs.FilterMessage("Verification token issued").All()
		if len(issued) != 1 {
			t.Fatalf("expected one issue log, got %d", len(issued))
		}
		_, logged := issued[0].ContextMap()["token"]
		if logged != expose {
			t.Fatalf("expose=%v but token logged=%v", expose, logged)
		}
	}
}
