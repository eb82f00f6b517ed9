package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// Echo context keys set by the auth middleware.
const (
	contextUserKey  = "user"
	contextTokenKey = "session_token"
)

// AccessTokenParam carries the session token for clients that cannot set
// headers, such as browser websockets.
const AccessTokenParam = "access_token"

// SetCaller stores the resolved user and its session token on the request.
func SetCaller(c echo.Context, token string, user *entities.User) {
	c.Set(contextTokenKey, token)
	c.Set(contextUserKey, user)
}

// Caller returns the resolved user set by the auth middleware, or nil.
func Caller(c echo.Context) *entities.User {
	user, _ := c.Get(contextUserKey).(*entities.User)
	return user
}

func sessionToken(c echo.Context) string {
	token, _ := c.Get(contextTokenKey).(string)
	return token
}

// BearerToken extracts the session token from the Authorization header or,
// failing that, the access_token query parameter.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get(echo.HeaderAuthorization); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get(AccessTokenParam)
}

func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	return c.Validate(req)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	authService *services.AuthService
	// exposeTokens returns verification tokens in responses; mail delivery
	// does not exist, so this is only enabled in development.
	exposeTokens bool
	logger       *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, exposeTokens bool, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		exposeTokens: exposeTokens,
		logger:       logger.WithComponent("auth_handler"),
	}
}

// RegisterResponse is returned by Register.
type RegisterResponse struct {
	ports.AuthResponse
	VerificationToken string `json:"verification_token,omitempty"`
}

// Register godoc
// @Summary Register an account
// @Description Create an account and its profile, then issue an email verification token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.RegisterRequest true "Registration data"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} ports.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req ports.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.authService.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	resp := RegisterResponse{AuthResponse: *h.authService.SessionResponse(result.Session, result.User)}
	h.issued(result.User.ID, result.VerificationToken)
	if h.exposeTokens {
		resp.VerificationToken = result.VerificationToken
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary Sign in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.LoginRequest true "Credentials"
// @Success 200 {object} ports.AuthResponse
// @Failure 401 {object} ports.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req ports.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, entities.ErrUnauthenticated) {
			h.logger.LogSecurityEvent("login_failed", "", c.RealIP(), map[string]interface{}{"email": req.Email})
		}
		return err
	}

	return c.JSON(http.StatusOK, response)
}

// Logout godoc
// @Summary Sign out the current session
// @Tags auth
// @Produce json
// @Success 200 {object} ports.MessageResponse
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.authService.Logout(c.Request().Context(), sessionToken(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Logged out successfully"})
}

// VerifyEmail godoc
// @Summary Confirm an email address
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.VerifyEmailRequest true "Verification token"
// @Success 200 {object} ports.MessageResponse
// @Failure 401 {object} ports.ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req ports.VerifyEmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.VerifyEmail(c.Request().Context(), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Email verified"})
}

// issued logs a verification token. There is no mail delivery, so the token
// itself is only logged where it is also exposed in responses.
func (h *AuthHandler) issued(userID, token string) {
	if h.exposeTokens {
		h.logger.Infow("Verification token issued", "user_id", userID, "token", token)
		return
	}
	h.logger.Infow("Verification token issued", "user_id", userID)
}

// ResendVerificationResponse is returned by ResendVerification.
type ResendVerificationResponse struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// ResendVerification godoc
// @Summary Issue a new verification token for the current user
// @Tags auth
// @Produce json
// @Success 200 {object} ResendVerificationResponse
// @Failure 400 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	user := Caller(c)
	token, err := h.authService.ResendVerification(c.Request().Context(), user)
	if err != nil {
		return err
	}

	h.issued(user.ID, token)
	resp := ResendVerificationResponse{Message: "Verification sent"}
	if h.exposeTokens {
		resp.VerificationToken = token
	}
	return c.JSON(http.StatusOK, resp)
}

// AccessRecorder counts gate decisions.
type AccessRecorder interface {
	ObserveAccess(decision services.Decision)
}

// SessionHandler exposes the resolved identity and the access gate.
type SessionHandler struct {
	resolver *services.SessionResolver
	recorder AccessRecorder
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(resolver *services.SessionResolver, recorder AccessRecorder, logger *logger.Logger) *SessionHandler {
	return &SessionHandler{
		resolver: resolver,
		recorder: recorder,
		logger:   logger.WithComponent("session_handler"),
	}
}

// Session godoc
// @Summary Current resolved user
// @Tags session
// @Produce json
// @Success 200 {object} entities.User
// @Failure 401 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /session [get]
func (h *SessionHandler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, Caller(c))
}

// Access godoc
// @Summary Gate decision for a front-end route
// @Description Returns loading while the session is still being resolved
// @Tags session
// @Produce json
// @Param path query string true "Front-end route, e.g. /tasks"
// @Success 200 {object} services.Decision
// @Router /access [get]
func (h *SessionHandler) Access(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return entities.ValidationError("path", "is required")
	}

	var (
		user      *entities.User
		resolving bool
	)
	if token := BearerToken(c.Request()); token != "" {
		if _, inFlight, known := h.resolver.Lookup(token); known && inFlight {
			resolving = true
		} else {
			// Current re-verifies cached sessions, which may have been revoked elsewhere.
			resolved, err := h.resolver.Current(c.Request().Context(), token)
			if err != nil && !errors.Is(err, entities.ErrUnauthenticated) {
				return err
			}
			user = resolved
		}
	}

	decision := services.EvaluateAccess(resolving, user, path)
	if h.recorder != nil {
		h.recorder.ObserveAccess(decision)
	}
	return c.JSON(http.StatusOK, decision)
}
