package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	httpHandlers "github.com/taskmaster/deptflow/internal/adapters/http"
	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/ports"
)

// CustomValidator adapts the service validator to echo.
type CustomValidator struct {
	validator *services.Validator
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Validate(i)
}

// authMiddleware resolves the session token into the caller.
func (s *Server) authMiddleware(resolver *services.SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := httpHandlers.BearerToken(c.Request())

			user, err := resolver.Current(c.Request().Context(), token)
			if err != nil {
				s.logger.LogSecurityEvent("invalid_session", "", c.RealIP(), map[string]interface{}{
					"error":    err.Error(),
					"endpoint": c.Request().URL.Path,
				})
				return err
			}

			httpHandlers.SetCaller(c, token, user)
			return next(c)
		}
	}
}

// gate applies the access policy for the front-end route served by the
// endpoint. Denials carry the redirect target.
func (s *Server) gate(route func(c echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := httpHandlers.Caller(c)
			path := route(c)
			decision := services.EvaluateAccess(false, user, path)
			s.metrics.ObserveAccess(decision)
			if decision.Allowed() {
				return next(c)
			}

			userID := ""
			if user != nil {
				userID = user.ID
			}
			s.logger.LogSecurityEvent("access_redirect", userID, c.RealIP(), map[string]interface{}{
				"route":    path,
				"redirect": decision.Path,
				"endpoint": c.Request().URL.Path,
			})
			return c.JSON(http.StatusForbidden, ports.ErrorResponse{
				Message:  "access denied",
				Redirect: decision.Path,
			})
		}
	}
}

func fixedRoute(path string) func(echo.Context) string {
	return func(echo.Context) string { return path }
}

func taskRoute(c echo.Context) string {
	return services.BoardPath + "/" + c.Param("id")
}
