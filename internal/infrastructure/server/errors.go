package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sony/gobreaker"

	httpHandlers "github.com/taskmaster/deptflow/internal/adapters/http"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// errorResponse maps an error returned by a handler to a status code and body.
func errorResponse(c echo.Context, err error) (int, ports.ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ports.ErrorResponse{Message: fmt.Sprint(he.Message)}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return http.StatusServiceUnavailable, ports.ErrorResponse{Message: "storage temporarily unavailable"}
	}

	var e *entities.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, ports.ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
	}

	body := ports.ErrorResponse{Message: e.Kind.Error()}
	if e.Msg != "" {
		body.Message = fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}

	switch e.Kind {
	case entities.ErrValidation:
		body.Field = e.Field
		return http.StatusBadRequest, body
	case entities.ErrUnauthenticated:
		return http.StatusUnauthorized, body
	case entities.ErrPermission:
		return http.StatusForbidden, body
	case entities.ErrNotFound:
		if strings.HasPrefix(c.Path(), "/api/v1/tasks/") {
			body.Redirect = httpHandlers.ListPathFor(httpHandlers.Caller(c))
		}
		return http.StatusNotFound, body
	case entities.ErrStore:
		return http.StatusBadGateway, ports.ErrorResponse{Message: "storage request failed"}
	default:
		return http.StatusInternalServerError, ports.ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
	}
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, body := errorResponse(c, err)

		if code >= http.StatusInternalServerError {
			logger.Errorw("Request failed", "error", err, "path", c.Request().URL.Path, "status", code)
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Errorw("Error sending response", "error", err)
		}
	}
}
