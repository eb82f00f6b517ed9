package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// UserHandler handles profile requests
type UserHandler struct {
	userService *services.UserService
	logger      *logger.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, logger *logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger.WithComponent("user_handler"),
	}
}

// GetCurrentUser godoc
// @Summary Current user's profile
// @Tags users
// @Produce json
// @Success 200 {object} entities.User
// @Security BearerAuth
// @Router /users/me [get]
func (h *UserHandler) GetCurrentUser(c echo.Context) error {
	return c.JSON(http.StatusOK, Caller(c))
}

// UpdateCurrentUser godoc
// @Summary Edit the current user's profile
// @Description Role, department and names; live sessions pick the change up immediately
// @Tags users
// @Accept json
// @Produce json
// @Param request body ports.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} entities.User
// @Failure 400 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /users/me [put]
func (h *UserHandler) UpdateCurrentUser(c echo.Context) error {
	var req ports.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.userService.UpdateProfile(c.Request().Context(), Caller(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// DepartmentMembersResponse lists the caller's department.
type DepartmentMembersResponse struct {
	Department string              `json:"department"`
	Members    []*entities.User    `json:"members"`
	Assignees  []entities.Assignee `json:"assignees"`
}

// DepartmentMembers godoc
// @Summary Members of the caller's department
// @Description The pool tasks can be assigned to
// @Tags users
// @Produce json
// @Success 200 {object} DepartmentMembersResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /users/department [get]
func (h *UserHandler) DepartmentMembers(c echo.Context) error {
	caller := Caller(c)
	members, err := h.userService.DepartmentMembers(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	if members == nil {
		members = []*entities.User{}
	}
	return c.JSON(http.StatusOK, DepartmentMembersResponse{
		Department: caller.Department,
		Members:    members,
		Assignees:  services.Assignees(members),
	})
}
