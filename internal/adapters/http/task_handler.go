package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// TaskHandler handles task-related requests
type TaskHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(taskService *services.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		logger:      logger.WithComponent("task_handler"),
	}
}

// TaskListResponse wraps a task listing.
type TaskListResponse struct {
	Tasks []*entities.Task `json:"tasks"`
	Total int              `json:"total"`
}

// CreatedResponse carries the id of a created record.
type CreatedResponse struct {
	ID string `json:"id"`
}

// ListBoard godoc
// @Summary Manager board
// @Description Every live task of the caller's department
// @Tags tasks
// @Produce json
// @Param status query string false "todo, in-progress or done"
// @Param priority query string false "High, Medium or Low"
// @Param sort query string false "Deadline order: asc or desc"
// @Success 200 {object} TaskListResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks [get]
func (h *TaskHandler) ListBoard(c echo.Context) error {
	return h.list(c, ports.ViewBoard)
}

// ListDashboard godoc
// @Summary Personal dashboard
// @Description Every live task assigned to the caller
// @Tags tasks
// @Produce json
// @Param status query string false "todo, in-progress or done"
// @Param priority query string false "High, Medium or Low"
// @Param sort query string false "Deadline order: asc or desc"
// @Success 200 {object} TaskListResponse
// @Security BearerAuth
// @Router /dashboard/tasks [get]
func (h *TaskHandler) ListDashboard(c echo.Context) error {
	return h.list(c, ports.ViewDashboard)
}

func (h *TaskHandler) list(c echo.Context, view ports.TaskView) error {
	filter, err := parseTaskFilter(c)
	if err != nil {
		return err
	}

	tasks, err := h.taskService.ListVisible(c.Request().Context(), Caller(c), view, filter)
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []*entities.Task{}
	}
	return c.JSON(http.StatusOK, TaskListResponse{Tasks: tasks, Total: len(tasks)})
}

func parseTaskFilter(c echo.Context) (ports.TaskFilter, error) {
	var filter ports.TaskFilter
	if raw := c.QueryParam("status"); raw != "" {
		status := entities.TaskStatus(raw)
		if !status.IsValid() {
			return filter, entities.ValidationError("status", "must be one of todo in-progress done")
		}
		filter.Status = &status
	}
	if raw := c.QueryParam("priority"); raw != "" {
		priority := entities.Priority(raw)
		if !priority.IsValid() {
			return filter, entities.ValidationError("priority", "must be one of High Medium Low")
		}
		filter.Priority = &priority
	}
	switch sort := c.QueryParam("sort"); sort {
	case "", ports.SortAsc, ports.SortDesc:
		filter.SortOrder = sort
	default:
		return filter, entities.ValidationError("sort", "must be asc or desc")
	}
	return filter, nil
}

// CreateTask godoc
// @Summary Create a task
// @Description Managers only; the task starts in todo in the manager's department
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body ports.CreateTaskRequest true "Task data"
// @Success 201 {object} CreatedResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	id, err := h.taskService.Create(c.Request().Context(), req, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CreatedResponse{ID: id})
}

// GetTask godoc
// @Summary Task detail with comments
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} entities.Task
// @Failure 403 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	task, err := h.taskService.View(c.Request().Context(), c.Param("id"), Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// UpdateTask godoc
// @Summary Edit a task
// @Description Managers of the task's department only; omitted fields are kept
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.UpdateTaskRequest true "Fields to change"
// @Success 200 {object} entities.Task
// @Failure 400 {object} ports.ErrorResponse
// @Failure 403 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	task, err := h.taskService.FullEdit(c.Request().Context(), c.Param("id"), req, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// DeleteTask godoc
// @Summary Soft-delete a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} ports.MessageResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	if err := h.taskService.SoftDelete(c.Request().Context(), c.Param("id"), Caller(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Task deleted"})
}

// MoveTask godoc
// @Summary Move a task one stage
// @Description direction -1 steps back, 1 steps forward; moves past either end report moved=false
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.MoveTaskRequest true "Direction"
// @Success 200 {object} ports.MoveResult
// @Failure 400 {object} ports.ErrorResponse
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id}/move [post]
func (h *TaskHandler) MoveTask(c echo.Context) error {
	var req ports.MoveTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	result, err := h.taskService.Move(c.Request().Context(), c.Param("id"), req.Direction, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ToggleAssignee godoc
// @Summary Add or remove an assignee
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body entities.Assignee true "Assignee"
// @Success 200 {object} entities.Task
// @Failure 403 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id}/assignees [post]
func (h *TaskHandler) ToggleAssignee(c echo.Context) error {
	var req entities.Assignee
	if err := bind(c, &req); err != nil {
		return err
	}

	task, err := h.taskService.ToggleAssignee(c.Request().Context(), c.Param("id"), req, Caller(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// ListComments godoc
// @Summary Comments of a task, oldest first
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {array} entities.Comment
// @Security BearerAuth
// @Router /tasks/{id}/comments [get]
func (h *TaskHandler) ListComments(c echo.Context) error {
	task, err := h.taskService.View(c.Request().Context(), c.Param("id"), Caller(c))
	if err != nil {
		return err
	}
	comments := task.Comments
	if comments == nil {
		comments = []entities.Comment{}
	}
	return c.JSON(http.StatusOK, comments)
}

// AddComment godoc
// @Summary Comment on a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.AddCommentRequest true "Comment"
// @Success 201 {object} entities.Comment
// @Failure 400 {object} ports.ErrorResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id}/comments [post]
func (h *TaskHandler) AddComment(c echo.Context) error {
	var req ports.AddCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	ctx := c.Request().Context()
	caller := Caller(c)
	if _, err := h.taskService.View(ctx, c.Param("id"), caller); err != nil {
		return err
	}

	comment, err := h.taskService.AddComment(ctx, c.Param("id"), caller.DisplayName(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}
