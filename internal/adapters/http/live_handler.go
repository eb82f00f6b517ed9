package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Live message types
const (
	LiveTask    = "task"
	LiveDeleted = "deleted"
	LiveRevoked = "revoked"
	LiveError   = "error"
)

// LiveMessage is pushed to task detail subscribers after every change to the
// task or its comments.
type LiveMessage struct {
	Type     string         `json:"type"`
	Task     *entities.Task `json:"task,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// LiveHandler streams a task and its comments over a websocket.
type LiveHandler struct {
	taskService *services.TaskService
	upgrader    websocket.Upgrader
	logger      *logger.Logger
}

// NewLiveHandler creates a live handler accepting the given origins ("*" for any).
func NewLiveHandler(taskService *services.TaskService, allowedOrigins []string, logger *logger.Logger) *LiveHandler {
	return &LiveHandler{
		taskService: taskService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
		logger: logger.WithComponent("live_handler"),
	}
}

// WatchTask godoc
// @Summary Live task detail
// @Description Websocket; pushes the task with its comments on every change, then a deleted or revoked message with a redirect when the viewer loses it
// @Tags tasks
// @Param id path string true "Task ID"
// @Param access_token query string false "Session token when the Authorization header cannot be set"
// @Security BearerAuth
// @Router /tasks/{id}/live [get]
func (h *LiveHandler) WatchTask(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	id := c.Param("id")
	caller := Caller(c)
	task, err := h.taskService.View(ctx, id, caller)
	if err != nil {
		return err
	}

	changes, stop, err := h.taskService.Watch(ctx, id)
	if err != nil {
		return err
	}
	defer stop()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.Warnw("WebSocket upgrade failed", "task_id", id, "error", err)
		return nil
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only send control frames; a read error means they went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debugw("WebSocket closed", "task_id", id, "error", err)
				}
				return
			}
		}
	}()

	h.logger.Infow("Live view opened", "task_id", id, "user_id", caller.ID)
	defer h.logger.Infow("Live view closed", "task_id", id, "user_id", caller.ID)

	if err := h.write(conn, LiveMessage{Type: LiveTask, Task: task}); err != nil {
		return nil
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			msg, final := h.snapshot(ctx, id, caller)
			if err := h.write(conn, msg); err != nil || final {
				if final {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Type),
						time.Now().Add(writeWait))
				}
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// snapshot re-reads the task for caller. final reports that the viewer has
// lost the task and the stream should end.
func (h *LiveHandler) snapshot(ctx context.Context, id string, caller *entities.User) (msg LiveMessage, final bool) {
	task, err := h.taskService.View(ctx, id, caller)
	switch {
	case err == nil:
		return LiveMessage{Type: LiveTask, Task: task}, false
	case errors.Is(err, entities.ErrNotFound):
		return LiveMessage{Type: LiveDeleted, Redirect: ListPathFor(caller)}, true
	case errors.Is(err, entities.ErrPermission):
		return LiveMessage{Type: LiveRevoked, Redirect: ListPathFor(caller)}, true
	default:
		h.logger.Warnw("Failed to refresh live task", "task_id", id, "error", err)
		return LiveMessage{Type: LiveError, Message: "task temporarily unavailable"}, false
	}
}

func (h *LiveHandler) write(conn *websocket.Conn, msg LiveMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debugw("WebSocket write failed", "error", err)
		return err
	}
	return nil
}

// ListPathFor is where a viewer goes when the task they watch disappears.
func ListPathFor(user *entities.User) string {
	if user.IsManager() {
		return services.BoardPath
	}
	return services.DashboardPath
}
