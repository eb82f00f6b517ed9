package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// Move outcomes reported to WorkflowMetrics.
const (
	MoveOutcomeMoved   = "moved"
	MoveOutcomeClamped = "clamped"
	MoveOutcomeDenied  = "denied"
)

// WorkflowMetrics receives workflow outcomes.
type WorkflowMetrics interface {
	ObserveMove(outcome string)
}

type nopWorkflowMetrics struct{}

func (nopWorkflowMetrics) ObserveMove(string) {}

// TaskService is the task workflow engine. Every operation takes the caller's
// resolved identity explicitly; mutating calls re-check the caller's role.
type TaskService struct {
	tasks     ports.TaskRepository
	feed      ports.ChangeFeed
	validator *Validator
	metrics   WorkflowMetrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewTaskService creates a new task service. metrics may be nil.
func NewTaskService(tasks ports.TaskRepository, feed ports.ChangeFeed, validator *Validator, metrics WorkflowMetrics, logger *logger.Logger) *TaskService {
	if metrics == nil {
		metrics = nopWorkflowMetrics{}
	}
	return &TaskService{
		tasks:     tasks,
		feed:      feed,
		validator: validator,
		metrics:   metrics,
		logger:    logger.WithComponent("task_service"),
		now:       time.Now,
	}
}

// Create stores a new task in the creator's department with status todo and
// returns its id.
func (s *TaskService) Create(ctx context.Context, req ports.CreateTaskRequest, creator *entities.User) (string, error) {
	if creator == nil {
		return "", entities.Permissionf("sign in to create tasks")
	}
	if !creator.IsManager() {
		return "", entities.Permissionf("only managers can create tasks")
	}
	if err := s.validator.Validate(req); err != nil {
		return "", err
	}
	if err := requireText("title", req.Title); err != nil {
		return "", err
	}
	if err := requireText("description", req.Description); err != nil {
		return "", err
	}

	priority := req.Priority
	if priority == "" {
		priority = entities.PriorityMedium
	}

	task := &entities.Task{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Priority:    priority,
		Deadline:    req.Deadline,
		Status:      entities.TaskStatusTodo,
		Department:  creator.Department,
		CreatedBy:   creator.ID,
		AssignedTo:  entities.NormalizeAssignees(req.AssignedTo),
	}

	id, err := s.tasks.Create(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.LogUserAction(creator.ID, "task.create", map[string]interface{}{
		"task_id":    id,
		"department": task.Department,
		"assignees":  len(task.AssignedTo),
	})
	return id, nil
}

// ListVisible returns the non-deleted tasks the user sees in view: the whole
// department on the board, the user's own assignments on the dashboard.
func (s *TaskService) ListVisible(ctx context.Context, user *entities.User, view ports.TaskView, filter ports.TaskFilter) ([]*entities.Task, error) {
	if user == nil {
		return nil, entities.Permissionf("sign in to list tasks")
	}
	if view != ports.ViewBoard && view != ports.ViewDashboard {
		return nil, entities.ValidationError("view", fmt.Sprintf("unknown view %q", view))
	}

	all, err := s.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	visible := make([]*entities.Task, 0, len(all))
	for _, task := range all {
		if task.Deleted {
			continue
		}
		switch view {
		case ports.ViewBoard:
			if task.Department != user.Department {
				continue
			}
		case ports.ViewDashboard:
			if !task.IsAssignedTo(user.ID) {
				continue
			}
		}
		if !filter.Matches(task) {
			continue
		}
		visible = append(visible, task)
	}

	sortByDeadline(visible, filter.SortOrder)
	return visible, nil
}

// sortByDeadline orders YYYY-MM-DD deadlines; tasks without one go last.
func sortByDeadline(tasks []*entities.Task, order string) {
	if order != ports.SortAsc && order != ports.SortDesc {
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].Deadline, tasks[j].Deadline
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		if order == ports.SortDesc {
			return a > b
		}
		return a < b
	})
}

// Get looks a task up by id. Soft-deleted tasks are returned with Deleted set
// so callers can send the viewer away.
func (s *TaskService) Get(ctx context.Context, id string) (*entities.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// View returns the task with its comments for a viewer with access to it.
// A deleted task is reported as not found.
func (s *TaskService) View(ctx context.Context, id string, viewer *entities.User) (*entities.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Deleted {
		return nil, entities.NotFoundf("task %s has been deleted", id)
	}
	if !viewer.CanAccess(task) {
		return nil, entities.Permissionf("no access to task %s", id)
	}

	comments, err := s.tasks.ListComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	task.Comments = comments
	return task, nil
}

// Move steps the task one stage forward (+1) or back (-1). Steps past either
// end leave the status unchanged and report Moved=false.
func (s *TaskService) Move(ctx context.Context, id string, direction int, caller *entities.User) (*ports.MoveResult, error) {
	if direction != 1 && direction != -1 {
		return nil, entities.ValidationError("direction", "must be -1 or 1")
	}
	if caller == nil || !caller.Role.IsValid() {
		s.metrics.ObserveMove(MoveOutcomeDenied)
		return nil, entities.Permissionf("a role is required to move tasks")
	}

	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Deleted {
		return nil, entities.NotFoundf("task %s has been deleted", id)
	}
	if !caller.CanAccess(task) {
		s.metrics.ObserveMove(MoveOutcomeDenied)
		return nil, entities.Permissionf("no access to task %s", id)
	}

	next, moved := task.Status.Step(direction)
	if !moved {
		s.metrics.ObserveMove(MoveOutcomeClamped)
		return &ports.MoveResult{Status: next, Moved: false}, nil
	}

	if err := s.tasks.Update(ctx, id, map[string]interface{}{"status": next}); err != nil {
		return nil, fmt.Errorf("failed to move task: %w", err)
	}

	s.metrics.ObserveMove(MoveOutcomeMoved)
	s.logger.LogUserAction(caller.ID, "task.move", map[string]interface{}{
		"task_id": id,
		"from":    string(task.Status),
		"to":      string(next),
	})
	return &ports.MoveResult{Status: next, Moved: true}, nil
}

// FullEdit merges the given fields into the task. Department and creator are
// never changed. Managers of the task's department only.
func (s *TaskService) FullEdit(ctx context.Context, id string, req ports.UpdateTaskRequest, caller *entities.User) (*entities.Task, error) {
	if !caller.IsManager() {
		return nil, entities.Permissionf("only managers can edit tasks")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	task, err := s.manageable(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Title != nil {
		if err := requireText("title", *req.Title); err != nil {
			return nil, err
		}
		task.Title = strings.TrimSpace(*req.Title)
		fields["title"] = task.Title
	}
	if req.Description != nil {
		if err := requireText("description", *req.Description); err != nil {
			return nil, err
		}
		task.Description = strings.TrimSpace(*req.Description)
		fields["description"] = task.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
		fields["priority"] = task.Priority
	}
	if req.Deadline != nil {
		task.Deadline = *req.Deadline
		fields["deadline"] = task.Deadline
	}
	if req.Status != nil {
		task.Status = *req.Status
		fields["status"] = task.Status
	}
	if req.AssignedTo != nil {
		if len(req.AssignedTo) == 0 {
			return nil, entities.ValidationError("assignedTo", "must contain at least 1 item(s)")
		}
		task.AssignedTo = entities.NormalizeAssignees(req.AssignedTo)
		fields["assignedTo"] = task.AssignedTo
	}
	if len(fields) == 0 {
		return task, nil
	}

	if err := s.tasks.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.logger.LogUserAction(caller.ID, "task.edit", map[string]interface{}{
		"task_id": id,
		"fields":  len(fields),
	})
	return task, nil
}

// ToggleAssignee adds the assignee when absent and removes it when present.
// The last assignee cannot be removed. Managers of the task's department only.
func (s *TaskService) ToggleAssignee(ctx context.Context, id string, assignee entities.Assignee, caller *entities.User) (*entities.Task, error) {
	if !caller.IsManager() {
		return nil, entities.Permissionf("only managers can change assignments")
	}
	if strings.TrimSpace(assignee.ID) == "" {
		return nil, entities.ValidationError("id", "is required")
	}

	task, err := s.manageable(ctx, id, caller)
	if err != nil {
		return nil, err
	}

	normalized := entities.NormalizeAssignees([]entities.Assignee{assignee})[0]
	next := entities.ToggleAssignee(task.AssignedTo, normalized)
	if len(next) == 0 {
		return nil, entities.ValidationError("assignedTo", "must keep at least one assignee")
	}
	task.AssignedTo = next
	if err := s.tasks.Update(ctx, id, map[string]interface{}{"assignedTo": task.AssignedTo}); err != nil {
		return nil, fmt.Errorf("failed to update assignment: %w", err)
	}

	s.logger.LogUserAction(caller.ID, "task.assign", map[string]interface{}{
		"task_id":  id,
		"assignee": assignee.ID,
		"assigned": task.IsAssignedTo(assignee.ID),
	})
	return task, nil
}

// SoftDelete flags the task deleted and keeps every other field.
// Managers of the task's department only.
func (s *TaskService) SoftDelete(ctx context.Context, id string, caller *entities.User) error {
	if !caller.IsManager() {
		return entities.Permissionf("only managers can delete tasks")
	}

	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !caller.CanManage(task) {
		return entities.Permissionf("task %s belongs to another department", id)
	}
	if task.Deleted {
		return nil
	}

	if err := s.tasks.Update(ctx, id, map[string]interface{}{"deleted": true}); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.logger.LogUserAction(caller.ID, "task.delete", map[string]interface{}{"task_id": id})
	return nil
}

// AddComment appends a comment to the task. Viewers receive it through their
// live subscription.
func (s *TaskService) AddComment(ctx context.Context, taskID, authorName, text string) (*entities.Comment, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, entities.ValidationError("taskId", "is required")
	}
	if err := requireText("text", text); err != nil {
		return nil, err
	}

	task, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Deleted {
		return nil, entities.NotFoundf("task %s has been deleted", taskID)
	}

	name := strings.TrimSpace(authorName)
	if name == "" {
		name = entities.AnonymousAuthor
	}
	comment := &entities.Comment{Name: name, Text: strings.TrimSpace(text), Date: s.now().UTC()}

	key, err := s.tasks.AppendComment(ctx, taskID, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	comment.ID = key
	return comment, nil
}

// Comments lists the task's comments in creation order.
func (s *TaskService) Comments(ctx context.Context, taskID string) ([]entities.Comment, error) {
	comments, err := s.tasks.ListComments(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// Watch subscribes to changes of the task and its comments. cancel must be
// called once the watcher goes away.
func (s *TaskService) Watch(ctx context.Context, taskID string) (<-chan ports.Change, func(), error) {
	changes, cancel, err := s.feed.Subscribe(ctx, "tasks/"+taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch task: %w", err)
	}
	return changes, cancel, nil
}

// manageable loads a live task the caller may manage.
func (s *TaskService) manageable(ctx context.Context, id string, caller *entities.User) (*entities.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Deleted {
		return nil, entities.NotFoundf("task %s has been deleted", id)
	}
	if !caller.CanManage(task) {
		return nil, entities.Permissionf("task %s belongs to another department", id)
	}
	return task, nil
}
