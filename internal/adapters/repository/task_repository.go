package repository

import (
	"context"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// taskDocument is what tasks/{id} holds. Comments live under
// tasks/{id}/comments and the id is the key.
type taskDocument struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Priority    entities.Priority   `json:"priority"`
	Deadline    string              `json:"deadline"`
	Status      entities.TaskStatus `json:"status"`
	Department  string              `json:"department"`
	CreatedBy   string              `json:"createdBy"`
	AssignedTo  []entities.Assignee `json:"assignedTo"`
	Deleted     bool                `json:"deleted,omitempty"`
}

func (d taskDocument) toTask(id string) *entities.Task {
	return &entities.Task{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Priority:    d.Priority,
		Deadline:    d.Deadline,
		Status:      entities.NormalizeStatus(string(d.Status)),
		Department:  d.Department,
		CreatedBy:   d.CreatedBy,
		AssignedTo:  d.AssignedTo,
		Deleted:     d.Deleted,
	}
}

// TaskRepositoryImpl implements the TaskRepository interface
type TaskRepositoryImpl struct {
	store  ports.DocumentStore
	logger *logger.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(store ports.DocumentStore, log *logger.Logger) ports.TaskRepository {
	return &TaskRepositoryImpl{store: store, logger: log.WithComponent("task_repository")}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entities.Task) (string, error) {
	doc := taskDocument{
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		Deadline:    task.Deadline,
		Status:      task.Status,
		Department:  task.Department,
		CreatedBy:   task.CreatedBy,
		AssignedTo:  task.AssignedTo,
		Deleted:     task.Deleted,
	}
	id, err := r.store.Push(ctx, TasksPath, doc)
	if err != nil {
		return "", storeErr("create", TasksPath, err)
	}
	return id, nil
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, id string) (*entities.Task, error) {
	if id == "" {
		return nil, entities.ValidationError("id", "is required")
	}
	path := JoinPath(TasksPath, id)
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, storeErr("get", path, err)
	}

	var stored taskDocument
	if err := doc.Decode(&stored); err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	return stored.toTask(id), nil
}

func (r *TaskRepositoryImpl) List(ctx context.Context) ([]*entities.Task, error) {
	docs, err := r.store.List(ctx, TasksPath)
	if err != nil {
		return nil, storeErr("list", TasksPath, err)
	}

	tasks := make([]*entities.Task, 0, len(docs))
	for i := range docs {
		var stored taskDocument
		if err := docs[i].Decode(&stored); err != nil {
			// One malformed record must not hide every other task.
			r.logger.Warnw("Skipping malformed task", "path", docs[i].Path, "error", err)
			continue
		}
		tasks = append(tasks, stored.toTask(docs[i].Key))
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	path := JoinPath(TasksPath, id)
	if err := r.store.Update(ctx, path, fields); err != nil {
		return storeErr("update", path, err)
	}
	return nil
}

func (r *TaskRepositoryImpl) AppendComment(ctx context.Context, taskID string, comment *entities.Comment) (string, error) {
	path := commentsPath(TasksPath, taskID)
	key, err := r.store.Push(ctx, path, commentDocument(comment))
	if err != nil {
		return "", storeErr("append", path, err)
	}
	return key, nil
}

func (r *TaskRepositoryImpl) ListComments(ctx context.Context, taskID string) ([]entities.Comment, error) {
	path := commentsPath(TasksPath, taskID)
	docs, err := r.store.List(ctx, path)
	if err != nil {
		return nil, storeErr("list", path, err)
	}
	comments, err := decodeComments(docs)
	if err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	return comments, nil
}
