package services

import (
	"context"
	"testing"
	"time"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

var (
	itManager = &entities.User{ID: "m1", Email: "maria@corp.io", EmailVerified: true, FullName: "Maria", Role: entities.UserRoleManager, Department: "IT"}
	alice     = &entities.User{ID: "u1", Email: "alice@corp.io", EmailVerified: true, FullName: "Alice", Role: entities.UserRoleTeamMember, Department: "IT"}
	bob       = &entities.User{ID: "u2", Email: "bob@corp.io", EmailVerified: true, FullName: "Bob", Role: entities.UserRoleTeamMember, Department: "IT"}
	salesBoss = &entities.User{ID: "m2", Email: "sam@corp.io", EmailVerified: true, FullName: "Sam", Role: entities.UserRoleManager, Department: "Sales"}
)

type recordingMetrics struct {
	moves map[string]int
}

func (m *recordingMetrics) ObserveMove(outcome string) {
	if m.moves == nil {
		m.moves = make(map[string]int)
	}
	m.moves[outcome]++
}

type taskFixture struct {
	store   *repository.MemoryStore
	feed    *repository.MemoryFeed
	tasks   ports.TaskRepository
	metrics *recordingMetrics
	svc     *TaskService
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	feed := repository.NewMemoryFeed()
	t.Cleanup(func() { _ = feed.Close() })

	observed := repository.NewObservedStore(store, feed, logger.Nop())
	tasks := repository.NewTaskRepository(observed, logger.Nop())
	metrics := &recordingMetrics{}
	svc := NewTaskService(tasks, feed, NewValidator(), metrics, logger.Nop())
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	return &taskFixture{store: store, feed: feed, tasks: tasks, metrics: metrics, svc: svc}
}

func (f *taskFixture) createTask(t *testing.T, assignees ...entities.Assignee) string {
	t.Helper()
	if len(assignees) == 0 {
		assignees = []entities.Assignee{{ID: alice.ID, Name: "Alice"}}
	}
	id, err := f.svc.Create(context.Background(), ports.CreateTaskRequest{
		Title:       "Patch servers",
		Description: "Apply the June security patches",
		Priority:    entities.PriorityHigh,
		Deadline:    "2024-06-30",
		AssignedTo:  assignees,
	}, itManager)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return id
}

func (f *taskFixture) setStatus(t *testing.T, id string, status entities.TaskStatus) {
	t.Helper()
	if err := f.tasks.Update(context.Background(), id, map[string]interface{}{"status": status}); err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func (f *taskFixture) stored(t *testing.T, id string) *entities.Task {
	t.Helper()
	task, err := f.tasks.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get task %s: %v", id, err)
	}
	return task
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                "test-secret",
		ExpiresIn:             time.Hour,
		VerificationExpiresIn: 24 * time.Hour,
		Issuer:                "deptflow-test",
	}
}

func ids(tasks []*entities.Task) map[string]bool {
	out := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		out[task.ID] = true
	}
	return out
}
