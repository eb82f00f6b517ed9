package services

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

func TestCreate_DashboardVisibilityScenario(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t, entities.Assignee{ID: alice.ID, Name: "Alice"})

	task := f.stored(t, id)
	if task.Status != entities.TaskStatusTodo {
		t.Fatalf("expected todo, got %q", task.Status)
	}
	if task.Department != "IT" || task.CreatedBy != itManager.ID {
		t.Fatalf("department/createdBy not stamped: %+v", task)
	}

	forAlice, err := f.svc.ListVisible(ctx, alice, ports.ViewDashboard, ports.TaskFilter{})
	if err != nil {
		t.Fatalf("list for alice: %v", err)
	}
	if !ids(forAlice)[id] {
		t.Fatalf("assignee does not see the task")
	}

	forBob, err := f.svc.ListVisible(ctx, bob, ports.ViewDashboard, ports.TaskFilter{})
	if err != nil {
		t.Fatalf("list for bob: %v", err)
	}
	if ids(forBob)[id] {
		t.Fatalf("unassigned colleague sees the task")
	}
}

func TestCreate_ForcesTodoAndDefaultsPriority(t *testing.T) {
	f := newTaskFixture(t)
	id, err := f.svc.Create(context.Background(), ports.CreateTaskRequest{
		Title:       "Write report",
		Description: "Quarterly numbers",
		Deadline:    "2024-07-01",
		AssignedTo:  []entities.Assignee{{ID: bob.ID}},
	}, itManager)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	task := f.stored(t, id)
	if task.Priority != entities.PriorityMedium {
		t.Fatalf("expected Medium priority, got %q", task.Priority)
	}
	if task.AssignedTo[0].Name != entities.UnknownAssigneeName {
		t.Fatalf("missing assignee name not filled: %+v", task.AssignedTo)
	}
}

func TestCreate_Validation(t *testing.T) {
	valid := func() ports.CreateTaskRequest {
		return ports.CreateTaskRequest{
			Title:       "t",
			Description: "d",
			Deadline:    "2024-07-01",
			AssignedTo:  []entities.Assignee{{ID: alice.ID, Name: "Alice"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*ports.CreateTaskRequest)
		field  string
	}{
		{"missing title", func(r *ports.CreateTaskRequest) { r.Title = "" }, "title"},
		{"blank title", func(r *ports.CreateTaskRequest) { r.Title = "   " }, "title"},
		{"missing description", func(r *ports.CreateTaskRequest) { r.Description = "" }, "description"},
		{"missing deadline", func(r *ports.CreateTaskRequest) { r.Deadline = "" }, "deadline"},
		{"bad deadline", func(r *ports.CreateTaskRequest) { r.Deadline = "next week" }, "deadline"},
		{"no assignees", func(r *ports.CreateTaskRequest) { r.AssignedTo = nil }, "assignedTo"},
		{"assignee without id", func(r *ports.CreateTaskRequest) { r.AssignedTo = []entities.Assignee{{Name: "x"}} }, "assignedTo[0].id"},
		{"bad priority", func(r *ports.CreateTaskRequest) { r.Priority = "Urgent" }, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTaskFixture(t)
			req := valid()
			tt.mutate(&req)

			_, err := f.svc.Create(context.Background(), req, itManager)
			if !errors.Is(err, entities.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := entities.FieldOf(err); got != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, got)
			}
			if all, _ := f.tasks.List(context.Background()); len(all) != 0 {
				t.Fatalf("write attempted despite validation error")
			}
		})
	}
}

func TestCreate_RequiresManager(t *testing.T) {
	f := newTaskFixture(t)
	req := ports.CreateTaskRequest{Title: "t", Description: "d", Deadline: "2024-07-01", AssignedTo: []entities.Assignee{{ID: "u1"}}}

	for _, caller := range []*entities.User{nil, alice} {
		if _, err := f.svc.Create(context.Background(), req, caller); !errors.Is(err, entities.ErrPermission) {
			t.Fatalf("expected permission error for %+v, got %v", caller, err)
		}
	}
}

func TestMove_StaysWithinStages(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		before := f.stored(t, id).Status
		dir := 1
		if rng.Intn(2) == 0 {
			dir = -1
		}
		res, err := f.svc.Move(ctx, id, dir, alice)
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		after := f.stored(t, id).Status
		if !after.IsValid() || after != res.Status {
			t.Fatalf("status left the workflow: %q (result %q)", after, res.Status)
		}
		step := entities.StageIndex(after) - entities.StageIndex(before)
		if res.Moved && step != dir {
			t.Fatalf("moved %q -> %q with direction %d", before, after, dir)
		}
		if !res.Moved && step != 0 {
			t.Fatalf("no-op changed status %q -> %q", before, after)
		}
	}
}

func TestMove_BoundsAreNoOps(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	res, err := f.svc.Move(ctx, id, -1, alice)
	if err != nil {
		t.Fatalf("move back from todo returned error: %v", err)
	}
	if res.Moved || res.Status != entities.TaskStatusTodo || f.stored(t, id).Status != entities.TaskStatusTodo {
		t.Fatalf("todo -1 changed status: %+v", res)
	}

	f.setStatus(t, id, entities.TaskStatusDone)
	res, err = f.svc.Move(ctx, id, +1, itManager)
	if err != nil {
		t.Fatalf("move forward from done returned error: %v", err)
	}
	if res.Moved || res.Status != entities.TaskStatusDone || f.stored(t, id).Status != entities.TaskStatusDone {
		t.Fatalf("done +1 changed status: %+v", res)
	}
	if f.metrics.moves[MoveOutcomeClamped] != 2 {
		t.Fatalf("expected 2 clamped moves, got %v", f.metrics.moves)
	}
}

func TestMove_ReadsUnnormalizedStatus(t *testing.T) {
	f := newTaskFixture(t)
	id := f.createTask(t)
	_ = f.store.Update(context.Background(), "tasks/"+id, map[string]interface{}{"status": "In-Progress"})

	res, err := f.svc.Move(context.Background(), id, +1, alice)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !res.Moved || res.Status != entities.TaskStatusDone {
		t.Fatalf("expected done, got %+v", res)
	}
}

func TestMove_Authorization(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t, entities.Assignee{ID: alice.ID, Name: "Alice"})
	roleless := &entities.User{ID: alice.ID, EmailVerified: true, Department: "IT"}

	tests := []struct {
		name   string
		caller *entities.User
		err    error
	}{
		{"assignee", alice, nil},
		{"department manager", itManager, nil},
		{"unassigned colleague", bob, entities.ErrPermission},
		{"other department manager", salesBoss, entities.ErrPermission},
		{"role-less assignee", roleless, entities.ErrPermission},
		{"nobody", nil, entities.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.setStatus(t, id, entities.TaskStatusTodo)
			_, err := f.svc.Move(ctx, id, +1, tt.caller)
			if tt.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestMove_InvalidDirectionAndDeleted(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	for _, dir := range []int{0, 2, -2} {
		if _, err := f.svc.Move(ctx, id, dir, alice); !errors.Is(err, entities.ErrValidation) {
			t.Fatalf("direction %d: expected validation error, got %v", dir, err)
		}
	}

	if err := f.svc.SoftDelete(ctx, id, itManager); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := f.svc.Move(ctx, id, 1, alice); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected not found for deleted task, got %v", err)
	}
	if _, err := f.svc.Move(ctx, "missing", 1, alice); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected not found for missing task, got %v", err)
	}
}

func TestToggleAssignee_TwiceRestoresOriginalSet(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t, entities.Assignee{ID: bob.ID, Name: "Bob"})
	original := f.stored(t, id).AssignedTo

	task, err := f.svc.ToggleAssignee(ctx, id, entities.Assignee{ID: alice.ID, Name: "Alice"}, itManager)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !task.IsAssignedTo(alice.ID) || !f.stored(t, id).IsAssignedTo(alice.ID) {
		t.Fatalf("alice not assigned")
	}

	if _, err := f.svc.ToggleAssignee(ctx, id, entities.Assignee{ID: alice.ID, Name: "Alice"}, itManager); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if got := f.stored(t, id).AssignedTo; !entities.SameAssignees(got, original) {
		t.Fatalf("expected %+v, got %+v", original, got)
	}
}

func TestToggleAssignee_KeepsLastAssignee(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t, entities.Assignee{ID: bob.ID, Name: "Bob"})

	_, err := f.svc.ToggleAssignee(ctx, id, entities.Assignee{ID: bob.ID, Name: "Bob"}, itManager)
	if !errors.Is(err, entities.ErrValidation) || entities.FieldOf(err) != "assignedTo" {
		t.Fatalf("expected assignedTo validation error, got %v", err)
	}
	if got := f.stored(t, id).AssignedTo; len(got) != 1 || got[0].ID != bob.ID {
		t.Fatalf("assignment changed: %+v", got)
	}
}

func TestTeamMemberCannotEditOrDelete(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t, entities.Assignee{ID: alice.ID, Name: "Alice"})
	before := f.stored(t, id)

	title := "Hijacked"
	_, err := f.svc.FullEdit(ctx, id, ports.UpdateTaskRequest{Title: &title}, alice)
	if !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error from FullEdit, got %v", err)
	}
	if err := f.svc.SoftDelete(ctx, id, alice); !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error from SoftDelete, got %v", err)
	}
	if _, err := f.svc.ToggleAssignee(ctx, id, entities.Assignee{ID: bob.ID}, alice); !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error from ToggleAssignee, got %v", err)
	}

	if after := f.stored(t, id); !reflect.DeepEqual(before, after) {
		t.Fatalf("task changed: before %+v, after %+v", before, after)
	}
}

func TestOtherDepartmentManagerCannotManage(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	if err := f.svc.SoftDelete(ctx, id, salesBoss); !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if f.stored(t, id).Deleted {
		t.Fatalf("task deleted by another department")
	}
}

func TestSoftDelete_HidesFromListingsButKeepsRecord(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	keep := f.createTask(t)
	gone := f.createTask(t)

	if err := f.svc.SoftDelete(ctx, gone, itManager); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := f.svc.SoftDelete(ctx, gone, itManager); err != nil {
		t.Fatalf("second soft delete: %v", err)
	}

	for _, view := range []ports.TaskView{ports.ViewBoard, ports.ViewDashboard} {
		user := itManager
		if view == ports.ViewDashboard {
			user = alice
		}
		tasks, err := f.svc.ListVisible(ctx, user, view, ports.TaskFilter{})
		if err != nil {
			t.Fatalf("list %s: %v", view, err)
		}
		for _, task := range tasks {
			if task.Deleted {
				t.Fatalf("%s listing returned a deleted task", view)
			}
		}
		if got := ids(tasks); got[gone] || !got[keep] {
			t.Fatalf("%s listing: unexpected ids %v", view, got)
		}
	}

	task, err := f.svc.Get(ctx, gone)
	if err != nil {
		t.Fatalf("direct get: %v", err)
	}
	if !task.Deleted || task.Title != "Patch servers" || task.Department != "IT" {
		t.Fatalf("soft delete lost fields: %+v", task)
	}
	if _, err := f.svc.View(ctx, gone, itManager); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("viewing a deleted task must report not found, got %v", err)
	}
}

func TestListVisible_BoardScopeFiltersAndSort(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	mk := func(deadline string, priority entities.Priority, creator *entities.User) string {
		id, err := f.svc.Create(ctx, ports.CreateTaskRequest{
			Title: "t", Description: "d", Deadline: deadline, Priority: priority,
			AssignedTo: []entities.Assignee{{ID: alice.ID, Name: "Alice"}},
		}, creator)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return id
	}
	late := mk("2024-09-01", entities.PriorityLow, itManager)
	early := mk("2024-07-01", entities.PriorityHigh, itManager)
	mid := mk("2024-08-01", entities.PriorityHigh, itManager)
	sales := mk("2024-06-15", entities.PriorityHigh, salesBoss)
	f.setStatus(t, mid, entities.TaskStatusDone)

	board, err := f.svc.ListVisible(ctx, itManager, ports.ViewBoard, ports.TaskFilter{SortOrder: ports.SortAsc})
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	got := []string{}
	for _, task := range board {
		got = append(got, task.ID)
	}
	if want := []string{early, mid, late}; !reflect.DeepEqual(got, want) {
		t.Fatalf("board order %v, want %v", got, want)
	}
	if ids(board)[sales] {
		t.Fatalf("board shows another department's task")
	}

	high := entities.PriorityHigh
	todo := entities.TaskStatusTodo
	filtered, _ := f.svc.ListVisible(ctx, itManager, ports.ViewBoard, ports.TaskFilter{Priority: &high, Status: &todo})
	if len(filtered) != 1 || filtered[0].ID != early {
		t.Fatalf("filters not applied: %+v", filtered)
	}

	desc, _ := f.svc.ListVisible(ctx, alice, ports.ViewDashboard, ports.TaskFilter{SortOrder: ports.SortDesc})
	if len(desc) != 4 || desc[0].ID != late || desc[3].ID != sales {
		t.Fatalf("dashboard desc order wrong: %+v", desc)
	}
}

func TestListVisible_RejectsUnknownViewAndNobody(t *testing.T) {
	f := newTaskFixture(t)
	if _, err := f.svc.ListVisible(context.Background(), alice, "kanban", ports.TaskFilter{}); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected validation error on an empty store, got %v", err)
	}
	f.createTask(t)
	if _, err := f.svc.ListVisible(context.Background(), alice, "kanban", ports.TaskFilter{}); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected validation error with tasks stored, got %v", err)
	}
	if _, err := f.svc.ListVisible(context.Background(), nil, ports.ViewBoard, ports.TaskFilter{}); !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestFullEdit_NormalizesAndKeepsDepartment(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)
	f.setStatus(t, id, entities.TaskStatusDone)

	title := "Patch all servers"
	status := entities.TaskStatusTodo
	task, err := f.svc.FullEdit(ctx, id, ports.UpdateTaskRequest{
		Title:      &title,
		Status:     &status,
		AssignedTo: []entities.Assignee{{ID: bob.ID}, {ID: alice.ID, Name: "Alice"}, {ID: bob.ID, Name: "Dup"}},
	}, itManager)
	if err != nil {
		t.Fatalf("full edit: %v", err)
	}

	stored := f.stored(t, id)
	if !reflect.DeepEqual(task.AssignedTo, stored.AssignedTo) {
		t.Fatalf("returned task differs from stored: %+v vs %+v", task.AssignedTo, stored.AssignedTo)
	}
	want := []entities.Assignee{{ID: bob.ID, Name: entities.UnknownAssigneeName}, {ID: alice.ID, Name: "Alice"}}
	if !entities.SameAssignees(stored.AssignedTo, want) {
		t.Fatalf("assignees not normalized: %+v", stored.AssignedTo)
	}
	if stored.Title != title || stored.Status != entities.TaskStatusTodo {
		t.Fatalf("fields not merged: %+v", stored)
	}
	if stored.Department != "IT" || stored.CreatedBy != itManager.ID || stored.Description == "" {
		t.Fatalf("untouched fields changed: %+v", stored)
	}
}

func TestFullEdit_RejectsBadValues(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	blank := "  "
	status := entities.TaskStatus("archived")
	for name, req := range map[string]ports.UpdateTaskRequest{
		"blank title":     {Title: &blank},
		"unknown status":  {Status: &status},
		"empty assignees": {AssignedTo: []entities.Assignee{}},
	} {
		if _, err := f.svc.FullEdit(ctx, id, req, itManager); !errors.Is(err, entities.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestAddComment(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	if _, err := f.svc.AddComment(ctx, id, "Alice", "  "); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
	if _, err := f.svc.AddComment(ctx, "", "Alice", "hi"); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
	if _, err := f.svc.AddComment(ctx, "missing", "Alice", "hi"); !errors.Is(err, entities.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	first, err := f.svc.AddComment(ctx, id, "Alice", "On it")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if _, err := f.svc.AddComment(ctx, id, "", "Done"); err != nil {
		t.Fatalf("add anonymous comment: %v", err)
	}

	comments, err := f.svc.Comments(ctx, id)
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != first.ID {
		t.Fatalf("unexpected comments %+v", comments)
	}
	if comments[1].Name != entities.AnonymousAuthor {
		t.Fatalf("expected anonymous author, got %q", comments[1].Name)
	}
	if !comments[0].Date.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", comments[0].Date)
	}
}

func TestWatch_DeliversCommentsAndCancels(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	id := f.createTask(t)

	changes, cancel, err := f.svc.Watch(ctx, id)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, err := f.svc.AddComment(ctx, id, "Bob", "ping"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatalf("watcher not notified of the new comment")
	}

	cancel()
	if f.feed.Subscribers() != 0 {
		t.Fatalf("subscription not released")
	}
}

// taskRepoStub fails every call with err.
type taskRepoStub struct {
	ports.TaskRepository
	err error
}

func (s taskRepoStub) List(context.Context) ([]*entities.Task, error) { return nil, s.err }
func (s taskRepoStub) GetByID(context.Context, string) (*entities.Task, error) {
	return nil, s.err
}

func TestStoreErrorsSurface(t *testing.T) {
	cause := errors.New("connection refused")
	svc := NewTaskService(taskRepoStub{err: entities.StoreError("list tasks", cause)}, nil, NewValidator(), nil, logger.Nop())

	_, err := svc.ListVisible(context.Background(), itManager, ports.ViewBoard, ports.TaskFilter{})
	if !errors.Is(err, entities.ErrStore) || !errors.Is(err, cause) {
		t.Fatalf("expected store error with cause, got %v", err)
	}
	if _, err := svc.Move(context.Background(), "t1", 1, alice); !errors.Is(err, entities.ErrStore) {
		t.Fatalf("expected store error from move, got %v", err)
	}
}
