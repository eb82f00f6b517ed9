package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]TaskStatus{
		"todo":        TaskStatusTodo,
		"TODO":        TaskStatusTodo,
		"In-Progress": TaskStatusInProgress,
		" done ":      TaskStatusDone,
		"":            TaskStatusTodo,
		"archived":    TaskStatusTodo,
		"in_progress": TaskStatusTodo,
	}
	for in, want := range cases {
		if got := NormalizeStatus(in); got != want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStep_AdjacentOnly(t *testing.T) {
	tests := []struct {
		from      TaskStatus
		direction int
		want      TaskStatus
		moved     bool
	}{
		{TaskStatusTodo, +1, TaskStatusInProgress, true},
		{TaskStatusInProgress, +1, TaskStatusDone, true},
		{TaskStatusDone, -1, TaskStatusInProgress, true},
		{TaskStatusInProgress, -1, TaskStatusTodo, true},
		{TaskStatusTodo, -1, TaskStatusTodo, false},
		{TaskStatusDone, +1, TaskStatusDone, false},
		{TaskStatusTodo, +2, TaskStatusTodo, false},
		{TaskStatusDone, 0, TaskStatusDone, false},
		{"DONE", -1, TaskStatusInProgress, true},
		{"garbage", +1, TaskStatusInProgress, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s%+d", tt.from, tt.direction), func(t *testing.T) {
			got, moved := tt.from.Step(tt.direction)
			if got != tt.want || moved != tt.moved {
				t.Fatalf("Step = (%q, %v), want (%q, %v)", got, moved, tt.want, tt.moved)
			}
		})
	}
}

func TestStep_RandomWalkStaysInStages(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for start := range Stages {
		s := Stages[start]
		for i := 0; i < 500; i++ {
			dir := 1
			if rng.Intn(2) == 0 {
				dir = -1
			}
			next, moved := s.Step(dir)
			if !next.IsValid() {
				t.Fatalf("left the workflow: %q", next)
			}
			if moved && abs(StageIndex(next)-StageIndex(s)) != 1 {
				t.Fatalf("skipped a stage: %q -> %q", s, next)
			}
			if !moved && next != s {
				t.Fatalf("no-op changed status: %q -> %q", s, next)
			}
			s = next
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestToggleAssignee_TwiceRestoresSet(t *testing.T) {
	original := []Assignee{{ID: "u2", Name: "Bob"}, {ID: "u3", Name: "Cara"}}
	alice := Assignee{ID: "u1", Name: "Alice"}

	added := ToggleAssignee(original, alice)
	if len(added) != 3 || !containsID(added, "u1") {
		t.Fatalf("expected u1 added, got %+v", added)
	}
	restored := ToggleAssignee(added, alice)
	if !SameAssignees(restored, original) {
		t.Fatalf("expected %+v, got %+v", original, restored)
	}
	if len(original) != 2 {
		t.Fatalf("input slice modified: %+v", original)
	}
}

func TestToggleAssignee_RemovesExisting(t *testing.T) {
	set := []Assignee{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}}
	out := ToggleAssignee(set, Assignee{ID: "u1"})
	if len(out) != 1 || out[0].ID != "u2" {
		t.Fatalf("unexpected set %+v", out)
	}
}

func TestNormalizeAssignees(t *testing.T) {
	out := NormalizeAssignees([]Assignee{
		{ID: "u1", Name: "Alice"},
		{ID: "u2"},
		{ID: "u1", Name: "Duplicate"},
		{ID: "u3", Name: "   "},
	})
	want := []Assignee{
		{ID: "u1", Name: "Alice"},
		{ID: "u2", Name: UnknownAssigneeName},
		{ID: "u3", Name: UnknownAssigneeName},
	}
	if !SameAssignees(out, want) {
		t.Fatalf("got %+v, want %+v", out, want)
	}
}

func TestTaskStatus_UnmarshalJSON(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"title":"x","status":"In-Progress"}`), &task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != TaskStatusInProgress {
		t.Fatalf("got %q", task.Status)
	}

	task = Task{}
	if err := json.Unmarshal([]byte(`{"status":3}`), &task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != "" || NormalizeStatus(string(task.Status)) != TaskStatusTodo {
		t.Fatalf("non-string status should read as empty, got %q", task.Status)
	}
}

func TestUserAccess(t *testing.T) {
	task := &Task{Department: "IT", AssignedTo: []Assignee{{ID: "u1", Name: "Alice"}}}

	manager := &User{ID: "m", Role: UserRoleManager, Department: "IT"}
	otherManager := &User{ID: "m2", Role: UserRoleManager, Department: "Sales"}
	assignee := &User{ID: "u1", Role: UserRoleTeamMember, Department: "IT"}
	colleague := &User{ID: "u2", Role: UserRoleTeamMember, Department: "IT"}
	roleless := &User{ID: "u1", Department: "IT"}

	if !manager.CanManage(task) || !manager.CanAccess(task) {
		t.Fatalf("department manager must manage the task")
	}
	if otherManager.CanManage(task) || otherManager.CanAccess(task) {
		t.Fatalf("manager of another department must not manage the task")
	}
	if assignee.CanManage(task) || !assignee.CanAccess(task) {
		t.Fatalf("assignee may access but not manage")
	}
	if colleague.CanAccess(task) {
		t.Fatalf("unassigned team member must not access")
	}
	if roleless.CanAccess(task) {
		t.Fatalf("role-less user must not access")
	}
	var nobody *User
	if nobody.CanAccess(task) || nobody.IsManager() {
		t.Fatalf("nil user has no access")
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("create task: %w", ValidationError("title", "is required"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if errors.Is(err, ErrPermission) {
		t.Fatalf("validation error must not match permission kind")
	}
	if FieldOf(err) != "title" {
		t.Fatalf("expected field title, got %q", FieldOf(err))
	}

	cause := errors.New("connection refused")
	storeErr := StoreError("update tasks/1", cause)
	if !errors.Is(storeErr, ErrStore) || !errors.Is(storeErr, cause) {
		t.Fatalf("store error must match kind and cause: %v", storeErr)
	}
	if got := storeErr.Error(); got != "store operation failed: update tasks/1: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestArticleMatches(t *testing.T) {
	a := &Article{Title: "Release Notes", Content: "New board filters"}
	for _, q := range []string{"", "release", "BOARD", "  notes "} {
		if !a.Matches(q) {
			t.Fatalf("expected match for %q", q)
		}
	}
	if a.Matches("deadline") {
		t.Fatalf("unexpected match")
	}
	a.Likes = map[string]bool{"u1": true, "u2": true, "u3": false}
	if a.LikeCount() != 2 {
		t.Fatalf("expected 2 likes, got %d", a.LikeCount())
	}
}

func containsID(set []Assignee, id string) bool {
	for _, a := range set {
		if a.ID == id {
			return true
		}
	}
	return false
}
