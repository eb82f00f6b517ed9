package entities

import "strings"

// Stages lists the workflow stages in order. Moves step through this list by
// exactly one position.
var Stages = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone}

// NormalizeStatus lowercases a stored status and maps anything that is not a
// workflow stage to todo.
func NormalizeStatus(raw string) TaskStatus {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s
	}
	return TaskStatusTodo
}

// StageIndex returns the position of s in Stages, or -1.
func StageIndex(s TaskStatus) int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Step computes the status one stage away from s; direction is -1 or +1.
// Steps past either end, and any other direction, leave the status
// unchanged and report moved=false.
func (s TaskStatus) Step(direction int) (next TaskStatus, moved bool) {
	current := StageIndex(NormalizeStatus(string(s)))
	target := current + direction
	if (direction != 1 && direction != -1) || target < 0 || target >= len(Stages) {
		return Stages[current], false
	}
	return Stages[target], true
}

// ToggleAssignee adds a to the set when no entry carries its id, and removes
// every entry with that id otherwise. The input slice is not modified.
func ToggleAssignee(set []Assignee, a Assignee) []Assignee {
	out := make([]Assignee, 0, len(set)+1)
	found := false
	for _, existing := range set {
		if existing.ID == a.ID {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, a)
	}
	return out
}

// NormalizeAssignees reduces entries to {id, name}, drops duplicate ids
// (first wins) and fills missing names.
func NormalizeAssignees(set []Assignee) []Assignee {
	out := make([]Assignee, 0, len(set))
	seen := make(map[string]struct{}, len(set))
	for _, a := range set {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if strings.TrimSpace(a.Name) == "" {
			a.Name = UnknownAssigneeName
		}
		out = append(out, Assignee{ID: a.ID, Name: a.Name})
	}
	return out
}

// SameAssignees compares two assignee sets ignoring order.
func SameAssignees(a, b []Assignee) bool {
	if len(a) != len(b) {
		return false
	}
	names := make(map[string]string, len(a))
	for _, x := range a {
		names[x.ID] = x.Name
	}
	for _, y := range b {
		name, ok := names[y.ID]
		if !ok || name != y.Name {
			return false
		}
	}
	return true
}
