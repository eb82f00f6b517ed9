package entities

import (
	"encoding/json"
	"strings"
	"time"
)

// Enums and types
type UserRole string

const (
	UserRoleManager    UserRole = "manager"
	UserRoleTeamMember UserRole = "team-member"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusDone       TaskStatus = "done"
)

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// UnknownAssigneeName replaces a missing assignee name on write.
const UnknownAssigneeName = "Unknown User"

// AnonymousAuthor is used for comments posted without a display name.
const AnonymousAuthor = "Anonymous"

// User is a resolved identity: auth session fields merged with the profile
// stored at users/{id}.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"emailVerified"`
	FirstName     string   `json:"firstName,omitempty"`
	LastName      string   `json:"lastName,omitempty"`
	FullName      string   `json:"fullName,omitempty"`
	Role          UserRole `json:"role,omitempty"`
	Department    string   `json:"department,omitempty"`
}

// Assignee is a {id, name} pair stored in a task's assignedTo set.
type Assignee struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// Comment is an append-only note on a task or an article.
type Comment struct {
	ID   string    `json:"id,omitempty"`
	Name string    `json:"name"`
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}

// Task represents a task in the system
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Deadline    string     `json:"deadline"`
	Status      TaskStatus `json:"status"`
	Department  string     `json:"department"`
	CreatedBy   string     `json:"createdBy"`
	AssignedTo  []Assignee `json:"assignedTo"`
	Deleted     bool       `json:"deleted,omitempty"`
	Comments    []Comment  `json:"comments,omitempty"`
}

// Article is a short post authored by any signed-in user.
type Article struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	AuthorID   string          `json:"authorId"`
	AuthorName string          `json:"authorName"`
	Tags       []string        `json:"tags,omitempty"`
	Likes      map[string]bool `json:"likes,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
	Comments   []Comment       `json:"comments,omitempty"`
}

// Business logic methods for User

// DisplayName picks the best human readable name for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Email
}

func (u *User) IsManager() bool {
	return u != nil && u.Role == UserRoleManager
}

// CanManage reports whether u may edit, assign or delete the task.
func (u *User) CanManage(task *Task) bool {
	return u.IsManager() && task != nil && task.Department == u.Department
}

// CanAccess reports whether u may view the task and move it through the workflow.
func (u *User) CanAccess(task *Task) bool {
	if u == nil || task == nil || !u.Role.IsValid() {
		return false
	}
	return u.CanManage(task) || task.IsAssignedTo(u.ID)
}

// Business logic methods for Task

func (t *Task) IsAssignedTo(userID string) bool {
	for _, a := range t.AssignedTo {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// Business logic methods for Article

func (a *Article) LikeCount() int {
	n := 0
	for _, liked := range a.Likes {
		if liked {
			n++
		}
	}
	return n
}

// Matches reports whether the query occurs in the title or the content,
// ignoring case.
func (a *Article) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Content), q)
}

// Utility methods
func (ur UserRole) IsValid() bool {
	switch ur {
	case UserRoleManager, UserRoleTeamMember:
		return true
	default:
		return false
	}
}

func (ts TaskStatus) IsValid() bool {
	switch ts {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// UnmarshalJSON lowercases string values and reads any other JSON value as
// the empty status, which NormalizeStatus maps to todo.
func (ts *TaskStatus) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s, _ := raw.(string)
	*ts = TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	return nil
}
