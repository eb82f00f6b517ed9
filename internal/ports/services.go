package ports

import (
	"context"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
)

// Session is what the auth oracle knows about a signed-in account.
type Session struct {
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
	SessionReloaded  SessionEventKind = "reloaded"
)

// SessionEvent is emitted on every auth-state change. Session is nil when the
// token no longer has a session.
type SessionEvent struct {
	Kind    SessionEventKind
	Token   string
	Session *Session
}

// AuthOracle is the identity provider. Callers never see credentials beyond
// the email/password pair handed to SignUp and SignIn.
type AuthOracle interface {
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	// Verify checks a session token without touching account state.
	Verify(ctx context.Context, token string) (*Session, error)
	// Reload re-reads the account behind token, picking up email verification.
	Reload(ctx context.Context, token string) (*Session, error)
	IssueVerification(ctx context.Context, userID string) (string, error)
	ConfirmEmail(ctx context.Context, verificationToken string) error
	OnSessionChange(fn func(SessionEvent)) (unsubscribe func())
}

// Request/Response Types

// Auth related types
type RegisterRequest struct {
	Email      string            `json:"email" validate:"required,email"`
	Password   string            `json:"password" validate:"required,min=6"`
	FirstName  string            `json:"firstName" validate:"required,max=100"`
	LastName   string            `json:"lastName" validate:"required,max=100"`
	Role       entities.UserRole `json:"role" validate:"required,oneof=manager team-member"`
	Department string            `json:"department" validate:"required,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
	User        *entities.User `json:"user"`
}

// RegisterResult is returned by UserService.Register.
type RegisterResult struct {
	User              *entities.User
	Session           *Session
	VerificationToken string
}

// User related types
type UpdateProfileRequest struct {
	FirstName  *string            `json:"firstName" validate:"omitempty,max=100"`
	LastName   *string            `json:"lastName" validate:"omitempty,max=100"`
	Role       *entities.UserRole `json:"role" validate:"omitempty,oneof=manager team-member"`
	Department *string            `json:"department" validate:"omitempty,min=1,max=100"`
}

// Task related types
type CreateTaskRequest struct {
	Title       string              `json:"title" validate:"required,max=500"`
	Description string              `json:"description" validate:"required,max=5000"`
	Priority    entities.Priority   `json:"priority" validate:"omitempty,oneof=High Medium Low"`
	Deadline    string              `json:"deadline" validate:"required,datetime=2006-01-02"`
	AssignedTo  []entities.Assignee `json:"assignedTo" validate:"required,min=1,dive"`
}

type UpdateTaskRequest struct {
	Title       *string              `json:"title" validate:"omitempty,min=1,max=500"`
	Description *string              `json:"description" validate:"omitempty,min=1,max=5000"`
	Priority    *entities.Priority   `json:"priority" validate:"omitempty,oneof=High Medium Low"`
	Deadline    *string              `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	Status      *entities.TaskStatus `json:"status" validate:"omitempty,oneof=todo in-progress done"`
	AssignedTo  []entities.Assignee  `json:"assignedTo" validate:"omitempty,dive"`
}

type MoveTaskRequest struct {
	Direction int `json:"direction" validate:"required,oneof=-1 1"`
}

type MoveResult struct {
	Status entities.TaskStatus `json:"status"`
	Moved  bool                `json:"moved"`
}

type AddCommentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// TaskView selects which listing ListVisible produces.
type TaskView string

const (
	// ViewBoard is the manager board: every task of the caller's department.
	ViewBoard TaskView = "board"
	// ViewDashboard is the personal dashboard: tasks assigned to the caller.
	ViewDashboard TaskView = "dashboard"
)

// Deadline sort orders
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

type TaskFilter struct {
	Status    *entities.TaskStatus
	Priority  *entities.Priority
	SortOrder string // SortAsc or SortDesc by deadline; empty keeps store order
}

// Matches reports whether task passes the status and priority filters.
func (f TaskFilter) Matches(task *entities.Task) bool {
	if f.Status != nil && task.Status != *f.Status {
		return false
	}
	if f.Priority != nil && task.Priority != *f.Priority {
		return false
	}
	return true
}

// Article related types
type ArticleRequest struct {
	Title   string   `json:"title" validate:"required,max=300"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"omitempty,dive,max=50"`
}

type ArticleQuery struct {
	Search   string
	Page     int
	PageSize int
}

type ArticlePage struct {
	Items    []*entities.Article `json:"items"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Total    int                 `json:"total"`
	HasNext  bool                `json:"has_next"`
}

// Response types for common structures
type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}
