package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
)

// ErrDocumentNotFound is returned by DocumentStore.Get for absent paths.
var ErrDocumentNotFound = errors.New("document not found")

// Document is one node of the hierarchical store. Key is the last path segment.
type Document struct {
	Key  string          `json:"key"`
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the document body into v.
func (d *Document) Decode(v interface{}) error {
	return json.Unmarshal(d.Data, v)
}

// DocumentStore is the external hierarchical document database. It enforces
// no schema; shapes are owned by the repositories built on top of it.
type DocumentStore interface {
	Get(ctx context.Context, path string) (*Document, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path string, data interface{}) error
	// Update merges fields into the document at path, creating it if needed.
	Update(ctx context.Context, path string, fields map[string]interface{}) error
	// Push appends a child under parent with a generated, time-ordered key.
	Push(ctx context.Context, parent string, data interface{}) (string, error)
	// List returns the direct children of parent ordered by key.
	List(ctx context.Context, parent string) ([]Document, error)
	// Delete removes the document at path and everything below it.
	Delete(ctx context.Context, path string) error
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Change notifies subscribers that the document at Path (or below it) was written.
type Change struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// ChangeFeed delivers write notifications per path.
type ChangeFeed interface {
	Publish(ctx context.Context, path string) error
	// Subscribe delivers changes for path until cancel is called or ctx ends.
	// cancel is safe to call more than once.
	Subscribe(ctx context.Context, path string) (<-chan Change, func(), error)
	Close() error
}

// UserRepository stores user profiles at users/{id}.
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	ListByDepartment(ctx context.Context, department string) ([]*entities.User, error)
}

// TaskRepository stores tasks at tasks/{id} and comments at tasks/{id}/comments.
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task) (string, error)
	GetByID(ctx context.Context, id string) (*entities.Task, error)
	// List returns every stored task, soft-deleted ones included.
	List(ctx context.Context) ([]*entities.Task, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	AppendComment(ctx context.Context, taskID string, comment *entities.Comment) (string, error)
	ListComments(ctx context.Context, taskID string) ([]entities.Comment, error)
}

// ArticleRepository stores articles at articles/{id}.
type ArticleRepository interface {
	Create(ctx context.Context, article *entities.Article) (string, error)
	GetByID(ctx context.Context, id string) (*entities.Article, error)
	List(ctx context.Context) ([]*entities.Article, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	AppendComment(ctx context.Context, articleID string, comment *entities.Comment) (string, error)
	ListComments(ctx context.Context, articleID string) ([]entities.Comment, error)
}

// Account is the credential record kept by the token oracle.
type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"passwordHash"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AccountRepository stores accounts at accounts/{id} with an email index.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	MarkVerified(ctx context.Context, id string) error
}
