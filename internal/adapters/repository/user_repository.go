package repository

import (
	"context"
	"fmt"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/ports"
)

// profileDocument is what users/{id} holds. Email verification lives with the
// account, not the profile.
type profileDocument struct {
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName,omitempty"`
	LastName   string            `json:"lastName,omitempty"`
	FullName   string            `json:"fullName,omitempty"`
	Role       entities.UserRole `json:"role,omitempty"`
	Department string            `json:"department,omitempty"`
}

func (d profileDocument) toUser(id string) *entities.User {
	return &entities.User{
		ID:         id,
		Email:      d.Email,
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		FullName:   d.FullName,
		Role:       d.Role,
		Department: d.Department,
	}
}

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	store ports.DocumentStore
}

// NewUserRepository creates a new user repository
func NewUserRepository(store ports.DocumentStore) ports.UserRepository {
	return &UserRepositoryImpl{store: store}
}

func (r *UserRepositoryImpl) Create(ctx context.Context, user *entities.User) error {
	if user.ID == "" {
		return entities.ValidationError("id", "is required")
	}
	path := JoinPath(UsersPath, user.ID)
	doc := profileDocument{
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		FullName:   user.FullName,
		Role:       user.Role,
		Department: user.Department,
	}
	if err := r.store.Set(ctx, path, doc); err != nil {
		return storeErr("create", path, err)
	}
	return nil
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, id string) (*entities.User, error) {
	if id == "" {
		return nil, entities.ValidationError("id", "is required")
	}
	path := JoinPath(UsersPath, id)
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, storeErr("get", path, err)
	}

	var profile profileDocument
	if err := doc.Decode(&profile); err != nil {
		return nil, entities.StoreError("decode "+path, err)
	}
	return profile.toUser(id), nil
}

func (r *UserRepositoryImpl) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	path := JoinPath(UsersPath, id)
	if err := r.store.Update(ctx, path, fields); err != nil {
		return storeErr("update", path, err)
	}
	return nil
}

func (r *UserRepositoryImpl) ListByDepartment(ctx context.Context, department string) ([]*entities.User, error) {
	docs, err := r.store.List(ctx, UsersPath)
	if err != nil {
		return nil, storeErr("list", UsersPath, err)
	}

	var users []*entities.User
	for i := range docs {
		var profile profileDocument
		if err := docs[i].Decode(&profile); err != nil {
			return nil, entities.StoreError(fmt.Sprintf("decode %s", docs[i].Path), err)
		}
		if profile.Department == department {
			users = append(users, profile.toUser(docs[i].Key))
		}
	}
	return users, nil
}
