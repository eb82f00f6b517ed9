package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// UserService handles profile operations
type UserService struct {
	users     ports.UserRepository
	resolver  *SessionResolver
	validator *Validator
	logger    *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(users ports.UserRepository, resolver *SessionResolver, validator *Validator, logger *logger.Logger) *UserService {
	return &UserService{
		users:     users,
		resolver:  resolver,
		validator: validator,
		logger:    logger.WithComponent("user_service"),
	}
}

// UpdateProfile edits the caller's own profile and re-resolves the caller's
// live sessions so the change applies to the next request.
func (s *UserService) UpdateProfile(ctx context.Context, user *entities.User, req ports.UpdateProfileRequest) (*entities.User, error) {
	if user == nil {
		return nil, entities.Unauthenticatedf("sign in to edit the profile")
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	firstName, lastName := user.FirstName, user.LastName
	if req.FirstName != nil {
		firstName = strings.TrimSpace(*req.FirstName)
		fields["firstName"] = firstName
	}
	if req.LastName != nil {
		lastName = strings.TrimSpace(*req.LastName)
		fields["lastName"] = lastName
	}
	if req.FirstName != nil || req.LastName != nil {
		fields["fullName"] = strings.TrimSpace(firstName + " " + lastName)
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if req.Department != nil {
		department := strings.TrimSpace(*req.Department)
		if department == "" {
			return nil, entities.ValidationError("department", "is required")
		}
		fields["department"] = department
	}
	if len(fields) > 0 {
		// The profile may not exist yet for a role-less account; Update creates it.
		if user.Email != "" {
			fields["email"] = user.Email
		}
		if err := s.users.Update(ctx, user.ID, fields); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		s.resolver.Refresh(ctx, user.ID)
		s.logger.LogUserAction(user.ID, "user.update_profile", map[string]interface{}{"fields": len(fields)})
	}

	profile, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	profile.EmailVerified = user.EmailVerified
	return profile, nil
}

// DepartmentMembers returns the assignment pool: everyone in the caller's
// department.
func (s *UserService) DepartmentMembers(ctx context.Context, user *entities.User) ([]*entities.User, error) {
	if user == nil || !user.Role.IsValid() {
		return nil, entities.Permissionf("a role is required to list department members")
	}
	members, err := s.users.ListByDepartment(ctx, user.Department)
	if err != nil {
		return nil, fmt.Errorf("failed to list department members: %w", err)
	}
	return members, nil
}

// Assignees converts users into the {id, name} pairs stored on tasks.
func Assignees(users []*entities.User) []entities.Assignee {
	out := make([]entities.Assignee, 0, len(users))
	for _, u := range users {
		out = append(out, entities.Assignee{ID: u.ID, Name: u.DisplayName()})
	}
	return entities.NormalizeAssignees(out)
}
