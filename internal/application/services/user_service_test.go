package services

import (
	"context"
	"errors"
	"testing"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/ports"
)

func TestUpdateProfile_RefreshesSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	result, err := f.auth.Register(ctx, registerRequest("alice@corp.io", entities.UserRoleTeamMember))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	role := entities.UserRoleManager
	first := " Alicia "
	profile, err := f.profiles.UpdateProfile(ctx, result.User, ports.UpdateProfileRequest{FirstName: &first, Role: &role})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if profile.FullName != "Alicia Ng" || profile.Role != entities.UserRoleManager {
		t.Fatalf("unexpected profile %+v", profile)
	}

	user, err := f.resolver.Current(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !user.IsManager() || user.FirstName != "Alicia" {
		t.Fatalf("session not refreshed: %+v", user)
	}
}

func TestUpdateProfile_Rejects(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	if _, err := f.profiles.UpdateProfile(ctx, nil, ports.UpdateProfileRequest{}); !errors.Is(err, entities.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	role := entities.UserRole("owner")
	if _, err := f.profiles.UpdateProfile(ctx, alice, ports.UpdateProfileRequest{Role: &role}); !errors.Is(err, entities.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	blank := "   "
	if _, err := f.profiles.UpdateProfile(ctx, alice, ports.UpdateProfileRequest{Department: &blank}); entities.FieldOf(err) != "department" {
		t.Fatalf("expected department error, got %v", err)
	}
}

func TestDepartmentMembers(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	for _, u := range []*entities.User{itManager, alice, bob, salesBoss} {
		if err := f.users.Create(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.ID, err)
		}
	}

	members, err := f.profiles.DepartmentMembers(ctx, itManager)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	got := make(map[string]bool)
	for _, m := range members {
		got[m.ID] = true
	}
	if len(got) != 3 || !got["m1"] || !got["u1"] || !got["u2"] {
		t.Fatalf("unexpected members %v", got)
	}

	assignees := Assignees(members)
	for _, a := range assignees {
		if a.Name == "" || a.Name == entities.UnknownAssigneeName {
			t.Fatalf("assignee without a display name: %+v", a)
		}
	}

	if _, err := f.profiles.DepartmentMembers(ctx, &entities.User{ID: "x", EmailVerified: true}); !errors.Is(err, entities.ErrPermission) {
		t.Fatalf("expected permission error for role-less user, got %v", err)
	}
}
