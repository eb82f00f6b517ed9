package services

import (
	"strings"

	"github.com/taskmaster/deptflow/internal/domain/entities"
)

// Front-end routes the gate decides on.
const (
	HomePath        = "/"
	DashboardPath   = "/dashboard"
	BoardPath       = "/tasks"
	VerifyEmailPath = "/verify-email"
)

type DecisionKind string

const (
	DecisionLoading  DecisionKind = "loading"
	DecisionAllow    DecisionKind = "allow"
	DecisionRedirect DecisionKind = "redirect"
)

// Decision is the gate's answer for one route entry. Path is set for redirects.
type Decision struct {
	Kind DecisionKind `json:"decision"`
	Path string       `json:"path,omitempty"`
}

func (d Decision) Allowed() bool { return d.Kind == DecisionAllow }

// EvaluateAccess decides whether user may enter the protected route path.
// It is a pure function and holds no state between calls. A nil user counts
// as unverified.
func EvaluateAccess(resolving bool, user *entities.User, path string) Decision {
	if resolving {
		return Decision{Kind: DecisionLoading}
	}
	if user == nil || !user.EmailVerified {
		return Decision{Kind: DecisionRedirect, Path: VerifyEmailPath}
	}
	if user.Role == entities.UserRoleTeamMember && cleanRoute(path) == BoardPath {
		return Decision{Kind: DecisionRedirect, Path: DashboardPath}
	}
	if !user.Role.IsValid() {
		return Decision{Kind: DecisionRedirect, Path: HomePath}
	}
	return Decision{Kind: DecisionAllow}
}

// cleanRoute strips the query and a trailing slash so "/tasks/" and
// "/tasks?x=1" are the board too.
func cleanRoute(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return HomePath
	}
	return path
}
