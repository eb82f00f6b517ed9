package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskmaster/deptflow/internal/domain/entities"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

type resolution struct {
	user      *entities.User
	resolving bool
	gen       uint64
	expiresAt time.Time
}

// SessionResolver turns auth sessions into resolved users: oracle fields
// merged with the profile stored at users/{id}. Results are held per session
// token and recomputed on every session change event.
type SessionResolver struct {
	oracle  ports.AuthOracle
	users   ports.UserRepository
	logger  *logger.Logger
	timeout time.Duration

	mu          sync.Mutex
	sessions    map[string]*resolution
	gen         uint64
	unsubscribe func()
}

// NewSessionResolver creates a resolver. timeout bounds the work done for one
// session event.
func NewSessionResolver(oracle ports.AuthOracle, users ports.UserRepository, timeout time.Duration, logger *logger.Logger) *SessionResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SessionResolver{
		oracle:   oracle,
		users:    users,
		logger:   logger.WithComponent("session_resolver"),
		timeout:  timeout,
		sessions: make(map[string]*resolution),
	}
}

// Start subscribes to the oracle's session stream.
func (r *SessionResolver) Start() {
	unsubscribe := r.oracle.OnSessionChange(r.handle)
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
}

// Stop unsubscribes and forgets every resolved session.
func (r *SessionResolver) Stop() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.sessions = make(map[string]*resolution)
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (r *SessionResolver) handle(ev ports.SessionEvent) {
	if ev.Session == nil {
		r.mu.Lock()
		delete(r.sessions, ev.Token)
		r.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.resolve(ctx, ev.Token); err != nil {
		r.logger.Warnw("Failed to resolve session", "event", string(ev.Kind), "user_id", ev.Session.UserID, "error", err)
	}
}

// Lookup reports the cached resolution for token without doing any work.
// resolving is true while a resolution for the token is in flight.
func (r *SessionResolver) Lookup(token string) (user *entities.User, resolving, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.sessions[token]
	if !ok {
		return nil, false, false
	}
	return res.user, res.resolving, true
}

// Current returns the resolved user for token, resolving it when this process
// has not seen the session yet.
func (r *SessionResolver) Current(ctx context.Context, token string) (*entities.User, error) {
	if token == "" {
		return nil, entities.Unauthenticatedf("missing session token")
	}
	if user, resolving, known := r.Lookup(token); known && !resolving && user != nil {
		// A cached token may have been revoked by another instance.
		if _, err := r.oracle.Verify(ctx, token); err != nil {
			r.forget(token)
			return nil, err
		}
		return user, nil
	}
	return r.resolve(ctx, token)
}

// Refresh re-resolves every live session of userID, e.g. after a profile edit.
func (r *SessionResolver) Refresh(ctx context.Context, userID string) {
	r.mu.Lock()
	var tokens []string
	for token, res := range r.sessions {
		if res.user != nil && res.user.ID == userID {
			tokens = append(tokens, token)
		}
	}
	r.mu.Unlock()

	for _, token := range tokens {
		if _, err := r.resolve(ctx, token); err != nil {
			r.logger.Warnw("Failed to refresh session", "user_id", userID, "error", err)
		}
	}
}

func (r *SessionResolver) resolve(ctx context.Context, token string) (*entities.User, error) {
	gen := r.begin(token)

	session, err := r.oracle.Reload(ctx, token)
	if err != nil {
		r.forgetIfCurrent(token, gen)
		return nil, err
	}

	user := r.merge(ctx, session)

	r.mu.Lock()
	if res, ok := r.sessions[token]; ok && res.gen == gen {
		res.user = user
		res.resolving = false
		res.expiresAt = session.ExpiresAt
	}
	r.mu.Unlock()
	return user, nil
}

// merge combines oracle fields with the stored profile. A missing profile
// leaves the role empty; a failing profile read degrades the same way.
func (r *SessionResolver) merge(ctx context.Context, session *ports.Session) *entities.User {
	user := &entities.User{
		ID:            session.UserID,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
	}

	profile, err := r.users.GetByID(ctx, session.UserID)
	switch {
	case err == nil:
		if profile.Email != "" {
			user.Email = profile.Email
		}
		user.FirstName = profile.FirstName
		user.LastName = profile.LastName
		user.FullName = profile.FullName
		user.Role = profile.Role
		user.Department = profile.Department
	case errors.Is(err, entities.ErrNotFound):
		r.logger.Debugw("No profile for session", "user_id", session.UserID)
	default:
		r.logger.Warnw("Profile fetch failed, using auth fields only", "user_id", session.UserID, "error", err)
	}
	return user
}

// begin marks token as resolving and returns the generation of this attempt.
// Only the latest attempt may publish its result.
func (r *SessionResolver) begin(token string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for t, res := range r.sessions {
		if !res.resolving && !res.expiresAt.IsZero() && now.After(res.expiresAt) {
			delete(r.sessions, t)
		}
	}
	r.gen++
	res, ok := r.sessions[token]
	if !ok {
		res = &resolution{}
		r.sessions[token] = res
	}
	res.resolving = true
	res.gen = r.gen
	return r.gen
}

func (r *SessionResolver) forget(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

func (r *SessionResolver) forgetIfCurrent(token string, gen uint64) {
	r.mu.Lock()
	if res, ok := r.sessions[token]; ok && res.gen == gen {
		delete(r.sessions, token)
	}
	r.mu.Unlock()
}
