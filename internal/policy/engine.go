package policy

import (
	"context"
	"errors"
	"log/slog"
)

// Engine answers authorization questions against injected repositories.
// It keeps no state between calls and is safe for concurrent use.
type Engine struct {
	users    UserRepository
	contents ContentRepository
	reviews  ReviewRepository
	mode     ReviewMode
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithReviews installs the review-assignment capability. Without it the
// engine behaves as if no assignment exists.
func WithReviews(r ReviewRepository) Option {
	return func(e *Engine) {
		if r != nil {
			e.reviews = r
		}
	}
}

// WithReviewMode sets the configured blind-review mode.
func WithReviewMode(m ReviewMode) Option {
	return func(e *Engine) {
		if m != "" {
			e.mode = m
		}
	}
}

// WithLogger sets the logger used for decision and lookup-failure records.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(users UserRepository, contents ContentRepository, opts ...Option) *Engine {
	e := &Engine{
		users:    users,
		contents: contents,
		reviews:  NoReviews{},
		mode:     ReviewSingleBlind,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReviewMode returns the configured blind-review mode.
func (e *Engine) ReviewMode() ReviewMode {
	return e.mode
}

// Decision is an evaluated answer with the reason it was reached.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	reasonAdmin           = "admin"
	reasonUserNotFound    = "user lookup failed"
	reasonContentNotFound = "content lookup failed"
	reasonTable           = "policy table"
	reasonRoleTable       = "role table"
	reasonUnknownResource = "unknown resource type"
)

// CanPerformActionOnContent reports whether the user may perform the action
// on the content item. Any failed lookup denies.
func (e *Engine) CanPerformActionOnContent(ctx context.Context, userID string, action Action, contentID string) bool {
	return e.Explain(ctx, userID, action, contentID).Allowed
}

// Explain is CanPerformActionOnContent with the reason attached.
func (e *Engine) Explain(ctx context.Context, userID string, action Action, contentID string) Decision {
	user, err := e.users.LookupUser(ctx, userID)
	if err != nil {
		e.lookupFailed(ctx, "user", userID, err)
		return e.decided(ctx, userID, action, contentID, Decision{Reason: reasonUserNotFound})
	}
	if user.Role == RoleAdmin {
		return e.decided(ctx, userID, action, contentID, Decision{Allowed: true, Reason: reasonAdmin})
	}

	content, err := e.contents.LookupContent(ctx, contentID)
	if err != nil {
		e.lookupFailed(ctx, "content", contentID, err)
		return e.decided(ctx, userID, action, contentID, Decision{Reason: reasonContentNotFound})
	}

	rel := e.relationship(ctx, user, content)
	allowed := Allowed(user.Role, content.State, action, rel)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "policy decision",
		slog.String("user", userID),
		slog.String("role", user.Role.String()),
		slog.String("action", action.String()),
		slog.String("content", contentID),
		slog.String("state", content.State.String()),
		slog.Bool("owner", rel.IsOwner),
		slog.Bool("reviewer", rel.IsReviewer),
		slog.Bool("decision", allowed),
		slog.String("reason", reasonTable),
	)
	return Decision{Allowed: allowed, Reason: reasonTable}
}

// CanPerformAction answers capability questions. Content questions with a
// concrete id go through the per-state table; without an id only the role
// is consulted.
func (e *Engine) CanPerformAction(ctx context.Context, userID string, action Action, resourceType ResourceType, resourceID string) bool {
	if resourceType == ResourceContent && resourceID != "" {
		return e.CanPerformActionOnContent(ctx, userID, action, resourceID)
	}

	user, err := e.users.LookupUser(ctx, userID)
	if err != nil {
		e.lookupFailed(ctx, "user", userID, err)
		return false
	}
	if user.Role == RoleAdmin {
		e.decided(ctx, userID, action, "", Decision{Allowed: true, Reason: reasonAdmin})
		return true
	}
	if resourceType != ResourceContent {
		e.decided(ctx, userID, action, "", Decision{Reason: reasonUnknownResource})
		return false
	}
	allowed := RoleCan(user.Role, action)
	e.decided(ctx, userID, action, "", Decision{Allowed: allowed, Reason: reasonRoleTable})
	return allowed
}

// AllowedActions lists, in enumeration order, every action the user may
// perform on the content. It drives what a UI offers; mutating operations
// must still check the action they perform.
func (e *Engine) AllowedActions(ctx context.Context, userID, contentID string) []Action {
	allowed := make([]Action, 0, actionCount)
	for _, action := range AllActions() {
		if e.CanPerformActionOnContent(ctx, userID, action, contentID) {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

func (e *Engine) decided(ctx context.Context, userID string, action Action, contentID string, d Decision) Decision {
	e.logger.LogAttrs(ctx, slog.LevelDebug, "policy decision",
		slog.String("user", userID),
		slog.String("action", action.String()),
		slog.String("content", contentID),
		slog.Bool("decision", d.Allowed),
		slog.String("reason", d.Reason),
	)
	return d
}

func (e *Engine) lookupFailed(ctx context.Context, kind, id string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrNotFound) {
		level = slog.LevelDebug
	}
	e.logger.LogAttrs(ctx, level, "policy lookup failed",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
}
