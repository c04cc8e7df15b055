package policy

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// User is the slice of identity the engine needs.
type User struct {
	ID    string
	Email string
	Role  Role
}

// Content is the slice of a content item the engine needs.
type Content struct {
	ID                   string
	State                State
	CreditedAuthorEmails []string
}

// Assignment binds a reviewer to a content item.
type Assignment struct {
	ID        string
	UserID    string
	ContentID string
	Status    AssignmentStatus
}

// UserRepository resolves users by id.
type UserRepository interface {
	LookupUser(ctx context.Context, userID string) (User, error)
}

// ContentRepository resolves content items by id.
type ContentRepository interface {
	LookupContent(ctx context.Context, contentID string) (Content, error)
}

// ReviewRepository resolves review assignments. Implementations return
// ok=false when the user holds no active assignment for the content.
type ReviewRepository interface {
	LookupActiveAssignment(ctx context.Context, userID, contentID string) (Assignment, bool, error)
}

// NoReviews is the review capability of a deployment without a review subsystem.
// Every reviewer-gated action denies under it.
type NoReviews struct{}

func (NoReviews) LookupActiveAssignment(context.Context, string, string) (Assignment, bool, error) {
	return Assignment{}, false, nil
}
