package store

import (
	"time"

	"folio/api/internal/policy"
)

// ErrNotFound is policy.ErrNotFound so that lookups failing on a missing row
// are recognised by the engine as ordinary denials.
var ErrNotFound = policy.ErrNotFound

type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        policy.Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u User) policyUser() policy.User {
	return policy.User{ID: u.ID, Email: u.Email, Role: u.Role}
}

type Content struct {
	ID           string
	Title        string
	Body         string
	State        policy.State
	AuthorEmails []string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Content) policyContent() policy.Content {
	return policy.Content{ID: c.ID, State: c.State, CreditedAuthorEmails: c.AuthorEmails}
}

type Assignment struct {
	ID           string
	ContentID    string
	ReviewerID   string
	ReviewerName string
	Status       policy.AssignmentStatus
	AssignedBy   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Review struct {
	ID           string
	AssignmentID string
	ContentID    string
	ReviewerID   string
	ReviewerName string
	Verdict      string
	Body         string
	CreatedAt    time.Time
}

// Snapshot is the acting user and the content row as seen inside the
// transaction that holds the row lock.
type Snapshot struct {
	User       policy.User
	Content    policy.Content
	IsReviewer bool
}

// Relationship derives the policy relationship from the locked rows.
func (s Snapshot) Relationship() policy.Relationship {
	return policy.Relationship{
		IsOwner:    policy.OwnsContent(s.User, s.Content),
		IsReviewer: s.IsReviewer,
	}
}

// Guard vets a mutation against a Snapshot. A non-nil error aborts the
// transaction and is returned to the caller unchanged.
type Guard func(Snapshot) error
