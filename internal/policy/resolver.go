package policy

import (
	"context"
	"strings"
)

// IsOwner reports whether the user is one of the content's credited authors.
// Any lookup failure answers false.
func (e *Engine) IsOwner(ctx context.Context, userID, contentID string) bool {
	user, err := e.users.LookupUser(ctx, userID)
	if err != nil {
		e.lookupFailed(ctx, "user", userID, err)
		return false
	}
	content, err := e.contents.LookupContent(ctx, contentID)
	if err != nil {
		e.lookupFailed(ctx, "content", contentID, err)
		return false
	}
	return OwnsContent(user, content)
}

// IsReviewer reports whether the user holds an active review assignment on
// the content. A missing or failing review subsystem answers false.
func (e *Engine) IsReviewer(ctx context.Context, userID, contentID string) bool {
	assignment, ok, err := e.reviews.LookupActiveAssignment(ctx, userID, contentID)
	if err != nil {
		e.lookupFailed(ctx, "assignment", contentID, err)
		return false
	}
	return ok && assignment.Status.Active()
}

func (e *Engine) relationship(ctx context.Context, user User, content Content) Relationship {
	return Relationship{
		IsOwner:    OwnsContent(user, content),
		IsReviewer: e.IsReviewer(ctx, user.ID, content.ID),
	}
}

// OwnsContent reports whether the user's email is among the content's
// credited authors. Matching ignores case and surrounding space, and an empty
// email never matches.
func OwnsContent(user User, content Content) bool {
	email := normalizeEmail(user.Email)
	if email == "" {
		return false
	}
	for _, credited := range content.CreditedAuthorEmails {
		if normalizeEmail(credited) == email {
			return true
		}
	}
	return false
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
