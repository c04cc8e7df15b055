package policy

import "context"

// CanReviewerSeeAuthor reports whether reviewers may learn who wrote the
// content under the given review mode.
func CanReviewerSeeAuthor(mode ReviewMode) bool {
	return mode == ReviewSingleBlind
}

// CanAuthorSeeReviewer is the standing blind-review rule: authors are never
// told who is reviewing them. The only exception is ownership-gated and
// post-publication, and lives in CanViewReviewerAssignment.
func CanAuthorSeeReviewer() bool {
	return false
}

// CanViewReviewerAssignment reports whether the user may see who is assigned
// to review the content.
func (e *Engine) CanViewReviewerAssignment(ctx context.Context, userID, contentID string) bool {
	user, err := e.users.LookupUser(ctx, userID)
	if err != nil {
		e.lookupFailed(ctx, "user", userID, err)
		return false
	}

	switch user.Role {
	case RoleAdmin, RoleEditor:
		return true
	case RoleReviewer:
		return e.IsReviewer(ctx, userID, contentID)
	case RoleAuthor:
		content, err := e.contents.LookupContent(ctx, contentID)
		if err != nil {
			e.lookupFailed(ctx, "content", contentID, err)
			return false
		}
		return content.State == StatePublished && OwnsContent(user, content)
	default:
		return false
	}
}
