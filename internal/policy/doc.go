// Package policy decides what a user may do to a content item.
//
// A decision composes three independent axes: the user's Role, the content's
// lifecycle State, and the user's Relationship to the content (credited
// author, assigned reviewer, both, or neither). ADMIN passes every check
// before anything else is looked up. For every other role the answer comes
// from a total table over (State, Action).
//
// # Fail-closed
//
// The engine never returns errors. A missing user, a missing content item or
// a failing store all collapse to a denial. Callers that must tell "denied"
// apart from "does not exist" check existence themselves first.
//
// # Freshness
//
// Nothing is cached. Role, state and assignments are read again on every
// call, because they can change between rendering a control and using it.
// Decisions are advisory for UI purposes; the code that applies a mutation
// re-evaluates Allowed against the rows it holds in its own transaction.
//
// # Blind review
//
// Reviewers are hidden from authors. CanAuthorSeeReviewer is always false and
// the table's view_reviewer cells agree with it, except that once content is
// PUBLISHED its owning author may see who reviewed it.
//
// # Usage
//
//	engine := policy.New(store, store,
//		policy.WithReviews(store),
//		policy.WithReviewMode(cfg.ReviewMode),
//		policy.WithLogger(logger),
//	)
//
//	if !engine.CanPerformActionOnContent(ctx, userID, policy.ActionPublishContent, contentID) {
//		return errForbidden
//	}
package policy
