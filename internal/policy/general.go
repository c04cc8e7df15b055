package policy

// RoleCan answers a capability question with no concrete content item, for
// example whether a role may create content at all. It is coarser and more
// permissive than the per-state table and must not stand in for it once an
// item exists.
func RoleCan(role Role, action Action) bool {
	switch role {
	case RoleAdmin, RoleEditor:
		return action >= 0 && action < actionCount
	case RoleReviewer:
		return action == ActionViewContent || action == ActionViewAuthor || action == ActionSubmitReview
	case RoleAuthor:
		switch action {
		case ActionCreateContent, ActionEditContent, ActionDeleteContent, ActionViewContent,
			ActionSubmitContent, ActionWithdrawContent, ActionViewAuthor:
			return true
		}
		return false
	case RoleUser:
		return action == ActionViewContent || action == ActionViewAuthor
	default:
		return false
	}
}
