package policy

// A rule decides one (state, action) cell for a non-admin role.
type rule func(role Role, rel Relationship) bool

// Adding a state or an action breaks these indexes at compile time. Extend
// every per-state switch below in the same change, then bump the counts.
func _() {
	var x [1]struct{}
	_ = x[int(stateCount)-4]
	_ = x[int(actionCount)-15]
}

func always(Role, Relationship) bool { return true }
func never(Role, Relationship) bool  { return false }

func editor(role Role, _ Relationship) bool { return role == RoleEditor }

func editorOrOwner(role Role, rel Relationship) bool {
	return role == RoleEditor || rel.IsOwner
}

func contributor(role Role, _ Relationship) bool {
	return role == RoleEditor || role == RoleAuthor
}

// Allowed evaluates the policy for an already resolved role, state and
// relationship. ADMIN passes before any cell is consulted.
func Allowed(role Role, state State, action Action, rel Relationship) bool {
	if role == RoleAdmin {
		return true
	}
	r := lookup(state, action)
	if r == nil {
		return false
	}
	return r(role, rel)
}

// lookup returns nil only for values outside the closed enumerations.
func lookup(state State, action Action) rule {
	switch state {
	case StateDraft:
		return draftRule(action)
	case StateReview:
		return reviewRule(action)
	case StatePublished:
		return publishedRule(action)
	case StateArchived:
		return archivedRule(action)
	}
	return nil
}

// No review exists yet, so reviewer actions deny. Authorship is never secret here.
func draftRule(action Action) rule {
	switch action {
	case ActionCreateContent:
		return contributor
	case ActionEditContent, ActionDeleteContent, ActionViewContent, ActionSubmitContent:
		return editorOrOwner
	case ActionWithdrawContent, ActionPublishContent, ActionArchiveContent:
		return never
	case ActionAssignReviewer, ActionSubmitReview, ActionViewReviewer:
		return never
	case ActionViewAuthor:
		return always
	case ActionApproveContent, ActionRejectContent, ActionRequestRevisions:
		return never
	}
	return nil
}

func reviewRule(action Action) rule {
	switch action {
	case ActionCreateContent:
		return contributor
	case ActionEditContent, ActionDeleteContent:
		return editor
	case ActionViewContent:
		return func(role Role, rel Relationship) bool {
			return role == RoleEditor || rel.IsOwner || rel.IsReviewer
		}
	case ActionSubmitContent:
		return never
	case ActionWithdrawContent:
		return editorOrOwner
	case ActionPublishContent, ActionArchiveContent, ActionAssignReviewer:
		return editor
	case ActionSubmitReview:
		// An owner never reviews their own work, assignment or not.
		return func(role Role, rel Relationship) bool {
			return role == RoleReviewer && rel.IsReviewer && !rel.IsOwner
		}
	case ActionViewReviewer:
		// Ownership never grants here, even when the owner is also assigned.
		return editor
	case ActionViewAuthor:
		// Single-blind: the assigned reviewer may see who wrote it.
		return func(role Role, rel Relationship) bool {
			return role == RoleEditor || rel.IsOwner || (role == RoleReviewer && rel.IsReviewer)
		}
	case ActionApproveContent, ActionRejectContent, ActionRequestRevisions:
		return editor
	}
	return nil
}

func publishedRule(action Action) rule {
	switch action {
	case ActionCreateContent:
		return contributor
	case ActionEditContent:
		return editor
	case ActionDeleteContent:
		// Archival is the only removal path for published content.
		return never
	case ActionViewContent:
		return always
	case ActionSubmitContent, ActionWithdrawContent, ActionPublishContent:
		return never
	case ActionArchiveContent:
		return editor
	case ActionAssignReviewer, ActionSubmitReview:
		return never
	case ActionViewReviewer:
		// The outcome is settled, so the owning author may learn who reviewed.
		return func(role Role, rel Relationship) bool {
			return role == RoleEditor || (role == RoleAuthor && rel.IsOwner)
		}
	case ActionViewAuthor:
		return always
	case ActionApproveContent, ActionRejectContent, ActionRequestRevisions:
		return never
	}
	return nil
}

func archivedRule(action Action) rule {
	switch action {
	case ActionCreateContent:
		return contributor
	case ActionEditContent:
		return never
	case ActionDeleteContent:
		return editor
	case ActionViewContent:
		return editorOrOwner
	case ActionSubmitContent, ActionWithdrawContent:
		return never
	case ActionPublishContent:
		// Restore.
		return editor
	case ActionArchiveContent, ActionAssignReviewer, ActionSubmitReview:
		return never
	case ActionViewReviewer:
		return editor
	case ActionViewAuthor:
		return always
	case ActionApproveContent, ActionRejectContent, ActionRequestRevisions:
		return never
	}
	return nil
}
