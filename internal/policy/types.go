package policy

import (
	"fmt"
	"strings"
)

// Role is the single role a user holds at decision time.
// The zero value is the least privileged role.
type Role int

const (
	RoleUser Role = iota
	RoleAuthor
	RoleReviewer
	RoleEditor
	RoleAdmin

	roleCount
)

var roleNames = [roleCount]string{
	RoleUser:     "USER",
	RoleAuthor:   "AUTHOR",
	RoleReviewer: "REVIEWER",
	RoleEditor:   "EDITOR",
	RoleAdmin:    "ADMIN",
}

func (r Role) String() string {
	if r < 0 || r >= roleCount {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole accepts the stored role name, case-insensitively.
func ParseRole(value string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(strings.TrimSpace(value), name) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", value)
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AllRoles returns every role in declaration order.
func AllRoles() []Role {
	roles := make([]Role, 0, roleCount)
	for r := Role(0); r < roleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// State is the lifecycle state of a content item.
type State int

const (
	StateDraft State = iota
	StateReview
	StatePublished
	StateArchived

	stateCount
)

var stateNames = [stateCount]string{
	StateDraft:     "DRAFT",
	StateReview:    "REVIEW",
	StatePublished: "PUBLISHED",
	StateArchived:  "ARCHIVED",
}

func (s State) String() string {
	if s < 0 || s >= stateCount {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func ParseState(value string) (State, error) {
	for i, name := range stateNames {
		if strings.EqualFold(strings.TrimSpace(value), name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle state %q", value)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AllStates returns every lifecycle state in declaration order.
func AllStates() []State {
	states := make([]State, 0, stateCount)
	for s := State(0); s < stateCount; s++ {
		states = append(states, s)
	}
	return states
}

// Action is one of the fixed operations a user may request on content.
type Action int

const (
	ActionCreateContent Action = iota
	ActionEditContent
	ActionDeleteContent
	ActionViewContent
	ActionSubmitContent
	ActionWithdrawContent
	ActionPublishContent
	ActionArchiveContent
	ActionAssignReviewer
	ActionSubmitReview
	ActionViewReviewer
	ActionViewAuthor
	ActionApproveContent
	ActionRejectContent
	ActionRequestRevisions

	actionCount
)

var actionNames = [actionCount]string{
	ActionCreateContent:    "create_content",
	ActionEditContent:      "edit_content",
	ActionDeleteContent:    "delete_content",
	ActionViewContent:      "view_content",
	ActionSubmitContent:    "submit_content",
	ActionWithdrawContent:  "withdraw_content",
	ActionPublishContent:   "publish_content",
	ActionArchiveContent:   "archive_content",
	ActionAssignReviewer:   "assign_reviewer",
	ActionSubmitReview:     "submit_review",
	ActionViewReviewer:     "view_reviewer",
	ActionViewAuthor:       "view_author",
	ActionApproveContent:   "approve_content",
	ActionRejectContent:    "reject_content",
	ActionRequestRevisions: "request_revisions",
}

func (a Action) String() string {
	if a < 0 || a >= actionCount {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

func ParseAction(value string) (Action, error) {
	for i, name := range actionNames {
		if strings.TrimSpace(value) == name {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", value)
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AllActions returns every action in enumeration order.
func AllActions() []Action {
	actions := make([]Action, 0, actionCount)
	for a := Action(0); a < actionCount; a++ {
		actions = append(actions, a)
	}
	return actions
}

// ResourceType names what a general capability question is about.
type ResourceType string

const (
	ResourceContent ResourceType = "content"
)

// ReviewMode selects how much identity is disclosed during review.
type ReviewMode string

const (
	// ReviewSingleBlind hides reviewers from authors only.
	ReviewSingleBlind ReviewMode = "single"
	// ReviewDoubleBlind hides both sides from each other.
	ReviewDoubleBlind ReviewMode = "double"
)

func ParseReviewMode(value string) (ReviewMode, error) {
	switch mode := ReviewMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case ReviewSingleBlind, ReviewDoubleBlind:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown review mode %q", value)
	}
}

func (m *ReviewMode) UnmarshalText(text []byte) error {
	parsed, err := ParseReviewMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// AssignmentStatus is the status of a reviewer's binding to a content item.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "PENDING"
	AssignmentInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentCompleted  AssignmentStatus = "COMPLETED"
	AssignmentDeclined   AssignmentStatus = "DECLINED"
)

// Active reports whether the assignment still makes its holder a reviewer.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentPending || s == AssignmentInProgress
}

// Relationship is the user's derived relationship to one content item.
// Both bits may be set at once.
type Relationship struct {
	IsOwner    bool
	IsReviewer bool
}
