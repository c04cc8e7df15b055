package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users       map[string]User
	contents    map[string]Content
	assignments map[string]Assignment

	userErr    error
	contentErr error
	reviewErr  error
	calls      int
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]User{},
		contents:    map[string]Content{},
		assignments: map[string]Assignment{},
	}
}

func (m *memStore) LookupUser(_ context.Context, userID string) (User, error) {
	m.calls++
	if m.userErr != nil {
		return User{}, m.userErr
	}
	user, ok := m.users[userID]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return user, nil
}

func (m *memStore) LookupContent(_ context.Context, contentID string) (Content, error) {
	m.calls++
	if m.contentErr != nil {
		return Content{}, m.contentErr
	}
	content, ok := m.contents[contentID]
	if !ok {
		return Content{}, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	return content, nil
}

func (m *memStore) LookupActiveAssignment(_ context.Context, userID, contentID string) (Assignment, bool, error) {
	m.calls++
	if m.reviewErr != nil {
		return Assignment{}, false, m.reviewErr
	}
	a, ok := m.assignments[userID+"/"+contentID]
	if !ok || !a.Status.Active() {
		return Assignment{}, false, nil
	}
	return a, true, nil
}

func (m *memStore) addUser(id, email string, role Role) {
	m.users[id] = User{ID: id, Email: email, Role: role}
}

func (m *memStore) addContent(id string, state State, authors ...string) {
	m.contents[id] = Content{ID: id, State: state, CreditedAuthorEmails: authors}
}

func (m *memStore) assign(userID, contentID string, status AssignmentStatus) {
	m.assignments[userID+"/"+contentID] = Assignment{ID: "asg-" + userID, UserID: userID, ContentID: contentID, Status: status}
}

func seededEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	m := newMemStore()
	m.addUser("admin", "admin@folio.test", RoleAdmin)
	m.addUser("editor", "editor@folio.test", RoleEditor)
	m.addUser("alice", "Alice@Folio.test", RoleAuthor)
	m.addUser("bob", "bob@folio.test", RoleAuthor)
	m.addUser("rita", "rita@folio.test", RoleReviewer)
	m.addUser("reader", "reader@folio.test", RoleUser)
	m.addContent("c-draft", StateDraft, "alice@folio.test")
	m.addContent("c-review", StateReview, " alice@folio.test ")
	m.addContent("c-pub", StatePublished, "alice@folio.test")
	m.addContent("c-arch", StateArchived, "alice@folio.test")
	m.assign("rita", "c-review", AssignmentInProgress)
	return New(m, m, WithReviews(m)), m
}

func TestAuthorOwningContentInReview(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	assert.False(t, engine.CanPerformActionOnContent(ctx, "alice", ActionSubmitContent, "c-review"))
	assert.True(t, engine.CanPerformActionOnContent(ctx, "alice", ActionWithdrawContent, "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "alice", ActionViewReviewer, "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "alice", ActionEditContent, "c-review"))
}

func TestAssignedReviewerOnContentInReview(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	assert.True(t, engine.CanPerformActionOnContent(ctx, "rita", ActionSubmitReview, "c-review"))
	assert.True(t, engine.CanPerformActionOnContent(ctx, "rita", ActionViewAuthor, "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "rita", ActionEditContent, "c-review"))
}

func TestAdminShortCircuitsBeforeContentLookup(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()

	for _, action := range AllActions() {
		assert.True(t, engine.CanPerformActionOnContent(ctx, "admin", action, "c-pub"))
		assert.True(t, engine.CanPerformActionOnContent(ctx, "admin", action, "does-not-exist"))
	}

	m.calls = 0
	m.contentErr = errors.New("content store down")
	assert.True(t, engine.CanPerformActionOnContent(ctx, "admin", ActionDeleteContent, "c-pub"))
	assert.Equal(t, 1, m.calls, "admin decision must only resolve the user")
}

func TestFailClosedOnMissingEntities(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	for _, action := range AllActions() {
		assert.False(t, engine.CanPerformActionOnContent(ctx, "editor", action, "missing"), "missing content %s", action)
		assert.False(t, engine.CanPerformActionOnContent(ctx, "ghost", action, "c-pub"), "missing user %s", action)
	}
	assert.Empty(t, engine.AllowedActions(ctx, "editor", "missing"))
	assert.Empty(t, engine.AllowedActions(ctx, "ghost", "c-pub"))
}

func TestStoreErrorsDeny(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()

	m.userErr = errors.New("connection reset")
	assert.False(t, engine.CanPerformActionOnContent(ctx, "editor", ActionViewContent, "c-pub"))
	assert.False(t, engine.CanPerformAction(ctx, "editor", ActionCreateContent, ResourceContent, ""))
	assert.False(t, engine.CanViewReviewerAssignment(ctx, "editor", "c-pub"))
	m.userErr = nil

	m.contentErr = errors.New("connection reset")
	assert.False(t, engine.CanPerformActionOnContent(ctx, "reader", ActionViewContent, "c-pub"))
	assert.False(t, engine.IsOwner(ctx, "alice", "c-pub"))
	m.contentErr = nil

	m.reviewErr = errors.New(`relation "review_assignments" does not exist`)
	assert.False(t, engine.IsReviewer(ctx, "rita", "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "rita", ActionSubmitReview, "c-review"))
	assert.True(t, engine.CanPerformActionOnContent(ctx, "editor", ActionApproveContent, "c-review"))
}

func TestWithoutReviewSubsystemReviewerActionsDeny(t *testing.T) {
	_, m := seededEngine(t)
	engine := New(m, m)
	ctx := context.Background()

	assert.False(t, engine.IsReviewer(ctx, "rita", "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "rita", ActionSubmitReview, "c-review"))
	assert.False(t, engine.CanPerformActionOnContent(ctx, "rita", ActionViewContent, "c-review"))
	assert.True(t, engine.CanPerformActionOnContent(ctx, "alice", ActionWithdrawContent, "c-review"))
}

func TestRelationshipResolver(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()

	assert.True(t, engine.IsOwner(ctx, "alice", "c-review"), "email match ignores case and spacing")
	assert.False(t, engine.IsOwner(ctx, "bob", "c-review"))
	assert.False(t, engine.IsOwner(ctx, "ghost", "c-review"))
	assert.False(t, engine.IsOwner(ctx, "alice", "missing"))

	m.addUser("blank", "", RoleAuthor)
	m.addContent("c-blank", StateDraft, "")
	assert.False(t, engine.IsOwner(ctx, "blank", "c-blank"), "empty emails never match")

	assert.True(t, engine.IsReviewer(ctx, "rita", "c-review"))
	assert.False(t, engine.IsReviewer(ctx, "rita", "c-pub"))

	m.assign("rita", "c-review", AssignmentCompleted)
	assert.False(t, engine.IsReviewer(ctx, "rita", "c-review"))
	m.assign("rita", "c-review", AssignmentPending)
	assert.True(t, engine.IsReviewer(ctx, "rita", "c-review"))
}

func TestDecisionsAreNotCached(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()

	require.True(t, engine.CanPerformActionOnContent(ctx, "editor", ActionArchiveContent, "c-pub"))
	m.addContent("c-pub", StateArchived, "alice@folio.test")
	assert.False(t, engine.CanPerformActionOnContent(ctx, "editor", ActionArchiveContent, "c-pub"))

	require.True(t, engine.CanPerformActionOnContent(ctx, "rita", ActionSubmitReview, "c-review"))
	m.assign("rita", "c-review", AssignmentDeclined)
	assert.False(t, engine.CanPerformActionOnContent(ctx, "rita", ActionSubmitReview, "c-review"))

	m.addUser("bob", "bob@folio.test", RoleEditor)
	assert.True(t, engine.CanPerformActionOnContent(ctx, "bob", ActionApproveContent, "c-review"))
}

func TestAllowedActionsMatchesIndividualChecks(t *testing.T) {
	engine, m := seededEngine(t)
	m.assign("rita", "c-pub", AssignmentPending)
	ctx := context.Background()

	for userID := range m.users {
		for contentID := range m.contents {
			var want []Action
			for _, action := range AllActions() {
				if engine.CanPerformActionOnContent(ctx, userID, action, contentID) {
					want = append(want, action)
				}
			}
			got := engine.AllowedActions(ctx, userID, contentID)
			if len(want) == 0 {
				assert.Empty(t, got, "%s on %s", userID, contentID)
				continue
			}
			assert.Equal(t, want, got, "%s on %s", userID, contentID)
		}
	}

	assert.Equal(t, AllActions(), engine.AllowedActions(ctx, "admin", "c-draft"))
	assert.Equal(t, []Action{ActionCreateContent, ActionViewContent, ActionViewAuthor},
		engine.AllowedActions(ctx, "bob", "c-pub"))
}

func TestCanPerformAction(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	cases := []struct {
		name         string
		user         string
		action       Action
		resourceType ResourceType
		resourceID   string
		allow        bool
	}{
		{name: "author may create", user: "alice", action: ActionCreateContent, resourceType: ResourceContent, allow: true},
		{name: "reader may not create", user: "reader", action: ActionCreateContent, resourceType: ResourceContent, allow: false},
		{name: "reviewer may review in general", user: "rita", action: ActionSubmitReview, resourceType: ResourceContent, allow: true},
		{name: "reader may view in general", user: "reader", action: ActionViewContent, resourceType: ResourceContent, allow: true},
		{name: "concrete id delegates to table", user: "reader", action: ActionViewContent, resourceType: ResourceContent, resourceID: "c-draft", allow: false},
		{name: "concrete id for reviewer elsewhere", user: "rita", action: ActionSubmitReview, resourceType: ResourceContent, resourceID: "c-pub", allow: false},
		{name: "unknown resource type", user: "editor", action: ActionViewContent, resourceType: "invoice", allow: false},
		{name: "admin on unknown resource type", user: "admin", action: ActionDeleteContent, resourceType: "invoice", allow: true},
		{name: "unknown user", user: "ghost", action: ActionViewContent, resourceType: ResourceContent, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.CanPerformAction(ctx, tc.user, tc.action, tc.resourceType, tc.resourceID)
			assert.Equal(t, tc.allow, got)
		})
	}
}

func TestCanViewReviewerAssignment(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()

	for _, contentID := range []string{"c-draft", "c-review", "c-pub", "c-arch"} {
		assert.True(t, engine.CanViewReviewerAssignment(ctx, "admin", contentID))
		assert.True(t, engine.CanViewReviewerAssignment(ctx, "editor", contentID))
		assert.False(t, engine.CanViewReviewerAssignment(ctx, "reader", contentID))
		assert.False(t, engine.CanViewReviewerAssignment(ctx, "bob", contentID))
	}

	assert.True(t, engine.CanViewReviewerAssignment(ctx, "rita", "c-review"))
	assert.False(t, engine.CanViewReviewerAssignment(ctx, "rita", "c-pub"))

	assert.True(t, engine.CanViewReviewerAssignment(ctx, "alice", "c-pub"))
	for _, contentID := range []string{"c-draft", "c-review", "c-arch"} {
		assert.False(t, engine.CanViewReviewerAssignment(ctx, "alice", contentID), contentID)
	}

	m.addContent("c-pub", StateArchived, "alice@folio.test")
	assert.False(t, engine.CanViewReviewerAssignment(ctx, "alice", "c-pub"))
}

func TestAnonymityHelpers(t *testing.T) {
	assert.True(t, CanReviewerSeeAuthor(ReviewSingleBlind))
	assert.False(t, CanReviewerSeeAuthor(ReviewDoubleBlind))
	assert.False(t, CanReviewerSeeAuthor(""))
	assert.False(t, CanAuthorSeeReviewer())
}

func TestViewReviewerTableAgreesWithAnonymityRule(t *testing.T) {
	engine, m := seededEngine(t)
	ctx := context.Background()
	m.assign("alice", "c-review", AssignmentPending)

	for _, contentID := range []string{"c-draft", "c-review", "c-arch"} {
		assert.Equal(t, CanAuthorSeeReviewer(), engine.CanPerformActionOnContent(ctx, "alice", ActionViewReviewer, contentID), contentID)
	}
	assert.True(t, engine.CanPerformActionOnContent(ctx, "alice", ActionViewReviewer, "c-pub"))
}

func TestEngineOptions(t *testing.T) {
	_, m := seededEngine(t)

	assert.Equal(t, ReviewSingleBlind, New(m, m).ReviewMode())
	assert.Equal(t, ReviewDoubleBlind, New(m, m, WithReviewMode(ReviewDoubleBlind)).ReviewMode())
	assert.Equal(t, ReviewSingleBlind, New(m, m, WithReviewMode("")).ReviewMode())

	engine := New(m, m, WithReviews(nil))
	assert.False(t, engine.IsReviewer(context.Background(), "rita", "c-review"))
}

func TestDecisionsAreLogged(t *testing.T) {
	_, m := seededEngine(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := New(m, m, WithReviews(m), WithLogger(logger))

	decision := engine.Explain(context.Background(), "alice", ActionEditContent, "c-review")
	assert.False(t, decision.Allowed)
	assert.Equal(t, reasonTable, decision.Reason)
	assert.Contains(t, buf.String(), `"action":"edit_content"`)
	assert.Contains(t, buf.String(), `"state":"REVIEW"`)

	buf.Reset()
	decision = engine.Explain(context.Background(), "editor", ActionViewContent, "missing")
	assert.Equal(t, reasonContentNotFound, decision.Reason)
	assert.Contains(t, buf.String(), "policy lookup failed")
}
