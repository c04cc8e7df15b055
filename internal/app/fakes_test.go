package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"folio/api/internal/config"
	"folio/api/internal/policy"
	"folio/api/internal/search"
	"folio/api/internal/session"
	"folio/api/internal/store"
)

// fakeStore keeps users, content and reviews in memory. Guarded writes build
// the same Snapshot the Postgres store builds under its row lock.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]store.User
	hashes      map[string]string
	contents    map[string]store.Content
	order       []string
	assignments map[string]store.Assignment
	reviews     []store.Review
	seq         int

	pingFn         func(context.Context) error
	beforeGuardFn  func(contentID string)
	reviewsMissing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]store.User),
		hashes:      make(map[string]string),
		contents:    make(map[string]store.Content),
		assignments: make(map[string]store.Assignment),
	}
}

// addUser stores a user whose password is passwordFor(id).
func (f *fakeStore) addUser(id, email string, role policy.Role) {
	f.users[id] = store.User{ID: id, Email: email, DisplayName: strings.ToUpper(id[:1]) + id[1:], Role: role}
	hash, err := bcrypt.GenerateFromPassword([]byte(passwordFor(id)), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	f.hashes[id] = string(hash)
}

func passwordFor(userID string) string {
	return userID + "-password"
}

func (f *fakeStore) addContent(id string, state policy.State, authors ...string) {
	f.contents[id] = store.Content{ID: id, Title: "Title " + id, Body: "Body " + id, State: state, AuthorEmails: authors}
	f.order = append(f.order, id)
}

func (f *fakeStore) assign(contentID, reviewerID string, status policy.AssignmentStatus) {
	f.assignments[contentID+"/"+reviewerID] = store.Assignment{
		ID:           "asg-" + contentID + "-" + reviewerID,
		ContentID:    contentID,
		ReviewerID:   reviewerID,
		ReviewerName: f.users[reviewerID].DisplayName,
		Status:       status,
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) LookupUser(_ context.Context, userID string) (policy.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return policy.User{}, store.ErrNotFound
	}
	return policy.User{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (f *fakeStore) LookupContent(_ context.Context, contentID string) (policy.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.contents[contentID]
	if !ok {
		return policy.Content{}, store.ErrNotFound
	}
	return policy.Content{ID: item.ID, State: item.State, CreditedAuthorEmails: item.AuthorEmails}, nil
}

func (f *fakeStore) LookupActiveAssignment(_ context.Context, userID, contentID string) (policy.Assignment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activeAssignment(userID, contentID)
	if !ok {
		return policy.Assignment{}, false, nil
	}
	return policy.Assignment{ID: a.ID, UserID: a.ReviewerID, ContentID: a.ContentID, Status: a.Status}, true, nil
}

func (f *fakeStore) activeAssignment(userID, contentID string) (store.Assignment, bool) {
	if f.reviewsMissing {
		return store.Assignment{}, false
	}
	a, ok := f.assignments[contentID+"/"+userID]
	if !ok || !a.Status.Active() {
		return store.Assignment{}, false
	}
	return a, true
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(strings.TrimSpace(user.Email), strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetCredentials(_ context.Context, email string) (store.User, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(strings.TrimSpace(user.Email), strings.TrimSpace(email)) {
			return user, f.hashes[user.ID], nil
		}
	}
	return store.User{}, "", store.ErrNotFound
}

func (f *fakeStore) InsertUser(_ context.Context, user store.User) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(strings.TrimSpace(existing.Email), strings.TrimSpace(user.Email)) {
			return store.User{}, store.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = f.nextID("usr")
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) SetPasswordHash(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return store.ErrNotFound
	}
	f.hashes[userID] = hash
	return nil
}

func (f *fakeStore) ListContent(context.Context) ([]store.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Content, 0, len(f.order))
	for _, id := range f.order {
		if item, ok := f.contents[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) GetContent(_ context.Context, contentID string) (store.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.contents[contentID]
	if !ok {
		return store.Content{}, store.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) InsertContent(_ context.Context, item store.Content) (store.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = f.nextID("cnt")
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.contents[item.ID] = item
	f.order = append(f.order, item.ID)
	return item, nil
}

// locked mimics withLockedContent: resolve the snapshot, run the guard, and
// apply only when the guard passes.
func (f *fakeStore) locked(userID, contentID string, guard store.Guard, apply func(store.Snapshot) error) error {
	if f.beforeGuardFn != nil {
		f.beforeGuardFn(contentID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	item, ok := f.contents[contentID]
	if !ok {
		return store.ErrNotFound
	}
	_, isReviewer := f.activeAssignment(userID, contentID)
	snap := store.Snapshot{
		User:       policy.User{ID: user.ID, Email: user.Email, Role: user.Role},
		Content:    policy.Content{ID: item.ID, State: item.State, CreditedAuthorEmails: item.AuthorEmails},
		IsReviewer: isReviewer,
	}
	if guard != nil {
		if err := guard(snap); err != nil {
			return err
		}
	}
	return apply(snap)
}

func (f *fakeStore) UpdateContent(_ context.Context, userID, contentID, title, body string, authors []string, guard store.Guard) (store.Content, error) {
	var out store.Content
	err := f.locked(userID, contentID, guard, func(store.Snapshot) error {
		item := f.contents[contentID]
		item.Title = title
		item.Body = body
		if authors != nil {
			item.AuthorEmails = authors
		}
		item.UpdatedAt = time.Now()
		f.contents[contentID] = item
		out = item
		return nil
	})
	return out, err
}

func (f *fakeStore) DeleteContent(_ context.Context, userID, contentID string, guard store.Guard) error {
	return f.locked(userID, contentID, guard, func(store.Snapshot) error {
		delete(f.contents, contentID)
		return nil
	})
}

func (f *fakeStore) TransitionContent(_ context.Context, userID, contentID string, decide func(store.Snapshot) (policy.State, error)) (store.Content, error) {
	var out store.Content
	err := f.locked(userID, contentID, nil, func(snap store.Snapshot) error {
		next, err := decide(snap)
		if err != nil {
			return err
		}
		item := f.contents[contentID]
		item.State = next
		f.contents[contentID] = item
		out = item
		return nil
	})
	return out, err
}

func (f *fakeStore) AssignReviewer(_ context.Context, userID, contentID, reviewerID string, guard store.Guard) (store.Assignment, error) {
	var out store.Assignment
	err := f.locked(userID, contentID, guard, func(store.Snapshot) error {
		if f.reviewsMissing {
			return store.ErrReviewsUnavailable
		}
		out = store.Assignment{
			ID:           f.nextID("asg"),
			ContentID:    contentID,
			ReviewerID:   reviewerID,
			ReviewerName: f.users[reviewerID].DisplayName,
			Status:       policy.AssignmentPending,
			AssignedBy:   userID,
		}
		f.assignments[contentID+"/"+reviewerID] = out
		return nil
	})
	return out, err
}

func (f *fakeStore) SubmitReview(_ context.Context, userID, contentID, verdict, body string, guard store.Guard) (store.Review, error) {
	var out store.Review
	err := f.locked(userID, contentID, guard, func(store.Snapshot) error {
		a, ok := f.activeAssignment(userID, contentID)
		if !ok {
			return fmt.Errorf("active assignment: %w", store.ErrNotFound)
		}
		out = store.Review{
			ID:           f.nextID("rev"),
			AssignmentID: a.ID,
			ContentID:    contentID,
			ReviewerID:   userID,
			ReviewerName: f.users[userID].DisplayName,
			Verdict:      verdict,
			Body:         body,
			CreatedAt:    time.Now(),
		}
		f.reviews = append(f.reviews, out)
		a.Status = policy.AssignmentCompleted
		f.assignments[contentID+"/"+userID] = a
		return nil
	})
	return out, err
}

func (f *fakeStore) ListReviews(_ context.Context, contentID string) ([]store.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Review, 0)
	for _, r := range f.reviews {
		if r.ContentID == contentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAssignments(_ context.Context, contentID string) ([]store.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Assignment, 0)
	for _, a := range f.assignments {
		if a.ContentID == contentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// fakeSearch pages its canned results the way an index would.
type fakeSearch struct {
	mu      sync.Mutex
	results []search.Result
	queries []search.Query
	indexed []search.ContentRecord
	deleted []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	start := min(q.Offset, len(f.results))
	end := len(f.results)
	if q.Limit > 0 {
		end = min(start+q.Limit, end)
	}
	results := append([]search.Result(nil), f.results[start:end]...)
	return search.Response{Results: results, Total: len(f.results), Query: q.Text}
}

func (f *fakeSearch) IndexContent(record search.ContentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, record)
}

func (f *fakeSearch) DeleteContent(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
}

// seededStore holds one user per role plus two authors, and one item per
// state credited to alice. rita is assigned to c-review.
func seededStore() *fakeStore {
	fs := newFakeStore()
	fs.addUser("admin", "admin@folio.test", policy.RoleAdmin)
	fs.addUser("eddie", "eddie@folio.test", policy.RoleEditor)
	fs.addUser("alice", "Alice@Folio.test", policy.RoleAuthor)
	fs.addUser("bob", "bob@folio.test", policy.RoleAuthor)
	fs.addUser("rita", "rita@folio.test", policy.RoleReviewer)
	fs.addUser("ravi", "ravi@folio.test", policy.RoleReviewer)
	fs.addUser("una", "una@folio.test", policy.RoleUser)

	fs.addContent("c-draft", policy.StateDraft, "alice@folio.test")
	fs.addContent("c-review", policy.StateReview, " alice@folio.test ")
	fs.addContent("c-pub", policy.StatePublished, "alice@folio.test")
	fs.addContent("c-arch", policy.StateArchived, "alice@folio.test")
	fs.assign("c-review", "rita", policy.AssignmentInProgress)
	return fs
}

type testEnv struct {
	store    *fakeStore
	search   *fakeSearch
	sessions *session.RedisStore
	redis    *miniredis.Miniredis
	svc      *Service
	server   *HTTPServer
}

func newTestEnv(t *testing.T, fs *fakeStore, mode policy.ReviewMode, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := session.NewRedisStoreWithClient(client)
	searcher := &fakeSearch{}
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		ReviewMode: mode,
		// Keep bcrypt cheap in tests.
		PasswordCost: bcrypt.MinCost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(cfg, fs, sessions, searcher, logger)
	return &testEnv{
		store:    fs,
		search:   searcher,
		sessions: sessions,
		redis:    mr,
		svc:      svc,
		server:   NewHTTPServer(svc, "*", logger),
	}
}

// sessionFor signs userID in with their password and returns the session.
func (e *testEnv) sessionFor(t *testing.T, userID string) Session {
	t.Helper()
	user, ok := e.store.users[userID]
	if !ok {
		t.Fatalf("unknown test user %q", userID)
	}
	sess, err := e.svc.Login(context.Background(), user.Email, passwordFor(userID))
	if err != nil {
		t.Fatalf("login %s: %v", userID, err)
	}
	return sess
}
