package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"folio/api/internal/auth"
	"folio/api/internal/authpw"
	"folio/api/internal/config"
	"folio/api/internal/policy"
	"folio/api/internal/search"
	"folio/api/internal/store"
	"folio/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         policy.Role
	JTI          string
	ExpiresAt    time.Time
}

type ContentInput struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Authors []string `json:"authors"`
}

type ReviewInput struct {
	Verdict string `json:"verdict"`
	Body    string `json:"body"`
}

type ContentView struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Body          string       `json:"body"`
	State         policy.State `json:"state"`
	Authors       []string     `json:"authors,omitempty"`
	AuthorsHidden bool         `json:"authorsHidden,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type ReviewView struct {
	ID         string    `json:"id"`
	Verdict    string    `json:"verdict"`
	Body       string    `json:"body"`
	ReviewerID string    `json:"reviewerId,omitempty"`
	Reviewer   string    `json:"reviewer,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type AssignmentView struct {
	ID         string                  `json:"id"`
	ReviewerID string                  `json:"reviewerId"`
	Reviewer   string                  `json:"reviewer,omitempty"`
	Status     policy.AssignmentStatus `json:"status"`
}

type ReviewsView struct {
	Reviews     []ReviewView     `json:"reviews"`
	Assignments []AssignmentView `json:"assignments,omitempty"`
}

var allowedVerdicts = map[string]struct{}{
	"approve": {},
	"reject":  {},
	"revise":  {},
}

// transitions maps each lifecycle action to its target state, keyed by the
// state it leaves. Whether the caller may take it is the policy's call.
var transitions = map[policy.Action]map[policy.State]policy.State{
	policy.ActionSubmitContent:    {policy.StateDraft: policy.StateReview},
	policy.ActionWithdrawContent:  {policy.StateReview: policy.StateDraft},
	policy.ActionRequestRevisions: {policy.StateReview: policy.StateDraft},
	policy.ActionApproveContent:   {policy.StateReview: policy.StatePublished},
	policy.ActionRejectContent:    {policy.StateReview: policy.StateArchived},
	policy.ActionPublishContent: {
		policy.StateReview:   policy.StatePublished,
		policy.StateArchived: policy.StatePublished,
	},
	policy.ActionArchiveContent: {
		policy.StateReview:    policy.StateArchived,
		policy.StatePublished: policy.StateArchived,
	},
}

type dataStore interface {
	authpw.UserStore
	policy.UserRepository
	policy.ContentRepository
	policy.ReviewRepository
	GetUser(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListContent(context.Context) ([]store.Content, error)
	GetContent(context.Context, string) (store.Content, error)
	InsertContent(context.Context, store.Content) (store.Content, error)
	UpdateContent(context.Context, string, string, string, string, []string, store.Guard) (store.Content, error)
	DeleteContent(context.Context, string, string, store.Guard) error
	TransitionContent(context.Context, string, string, func(store.Snapshot) (policy.State, error)) (store.Content, error)
	AssignReviewer(context.Context, string, string, string, store.Guard) (store.Assignment, error)
	SubmitReview(context.Context, string, string, string, string, store.Guard) (store.Review, error)
	ListReviews(context.Context, string) ([]store.Review, error)
	ListAssignments(context.Context, string) ([]store.Assignment, error)
	Ping(context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	ConsumeRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexContent(search.ContentRecord)
	DeleteContent(string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   searchService
	engine   *policy.Engine
	accounts *authpw.Service
	logger   *slog.Logger
}

func New(cfg config.Config, data dataStore, sessions sessionStore, searcher searchService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
		search:   searcher,
		engine: policy.New(data, data,
			policy.WithReviews(data),
			policy.WithReviewMode(cfg.ReviewMode),
			policy.WithLogger(logger),
		),
		accounts: authpw.NewService(data, authpw.WithCost(cfg.PasswordCost)),
		logger:   logger,
	}
}

// Ready pings each backing service. A nil entry means the check passed.
func (s *Service) Ready(ctx context.Context) map[string]error {
	return map[string]error{
		"database": s.store.Ping(ctx),
		"redis":    s.sessions.Ping(ctx),
	}
}

// Login checks the password and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// DevLogin starts a session from an email alone. It is disabled unless the
// server runs with FOLIO_DEV_LOGIN and never signs in editors or admins.
func (s *Service) DevLogin(ctx context.Context, email string) (Session, error) {
	if !s.cfg.DevLogin {
		return Session{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, errValidation("email is required", nil)
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, authpw.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if user.Role == policy.RoleAdmin || user.Role == policy.RoleEditor {
		s.logger.WarnContext(ctx, "dev login refused for privileged role",
			slog.String("user", user.ID),
			slog.String("role", user.Role.String()),
		)
		return Session{}, domainError(http.StatusForbidden, "FORBIDDEN", "Dev login is not available for this role", nil)
	}
	return s.issueSession(ctx, user)
}

// SignUp registers a USER account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	if !s.cfg.AllowSignup {
		return Session{}, domainError(http.StatusForbidden, "SIGNUP_DISABLED", "Self-service sign up is disabled", nil)
	}
	user, err := s.accounts.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "user signed up", slog.String("user", user.ID))
	return s.issueSession(ctx, user)
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	return s.accounts.ChangePassword(ctx, session.Email, current, next)
}

// BootstrapAdmin creates the configured administrator on first start. An
// existing account with that email is left untouched.
func (s *Service) BootstrapAdmin(ctx context.Context) error {
	email := strings.TrimSpace(s.cfg.BootstrapAdminEmail)
	if email == "" {
		return nil
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	user, err := s.accounts.Provision(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    s.cfg.BootstrapAdminPassword,
		DisplayName: "Administrator",
	}, policy.RoleAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.logger.InfoContext(ctx, "bootstrap admin created", slog.String("user", user.ID))
	return nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	userID, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	token, expiresAt, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken resolves a bearer token. The role comes from the user
// row, not the token, so a role change applies on the next request.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.WarnContext(ctx, "revoke access token", slog.String("error", err.Error()))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.WarnContext(ctx, "revoke refresh token", slog.String("error", err.Error()))
		}
	}
	return nil
}

// ListContent returns every item the caller may view.
func (s *Service) ListContent(ctx context.Context, session Session) ([]ContentView, error) {
	items, err := s.store.ListContent(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ContentView, 0, len(items))
	for _, item := range items {
		if !s.engine.CanPerformActionOnContent(ctx, session.UserID, policy.ActionViewContent, item.ID) {
			continue
		}
		views = append(views, s.view(ctx, session, item))
	}
	return views, nil
}

func (s *Service) CreateContent(ctx context.Context, session Session, input ContentInput) (ContentView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ContentView{}, errValidation("title is required", nil)
	}
	if !s.engine.CanPerformAction(ctx, session.UserID, policy.ActionCreateContent, policy.ResourceContent, "") {
		return ContentView{}, errForbidden(policy.ActionCreateContent)
	}

	authors := input.Authors
	if len(authors) == 0 {
		authors = []string{session.Email}
	}
	created, err := s.store.InsertContent(ctx, store.Content{
		Title:        title,
		Body:         input.Body,
		State:        policy.StateDraft,
		AuthorEmails: authors,
		CreatedBy:    session.UserID,
	})
	if err != nil {
		return ContentView{}, err
	}
	s.search.IndexContent(searchRecord(created))
	return s.view(ctx, session, created), nil
}

func (s *Service) GetContent(ctx context.Context, session Session, contentID string) (ContentView, error) {
	item, err := s.requireContent(ctx, contentID)
	if err != nil {
		return ContentView{}, err
	}
	if err := s.authorize(ctx, session, policy.ActionViewContent, contentID); err != nil {
		return ContentView{}, err
	}
	return s.view(ctx, session, item), nil
}

// UpdateContent rewrites title and body. A nil Authors list keeps the
// credited authors.
func (s *Service) UpdateContent(ctx context.Context, session Session, contentID string, input ContentInput) (ContentView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ContentView{}, errValidation("title is required", nil)
	}
	if _, err := s.requireContent(ctx, contentID); err != nil {
		return ContentView{}, err
	}
	if err := s.authorize(ctx, session, policy.ActionEditContent, contentID); err != nil {
		return ContentView{}, err
	}

	updated, err := s.store.UpdateContent(ctx, session.UserID, contentID, title, input.Body, input.Authors,
		recheck(policy.ActionEditContent))
	if err != nil {
		return ContentView{}, s.contentError(contentID, err)
	}
	s.search.IndexContent(searchRecord(updated))
	return s.view(ctx, session, updated), nil
}

func (s *Service) DeleteContent(ctx context.Context, session Session, contentID string) error {
	if _, err := s.requireContent(ctx, contentID); err != nil {
		return err
	}
	if err := s.authorize(ctx, session, policy.ActionDeleteContent, contentID); err != nil {
		return err
	}
	if err := s.store.DeleteContent(ctx, session.UserID, contentID, recheck(policy.ActionDeleteContent)); err != nil {
		return s.contentError(contentID, err)
	}
	s.search.DeleteContent(contentID)
	return nil
}

// Transition applies a lifecycle action. The engine's answer is checked
// first for a fast failure; the store then re-evaluates the policy against
// the locked row before writing.
func (s *Service) Transition(ctx context.Context, session Session, contentID string, action policy.Action) (ContentView, error) {
	targets, ok := transitions[action]
	if !ok {
		return ContentView{}, errValidation("not a lifecycle action", map[string]any{"action": action})
	}
	item, err := s.requireContent(ctx, contentID)
	if err != nil {
		return ContentView{}, err
	}
	if _, ok := targets[item.State]; !ok {
		return ContentView{}, errInvalidTransition(action, item.State)
	}
	if err := s.authorize(ctx, session, action, contentID); err != nil {
		return ContentView{}, err
	}

	updated, err := s.store.TransitionContent(ctx, session.UserID, contentID, func(snap store.Snapshot) (policy.State, error) {
		from := snap.Content.State
		to, ok := targets[from]
		if !ok {
			return from, errInvalidTransition(action, from)
		}
		if !policy.Allowed(snap.User.Role, from, action, snap.Relationship()) {
			return from, errForbidden(action)
		}
		return to, nil
	})
	if err != nil {
		return ContentView{}, s.contentError(contentID, err)
	}

	s.logger.InfoContext(ctx, "content transitioned",
		slog.String("content", contentID),
		slog.String("action", action.String()),
		slog.String("from", item.State.String()),
		slog.String("to", updated.State.String()),
		slog.String("user", session.UserID),
	)
	s.search.IndexContent(searchRecord(updated))
	return s.view(ctx, session, updated), nil
}

func (s *Service) AssignReviewer(ctx context.Context, session Session, contentID, reviewerID string) (AssignmentView, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return AssignmentView{}, errValidation("reviewerId is required", nil)
	}
	item, err := s.requireContent(ctx, contentID)
	if err != nil {
		return AssignmentView{}, err
	}
	if err := s.authorize(ctx, session, policy.ActionAssignReviewer, contentID); err != nil {
		return AssignmentView{}, err
	}

	reviewer, err := s.store.GetUser(ctx, reviewerID)
	if errors.Is(err, store.ErrNotFound) {
		return AssignmentView{}, errValidation("reviewer not found", map[string]any{"reviewerId": reviewerID})
	}
	if err != nil {
		return AssignmentView{}, err
	}
	if reviewer.Role != policy.RoleReviewer {
		return AssignmentView{}, errValidation("assignee must have the REVIEWER role", map[string]any{"reviewerId": reviewerID, "role": reviewer.Role})
	}
	if policy.OwnsContent(policy.User{Email: reviewer.Email}, policy.Content{CreditedAuthorEmails: item.AuthorEmails}) {
		return AssignmentView{}, errValidation("a credited author cannot review their own content", map[string]any{"reviewerId": reviewerID})
	}

	assignment, err := s.store.AssignReviewer(ctx, session.UserID, contentID, reviewerID, recheck(policy.ActionAssignReviewer))
	if err != nil {
		return AssignmentView{}, s.contentError(contentID, err)
	}
	return AssignmentView{
		ID:         assignment.ID,
		ReviewerID: assignment.ReviewerID,
		Reviewer:   reviewer.DisplayName,
		Status:     assignment.Status,
	}, nil
}

// SubmitReview records the caller's verdict and completes their assignment.
// The verdict is advisory; moving the content is an editor's transition.
func (s *Service) SubmitReview(ctx context.Context, session Session, contentID string, input ReviewInput) (ReviewView, error) {
	verdict := strings.ToLower(strings.TrimSpace(input.Verdict))
	if _, ok := allowedVerdicts[verdict]; !ok {
		return ReviewView{}, errValidation("verdict must be approve, reject or revise", map[string]any{"verdict": input.Verdict})
	}
	if _, err := s.requireContent(ctx, contentID); err != nil {
		return ReviewView{}, err
	}
	if err := s.authorize(ctx, session, policy.ActionSubmitReview, contentID); err != nil {
		return ReviewView{}, err
	}

	review, err := s.store.SubmitReview(ctx, session.UserID, contentID, verdict, strings.TrimSpace(input.Body),
		recheck(policy.ActionSubmitReview))
	if errors.Is(err, store.ErrNotFound) {
		// The assignment completed between the check and the write.
		return ReviewView{}, errForbidden(policy.ActionSubmitReview)
	}
	if err != nil {
		return ReviewView{}, s.contentError(contentID, err)
	}
	return ReviewView{
		ID:         review.ID,
		Verdict:    review.Verdict,
		Body:       review.Body,
		ReviewerID: review.ReviewerID,
		Reviewer:   session.UserName,
		CreatedAt:  review.CreatedAt,
	}, nil
}

// ListReviews returns the reviews on an item to its editors, credited
// authors and assigned reviewers. Reviewer identities and assignments are
// included only for callers allowed to see who is reviewing. A reviewer
// whose assignment has completed still sees the reviews they wrote, and
// nothing else.
func (s *Service) ListReviews(ctx context.Context, session Session, contentID string) (ReviewsView, error) {
	if _, err := s.requireContent(ctx, contentID); err != nil {
		return ReviewsView{}, err
	}
	full := s.authorize(ctx, session, policy.ActionViewContent, contentID) == nil && s.participates(ctx, session, contentID)
	reviews, err := s.store.ListReviews(ctx, contentID)
	if err != nil {
		if !full {
			return ReviewsView{}, errForbidden(policy.ActionViewContent)
		}
		return ReviewsView{}, err
	}

	if !full {
		own := ownReviews(reviews, session.UserID)
		if len(own) == 0 {
			return ReviewsView{}, errForbidden(policy.ActionViewContent)
		}
		reviews = own
	}
	disclose := full && s.engine.CanViewReviewerAssignment(ctx, session.UserID, contentID)

	out := ReviewsView{Reviews: make([]ReviewView, 0, len(reviews))}
	for _, review := range reviews {
		view := ReviewView{
			ID:        review.ID,
			Verdict:   review.Verdict,
			Body:      review.Body,
			CreatedAt: review.CreatedAt,
		}
		if disclose || review.ReviewerID == session.UserID {
			view.ReviewerID = review.ReviewerID
			view.Reviewer = review.ReviewerName
		}
		out.Reviews = append(out.Reviews, view)
	}

	if disclose {
		assignments, err := s.store.ListAssignments(ctx, contentID)
		if err != nil {
			return ReviewsView{}, err
		}
		out.Assignments = make([]AssignmentView, 0, len(assignments))
		for _, a := range assignments {
			out.Assignments = append(out.Assignments, AssignmentView{
				ID:         a.ID,
				ReviewerID: a.ReviewerID,
				Reviewer:   a.ReviewerName,
				Status:     a.Status,
			})
		}
	}
	return out, nil
}

// AllowedActions lists what the caller may do to the item, for UI purposes.
// view_author is left out whenever view would hide the credited authors.
func (s *Service) AllowedActions(ctx context.Context, session Session, contentID string) ([]policy.Action, error) {
	item, err := s.requireContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	actions := s.engine.AllowedActions(ctx, session.UserID, contentID)
	if s.authorsVisible(ctx, session, item) {
		return actions, nil
	}
	out := make([]policy.Action, 0, len(actions))
	for _, action := range actions {
		if action != policy.ActionViewAuthor {
			out = append(out, action)
		}
	}
	return out, nil
}

// Search runs a full-text query and drops every hit the caller may not view.
// Paging applies to the visible hits, and Total counts them, within the
// first search.MaxWindow index hits.
func (s *Service) Search(ctx context.Context, session Session, q search.Query) search.Response {
	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	q.Limit, q.Offset = search.MaxWindow, 0

	resp := s.search.Search(ctx, q)
	visible := make([]search.Result, 0, len(resp.Results))
	for _, result := range resp.Results {
		if s.engine.CanPerformActionOnContent(ctx, session.UserID, policy.ActionViewContent, result.ID) {
			visible = append(visible, result)
		}
	}
	resp.Total = len(visible)

	offset = min(offset, len(visible))
	end := min(offset+limit, len(visible))
	resp.Results = visible[offset:end]
	return resp
}

func (s *Service) requireContent(ctx context.Context, contentID string) (store.Content, error) {
	item, err := s.store.GetContent(ctx, contentID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Content{}, errContentNotFound(contentID)
	}
	if err != nil {
		return store.Content{}, err
	}
	return item, nil
}

func (s *Service) authorize(ctx context.Context, session Session, action policy.Action, contentID string) error {
	if !s.engine.CanPerformActionOnContent(ctx, session.UserID, action, contentID) {
		return errForbidden(action)
	}
	return nil
}

func ownReviews(reviews []store.Review, userID string) []store.Review {
	var own []store.Review
	for _, review := range reviews {
		if review.ReviewerID == userID {
			own = append(own, review)
		}
	}
	return own
}

func (s *Service) participates(ctx context.Context, session Session, contentID string) bool {
	if session.Role == policy.RoleAdmin || session.Role == policy.RoleEditor {
		return true
	}
	return s.engine.IsOwner(ctx, session.UserID, contentID) || s.engine.IsReviewer(ctx, session.UserID, contentID)
}

// view shapes an item for the caller. Credited authors are withheld when
// view_author denies, and from reviewers under double-blind review.
func (s *Service) view(ctx context.Context, session Session, item store.Content) ContentView {
	out := ContentView{
		ID:        item.ID,
		Title:     item.Title,
		Body:      item.Body,
		State:     item.State,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}

	if s.authorsVisible(ctx, session, item) {
		out.Authors = item.AuthorEmails
	} else {
		out.AuthorsHidden = true
	}
	return out
}

func (s *Service) authorsVisible(ctx context.Context, session Session, item store.Content) bool {
	if !s.engine.CanPerformActionOnContent(ctx, session.UserID, policy.ActionViewAuthor, item.ID) {
		return false
	}
	if session.Role == policy.RoleReviewer && !policy.CanReviewerSeeAuthor(s.engine.ReviewMode()) {
		user := policy.User{ID: session.UserID, Email: session.Email, Role: session.Role}
		return policy.OwnsContent(user, policy.Content{CreditedAuthorEmails: item.AuthorEmails})
	}
	return true
}

// contentError maps store sentinels that surface only after the row lock.
func (s *Service) contentError(contentID string, err error) error {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, store.ErrNotFound):
		return errContentNotFound(contentID)
	case errors.Is(err, store.ErrReviewsUnavailable):
		return domainError(http.StatusServiceUnavailable, "REVIEWS_UNAVAILABLE", "Review subsystem is not enabled", nil)
	}
	return err
}

// recheck re-applies the policy to the rows the store has locked.
func recheck(action policy.Action) store.Guard {
	return func(snap store.Snapshot) error {
		if !policy.Allowed(snap.User.Role, snap.Content.State, action, snap.Relationship()) {
			return errForbidden(action)
		}
		return nil
	}
}

func searchRecord(item store.Content) search.ContentRecord {
	return search.ContentRecord{
		ID:    item.ID,
		Title: item.Title,
		Body:  item.Body,
		State: item.State.String(),
	}
}
