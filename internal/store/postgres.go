package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"folio/api/internal/policy"
	"folio/api/internal/util"
)

const (
	// undefined_table: the review subsystem has not been migrated.
	sqlStateUndefinedTable  = "42P01"
	sqlStateUniqueViolation = "23505"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	// ErrReviewsUnavailable reports that the review tables have not been migrated.
	ErrReviewsUnavailable = errors.New("review subsystem unavailable")
	ErrEmailTaken         = errors.New("email already registered")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) LookupUser(ctx context.Context, userID string) (policy.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return policy.User{}, err
	}
	return user.policyUser(), nil
}

func (s *PostgresStore) LookupContent(ctx context.Context, contentID string) (policy.Content, error) {
	content, err := s.GetContent(ctx, contentID)
	if err != nil {
		return policy.Content{}, err
	}
	return content.policyContent(), nil
}

// LookupActiveAssignment answers ok=false, with no error, when the review
// tables do not exist.
func (s *PostgresStore) LookupActiveAssignment(ctx context.Context, userID, contentID string) (policy.Assignment, bool, error) {
	assignment, ok, err := activeAssignment(ctx, s.db, userID, contentID, false)
	if isUndefinedTable(err) {
		return policy.Assignment{}, false, nil
	}
	if err != nil || !ok {
		return policy.Assignment{}, false, err
	}
	return policy.Assignment{
		ID:        assignment.ID,
		UserID:    assignment.ReviewerID,
		ContentID: assignment.ContentID,
		Status:    assignment.Status,
	}, true, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users WHERE id=$1
	`, userID), userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users WHERE LOWER(TRIM(email)) = LOWER(TRIM($1))
	`, email), email)
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = util.NewID("usr")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, role)
		VALUES ($1, TRIM($2), $3, $4)
		RETURNING created_at, updated_at
	`, user.ID, user.Email, user.DisplayName, user.Role.String()).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("insert user %s: %w", user.Email, ErrEmailTaken)
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetCredentials returns the user with the given email and their bcrypt
// password hash. The hash is empty for accounts without a password.
func (s *PostgresStore) GetCredentials(ctx context.Context, email string) (User, string, error) {
	var user User
	var role, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at, password_hash
		FROM users WHERE LOWER(TRIM(email)) = LOWER(TRIM($1))
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.CreatedAt, &user.UpdatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return User{}, "", fmt.Errorf("get credentials: %w", err)
	}
	parsed, err := policy.ParseRole(role)
	if err != nil {
		return User{}, "", fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	return user, hash, nil
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, hash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListContent(ctx context.Context) ([]Content, error) {
	rows, err := s.db.QueryContext(ctx, contentSelect+`
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	items := make([]Content, 0)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, contentID string) (Content, error) {
	return s.getContent(ctx, s.db, contentID)
}

func (s *PostgresStore) InsertContent(ctx context.Context, item Content) (Content, error) {
	if item.ID == "" {
		item.ID = util.NewID("cnt")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Content{}, fmt.Errorf("begin insert content: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO content (id, title, body, state, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, item.ID, item.Title, item.Body, item.State.String(), item.CreatedBy); err != nil {
		return Content{}, fmt.Errorf("insert content: %w", err)
	}
	if err := replaceAuthors(ctx, tx, item.ID, item.AuthorEmails); err != nil {
		return Content{}, err
	}
	if err := tx.Commit(); err != nil {
		return Content{}, fmt.Errorf("commit insert content: %w", err)
	}
	return s.GetContent(ctx, item.ID)
}

// UpdateContent rewrites title and body. A nil authors slice leaves the
// credited authors untouched.
func (s *PostgresStore) UpdateContent(ctx context.Context, userID, contentID, title, body string, authors []string, guard Guard) (Content, error) {
	err := s.withLockedContent(ctx, userID, contentID, guard, func(tx *sql.Tx, _ Snapshot) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE content SET title=$2, body=$3, updated_at=NOW() WHERE id=$1
		`, contentID, title, body); err != nil {
			return fmt.Errorf("update content: %w", err)
		}
		if authors != nil {
			return replaceAuthors(ctx, tx, contentID, authors)
		}
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	return s.GetContent(ctx, contentID)
}

func (s *PostgresStore) DeleteContent(ctx context.Context, userID, contentID string, guard Guard) error {
	return s.withLockedContent(ctx, userID, contentID, guard, func(tx *sql.Tx, _ Snapshot) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM content WHERE id=$1`, contentID); err != nil {
			return fmt.Errorf("delete content: %w", err)
		}
		return nil
	})
}

// TransitionContent moves content to the state decide returns. decide runs
// while the content row is locked, so two concurrent transitions on the same
// item see each other's result.
func (s *PostgresStore) TransitionContent(ctx context.Context, userID, contentID string, decide func(Snapshot) (policy.State, error)) (Content, error) {
	var next policy.State
	guard := func(snap Snapshot) error {
		state, err := decide(snap)
		next = state
		return err
	}
	err := s.withLockedContent(ctx, userID, contentID, guard, func(tx *sql.Tx, _ Snapshot) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE content SET state=$2, updated_at=NOW() WHERE id=$1
		`, contentID, next.String()); err != nil {
			return fmt.Errorf("update content state: %w", err)
		}
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	return s.GetContent(ctx, contentID)
}

// AssignReviewer binds reviewerID to the content. Re-assigning a reviewer
// whose earlier assignment completed or was declined reopens it.
func (s *PostgresStore) AssignReviewer(ctx context.Context, userID, contentID, reviewerID string, guard Guard) (Assignment, error) {
	var assignment Assignment
	err := s.withLockedContent(ctx, userID, contentID, guard, func(tx *sql.Tx, _ Snapshot) error {
		if ok, err := hasReviewTables(ctx, tx); err != nil {
			return err
		} else if !ok {
			return ErrReviewsUnavailable
		}
		var status string
		err := tx.QueryRowContext(ctx, `
			INSERT INTO review_assignments (id, content_id, reviewer_id, status, assigned_by)
			VALUES ($1, $2, $3, 'PENDING', $4)
			ON CONFLICT (content_id, reviewer_id)
			DO UPDATE SET status='PENDING', assigned_by=EXCLUDED.assigned_by, updated_at=NOW()
			RETURNING id, content_id, reviewer_id, status, COALESCE(assigned_by, ''), created_at, updated_at
		`, util.NewID("asg"), contentID, reviewerID, userID).Scan(
			&assignment.ID, &assignment.ContentID, &assignment.ReviewerID, &status,
			&assignment.AssignedBy, &assignment.CreatedAt, &assignment.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert review assignment: %w", err)
		}
		assignment.Status = policy.AssignmentStatus(status)
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	return assignment, nil
}

// SubmitReview records the caller's review and completes their assignment.
func (s *PostgresStore) SubmitReview(ctx context.Context, userID, contentID, verdict, body string, guard Guard) (Review, error) {
	review := Review{
		ID:         util.NewID("rev"),
		ContentID:  contentID,
		ReviewerID: userID,
		Verdict:    verdict,
		Body:       body,
	}
	err := s.withLockedContent(ctx, userID, contentID, guard, func(tx *sql.Tx, _ Snapshot) error {
		assignment, ok, err := activeAssignment(ctx, tx, userID, contentID, true)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("review assignment for %s: %w", userID, ErrNotFound)
		}
		review.AssignmentID = assignment.ID

		if err := tx.QueryRowContext(ctx, `
			INSERT INTO reviews (id, assignment_id, content_id, reviewer_id, verdict, body)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, review.ID, review.AssignmentID, contentID, userID, verdict, body).Scan(&review.CreatedAt); err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE review_assignments SET status='COMPLETED', updated_at=NOW() WHERE id=$1
		`, assignment.ID); err != nil {
			return fmt.Errorf("complete review assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Review{}, err
	}
	return review, nil
}

// ListReviews returns the content's reviews oldest first. Without the review
// tables the list is empty.
func (s *PostgresStore) ListReviews(ctx context.Context, contentID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.assignment_id, r.content_id, r.reviewer_id, COALESCE(u.display_name, ''),
			r.verdict, r.body, r.created_at
		FROM reviews r
		LEFT JOIN users u ON u.id = r.reviewer_id
		WHERE r.content_id = $1
		ORDER BY r.created_at ASC
	`, contentID)
	if isUndefinedTable(err) {
		return []Review{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	items := make([]Review, 0)
	for rows.Next() {
		var item Review
		if err := rows.Scan(&item.ID, &item.AssignmentID, &item.ContentID, &item.ReviewerID, &item.ReviewerName,
			&item.Verdict, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, contentID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.content_id, a.reviewer_id, COALESCE(u.display_name, ''), a.status,
			COALESCE(a.assigned_by, ''), a.created_at, a.updated_at
		FROM review_assignments a
		LEFT JOIN users u ON u.id = a.reviewer_id
		WHERE a.content_id = $1
		ORDER BY a.created_at ASC
	`, contentID)
	if isUndefinedTable(err) {
		return []Assignment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list review assignments: %w", err)
	}
	defer rows.Close()

	items := make([]Assignment, 0)
	for rows.Next() {
		var item Assignment
		var status string
		if err := rows.Scan(&item.ID, &item.ContentID, &item.ReviewerID, &item.ReviewerName, &status,
			&item.AssignedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review assignment: %w", err)
		}
		item.Status = policy.AssignmentStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review assignments: %w", err)
	}
	return items, nil
}

// withLockedContent runs guard and then apply inside one transaction that
// holds the content row FOR UPDATE. The acting user and their assignment are
// re-read in the same transaction.
func (s *PostgresStore) withLockedContent(ctx context.Context, userID, contentID string, guard Guard, apply func(*sql.Tx, Snapshot) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin content tx: %w", err)
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx, `SELECT state FROM content WHERE id=$1 FOR UPDATE`, contentID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock content: %w", err)
	}

	content, err := s.getContent(ctx, tx, contentID)
	if err != nil {
		return err
	}
	user, err := scanUser(tx.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		FROM users WHERE id=$1
	`, userID), userID)
	if err != nil {
		return err
	}

	snap := Snapshot{User: user.policyUser(), Content: content.policyContent()}
	reviews, err := hasReviewTables(ctx, tx)
	if err != nil {
		return err
	}
	if reviews {
		_, snap.IsReviewer, err = activeAssignment(ctx, tx, userID, contentID, false)
		if err != nil {
			return err
		}
	}

	if guard != nil {
		if err := guard(snap); err != nil {
			return err
		}
	}
	if err := apply(tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit content tx: %w", err)
	}
	return nil
}

const contentSelect = `
	SELECT c.id, c.title, c.body, c.state, COALESCE(c.created_by, ''), c.created_at, c.updated_at,
		COALESCE(array_agg(a.email ORDER BY a.position) FILTER (WHERE a.email IS NOT NULL), '{}')
	FROM content c
	LEFT JOIN content_authors a ON a.content_id = c.id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) getContent(ctx context.Context, q queryer, contentID string) (Content, error) {
	item, err := scanContent(q.QueryRowContext(ctx, contentSelect+`
		WHERE c.id = $1
		GROUP BY c.id
	`, contentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Content{}, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	if err != nil {
		return Content{}, fmt.Errorf("get content: %w", err)
	}
	return item, nil
}

// text[] has no database/sql mapping; pgtype supplies the scanner. A Map
// memoizes scan plans and is not shared between goroutines.
func scanContent(row rowScanner) (Content, error) {
	var item Content
	var state string
	var authors []string
	if err := row.Scan(&item.ID, &item.Title, &item.Body, &state, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
		pgtype.NewMap().SQLScanner(&authors)); err != nil {
		return Content{}, err
	}
	parsed, err := policy.ParseState(state)
	if err != nil {
		return Content{}, fmt.Errorf("content %s: %w", item.ID, err)
	}
	item.State = parsed
	item.AuthorEmails = authors
	return item, nil
}

func scanUser(row rowScanner, key string) (User, error) {
	var user User
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	parsed, err := policy.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	return user, nil
}

func replaceAuthors(ctx context.Context, tx *sql.Tx, contentID string, emails []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_authors WHERE content_id=$1`, contentID); err != nil {
		return fmt.Errorf("clear content authors: %w", err)
	}
	for i, email := range dedupeEmails(emails) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_authors (content_id, email, position) VALUES ($1, $2, $3)
		`, contentID, email, i); err != nil {
			return fmt.Errorf("insert content author: %w", err)
		}
	}
	return nil
}

func dedupeEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, email := range emails {
		email = strings.TrimSpace(email)
		key := strings.ToLower(email)
		if email == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, email)
	}
	return out
}

func activeAssignment(ctx context.Context, q queryer, userID, contentID string, lock bool) (Assignment, bool, error) {
	query := `
		SELECT id, content_id, reviewer_id, status, COALESCE(assigned_by, ''), created_at, updated_at
		FROM review_assignments
		WHERE reviewer_id=$1 AND content_id=$2 AND status IN ('PENDING', 'IN_PROGRESS')
	`
	if lock {
		query += ` FOR UPDATE`
	}
	var item Assignment
	var status string
	err := q.QueryRowContext(ctx, query, userID, contentID).Scan(
		&item.ID, &item.ContentID, &item.ReviewerID, &status, &item.AssignedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, fmt.Errorf("lookup review assignment: %w", err)
	}
	item.Status = policy.AssignmentStatus(status)
	return item, true, nil
}

// A failed statement aborts the surrounding transaction, so inside one the
// review tables are looked up in the catalog instead of queried blind.
func hasReviewTables(ctx context.Context, q queryer) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT to_regclass('review_assignments') IS NOT NULL`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check review tables: %w", err)
	}
	return exists, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUndefinedTable
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}
