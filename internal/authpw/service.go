// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"folio/api/internal/policy"
	"folio/api/internal/store"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingCredentials = errors.New("email and password are required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetCredentials(ctx context.Context, email string) (store.User, string, error)
	InsertUser(ctx context.Context, user store.User) (store.User, error)
	SetPasswordHash(ctx context.Context, userID, hash string) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int

	dummyOnce sync.Once
	dummyHash []byte
}

type Option func(*Service)

// WithCost sets the bcrypt cost. Values outside bcrypt's range fall back to
// bcrypt.DefaultCost.
func WithCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func NewService(store UserStore, opts ...Option) *Service {
	s := &Service{store: store, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignUp creates a self-service account. Self-service accounts always get
// the USER role; elevated roles are granted by an administrator.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	return s.Provision(ctx, req, policy.RoleUser)
}

// Provision creates an account with the given role and password.
func (s *Service) Provision(ctx context.Context, req SignUpRequest, role policy.Role) (store.User, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}
	if len(req.Password) < MinPasswordLength {
		return store.User{}, ErrWeakPassword
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.InsertUser(ctx, store.User{Email: email, DisplayName: displayName, Role: role})
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.SetPasswordHash(ctx, user.ID, string(hash)); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// SignIn authenticates a user. Unknown emails, accounts without a password
// and wrong passwords all fail with ErrInvalidCredentials after a bcrypt
// comparison.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}

	user, hash, err := s.store.GetCredentials(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		hash = ""
	} else if err != nil {
		return store.User{}, err
	}

	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, email, current, next string) error {
	user, err := s.SignIn(ctx, SignInRequest{Email: email, Password: current})
	if err != nil {
		return err
	}
	return s.SetPassword(ctx, user.ID, next)
}

// SetPassword stores a new password without checking the old one.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.SetPasswordHash(ctx, userID, string(hash))
}

// dummy is compared against when there is no stored hash, so unknown
// accounts cost the same bcrypt work as known ones.
func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("folio-no-password"), s.cost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}
