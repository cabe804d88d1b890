// Package service holds the user-management operations: login, registration and
// administration of user records. Every operation that touches an existing record
// checks authentication, then policy, then existence, in that order.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/authz"
	"github.com/geocoder89/userhub/internal/domain/user"
)

// UserStore is the credential store. Lookups that find nothing return user.ErrNotFound.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (user.User, error)
	FindByEmail(ctx context.Context, email string) (user.User, error)
	FindByID(ctx context.Context, id int64) (user.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByID(ctx context.Context, id int64) (bool, error)
	Save(ctx context.Context, u user.User) (user.User, error)
	DeleteByID(ctx context.Context, id int64) error
	FindAll(ctx context.Context) ([]user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(plain, hash string) bool
}

type TokenIssuer interface {
	Issue(id auth.Identity) (auth.Token, error)
}

// LoginRecorder receives login outcomes; observability.Prom satisfies it.
type LoginRecorder interface {
	ObserveLogin(outcome string)
}

type UserService struct {
	store     UserStore
	hasher    PasswordHasher
	tokens    TokenIssuer
	recorder  LoginRecorder
	decoyHash string
}

func NewUserService(store UserStore, hasher PasswordHasher, tokens TokenIssuer, recorder LoginRecorder) *UserService {
	s := &UserService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		recorder: recorder,
	}

	// compared against when the username is unknown, so both failure paths cost one hash check
	if h, err := hasher.Hash("userhub-decoy-password"); err == nil {
		s.decoyHash = h
	}

	return s
}

// Authenticate never reveals whether the username or the password was wrong.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (auth.Identity, error) {
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_ = s.hasher.Matches(password, s.decoyHash)
			s.observe("invalid_credentials")
			return auth.Identity{}, user.ErrInvalidCredentials
		}

		s.observe("error")
		return auth.Identity{}, fmt.Errorf("find user by username: %w", err)
	}

	if !s.hasher.Matches(password, u.PasswordHash) {
		s.observe("invalid_credentials")
		return auth.Identity{}, user.ErrInvalidCredentials
	}

	s.observe("success")

	return auth.Identity{
		UserID:   u.ID,
		Username: u.Username,
		Roles:    u.Roles,
	}, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (auth.Token, error) {
	id, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return auth.Token{}, err
	}

	tok, err := s.tokens.Issue(id)
	if err != nil {
		return auth.Token{}, fmt.Errorf("issue token: %w", err)
	}

	slog.Default().InfoContext(ctx, "user_login", "user_id", id.UserID)

	return tok, nil
}

// Register checks username before email, so a request clashing on both reports the username.
func (s *UserService) Register(ctx context.Context, req user.RegisterRequest) (user.User, error) {
	taken, err := s.store.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return user.User{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return user.User{}, user.ErrUsernameTaken
	}

	taken, err = s.store.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return user.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return user.User{}, user.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.Save(ctx, user.NewFromRegisterRequest(req, hash))
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) || errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, err
		}
		return user.User{}, fmt.Errorf("save user: %w", err)
	}

	slog.Default().InfoContext(ctx, "user_registered", "user_id", created.ID)

	return created, nil
}

func (s *UserService) Me(ctx context.Context, p *auth.Principal) (user.User, error) {
	if err := authz.Authorize(p, authz.Authenticated{}); err != nil {
		return user.User{}, err
	}

	return s.store.FindByUsername(ctx, p.Username)
}

func (s *UserService) List(ctx context.Context, p *auth.Principal) ([]user.User, error) {
	if err := authz.Authorize(p, authz.RequireRole{Role: user.RoleAdmin}); err != nil {
		return nil, err
	}

	return s.store.FindAll(ctx)
}

func (s *UserService) Get(ctx context.Context, p *auth.Principal, id int64) (user.User, error) {
	if err := authz.Authorize(p, authz.RequireRoleOrSelf{Role: user.RoleAdmin, OwnerID: id}); err != nil {
		return user.User{}, err
	}

	return s.store.FindByID(ctx, id)
}

// Update changes name and email only. Email uniqueness is left to the store.
func (s *UserService) Update(ctx context.Context, p *auth.Principal, id int64, req user.UpdateRequest) (user.User, error) {
	if err := authz.Authorize(p, authz.RequireRoleOrSelf{Role: user.RoleAdmin, OwnerID: id}); err != nil {
		return user.User{}, err
	}

	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	u.Name = req.Name
	u.Email = req.Email

	return s.store.Save(ctx, u)
}

func (s *UserService) Delete(ctx context.Context, p *auth.Principal, id int64) error {
	if err := authz.Authorize(p, authz.RequireRole{Role: user.RoleAdmin}); err != nil {
		return err
	}

	exists, err := s.store.ExistsByID(ctx, id)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return user.ErrNotFound
	}

	if err := s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	slog.Default().InfoContext(ctx, "user_deleted", "user_id", id, "by", p.UserID)

	return nil
}

func (s *UserService) observe(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveLogin(outcome)
	}
}
