package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
)

// AdminStore is the slice of the credential store the seed needs.
type AdminStore interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, u user.User) (user.User, error)
}

type Hasher interface {
	Hash(plain string) (string, error)
}

// EnsureAdminUser creates the configured admin once. It is the only path that grants ROLE_ADMIN.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher Hasher, cfg config.Config) (bool, error) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	// check if the user exists

	exists, err := store.ExistsByUsername(ctx, cfg.AdminUsername)

	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}

	if exists {
		return false, nil
	}

	hash, err := hasher.Hash(cfg.AdminPassword)

	if err != nil {
		return false, err
	}

	email := cfg.AdminEmail
	if email == "" {
		email = cfg.AdminUsername + "@localhost"
	}

	_, err = store.Save(ctx, user.User{
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Name:         cfg.AdminName,
		Email:        email,
		Roles:        []string{user.RoleUser, user.RoleAdmin},
	})

	// another replica won the race
	if errors.Is(err, user.ErrUsernameTaken) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
