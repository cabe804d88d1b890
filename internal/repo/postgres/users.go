package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, password_hash, name, email, roles, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

// uniqueViolationErr maps users_username_key / users_email_key to domain errors.
func uniqueViolationErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "username"):
		return user.ErrUsernameTaken
	case strings.Contains(pgErr.ConstraintName, "email"):
		return user.ErrEmailTaken
	default:
		return err
	}
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Name,
		&u.Email,
		&u.Roles,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) findOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg))
		if errors.Is(err, user.ErrNotFound) {
			// a miss is not a db error
			return nil
		}
		return err
	})
	if err != nil {
		return user.User{}, err
	}

	if u.ID == 0 {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (r *UsersRepo) FindByUsername(ctx context.Context, username string) (user.User, error) {
	return r.findOne(ctx, "users.find_by_username", "username", username)
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.find_by_email", "email", email)
}

func (r *UsersRepo) FindByID(ctx context.Context, id int64) (user.User, error) {
	return r.findOne(ctx, "users.find_by_id", "id", id)
}

func (r *UsersRepo) exists(ctx context.Context, op, where string, arg any) (bool, error) {
	var exists bool

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE `+where+` = $1)`, arg).Scan(&exists)
	})

	return exists, err
}

func (r *UsersRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "users.exists_by_username", "username", username)
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "users.exists_by_email", "email", email)
}

func (r *UsersRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "users.exists_by_id", "id", id)
}

// Save inserts when u.ID is zero, otherwise updates the mutable columns.
func (r *UsersRepo) Save(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == 0 {
		return r.insert(ctx, u)
	}
	return r.update(ctx, u)
}

func (r *UsersRepo) insert(ctx context.Context, u user.User) (user.User, error) {
	var out user.User

	err := r.observe("users.insert", func() error {
		var err error
		out, err = scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, name, email, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+userColumns,
			u.Username, u.PasswordHash, u.Name, u.Email, u.Roles,
		))
		return err
	})
	if err != nil {
		return user.User{}, uniqueViolationErr(err)
	}

	return out, nil
}

func (r *UsersRepo) update(ctx context.Context, u user.User) (user.User, error) {
	var out user.User

	err := r.observe("users.update", func() error {
		var err error
		out, err = scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $2,
		    name = $3,
		    email = $4,
		    roles = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
			u.ID, u.PasswordHash, u.Name, u.Email, u.Roles,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, err
		}
		return user.User{}, uniqueViolationErr(err)
	}

	return out, nil
}

func (r *UsersRepo) DeleteByID(ctx context.Context, id int64) error {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}

	return nil
}

func (r *UsersRepo) FindAll(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.find_all", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]user.User, 0)
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}
