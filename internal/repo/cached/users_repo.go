// Package cached wraps a user store with a read-through cache keyed by user id.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/service"
)

// cachedUser mirrors user.User but keeps the password hash: Update saves the
// record it loaded, so the hash has to survive the round trip.
type cachedUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func fromUser(u user.User) cachedUser {
	return cachedUser{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Email:        u.Email,
		Roles:        u.Roles,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (c cachedUser) toUser() user.User {
	return user.User{
		ID:           c.ID,
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Name:         c.Name,
		Email:        c.Email,
		Roles:        c.Roles,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// UsersRepo serves FindByID and ExistsByID from the cache and drops the entry on
// every write. Cache failures are logged and the call falls through to the store.
type UsersRepo struct {
	service.UserStore
	cache cache.Store
}

func NewUsersRepo(store service.UserStore, c cache.Store) *UsersRepo {
	return &UsersRepo{UserStore: store, cache: c}
}

func key(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func (r *UsersRepo) FindByID(ctx context.Context, id int64) (user.User, error) {
	if u, ok := r.lookup(ctx, id); ok {
		return u, nil
	}

	u, err := r.UserStore.FindByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	r.remember(ctx, u)

	return u, nil
}

func (r *UsersRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	if _, ok := r.lookup(ctx, id); ok {
		return true, nil
	}

	return r.UserStore.ExistsByID(ctx, id)
}

func (r *UsersRepo) Save(ctx context.Context, u user.User) (user.User, error) {
	if u.ID != 0 {
		r.forget(ctx, u.ID)
	}

	saved, err := r.UserStore.Save(ctx, u)
	if err != nil {
		return user.User{}, err
	}

	// a concurrent FindByID may have re-filled the entry with the old row
	r.forget(ctx, saved.ID)

	return saved, nil
}

func (r *UsersRepo) DeleteByID(ctx context.Context, id int64) error {
	err := r.UserStore.DeleteByID(ctx, id)
	r.forget(ctx, id)

	return err
}

func (r *UsersRepo) lookup(ctx context.Context, id int64) (user.User, bool) {
	b, ok, err := r.cache.Get(ctx, key(id))
	if err != nil {
		r.warn(ctx, "user_cache_get_failed", id, err)
		return user.User{}, false
	}
	if !ok {
		return user.User{}, false
	}

	var c cachedUser
	if err := json.Unmarshal(b, &c); err != nil {
		r.forget(ctx, id)
		return user.User{}, false
	}

	return c.toUser(), true
}

func (r *UsersRepo) remember(ctx context.Context, u user.User) {
	b, err := json.Marshal(fromUser(u))
	if err != nil {
		return
	}

	if err := r.cache.Set(ctx, key(u.ID), b); err != nil {
		r.warn(ctx, "user_cache_set_failed", u.ID, err)
	}
}

func (r *UsersRepo) forget(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, key(id)); err != nil {
		r.warn(ctx, "user_cache_delete_failed", id, err)
	}
}

// warn skips the breaker's fail-fast errors; the failures that opened it were logged already.
func (r *UsersRepo) warn(ctx context.Context, msg string, id int64, err error) {
	if errors.Is(err, cache.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return
	}
	slog.Default().WarnContext(ctx, msg, "user_id", id, "err", err)
}
