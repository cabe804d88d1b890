package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// UsersRepo keeps users in process memory. It enforces the same unique keys as the
// postgres schema (username, email) and never reuses an id.
type UsersRepo struct {
	mu     sync.RWMutex
	items  map[int64]user.User
	nextID int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[int64]user.User),
	}
}

func (r *UsersRepo) FindByUsername(ctx context.Context, username string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.Username == username {
			return clone(u), nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.items {
		if u.Email == email {
			return clone(u), nil
		}
	}

	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) FindByID(ctx context.Context, id int64) (user.User, error) {
	r.mu.RLock()
	u, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return clone(u), nil
}

func (r *UsersRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)

	return err == nil, nil
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)

	return err == nil, nil
}

func (r *UsersRepo) ExistsByID(ctx context.Context, id int64) (bool, error) {
	r.mu.RLock()
	_, ok := r.items[id]
	r.mu.RUnlock()

	return ok, nil
}

// Save inserts when u.ID is zero, otherwise replaces the stored record.
func (r *UsersRepo) Save(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// username is reported ahead of email when both clash
	if r.takenLocked(u.ID, func(existing user.User) bool { return existing.Username == u.Username }) {
		return user.User{}, user.ErrUsernameTaken
	}
	if r.takenLocked(u.ID, func(existing user.User) bool { return existing.Email == u.Email }) {
		return user.User{}, user.ErrEmailTaken
	}

	now := time.Now().UTC()

	if u.ID == 0 {
		r.nextID++
		u.ID = r.nextID
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
	} else {
		existing, ok := r.items[u.ID]
		if !ok {
			return user.User{}, user.ErrNotFound
		}
		u.CreatedAt = existing.CreatedAt
	}

	u.UpdatedAt = now
	u = clone(u)
	r.items[u.ID] = u

	return clone(u), nil
}

// takenLocked reports whether a record other than self matches. Callers hold r.mu.
func (r *UsersRepo) takenLocked(self int64, match func(user.User) bool) bool {
	for id, existing := range r.items {
		if id != self && match(existing) {
			return true
		}
	}

	return false
}

func (r *UsersRepo) DeleteByID(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)

	return nil
}

func (r *UsersRepo) FindAll(ctx context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, clone(u))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func clone(u user.User) user.User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
