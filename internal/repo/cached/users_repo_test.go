package cached_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/repo/cached"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts FindByID calls that reach the backing store.
type countingStore struct {
	*memory.UsersRepo
	findByID int
}

func (s *countingStore) FindByID(ctx context.Context, id int64) (user.User, error) {
	s.findByID++
	return s.UsersRepo.FindByID(ctx, id)
}

func setup(t *testing.T) (*cached.UsersRepo, *countingStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingStore{UsersRepo: memory.NewUsersRepo()}
	repo := cached.NewUsersRepo(backing, cache.NewRedis(client, "userhub:", time.Minute))

	return repo, backing, mr
}

func seed(t *testing.T, repo *cached.UsersRepo) user.User {
	t.Helper()

	u, err := repo.Save(context.Background(), user.User{
		Username:     "alice",
		PasswordHash: "$2a$04$hash",
		Name:         "Alice",
		Email:        "a@x.com",
		Roles:        []string{user.RoleUser},
	})
	require.NoError(t, err)

	return u
}

func TestCachedUsersRepo_FindByIDReadsThrough(t *testing.T) {
	repo, backing, mr := setup(t)
	ctx := context.Background()
	alice := seed(t, repo)

	first, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.findByID)
	assert.Equal(t, first.Username, second.Username)
	assert.Equal(t, "$2a$04$hash", second.PasswordHash, "hash must survive the cache")
	assert.True(t, mr.Exists("userhub:user:1"))

	ok, err := repo.ExistsByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachedUsersRepo_SaveInvalidates(t *testing.T) {
	repo, backing, _ := setup(t)
	ctx := context.Background()
	alice := seed(t, repo)

	_, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)

	alice.Name = "Alice Liddell"
	_, err = repo.Save(ctx, alice)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", got.Name)
	assert.Equal(t, 2, backing.findByID)
}

func TestCachedUsersRepo_DeleteInvalidates(t *testing.T) {
	repo, _, mr := setup(t)
	ctx := context.Background()
	alice := seed(t, repo)

	_, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, alice.ID))
	assert.False(t, mr.Exists("userhub:user:1"))

	_, err = repo.FindByID(ctx, alice.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)

	ok, err := repo.ExistsByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedUsersRepo_MissIsNotCached(t *testing.T) {
	repo, backing, mr := setup(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, user.ErrNotFound)

	assert.Equal(t, 2, backing.findByID)
	assert.False(t, mr.Exists("userhub:user:99"))
}

func TestCachedUsersRepo_FallsThroughWhenCacheDown(t *testing.T) {
	repo, backing, mr := setup(t)
	ctx := context.Background()
	alice := seed(t, repo)

	mr.Close()

	got, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, 1, backing.findByID)
}

func TestCachedUsersRepo_CorruptEntryIsDropped(t *testing.T) {
	repo, backing, mr := setup(t)
	ctx := context.Background()
	alice := seed(t, repo)

	require.NoError(t, mr.Set("userhub:user:1", "{not json"))

	got, err := repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, 1, backing.findByID)
}
