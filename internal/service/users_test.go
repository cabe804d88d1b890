package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/userhub/internal/auth"
	"github.com/geocoder89/userhub/internal/authz"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/repo/memory"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/geocoder89/userhub/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "service-test-secret-at-least-32-bytes"

type recorder struct {
	outcomes []string
}

func (r *recorder) ObserveLogin(outcome string) { r.outcomes = append(r.outcomes, outcome) }

type fixture struct {
	svc    *service.UserService
	store  *memory.UsersRepo
	tokens *auth.Manager
	rec    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := auth.NewManager(testSecret, time.Hour)
	require.NoError(t, err)

	store := memory.NewUsersRepo()
	rec := &recorder{}

	return &fixture{
		svc:    service.NewUserService(store, security.NewBcryptHasher(bcrypt.MinCost), tokens, rec),
		store:  store,
		tokens: tokens,
		rec:    rec,
	}
}

func (f *fixture) register(t *testing.T, username, email string) user.User {
	t.Helper()

	u, err := f.svc.Register(context.Background(), user.RegisterRequest{
		Username: username,
		Password: "secret1",
		Name:     username,
		Email:    email,
	})
	require.NoError(t, err)

	return u
}

func (f *fixture) admin(t *testing.T) *auth.Principal {
	t.Helper()

	hash, err := security.NewBcryptHasher(bcrypt.MinCost).Hash("rootpw")
	require.NoError(t, err)

	a, err := f.store.Save(context.Background(), user.User{
		Username:     "root",
		PasswordHash: hash,
		Name:         "Root",
		Email:        "root@x.com",
		Roles:        []string{user.RoleUser, user.RoleAdmin},
	})
	require.NoError(t, err)

	return &auth.Principal{UserID: a.ID, Username: a.Username, Roles: a.Roles}
}

func principalOf(u user.User) *auth.Principal {
	return &auth.Principal{UserID: u.ID, Username: u.Username, Roles: u.Roles}
}

func TestRegister_AssignsUserRoleAndHashes(t *testing.T) {
	f := newFixture(t)

	alice := f.register(t, "alice", "a@x.com")

	assert.Equal(t, int64(1), alice.ID)
	assert.Equal(t, []string{user.RoleUser}, alice.Roles)
	assert.NotEqual(t, "secret1", alice.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(alice.PasswordHash), []byte("secret1")))
}

func TestRegister_UsernameCheckedBeforeEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "a@x.com")

	ctx := context.Background()

	_, err := f.svc.Register(ctx, user.RegisterRequest{Username: "alice", Password: "pw1234", Name: "A", Email: "a@x.com"})
	assert.ErrorIs(t, err, user.ErrUsernameTaken, "both clash: username wins")

	_, err = f.svc.Register(ctx, user.RegisterRequest{Username: "alice2", Password: "pw1234", Name: "A", Email: "a@x.com"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	all, err := f.store.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed registrations must not mutate the store")
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")

	tok, err := f.svc.Login(context.Background(), "alice", "secret1")
	require.NoError(t, err)

	p, err := f.tokens.Verify(tok.Raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, alice.ID, p.UserID)
	assert.Equal(t, []string{user.RoleUser}, p.Roles)

	assert.Equal(t, []string{"success"}, f.rec.outcomes)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "a@x.com")
	ctx := context.Background()

	_, errWrongPassword := f.svc.Login(ctx, "alice", "wrong")
	_, errUnknownUser := f.svc.Login(ctx, "nobody", "secret1")

	assert.ErrorIs(t, errWrongPassword, user.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknownUser, user.ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errUnknownUser.Error())

	assert.Equal(t, []string{"invalid_credentials", "invalid_credentials"}, f.rec.outcomes)
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	ctx := context.Background()

	_, err := f.svc.Me(ctx, nil)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	me, err := f.svc.Me(ctx, principalOf(alice))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, me.ID)

	require.NoError(t, f.store.DeleteByID(ctx, alice.ID))
	_, err = f.svc.Me(ctx, principalOf(alice))
	assert.ErrorIs(t, err, user.ErrNotFound, "a valid token for a deleted user finds nothing")
}

func TestList_AdminOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	admin := f.admin(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, nil)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	_, err = f.svc.List(ctx, principalOf(alice))
	assert.ErrorIs(t, err, authz.ErrForbidden)

	all, err := f.svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGet_SelfOrAdmin(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	bob := f.register(t, "bob", "b@x.com")
	admin := f.admin(t)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, principalOf(alice), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = f.svc.Get(ctx, principalOf(alice), bob.ID)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	got, err = f.svc.Get(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	_, err = f.svc.Get(ctx, admin, 999)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestGet_ForbiddenBeforeNotFound(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, nil, 999)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	// non-admin probing a missing id learns nothing about existence
	_, err = f.svc.Get(ctx, principalOf(alice), 999)
	assert.ErrorIs(t, err, authz.ErrForbidden)
}

func TestUpdate_ChangesNameAndEmailOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	ctx := context.Background()

	updated, err := f.svc.Update(ctx, principalOf(alice), alice.ID, user.UpdateRequest{Name: "Alice L", Email: "alice@x.com"})
	require.NoError(t, err)

	assert.Equal(t, "Alice L", updated.Name)
	assert.Equal(t, "alice@x.com", updated.Email)
	assert.Equal(t, "alice", updated.Username)
	assert.Equal(t, alice.PasswordHash, updated.PasswordHash)
	assert.Equal(t, alice.Roles, updated.Roles)
}

func TestUpdate_EmailClashSurfacesFromStore(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	f.register(t, "bob", "b@x.com")

	_, err := f.svc.Update(context.Background(), principalOf(alice), alice.ID, user.UpdateRequest{Name: "A", Email: "b@x.com"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)
}

func TestUpdate_Ordering(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	bob := f.register(t, "bob", "b@x.com")
	admin := f.admin(t)
	ctx := context.Background()
	req := user.UpdateRequest{Name: "X", Email: "x@x.com"}

	_, err := f.svc.Update(ctx, nil, alice.ID, req)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	_, err = f.svc.Update(ctx, principalOf(alice), bob.ID, req)
	assert.ErrorIs(t, err, authz.ErrForbidden)

	_, err = f.svc.Update(ctx, admin, 999, req)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "a@x.com")
	admin := f.admin(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Delete(ctx, nil, alice.ID), authz.ErrUnauthenticated)
	assert.ErrorIs(t, f.svc.Delete(ctx, principalOf(alice), alice.ID), authz.ErrForbidden, "self delete is admin only")
	assert.ErrorIs(t, f.svc.Delete(ctx, principalOf(alice), 999), authz.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, admin, alice.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, admin, alice.ID), user.ErrNotFound)

	_, err := f.svc.Login(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)

	again := f.register(t, "alice", "a@x.com")
	assert.NotEqual(t, alice.ID, again.ID)
}

// failingStore reports the same infrastructure error from every call.
type failingStore struct {
	err error
}

func (s failingStore) FindByUsername(context.Context, string) (user.User, error) { return user.User{}, s.err }
func (s failingStore) FindByEmail(context.Context, string) (user.User, error)    { return user.User{}, s.err }
func (s failingStore) FindByID(context.Context, int64) (user.User, error)        { return user.User{}, s.err }
func (s failingStore) ExistsByUsername(context.Context, string) (bool, error)    { return false, s.err }
func (s failingStore) ExistsByEmail(context.Context, string) (bool, error)       { return false, s.err }
func (s failingStore) ExistsByID(context.Context, int64) (bool, error)           { return false, s.err }
func (s failingStore) Save(context.Context, user.User) (user.User, error)        { return user.User{}, s.err }
func (s failingStore) DeleteByID(context.Context, int64) error                   { return s.err }
func (s failingStore) FindAll(context.Context) ([]user.User, error)              { return nil, s.err }

func TestStoreErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	tokens, err := auth.NewManager(testSecret, time.Hour)
	require.NoError(t, err)

	svc := service.NewUserService(failingStore{err: boom}, security.NewBcryptHasher(bcrypt.MinCost), tokens, nil)
	ctx := context.Background()
	admin := &auth.Principal{UserID: 1, Username: "root", Roles: []string{user.RoleAdmin}}

	_, err = svc.Login(ctx, "alice", "pw")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, user.ErrInvalidCredentials)

	_, err = svc.Register(ctx, user.RegisterRequest{Username: "alice", Password: "pw1234", Name: "A", Email: "a@x.com"})
	assert.ErrorIs(t, err, boom)

	_, err = svc.List(ctx, admin)
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, svc.Delete(ctx, admin, 1), boom)
}
