package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/gateway"
	"go-pos-sync/internal/gateway/gatewaytest"
)

func setup(t *testing.T) (*Session, *gatewaytest.FakeRemote, *cache.Cache) {
	t.Helper()
	users, err := PlaceholderUsers(DefaultPassword, bcrypt.MinCost)
	require.NoError(t, err)
	remote := gatewaytest.NewFakeRemote()
	c := cache.New(cache.NewMemoryStore())
	return New(c, users, gateway.New(remote, c)), remote, c
}

func TestLoginLogout(t *testing.T) {
	s, remote, c := setup(t)
	ctx := context.Background()

	_, err := s.CurrentUser()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	user, err := s.Login(ctx, "2", DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "Yanel", user.Name)
	assert.Equal(t, "token-2", remote.Token())

	// A new session over the same cache still knows who is logged in.
	users, _ := PlaceholderUsers(DefaultPassword, bcrypt.MinCost)
	current, err := New(c, users, nil).CurrentUser()
	require.NoError(t, err)
	assert.Equal(t, "2", current.ID)

	s.Logout()
	_, err = s.CurrentUser()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, "", remote.Token())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, _, _ := setup(t)
	_, err := s.Login(context.Background(), "1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(context.Background(), "9", DefaultPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWorksOffline(t *testing.T) {
	s, remote, _ := setup(t)
	remote.SetOffline(true)
	user, err := s.Login(context.Background(), "3", DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "Juan", user.Name)
	assert.Equal(t, "", remote.Token())
}

func TestUsersSorted(t *testing.T) {
	s, _, _ := setup(t)
	users := s.Users()
	require.Len(t, users, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{users[0].ID, users[1].ID, users[2].ID})
}

func TestLoginWithConfiguredPassword(t *testing.T) {
	users, err := PlaceholderUsers("secret", bcrypt.MinCost)
	require.NoError(t, err)
	remote := gatewaytest.NewFakeRemote()
	remote.SetPassword("secret")
	c := cache.New(cache.NewMemoryStore())
	s := New(c, users, gateway.New(remote, c))
	ctx := context.Background()

	_, err = s.Login(ctx, "1", DefaultPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 0, remote.Calls("Login"))

	_, err = s.Login(ctx, "1", "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.Calls("Login"))
	assert.Equal(t, "token-1", remote.Token())
}

func TestReauthenticate(t *testing.T) {
	s, remote, c := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, s.Reauthenticate(ctx), ErrNotLoggedIn)

	// Logged in while the remote was down: no token yet.
	remote.SetOffline(true)
	_, err := s.Login(ctx, "2", DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "", remote.Token())

	remote.SetOffline(false)
	require.NoError(t, s.Reauthenticate(ctx))
	assert.Equal(t, "token-2", remote.Token())

	// A restarted agent remembers the operator but not the password.
	users, _ := PlaceholderUsers(DefaultPassword, bcrypt.MinCost)
	restarted := New(c, users, gateway.New(remote, c))
	assert.ErrorIs(t, restarted.Reauthenticate(ctx), ErrLoginRequired)

	s.Logout()
	assert.ErrorIs(t, s.Reauthenticate(ctx), ErrNotLoggedIn)
}
