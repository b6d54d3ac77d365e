package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfare/cli/internal/auth"
	"wayfare/cli/internal/backend"
	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/keychain"
	"wayfare/cli/internal/testkit/identity"
	"wayfare/cli/internal/tokenstore"
)

func liveBackend(srv *identity.Server) *backend.HTTP {
	return backend.New(backend.Config{
		BaseURL:        srv.URL(),
		RequestTimeout: 2 * time.Second,
		Retry:          backend.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
		DeviceID:       "it-device",
	})
}

func TestLiveBackend_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	srv := identity.Start(t, identity.WithTokenTTL(time.Hour))
	srv.AddUser("ada@example.test", "Secret1!", func(a *identity.Account) {
		a.FirstName = "Ada"
		a.Role = "organizer"
		a.Tier = "premium"
	})
	ring := keychain.NewMemory()
	store := tokenstore.New(ring)

	m := auth.NewManager(store, liveBackend(srv))
	st, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "Secret1!"})
	require.NoError(t, err)
	require.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, auth.RoleOrganizer, st.User.Role)
	assert.Equal(t, auth.TierPremium, st.User.Tier)

	// A second process over the same keychain restores without the network.
	restored := auth.NewManager(tokenstore.New(ring), liveBackend(srv))
	st, err = restored.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Zero(t, srv.Calls(identity.EndpointRefresh))
	assert.Zero(t, srv.Calls(identity.EndpointMe))

	u, err := restored.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)

	st, err = restored.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, 1, srv.Calls(identity.EndpointRefresh))

	st = restored.Logout(ctx)
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
	assert.Equal(t, 1, srv.Calls(identity.EndpointLogout))
	data, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLiveBackend_ShortLivedTokenRefreshedOnInit(t *testing.T) {
	ctx := context.Background()
	srv := identity.Start(t, identity.WithTokenTTL(2*time.Minute), identity.WithRefreshRotation())
	srv.AddUser("ada@example.test", "Secret1!")
	ring := keychain.NewMemory()

	_, err := auth.NewManager(tokenstore.New(ring), liveBackend(srv)).
		Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "Secret1!"})
	require.NoError(t, err)

	store := tokenstore.New(ring)
	before, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)

	st, err := auth.NewManager(store, liveBackend(srv)).Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, 1, srv.Calls(identity.EndpointRefresh))

	after, err := store.GetRefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "rotated refresh token persisted")
}

func TestLiveBackend_RevokedRefreshSignsOut(t *testing.T) {
	ctx := context.Background()
	srv := identity.Start(t)
	srv.AddUser("ada@example.test", "Secret1!")
	store := tokenstore.New(keychain.NewMemory())
	m := auth.NewManager(store, liveBackend(srv))

	_, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "Secret1!"})
	require.NoError(t, err)
	srv.RevokeRefreshTokens()

	st, err := m.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, autherrors.TokenInvalid, autherrors.KindOf(err))
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
	data, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLiveBackend_ServerOutageKeepsSession(t *testing.T) {
	ctx := context.Background()
	srv := identity.Start(t)
	srv.AddUser("ada@example.test", "Secret1!")
	m := auth.NewManager(tokenstore.New(keychain.NewMemory()), liveBackend(srv))

	_, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "Secret1!"})
	require.NoError(t, err)
	srv.Fail(identity.EndpointRefresh, identity.Failure{Status: 502, Body: `{"errors":[{"message":"bad gateway"}]}`})

	st, err := m.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, autherrors.ServerError, autherrors.KindOf(err))
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.True(t, m.State().Authenticated())
}
