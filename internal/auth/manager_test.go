package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/keychain"
	"wayfare/cli/internal/tokenstore"
)

var now = time.Unix(1_700_000_000, 0)

func clock() time.Time { return now }

// fakeBackend is a scriptable auth.Backend.
type fakeBackend struct {
	mu sync.Mutex

	loginFn    func(auth.Credentials) (*auth.AuthData, error)
	registerFn func(auth.Registration) (*auth.Enrollment, error)
	refreshFn  func(string) (*auth.AuthData, error)
	meFn       func(string) (*auth.User, error)
	logoutErr  error

	// refreshGate, when set, blocks Refresh until closed.
	refreshGate chan struct{}

	loginCalls   atomic.Int32
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32
	meCalls      atomic.Int32
}

func (f *fakeBackend) Login(_ context.Context, c auth.Credentials) (*auth.AuthData, error) {
	f.loginCalls.Add(1)
	return f.loginFn(c)
}

func (f *fakeBackend) Register(_ context.Context, r auth.Registration) (*auth.Enrollment, error) {
	return f.registerFn(r)
}

func (f *fakeBackend) Logout(context.Context, string) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeBackend) Refresh(_ context.Context, rt string) (*auth.AuthData, error) {
	f.refreshCalls.Add(1)
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	return f.refreshFn(rt)
}

func (f *fakeBackend) GetCurrentUser(_ context.Context, token string) (*auth.User, error) {
	f.meCalls.Add(1)
	return f.meFn(token)
}

func user() auth.User {
	return auth.User{ID: "u-1", Email: "ada@example.test", FirstName: "Ada", Role: auth.RoleClient, Tier: auth.TierStandard}
}

func grant(access string, ttl time.Duration) *auth.AuthData {
	return &auth.AuthData{
		User:    user(),
		Session: auth.Session{AccessToken: access, RefreshToken: "refresh-" + access, ExpiresAt: now.Add(ttl).Unix()},
	}
}

func newStore() *tokenstore.Store {
	return tokenstore.New(keychain.NewMemory(), tokenstore.WithClock(clock))
}

func newManager(store auth.TokenStore, be auth.Backend) *auth.Manager {
	return auth.NewManager(store, be, auth.WithClock(clock))
}

func TestInitialize_EmptyStorageSettlesUnauthenticated(t *testing.T) {
	m := newManager(newStore(), &fakeBackend{})

	var phases []auth.Phase
	m.Subscribe(func(s auth.State) { phases = append(phases, s.Phase) })

	st, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
	assert.True(t, st.Initialized)
	assert.Nil(t, st.User)
	assert.Equal(t, []auth.Phase{auth.PhaseInitializing, auth.PhaseUnauthenticated}, phases)
}

func TestInitialize_ValidStoredSessionNeedsNoNetwork(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	be := &fakeBackend{}

	st, err := newManager(store, be).Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	require.NotNil(t, st.User)
	assert.Equal(t, "u-1", st.User.ID)
	assert.Zero(t, be.refreshCalls.Load())
}

func TestInitialize_ExpiredSessionRefreshesOnce(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Minute)))
	be := &fakeBackend{refreshFn: func(rt string) (*auth.AuthData, error) {
		assert.Equal(t, "refresh-a1", rt)
		g := grant("a2", time.Hour)
		g.Session.RefreshToken = ""
		return g, nil
	}}

	st, err := newManager(store, be).Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, "a2", st.Session.AccessToken)
	assert.Equal(t, "refresh-a1", st.Session.RefreshToken, "unrotated refresh token is kept")
	assert.EqualValues(t, 1, be.refreshCalls.Load())

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a2", stored.Session.AccessToken)
	assert.Equal(t, "refresh-a1", stored.Session.RefreshToken)
}

func TestInitialize_RefreshFailureClearsStorage(t *testing.T) {
	for _, kind := range []autherrors.Kind{autherrors.TokenInvalid, autherrors.NetworkError} {
		t.Run(string(kind), func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			require.NoError(t, store.StoreAuthData(ctx, *grant("a1", -time.Minute)))
			be := &fakeBackend{refreshFn: func(string) (*auth.AuthData, error) {
				return nil, autherrors.New(kind, "nope")
			}}

			st, err := newManager(store, be).Initialize(ctx)
			require.NoError(t, err)
			assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
			assert.True(t, autherrors.Is(st.Err, kind))

			stored, err := store.GetAuthData(ctx)
			require.NoError(t, err)
			assert.Nil(t, stored)
		})
	}
}

func TestInitialize_IdempotentAndShared(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Minute)))
	gate := make(chan struct{})
	be := &fakeBackend{
		refreshGate: gate,
		refreshFn:   func(string) (*auth.AuthData, error) { return grant("a2", time.Hour), nil },
	}
	m := newManager(store, be)

	var wg sync.WaitGroup
	results := make([]auth.State, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := m.Initialize(ctx)
			assert.NoError(t, err)
			results[i] = st
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, st := range results {
		assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	}
	assert.EqualValues(t, 1, be.refreshCalls.Load())

	again, err := m.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", again.Session.AccessToken)
	assert.EqualValues(t, 1, be.refreshCalls.Load(), "settled init performs no I/O")
}

func TestInitialize_CallerCancellation(t *testing.T) {
	store := newStore()
	require.NoError(t, store.StoreAuthData(context.Background(), *grant("a1", time.Minute)))
	gate := make(chan struct{})
	be := &fakeBackend{
		refreshGate: gate,
		refreshFn:   func(string) (*auth.AuthData, error) { return grant("a2", time.Hour), nil },
	}
	m := newManager(store, be)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Initialize(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(gate)
	st, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase, "init keeps running for other callers")
}

func TestLogin_FreshDevice(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	be := &fakeBackend{loginFn: func(c auth.Credentials) (*auth.AuthData, error) {
		assert.Equal(t, "ada@example.test", c.Email)
		return grant("a1", time.Hour), nil
	}}
	m := newManager(store, be)

	var published []auth.State
	m.Subscribe(func(s auth.State) { published = append(published, s) })

	st, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, "u-1", st.User.ID)

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "a1", stored.Session.AccessToken)
	assert.True(t, store.IsTokenValid(ctx))

	require.NotEmpty(t, published)
	last := published[len(published)-1]
	assert.Equal(t, auth.PhaseAuthenticated, last.Phase)
}

func TestLogin_FailureKeepsState(t *testing.T) {
	be := &fakeBackend{loginFn: func(auth.Credentials) (*auth.AuthData, error) {
		return nil, autherrors.New(autherrors.InvalidCredentials, "Invalid email or password")
	}}
	m := newManager(newStore(), be)

	st, err := m.Login(context.Background(), auth.Credentials{Email: "a@b.c", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, autherrors.InvalidCredentials, autherrors.KindOf(err))
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
}

// failingStore rejects writes.
type failingStore struct{ auth.TokenStore }

func (failingStore) StoreAuthData(context.Context, auth.AuthData) error {
	return autherrors.New(autherrors.StorageError, "disk full")
}

func TestLogin_StorageFailureIsFatal(t *testing.T) {
	be := &fakeBackend{loginFn: func(auth.Credentials) (*auth.AuthData, error) { return grant("a1", time.Hour), nil }}
	m := newManager(failingStore{newStore()}, be)

	st, err := m.Login(context.Background(), auth.Credentials{Email: "a@b.c", Password: "x"})
	assert.True(t, autherrors.Is(err, autherrors.StorageError))
	assert.False(t, st.Authenticated())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("pending verification", func(t *testing.T) {
		be := &fakeBackend{registerFn: func(auth.Registration) (*auth.Enrollment, error) {
			return &auth.Enrollment{}, nil
		}}
		m := newManager(newStore(), be)
		res, err := m.Register(ctx, auth.Registration{Email: "n@example.test"})
		require.NoError(t, err)
		assert.True(t, res.PendingVerification)
		assert.NotEmpty(t, res.Message)
		assert.Equal(t, auth.PhaseUnauthenticated, m.State().Phase)
	})

	t.Run("session issued", func(t *testing.T) {
		be := &fakeBackend{registerFn: func(auth.Registration) (*auth.Enrollment, error) {
			return &auth.Enrollment{Message: "Welcome", Auth: grant("a1", time.Hour)}, nil
		}}
		m := newManager(newStore(), be)
		res, err := m.Register(ctx, auth.Registration{Email: "n@example.test"})
		require.NoError(t, err)
		assert.False(t, res.PendingVerification)
		assert.Equal(t, "Welcome", res.Message)
		assert.True(t, m.State().Authenticated())
	})

	t.Run("rejected", func(t *testing.T) {
		be := &fakeBackend{registerFn: func(auth.Registration) (*auth.Enrollment, error) {
			return nil, autherrors.New(autherrors.EmailTaken, "taken")
		}}
		m := newManager(newStore(), be)
		_, err := m.Register(ctx, auth.Registration{Email: "n@example.test"})
		assert.True(t, autherrors.Is(err, autherrors.EmailTaken))
	})
}

func TestLogout_OfflineAlwaysClears(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	be := &fakeBackend{logoutErr: autherrors.New(autherrors.NetworkError, "offline")}
	m := newManager(store, be)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	st := m.Logout(cctx)
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
	assert.EqualValues(t, 1, be.logoutCalls.Load())

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	st = m.Logout(ctx)
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)
	assert.EqualValues(t, 1, be.logoutCalls.Load(), "no token, no server call")
}

func TestRefresh_SingleFlight(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	gate := make(chan struct{})
	be := &fakeBackend{
		refreshGate: gate,
		refreshFn:   func(string) (*auth.AuthData, error) { return grant("a2", 2*time.Hour), nil },
	}
	m := newManager(store, be)
	_, err := m.Initialize(ctx)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	tokens := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := m.Refresh(ctx)
			assert.NoError(t, err)
			if st.Session != nil {
				tokens[i] = st.Session.AccessToken
			}
		}(i)
	}
	time.Sleep(30 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, be.refreshCalls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "a2", tok)
	}
	assert.Equal(t, auth.PhaseAuthenticated, m.State().Phase)
}

func TestRefresh_RejectedTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	be := &fakeBackend{refreshFn: func(string) (*auth.AuthData, error) {
		return nil, autherrors.New(autherrors.TokenInvalid, "Session expired").WithStatus(401)
	}}
	m := newManager(store, be)
	_, err := m.Initialize(ctx)
	require.NoError(t, err)

	st, err := m.Refresh(ctx)
	assert.True(t, autherrors.Is(err, autherrors.TokenInvalid))
	assert.Equal(t, auth.PhaseUnauthenticated, st.Phase)

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRefresh_TransientFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	be := &fakeBackend{refreshFn: func(string) (*auth.AuthData, error) {
		return nil, autherrors.New(autherrors.ServerError, "busy").WithStatus(503)
	}}
	m := newManager(store, be)
	_, err := m.Initialize(ctx)
	require.NoError(t, err)

	var phases []auth.Phase
	m.Subscribe(func(s auth.State) { phases = append(phases, s.Phase) })

	st, err := m.Refresh(ctx)
	assert.True(t, autherrors.Is(err, autherrors.ServerError))
	assert.Equal(t, auth.PhaseAuthenticated, st.Phase)
	assert.Equal(t, "a1", st.Session.AccessToken)
	assert.Equal(t, []auth.Phase{auth.PhaseRefreshing, auth.PhaseAuthenticated}, phases)

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestRefresh_LogoutDuringRefreshWins(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	gate := make(chan struct{})
	be := &fakeBackend{
		refreshGate: gate,
		refreshFn:   func(string) (*auth.AuthData, error) { return grant("a2", time.Hour), nil },
	}
	m := newManager(store, be)
	_, err := m.Initialize(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return be.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	m.Logout(ctx)
	close(gate)
	err = <-done

	assert.True(t, autherrors.Is(err, autherrors.NotAuthenticated))
	assert.Equal(t, auth.PhaseUnauthenticated, m.State().Phase)
	stored, serr := store.GetAuthData(ctx)
	require.NoError(t, serr)
	assert.Nil(t, stored, "stale refresh must not resurrect the session")
}

func TestAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token needs no refresh", func(t *testing.T) {
		store := newStore()
		require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
		be := &fakeBackend{}
		tok, err := newManager(store, be).AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a1", tok)
		assert.Zero(t, be.refreshCalls.Load())
	})

	t.Run("transient refresh failure falls back to unexpired token", func(t *testing.T) {
		store := newStore()
		be := &fakeBackend{
			loginFn: func(auth.Credentials) (*auth.AuthData, error) { return grant("a1", 2*time.Minute), nil },
			refreshFn: func(string) (*auth.AuthData, error) {
				return nil, autherrors.New(autherrors.NetworkError, "offline")
			},
		}
		m := newManager(store, be)
		_, err := m.Login(ctx, auth.Credentials{Email: "a@b.c", Password: "x"})
		require.NoError(t, err)

		tok, err := m.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a1", tok)
		assert.EqualValues(t, 1, be.refreshCalls.Load())
	})

	t.Run("not signed in", func(t *testing.T) {
		_, err := newManager(newStore(), &fakeBackend{}).AccessToken(ctx)
		assert.True(t, autherrors.Is(err, autherrors.NotAuthenticated))
	})
}

func TestCurrentUser_RetriesOnceAfterRefresh(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	be := &fakeBackend{
		refreshFn: func(string) (*auth.AuthData, error) { return grant("a2", time.Hour), nil },
		meFn: func(token string) (*auth.User, error) {
			if token == "a1" {
				return nil, autherrors.New(autherrors.TokenInvalid, "expired")
			}
			u := user()
			u.Tier = auth.TierElite
			return &u, nil
		},
	}
	m := newManager(store, be)

	u, err := m.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.TierElite, u.Tier)
	assert.EqualValues(t, 2, be.meCalls.Load())
	assert.EqualValues(t, 1, be.refreshCalls.Load())
	assert.Equal(t, auth.TierElite, m.State().User.Tier)

	stored, err := store.GetAuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, auth.TierElite, stored.User.Tier)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	m := newManager(newStore(), &fakeBackend{})
	var calls atomic.Int32
	unsub := m.Subscribe(func(auth.State) { calls.Add(1) })
	unsub()
	unsub()

	_, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestOperationsAwaitInitialization(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.StoreAuthData(ctx, *grant("a1", time.Hour)))
	m := newManager(store, &fakeBackend{})

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", tok)
	assert.True(t, m.State().Initialized)
}

// storeView is what a subscriber found in storage when a state was published.
type storeView struct {
	phase  auth.Phase
	access string
	stored string
	valid  bool
}

func watchStore(t *testing.T, m *auth.Manager, store *tokenstore.Store) *[]storeView {
	t.Helper()
	var views []storeView
	m.Subscribe(func(s auth.State) {
		v := storeView{phase: s.Phase, access: s.Session.AccessToken}
		d, err := store.GetAuthData(context.Background())
		assert.NoError(t, err)
		if d != nil {
			v.stored = d.Session.AccessToken
		}
		v.valid = store.IsTokenValid(context.Background())
		views = append(views, v)
	})
	return &views
}

func lastView(t *testing.T, views []storeView, phase auth.Phase) storeView {
	t.Helper()
	for i := len(views) - 1; i >= 0; i-- {
		if views[i].phase == phase {
			return views[i]
		}
	}
	t.Fatalf("no %s state was published", phase)
	return storeView{}
}

func TestPublishedStatesFollowStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("login refresh logout", func(t *testing.T) {
		store := newStore()
		be := &fakeBackend{
			loginFn:   func(auth.Credentials) (*auth.AuthData, error) { return grant("a1", time.Hour), nil },
			refreshFn: func(string) (*auth.AuthData, error) { return grant("a2", time.Hour), nil },
		}
		m := newManager(store, be)
		views := watchStore(t, m, store)

		_, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "pw"})
		require.NoError(t, err)
		v := lastView(t, *views, auth.PhaseAuthenticated)
		assert.Equal(t, "a1", v.access)
		assert.Equal(t, "a1", v.stored, "login is stored before it is published")
		assert.True(t, v.valid)

		_, err = m.Refresh(ctx)
		require.NoError(t, err)
		v = lastView(t, *views, auth.PhaseAuthenticated)
		assert.Equal(t, "a2", v.access)
		assert.Equal(t, "a2", v.stored, "renewed token is stored before it is published")
		assert.True(t, v.valid)

		m.Logout(ctx)
		v = (*views)[len(*views)-1]
		assert.Equal(t, auth.PhaseUnauthenticated, v.phase)
		assert.Empty(t, v.stored, "storage is cleared before sign-out is published")
		assert.False(t, v.valid)
	})

	t.Run("rejected refresh", func(t *testing.T) {
		store := newStore()
		be := &fakeBackend{
			loginFn: func(auth.Credentials) (*auth.AuthData, error) { return grant("a1", time.Hour), nil },
			refreshFn: func(string) (*auth.AuthData, error) {
				return nil, autherrors.New(autherrors.TokenInvalid, "revoked")
			},
		}
		m := newManager(store, be)
		_, err := m.Login(ctx, auth.Credentials{Email: "ada@example.test", Password: "pw"})
		require.NoError(t, err)
		views := watchStore(t, m, store)

		_, err = m.Refresh(ctx)
		require.Error(t, err)
		v := (*views)[len(*views)-1]
		assert.Equal(t, auth.PhaseUnauthenticated, v.phase)
		assert.Empty(t, v.stored)
		assert.False(t, v.valid)
	})
}
