// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/logging"
)

// TokenStore is the persistence the manager needs. tokenstore.Store implements it.
type TokenStore interface {
	StoreAuthData(ctx context.Context, d AuthData) error
	// GetAuthData returns nil when nothing usable is stored.
	GetAuthData(ctx context.Context) (*AuthData, error)
	IsTokenValid(ctx context.Context) bool
	// UpdateAccessToken replaces the access token and expiry; an empty refreshToken
	// keeps the stored one.
	UpdateAccessToken(ctx context.Context, token string, expiresAt int64, refreshToken string) error
	GetAccessToken(ctx context.Context) (string, error)
	GetRefreshToken(ctx context.Context) (string, error)
	ClearAuthData(ctx context.Context)
}

// Enrollment is the backend's answer to a registration. Auth is nil when the
// account must be verified before a session is issued.
type Enrollment struct {
	Message string
	Auth    *AuthData
}

// Backend is the identity API the manager drives. backend.HTTP implements it.
// Every error is an *errors.E.
type Backend interface {
	Login(ctx context.Context, c Credentials) (*AuthData, error)
	Register(ctx context.Context, r Registration) (*Enrollment, error)
	Logout(ctx context.Context, accessToken string) error
	// Refresh returns the renewed session. Session.RefreshToken is empty when the
	// backend did not rotate it and User.ID is empty when no user was returned.
	Refresh(ctx context.Context, refreshToken string) (*AuthData, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*User, error)
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

const refreshKey = "refresh"

// Manager is the session state machine. All methods are safe for concurrent use.
//
// Every operation other than Initialize first waits for initialization (starting it
// when nobody has), so nothing observes storage before the stored session has been
// loaded. Writes to the store and the state swap that follows happen under one
// commit lock, and the new state is published only after the store accepted it.
type Manager struct {
	store TokenStore
	api   Backend
	bus   *Bus
	log   *slog.Logger
	now   func() time.Time

	stateMu sync.RWMutex
	state   State

	// commitMu serializes store writes, state swaps and publication.
	commitMu sync.Mutex
	// epoch changes whenever the signed-in identity is replaced or dropped, so a
	// refresh that started for an older identity cannot resurrect it.
	epoch uint64

	initMu    sync.Mutex
	initDone  chan struct{}
	initState State

	flight singleflight.Group
}

// NewManager wires a manager over store and api. It starts Uninitialized.
func NewManager(store TokenStore, api Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		api:   api,
		log:   logging.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bus = NewBus(m.log)
	return m
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Subscribe registers fn for every committed transition. fn runs synchronously on
// the committing goroutine and must not call back into mutating Manager methods.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// swap replaces the state and publishes it. Callers hold commitMu.
func (m *Manager) swap(st State) {
	m.stateMu.Lock()
	m.state = st
	m.stateMu.Unlock()
	m.log.Debug("auth state committed", "phase", st.Phase.String())
	m.bus.Publish(st)
}

// clearLocked drops local credentials and settles to Unauthenticated. Callers hold commitMu.
func (m *Manager) clearLocked(ctx context.Context, cause error) {
	m.store.ClearAuthData(ctx)
	m.epoch++
	m.swap(unauthenticatedState(cause))
}

// commitAuthenticated persists d and publishes the authenticated state for a new identity.
func (m *Manager) commitAuthenticated(ctx context.Context, d AuthData) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if err := m.store.StoreAuthData(ctx, d); err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not save your session securely", err)
	}
	m.epoch++
	m.swap(authenticatedState(d))
	return nil
}

// Initialize loads the stored session. A valid token is adopted directly, an
// expired one gets exactly one refresh attempt, and any failure clears storage and
// settles to Unauthenticated (the cause is in State.Err). Concurrent and repeated
// calls share the single pass. The returned error is only ever ctx.Err().
func (m *Manager) Initialize(ctx context.Context) (State, error) {
	m.initMu.Lock()
	if m.initDone == nil {
		done := make(chan struct{})
		m.initDone = done

		m.commitMu.Lock()
		m.swap(State{Phase: PhaseInitializing})
		m.commitMu.Unlock()

		go func() {
			defer close(done)
			m.initState = m.runInit(context.WithoutCancel(ctx))
		}()
	}
	done := m.initDone
	m.initMu.Unlock()

	select {
	case <-done:
		return m.initState, nil
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

func (m *Manager) runInit(ctx context.Context) State {
	data, err := m.store.GetAuthData(ctx)
	if err != nil || data == nil {
		if err != nil {
			m.log.Warn("stored session unreadable", "error", err)
		}
		m.commitMu.Lock()
		defer m.commitMu.Unlock()
		m.clearLocked(ctx, nil)
		return m.state
	}

	if m.store.IsTokenValid(ctx) {
		m.commitMu.Lock()
		defer m.commitMu.Unlock()
		m.swap(authenticatedState(*data))
		m.log.Debug("restored stored session", "user", data.User.ID)
		return m.state
	}

	m.log.Debug("stored access token near expiry, refreshing", "user", data.User.ID)
	st, err := m.runRefresh(ctx)
	if err == nil {
		return st
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	if m.state.Phase != PhaseUnauthenticated {
		m.log.Info("could not renew stored session", "error", err)
		m.clearLocked(ctx, err)
	}
	return m.state
}

// Login authenticates with the backend and persists the session. On failure the
// state is unchanged and the typed error is returned.
func (m *Manager) Login(ctx context.Context, c Credentials) (State, error) {
	if _, err := m.Initialize(ctx); err != nil {
		return m.State(), err
	}
	data, err := m.api.Login(ctx, c)
	if err != nil {
		m.log.Debug("login rejected", "kind", autherrors.KindOf(err))
		return m.State(), err
	}
	if err := m.commitAuthenticated(context.WithoutCancel(ctx), *data); err != nil {
		return m.State(), err
	}
	m.log.Info("signed in", "user", data.User.ID, "role", string(data.User.Role))
	return m.State(), nil
}

// Register creates an account. When the backend issues a session right away the
// manager signs in; otherwise the result is PendingVerification and the state
// stays Unauthenticated.
func (m *Manager) Register(ctx context.Context, r Registration) (RegisterResult, error) {
	if _, err := m.Initialize(ctx); err != nil {
		return RegisterResult{}, err
	}
	enr, err := m.api.Register(ctx, r)
	if err != nil {
		return RegisterResult{}, err
	}
	msg := enr.Message
	if enr.Auth == nil {
		if msg == "" {
			msg = "Check your email to verify your account before signing in."
		}
		return RegisterResult{Message: msg, PendingVerification: true}, nil
	}
	if err := m.commitAuthenticated(context.WithoutCancel(ctx), *enr.Auth); err != nil {
		return RegisterResult{}, err
	}
	if msg == "" {
		msg = "Account created."
	}
	return RegisterResult{Message: msg}, nil
}

// Logout tells the backend (best effort) and then always clears local credentials.
// It cannot be cancelled and never fails.
func (m *Manager) Logout(ctx context.Context) State {
	ctx = context.WithoutCancel(ctx)
	_, _ = m.Initialize(ctx)

	if token, _ := m.store.GetAccessToken(ctx); token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			m.log.Debug("remote logout failed, clearing locally", "error", err)
		}
	}

	m.commitMu.Lock()
	m.clearLocked(ctx, nil)
	m.commitMu.Unlock()
	m.log.Info("signed out")
	return m.State()
}

// Refresh renews the access token. Concurrent callers share one backend call and
// one outcome. A rejected refresh token clears the session; transient failures
// leave the session in place and return the error.
func (m *Manager) Refresh(ctx context.Context) (State, error) {
	if _, err := m.Initialize(ctx); err != nil {
		return m.State(), err
	}
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.runRefresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		st, _ := res.Val.(State)
		return st, res.Err
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

func (m *Manager) runRefresh(ctx context.Context) (State, error) {
	m.commitMu.Lock()
	epoch := m.epoch
	prev := m.state
	refreshToken, _ := m.store.GetRefreshToken(ctx)
	if refreshToken == "" {
		err := autherrors.New(autherrors.TokenInvalid, "No active session to renew. Please sign in.")
		m.clearLocked(ctx, err)
		st := m.state
		m.commitMu.Unlock()
		return st, err
	}
	if prev.Authenticated() {
		next := prev
		next.Phase = PhaseRefreshing
		m.swap(next)
	}
	m.commitMu.Unlock()

	data, err := m.api.Refresh(ctx, refreshToken)

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if m.epoch != epoch {
		m.log.Debug("discarding refresh result for a replaced session")
		return m.state, autherrors.New(autherrors.NotAuthenticated, "Session changed while it was being renewed.")
	}

	if err != nil {
		if autherrors.IsTerminalAuth(err) {
			m.log.Info("refresh token rejected, signing out", "kind", autherrors.KindOf(err))
			m.clearLocked(ctx, err)
			return m.state, err
		}
		m.log.Debug("refresh failed, keeping session", "kind", autherrors.KindOf(err), "error", err)
		if prev.Authenticated() {
			m.swap(prev)
		}
		return m.state, err
	}

	renewed, err := m.persistRefresh(ctx, prev, *data)
	if err != nil {
		if prev.Authenticated() {
			m.swap(prev)
		}
		return m.state, err
	}
	m.swap(authenticatedState(renewed))
	return m.state, nil
}

// persistRefresh merges a refresh response into the stored session. Callers hold commitMu.
func (m *Manager) persistRefresh(ctx context.Context, prev State, data AuthData) (AuthData, error) {
	sess := data.Session
	if sess.RefreshToken == "" {
		sess.RefreshToken, _ = m.store.GetRefreshToken(ctx)
	}

	if data.User.ID == "" {
		// No user in the response: keep the current one and update tokens in place.
		var user User
		switch {
		case prev.User != nil:
			user = *prev.User
		default:
			stored, err := m.store.GetAuthData(ctx)
			if err != nil || stored == nil {
				return AuthData{}, autherrors.New(autherrors.TokenInvalid, "Stored session is incomplete. Please sign in.")
			}
			user = stored.User
		}
		if err := m.store.UpdateAccessToken(ctx, sess.AccessToken, sess.ExpiresAt, data.Session.RefreshToken); err != nil {
			return AuthData{}, autherrors.Wrap(autherrors.StorageError, "Could not save your renewed session", err)
		}
		return AuthData{User: user, Session: sess}, nil
	}

	renewed := AuthData{User: data.User, Session: sess}
	if err := m.store.StoreAuthData(ctx, renewed); err != nil {
		return AuthData{}, autherrors.Wrap(autherrors.StorageError, "Could not save your renewed session", err)
	}
	return renewed, nil
}

// CurrentUser fetches the user from the backend and replaces the stored snapshot.
// A rejected access token triggers one refresh and one retry.
func (m *Manager) CurrentUser(ctx context.Context) (*User, error) {
	if _, err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	if !m.State().Authenticated() {
		return nil, autherrors.New(autherrors.NotAuthenticated, "User not authenticated")
	}

	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	user, err := m.api.GetCurrentUser(ctx, token)
	if autherrors.IsTerminalAuth(err) {
		st, rerr := m.Refresh(ctx)
		if rerr != nil {
			return nil, rerr
		}
		user, err = m.api.GetCurrentUser(ctx, st.Session.AccessToken)
	}
	if err != nil {
		return nil, err
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	cur := m.state
	if !cur.Authenticated() {
		return nil, autherrors.New(autherrors.NotAuthenticated, "User not authenticated")
	}
	if cur.User != nil && cur.User.ID != user.ID {
		return nil, autherrors.New(autherrors.NotAuthenticated, "Session changed while loading the user")
	}
	d := AuthData{User: *user, Session: *cur.Session}
	if err := m.store.StoreAuthData(ctx, d); err != nil {
		return nil, autherrors.Wrap(autherrors.StorageError, "Could not save your profile", err)
	}
	next := authenticatedState(d)
	m.swap(next)
	u := *user
	return &u, nil
}

// AccessToken returns a token suitable for an authenticated request, refreshing
// first when the stored one is inside the refresh buffer. If the refresh fails
// transiently and the token has not actually expired yet, the stored token is
// returned.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if _, err := m.Initialize(ctx); err != nil {
		return "", err
	}
	st := m.State()
	if !st.Authenticated() {
		return "", autherrors.New(autherrors.NotAuthenticated, "User not authenticated")
	}
	if m.store.IsTokenValid(ctx) {
		return m.store.GetAccessToken(ctx)
	}

	renewed, err := m.Refresh(ctx)
	if err == nil {
		return renewed.Session.AccessToken, nil
	}
	if autherrors.IsTransient(err) && m.now().Unix() < st.Session.ExpiresAt {
		return st.Session.AccessToken, nil
	}
	return "", err
}
