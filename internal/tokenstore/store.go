// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tokenstore persists the session (tokens, expiry, user snapshot) and the
// biometric preference in the platform secure store, sealed with a device key.
//
// Each value lives under its own key so it can be updated or cleared alone. The
// expiry marker is kept in clear so validity checks never decrypt. Reads of a
// partial or corrupt session report "no session" rather than an error.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/keychain"
	"wayfare/cli/internal/logging"
)

// Storage keys.
const (
	KeyAccessToken          = "auth_access_token"
	KeyRefreshToken         = "auth_refresh_token"
	KeyUser                 = "auth_user"
	KeyTokenExpiry          = "auth_token_expiry"
	KeyDataKey              = "auth_data_key"
	KeyBiometricPreferences = "biometric_preferences"
)

// DefaultRefreshBuffer is how long before expiry a token stops counting as valid.
const DefaultRefreshBuffer = 5 * time.Minute

// BiometricPreference is the persisted step-up configuration.
type BiometricPreference struct {
	Enabled        bool   `json:"enabled"`
	PromptTitle    string `json:"promptTitle,omitempty"`
	PromptSubtitle string `json:"promptSubtitle,omitempty"`
	FallbackLabel  string `json:"fallbackLabel,omitempty"`
}

// Option customizes a Store.
type Option func(*Store)

// WithRefreshBuffer sets the validity buffer.
func WithRefreshBuffer(d time.Duration) Option {
	return func(s *Store) { s.buffer = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store implements auth.TokenStore over a keychain.Store.
type Store struct {
	ring   keychain.Store
	buffer time.Duration
	now    func() time.Time
	log    *slog.Logger

	// mu serializes writes; reads take it shared so they never see half a write.
	mu sync.RWMutex

	sealOnce sync.Mutex
	sealer   *sealer
}

var _ auth.TokenStore = (*Store)(nil)

// New returns a Store over ring.
func New(ring keychain.Store, opts ...Option) *Store {
	s := &Store{
		ring:   ring,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) getSealer() (*sealer, error) {
	s.sealOnce.Lock()
	defer s.sealOnce.Unlock()
	if s.sealer != nil {
		return s.sealer, nil
	}
	secret, err := loadOrCreateSecret(s.ring)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.StorageError, "Secure storage is unavailable", err)
	}
	sl, err := newSealer(deriveKey(secret))
	if err != nil {
		return nil, autherrors.Wrap(autherrors.StorageError, "Secure storage is unavailable", err)
	}
	s.sealer = sl
	return sl, nil
}

func (s *Store) putSealed(key string, plain []byte) error {
	sl, err := s.getSealer()
	if err != nil {
		return err
	}
	sealed, err := sl.seal(key, plain)
	if err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not encrypt credentials", err)
	}
	if err := s.ring.Set(key, sealed); err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not write to secure storage", err)
	}
	return nil
}

// getSealed returns the opened value, nil when absent, or an error when the slot
// cannot be read or decrypted.
func (s *Store) getSealed(key string) ([]byte, error) {
	raw, err := s.ring.Get(key)
	if errors.Is(err, keychain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, autherrors.Wrap(autherrors.StorageError, "Could not read secure storage", err)
	}
	sl, err := s.getSealer()
	if err != nil {
		return nil, err
	}
	return sl.open(key, raw)
}

func (s *Store) putExpiry(expiresAt int64) error {
	if err := s.ring.Set(KeyTokenExpiry, []byte(strconv.FormatInt(expiresAt, 10))); err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not write to secure storage", err)
	}
	return nil
}

func (s *Store) expiry() (int64, bool) {
	raw, err := s.ring.Get(KeyTokenExpiry)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StoreAuthData persists d. The user snapshot is written last; until it lands a
// reader sees no session.
func (s *Store) StoreAuthData(ctx context.Context, d auth.AuthData) error {
	user, err := json.Marshal(d.User)
	if err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not encode user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop the user first so an interrupted write cannot pair new tokens with a stale user.
	_ = s.ring.Remove(KeyUser)

	if err := s.putSealed(KeyAccessToken, []byte(d.Session.AccessToken)); err != nil {
		return err
	}
	if d.Session.RefreshToken != "" {
		if err := s.putSealed(KeyRefreshToken, []byte(d.Session.RefreshToken)); err != nil {
			return err
		}
	} else if err := s.ring.Remove(KeyRefreshToken); err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not write to secure storage", err)
	}
	if err := s.putExpiry(d.Session.ExpiresAt); err != nil {
		return err
	}
	if err := s.putSealed(KeyUser, user); err != nil {
		return err
	}
	s.log.Debug("stored session", "user", d.User.ID, "expires_at", d.Session.ExpiresAt)
	return nil
}

// GetAuthData returns the stored session, or nil when any required part is missing
// or unreadable.
func (s *Store) GetAuthData(ctx context.Context) (*auth.AuthData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, err := s.getSealed(KeyAccessToken)
	if err != nil {
		return s.corrupt(KeyAccessToken, err)
	}
	userRaw, err := s.getSealed(KeyUser)
	if err != nil {
		return s.corrupt(KeyUser, err)
	}
	exp, ok := s.expiry()
	if len(access) == 0 || len(userRaw) == 0 || !ok {
		return nil, nil
	}

	var user auth.User
	if err := json.Unmarshal(userRaw, &user); err != nil || user.ID == "" {
		return s.corrupt(KeyUser, err)
	}
	refresh, err := s.getSealed(KeyRefreshToken)
	if err != nil {
		return s.corrupt(KeyRefreshToken, err)
	}

	return &auth.AuthData{
		User: user,
		Session: auth.Session{
			AccessToken:  string(access),
			RefreshToken: string(refresh),
			ExpiresAt:    exp,
		},
	}, nil
}

// corrupt treats an unreadable slot as no session. Backend failures other than
// decryption are still reported.
func (s *Store) corrupt(key string, err error) (*auth.AuthData, error) {
	if autherrors.Is(err, autherrors.StorageError) {
		return nil, err
	}
	s.log.Debug("stored session unreadable, treating as absent", "key", key, "error", err)
	return nil, nil
}

// IsTokenValid reports whether the stored access token outlives the refresh buffer:
// now < expiresAt - buffer.
func (s *Store) IsTokenValid(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.expiry()
	if !ok {
		return false
	}
	return s.now().Unix() < exp-int64(s.buffer/time.Second)
}

// UpdateAccessToken replaces the access token and expiry. The refresh token is
// replaced only when refreshToken is non-empty. The user snapshot is untouched.
func (s *Store) UpdateAccessToken(ctx context.Context, token string, expiresAt int64, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putSealed(KeyAccessToken, []byte(token)); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.putSealed(KeyRefreshToken, []byte(refreshToken)); err != nil {
			return err
		}
	}
	return s.putExpiry(expiresAt)
}

// GetAccessToken returns the stored access token or "".
func (s *Store) GetAccessToken(ctx context.Context) (string, error) {
	return s.token(KeyAccessToken)
}

// GetRefreshToken returns the stored refresh token or "".
func (s *Store) GetRefreshToken(ctx context.Context) (string, error) {
	return s.token(KeyRefreshToken)
}

func (s *Store) token(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.getSealed(key)
	if err != nil {
		if autherrors.Is(err, autherrors.StorageError) {
			return "", err
		}
		s.log.Debug("stored token unreadable", "key", key, "error", err)
		return "", nil
	}
	return string(v), nil
}

// ClearAuthData removes every session key. Biometric preferences and the device
// secret survive. Failures are logged, never returned.
func (s *Store) ClearAuthData(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []string{KeyUser, KeyAccessToken, KeyRefreshToken, KeyTokenExpiry} {
		if err := s.ring.Remove(k); err != nil {
			s.log.Warn("could not remove stored credential", "key", k, "error", err)
		}
	}
}

// GetBiometricPreferences returns the stored preference; absent or unreadable
// yields the zero value.
func (s *Store) GetBiometricPreferences(ctx context.Context) (BiometricPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p BiometricPreference
	raw, err := s.getSealed(KeyBiometricPreferences)
	if err != nil {
		if autherrors.Is(err, autherrors.StorageError) {
			return p, err
		}
		s.log.Debug("biometric preference unreadable", "error", err)
		return p, nil
	}
	if raw == nil {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Debug("biometric preference unreadable", "error", err)
		return BiometricPreference{}, nil
	}
	return p, nil
}

// SetBiometricPreferences persists p.
func (s *Store) SetBiometricPreferences(ctx context.Context, p BiometricPreference) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return autherrors.Wrap(autherrors.StorageError, "Could not encode preferences", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSealed(KeyBiometricPreferences, raw)
}

// ClearBiometricPreferences removes the preference.
func (s *Store) ClearBiometricPreferences(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ring.Remove(KeyBiometricPreferences); err != nil {
		s.log.Warn("could not remove biometric preference", "error", err)
	}
}
