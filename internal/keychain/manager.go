// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe access to the platform's secure
// credential store. It is the storage collaborator behind the token store: every
// value is independently addressable by key, so one entry can be cleared without
// touching the others.
//
// The package supports macOS Keychain, Windows Credential Manager, Secret Service,
// KWallet, pass and an encrypted file fallback through github.com/99designs/keyring,
// plus an in-memory ring for tests.
package keychain

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/99designs/keyring"

	"wayfare/cli/internal/logging"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "wayfare"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("keychain: key not found")

// Store is the minimal secure key/value contract consumed by the token store.
type Store interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// Backend names accepted by Config.Backend.
const (
	BackendAuto          = "auto"
	BackendKeychain      = "keychain"
	BackendWinCred       = "wincred"
	BackendSecretService = "secret-service"
	BackendKWallet       = "kwallet"
	BackendPass          = "pass"
	BackendFile          = "file"
	BackendMemory        = "memory"
)

// Config selects and configures the backend.
type Config struct {
	ServiceName  string
	Backend      string
	FileDir      string
	FilePassword string
	Logger       *slog.Logger
}

// Manager provides thread-safe operations over the chosen backend.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
	name    string
}

// keychainBackend is implemented by native command-line backends.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

var _ Store = (*Manager)(nil)

// Open creates a Manager for cfg.
func Open(cfg Config) (*Manager, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceName
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	if cfg.Backend == BackendMemory {
		return NewMemory(), nil
	}

	// Try native security backend first on macOS
	if runtime.GOOS == "darwin" && (cfg.Backend == BackendAuto || cfg.Backend == BackendKeychain) {
		backend, err := newSecurityBackend(cfg.ServiceName, cfg.Logger)
		if err == nil {
			return &Manager{backend: backend, name: "security"}, nil
		}
		cfg.Logger.Debug("native security backend unavailable", "error", err)
		// Fall through to keyring library if security command fails
	}

	allowed, err := allowedBackends(cfg.Backend, runtime.GOOS)
	if err != nil {
		return nil, err
	}

	kc := keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          allowed,
		PassPrefix:               cfg.ServiceName,
		WinCredPrefix:            cfg.ServiceName,
		LibSecretCollectionName:  cfg.ServiceName,
		KWalletAppID:             cfg.ServiceName,
		KWalletFolder:            cfg.ServiceName,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
	}
	if cfg.FilePassword != "" {
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
	} else {
		kc.FilePasswordFunc = keyring.TerminalPrompt
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. Install 'pass' (brew install pass gnupg) or set WAYFARE_KEYRING_BACKEND=file")
		}
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	cfg.Logger.Debug("keyring opened", "backends", allowed)
	return &Manager{ring: ring, name: string(allowed[0])}, nil
}

// NewMemory returns a Manager over an in-memory keyring.
func NewMemory() *Manager {
	return &Manager{ring: keyring.NewArrayKeyring(nil), name: BackendMemory}
}

// Name reports the backend in use, for diagnostics.
func (m *Manager) Name() string { return m.name }

// allowedBackends maps a configured backend name to keyring backend types.
func allowedBackends(name, goos string) ([]keyring.BackendType, error) {
	switch name {
	case BackendKeychain:
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case BackendWinCred:
		return []keyring.BackendType{keyring.WinCredBackend}, nil
	case BackendSecretService:
		return []keyring.BackendType{keyring.SecretServiceBackend}, nil
	case BackendKWallet:
		return []keyring.BackendType{keyring.KWalletBackend}, nil
	case BackendPass:
		return []keyring.BackendType{keyring.PassBackend}, nil
	case BackendFile:
		return []keyring.BackendType{keyring.FileBackend}, nil
	case BackendAuto:
	default:
		return nil, fmt.Errorf("unknown keyring backend %q", name)
	}

	switch goos {
	case "darwin":
		// Pass requires 'pass' utility installed: brew install pass
		return []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend, keyring.FileBackend}, nil
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend, keyring.FileBackend}, nil
	default:
		return []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}, nil
	}
}

// Set stores value under key.
func (m *Manager) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		return m.backend.Set(key, string(value))
	}
	return m.ring.Set(keyring.Item{Key: key, Data: value, Label: ServiceName + " " + key})
}

// Get retrieves the value under key, or ErrNotFound.
func (m *Manager) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.backend != nil {
		v, err := m.backend.Get(key)
		if errors.Is(err, errNativeNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if v == "" {
			return nil, ErrNotFound
		}
		return []byte(v), nil
	}

	it, err := m.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(it.Data) == 0 {
		return nil, ErrNotFound
	}
	return it.Data, nil
}

// Remove deletes key; absent keys are ignored.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		return m.backend.Delete(key)
	}
	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
