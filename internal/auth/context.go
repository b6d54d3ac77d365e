// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"errors"
	"sync"
)

// ErrNoManager is returned by Default before Init.
var ErrNoManager = errors.New("auth: session manager not initialized")

var (
	defaultMu sync.RWMutex
	defaultM  *Manager
)

// Init installs m as the process-wide session manager. Calling it again replaces
// the previous one.
func Init(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultM = m
}

// Default returns the process-wide manager installed by Init.
func Default() (*Manager, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultM == nil {
		return nil, ErrNoManager
	}
	return defaultM, nil
}

// MustDefault is Default for callers that run strictly after startup wiring.
// It panics when Init was never called.
func MustDefault() *Manager {
	m, err := Default()
	if err != nil {
		panic(err)
	}
	return m
}

// Reset removes the process-wide manager. Tests use it between cases.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultM = nil
}
