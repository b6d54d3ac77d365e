// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package keychain

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryManager_RoundTrip(t *testing.T) {
	m := NewMemory()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set("k", []byte("v1")))
	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, m.Remove("k"))
	require.NoError(t, m.Remove("k"), "removing an absent key is not an error")
	_, err = m.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryManager_EmptyValueIsNotFound(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set("k", nil))
	_, err := m.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryManager_ConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Set("shared", []byte("x"))
			_, _ = m.Get("shared")
		}()
	}
	wg.Wait()
	v, err := m.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)
}

func TestOpen_FileBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keyring")
	m, err := Open(Config{Backend: BackendFile, FileDir: dir, FilePassword: "test-pass"})
	require.NoError(t, err)
	assert.Equal(t, string(keyring.FileBackend), m.Name())

	require.NoError(t, m.Set("auth_access_token", []byte("sealed")))
	got, err := m.Get("auth_access_token")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)
}

func TestOpen_Memory(t *testing.T) {
	m, err := Open(Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, m.Name())
}

func TestAllowedBackends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		goos    string
		first   keyring.BackendType
		wantErr bool
	}{
		{"auto linux", BackendAuto, "linux", keyring.SecretServiceBackend, false},
		{"auto darwin", BackendAuto, "darwin", keyring.KeychainBackend, false},
		{"auto windows", BackendAuto, "windows", keyring.WinCredBackend, false},
		{"explicit pass", BackendPass, "linux", keyring.PassBackend, false},
		{"unknown", "floppy", "linux", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := allowedBackends(tt.backend, tt.goos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.first, got[0])
		})
	}
}
