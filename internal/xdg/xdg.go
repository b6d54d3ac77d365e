// Package xdg provides helpers to resolve XDG Base Directory paths for wayfare.
// Config lives under $XDG_CONFIG_HOME/wayfare and the encrypted file keyring
// under $XDG_DATA_HOME/wayfare/keyring.
//
// The package handles fallback to traditional locations when XDG environment
// variables are not set and creates every directory with private permissions.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under every XDG base.
const AppName = "wayfare"

// ConfigDir returns the XDG config directory for wayfare.
// It falls back to ~/.config/wayfare when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for wayfare.
// It falls back to ~/.local/state/wayfare when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// DataDir returns the XDG data directory for wayfare.
// It falls back to ~/.local/share/wayfare when XDG_DATA_HOME is unset.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// resolve picks the base from env or home, appends AppName and creates it 0700.
func resolve(envVar, homeRel string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
