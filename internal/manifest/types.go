// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest resolves the identity endpoint paths. Built-in defaults match the
// headless CMS user collection; an optional remote manifest can override them.
package manifest

import "strings"

// Endpoints contains REST endpoint paths relative to the backend base URL.
type Endpoints struct {
	Login    string `json:"login"`    // e.g., "/users/login"
	Register string `json:"register"` // e.g., "/users"
	Logout   string `json:"logout"`   // e.g., "/users/logout"
	Refresh  string `json:"refresh"`  // e.g., "/users/refresh-token"
	Me       string `json:"me"`       // e.g., "/users/me"
}

// Manifest is the remote endpoint document.
type Manifest struct {
	Version int       `json:"version"`
	BaseURL string    `json:"base_url,omitempty"`
	HTTP    Endpoints `json:"http"`
}

// DefaultEndpoints returns the built-in endpoint table.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:    "/users/login",
		Register: "/users",
		Logout:   "/users/logout",
		Refresh:  "/users/refresh-token",
		Me:       "/users/me",
	}
}

// WithDefaults fills empty paths from DefaultEndpoints and normalizes leading slashes.
func (e Endpoints) WithDefaults() Endpoints {
	d := DefaultEndpoints()
	pick := func(v, def string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return def
		}
		if !strings.HasPrefix(v, "/") {
			v = "/" + v
		}
		return v
	}
	return Endpoints{
		Login:    pick(e.Login, d.Login),
		Register: pick(e.Register, d.Register),
		Logout:   pick(e.Logout, d.Logout),
		Refresh:  pick(e.Refresh, d.Refresh),
		Me:       pick(e.Me, d.Me),
	}
}
