// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"strings"
	"time"
)

// Role gates administrative capability.
type Role string

const (
	RoleClient    Role = "client"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Level places the role in the total order client < organizer < admin.
// Unknown roles are 0.
func (r Role) Level() int {
	switch r {
	case RoleClient:
		return 1
	case RoleOrganizer:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r.Level() > 0 }

// ParseRole normalizes a wire value. Unknown values yield "" and false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Tier is the client-facing service level used for feature gating.
type Tier string

const (
	TierNone     Tier = ""
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierElite    Tier = "elite"
)

// Level places the tier in the total order standard(1) < premium(2) < elite(3).
// No tier and unknown tiers are 0.
func (t Tier) Level() int {
	switch t {
	case TierStandard:
		return 1
	case TierPremium:
		return 2
	case TierElite:
		return 3
	}
	return 0
}

// ParseTier normalizes a wire value. Unknown values yield TierNone.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t.Level() == 0 {
		return TierNone
	}
	return t
}

// User is an immutable snapshot of the signed-in account.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Role          Role   `json:"role"`
	Tier          Tier   `json:"tier,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.FirstName + " " + u.LastName); n != "" {
		return n
	}
	return u.Email
}

// Session is the (access token, refresh token, expiry) triple.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt is the access token expiry in epoch seconds.
	ExpiresAt int64 `json:"expiresAt"`
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (s Session) ExpiresTime() time.Time { return time.Unix(s.ExpiresAt, 0) }

// AuthData is the pair persisted by the token store.
type AuthData struct {
	User    User
	Session Session
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string
	Password string
}

// Registration are the sign-up inputs.
type Registration struct {
	Email           string
	Password        string
	PasswordConfirm string
	FirstName       string
	LastName        string
}

// RegisterResult reports the outcome of a successful registration.
type RegisterResult struct {
	Message string
	// PendingVerification is true when no session was issued and the user must
	// confirm their email before logging in.
	PendingVerification bool
}
