// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package authz answers role and tier questions about an auth.State. Every function
// is pure: no network, no storage, safe to call on every render.
package authz

import (
	"fmt"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

// ReasonNotAuthenticated is the refusal for a state without a session.
const ReasonNotAuthenticated = "User not authenticated"

// Decision is the outcome of a permission check. Reason and Kind are set only on refusal.
type Decision struct {
	Allowed bool
	Reason  string
	Kind    autherrors.Kind
}

// Err returns the refusal as a typed error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return autherrors.New(d.Kind, d.Reason)
}

func allow() Decision { return Decision{Allowed: true} }

func deny(kind autherrors.Kind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// HasRole reports whether the signed-in user holds required. Admin satisfies organizer.
func HasRole(st auth.State, required auth.Role) bool {
	if !st.Authenticated() {
		return false
	}
	have := st.User.Role
	if have == required {
		return true
	}
	return have == auth.RoleAdmin && required == auth.RoleOrganizer
}

// HasAccessToTier reports whether the user's tier is at least required. An empty
// required tier always passes for a signed-in user.
func HasAccessToTier(st auth.State, required auth.Tier) bool {
	if !st.Authenticated() {
		return false
	}
	return st.User.Tier.Level() >= required.Level()
}

// CheckPermission combines an optional role and an optional tier requirement.
// Admins are not subject to tier requirements.
func CheckPermission(st auth.State, role auth.Role, tier auth.Tier) Decision {
	if !st.Authenticated() {
		return deny(autherrors.NotAuthenticated, ReasonNotAuthenticated)
	}
	if role != "" && !HasRole(st, role) {
		return deny(autherrors.InsufficientPermissions, fmt.Sprintf("Requires %s role", role))
	}
	if tier != auth.TierNone && st.User.Role != auth.RoleAdmin && !HasAccessToTier(st, tier) {
		return deny(autherrors.InsufficientPermissions, fmt.Sprintf("Requires %s tier or higher", tier))
	}
	return allow()
}
