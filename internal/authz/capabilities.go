package authz

import (
	"fmt"
	"sort"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

// Capability is a named feature gated by role and tier.
type Capability string

const (
	CapTripsRead      Capability = "trips:read"
	CapTripsWrite     Capability = "trips:write"
	CapTripsManage    Capability = "trips:manage"
	CapItineraryShare Capability = "itinerary:share"
	CapConcierge      Capability = "concierge"
	CapLoungeAccess   Capability = "lounge:access"
	CapAdminDashboard Capability = "admin:dashboard"
	CapUsersManage    Capability = "users:manage"
)

// Requirement is the role and tier a capability needs. Empty fields mean no requirement.
type Requirement struct {
	Role auth.Role
	Tier auth.Tier
}

// requirements is the single source of truth for capability gating.
var requirements = map[Capability]Requirement{
	CapTripsRead:      {},
	CapTripsWrite:     {},
	CapItineraryShare: {Tier: auth.TierPremium},
	CapConcierge:      {Tier: auth.TierPremium},
	CapLoungeAccess:   {Tier: auth.TierElite},
	CapTripsManage:    {Role: auth.RoleOrganizer},
	CapAdminDashboard: {Role: auth.RoleAdmin},
	CapUsersManage:    {Role: auth.RoleAdmin},
}

// RequirementFor returns the requirement for c.
func RequirementFor(c Capability) (Requirement, bool) {
	r, ok := requirements[c]
	return r, ok
}

// Capabilities lists every known capability, sorted.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(requirements))
	for c := range requirements {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Can checks a capability against st. Unknown capabilities are refused.
func Can(st auth.State, c Capability) Decision {
	r, ok := requirements[c]
	if !ok {
		return deny(autherrors.BadRequest, fmt.Sprintf("Unknown capability %q", c))
	}
	return CheckPermission(st, r.Role, r.Tier)
}

// Granted lists the capabilities st currently holds.
func Granted(st auth.State) []Capability {
	var out []Capability
	for _, c := range Capabilities() {
		if Can(st, c).Allowed {
			out = append(out, c)
		}
	}
	return out
}
