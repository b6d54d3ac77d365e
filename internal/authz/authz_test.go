package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

func signedIn(role auth.Role, tier auth.Tier) auth.State {
	u := auth.User{ID: "u1", Email: "a@x.com", Role: role, Tier: tier}
	s := auth.Session{AccessToken: "T1", ExpiresAt: 1}
	return auth.State{User: &u, Session: &s, Phase: auth.PhaseAuthenticated, Initialized: true}
}

func TestHasAccessToTier_Monotonic(t *testing.T) {
	tiers := []auth.Tier{auth.TierStandard, auth.TierPremium, auth.TierElite}
	for _, have := range tiers {
		for _, want := range tiers {
			got := HasAccessToTier(signedIn(auth.RoleClient, have), want)
			assert.Equal(t, have.Level() >= want.Level(), got, "have %s want %s", have, want)
		}
	}

	assert.True(t, HasAccessToTier(signedIn(auth.RoleClient, auth.TierElite), auth.TierPremium))
	assert.False(t, HasAccessToTier(signedIn(auth.RoleClient, auth.TierStandard), auth.TierPremium))
	assert.False(t, HasAccessToTier(signedIn(auth.RoleClient, auth.TierNone), auth.TierStandard))
	assert.True(t, HasAccessToTier(signedIn(auth.RoleClient, auth.TierNone), auth.TierNone))
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		have, want auth.Role
		ok         bool
	}{
		{auth.RoleClient, auth.RoleClient, true},
		{auth.RoleClient, auth.RoleOrganizer, false},
		{auth.RoleOrganizer, auth.RoleOrganizer, true},
		{auth.RoleOrganizer, auth.RoleAdmin, false},
		{auth.RoleAdmin, auth.RoleOrganizer, true},
		{auth.RoleAdmin, auth.RoleAdmin, true},
		{auth.RoleAdmin, auth.RoleClient, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, HasRole(signedIn(tt.have, ""), tt.want), "%s requires %s", tt.have, tt.want)
	}
}

func TestCheckPermission(t *testing.T) {
	tests := []struct {
		name   string
		st     auth.State
		role   auth.Role
		tier   auth.Tier
		allow  bool
		reason string
		kind   autherrors.Kind
	}{
		{"unauthenticated", auth.State{Phase: auth.PhaseUnauthenticated}, "", "", false, ReasonNotAuthenticated, autherrors.NotAuthenticated},
		{"uninitialized", auth.State{}, auth.RoleClient, "", false, ReasonNotAuthenticated, autherrors.NotAuthenticated},
		{"no requirement", signedIn(auth.RoleClient, ""), "", "", true, "", ""},
		{"admin without tier passes organizer", signedIn(auth.RoleAdmin, ""), auth.RoleOrganizer, "", true, "", ""},
		{"admin skips tier", signedIn(auth.RoleAdmin, ""), "", auth.TierElite, true, "", ""},
		{"client lacks organizer", signedIn(auth.RoleClient, auth.TierElite), auth.RoleOrganizer, "", false, "Requires organizer role", autherrors.InsufficientPermissions},
		{"tier too low", signedIn(auth.RoleClient, auth.TierStandard), "", auth.TierPremium, false, "Requires premium tier or higher", autherrors.InsufficientPermissions},
		{"role and tier ok", signedIn(auth.RoleOrganizer, auth.TierElite), auth.RoleOrganizer, auth.TierPremium, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CheckPermission(tt.st, tt.role, tt.tier)
			assert.Equal(t, tt.allow, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.kind, d.Kind)
			if tt.allow {
				assert.NoError(t, d.Err())
			} else {
				assert.True(t, autherrors.Is(d.Err(), tt.kind))
			}
		})
	}
}

func TestRefreshingStillAuthorizes(t *testing.T) {
	st := signedIn(auth.RoleClient, auth.TierPremium)
	st.Phase = auth.PhaseRefreshing
	assert.True(t, CheckPermission(st, "", auth.TierPremium).Allowed)
}

func TestCan(t *testing.T) {
	client := signedIn(auth.RoleClient, auth.TierStandard)
	assert.True(t, Can(client, CapTripsRead).Allowed)
	assert.False(t, Can(client, CapConcierge).Allowed)
	assert.False(t, Can(client, CapTripsManage).Allowed)

	admin := signedIn(auth.RoleAdmin, "")
	assert.True(t, Can(admin, CapTripsManage).Allowed)
	assert.True(t, Can(admin, CapAdminDashboard).Allowed)
	assert.True(t, Can(admin, CapLoungeAccess).Allowed)

	d := Can(client, Capability("teleport"))
	assert.False(t, d.Allowed)
	assert.Equal(t, autherrors.BadRequest, d.Kind)
}

func TestGranted(t *testing.T) {
	got := Granted(signedIn(auth.RoleClient, auth.TierPremium))
	assert.ElementsMatch(t, []Capability{CapTripsRead, CapTripsWrite, CapItineraryShare, CapConcierge}, got)
	assert.Empty(t, Granted(auth.State{}))
}
