package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfare/cli/internal/authz"
	autherrors "wayfare/cli/internal/errors"
)

func TestReport(t *testing.T) {
	assert.NoError(t, report(authz.Decision{Allowed: true}))

	err := report(authz.Decision{Kind: autherrors.InsufficientPermissions, Reason: "Requires admin role"})
	assert.Equal(t, autherrors.InsufficientPermissions, autherrors.KindOf(err))
	assert.Equal(t, "Requires admin role", autherrors.MessageOf(err))
}

func TestIsSignedOut(t *testing.T) {
	assert.True(t, isSignedOut(autherrors.New(autherrors.TokenInvalid, "x")))
	assert.True(t, isSignedOut(autherrors.New(autherrors.NotAuthenticated, "x")))
	assert.False(t, isSignedOut(autherrors.New(autherrors.NetworkError, "x")))
	assert.False(t, isSignedOut(nil))
}

func TestLoginGreetingNamesUser(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.True(t, strings.Contains(getRandomLoginGreeting("Ada"), "Ada"))
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"login", "register", "logout", "whoami", "me", "refresh", "can", "check", "biometric"}
	for _, name := range want {
		c, _, err := rootCmd.Find([]string{name})
		if assert.NoError(t, err, name) {
			assert.Equal(t, name, c.Name())
		}
	}
}
