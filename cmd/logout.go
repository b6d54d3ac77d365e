// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
)

// logoutCmd clears the session locally and, best effort, on the server.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove saved tokens",
	Long: `The logout command tells the server to end the session when it can be reached and
always removes the access token, refresh token and cached profile from the OS
keychain. Biometric sign-in settings are kept.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, _, err := session(ctx)
		if err != nil {
			return err
		}
		_, _ = withSpinner("Signing out", func() (auth.State, error) {
			return m.Logout(ctx), nil
		})
		pterm.Println("✅ All credentials and tokens have been removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
