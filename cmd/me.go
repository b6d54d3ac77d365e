// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
)

// meCmd fetches the account from the server and updates the stored profile.
var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Fetch the signed-in account from the server",
	Long: `The me command asks the server for the current account, renewing the session
first when needed, and stores the fresh profile locally.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, st, err := session(ctx)
		if err != nil {
			return err
		}
		if !st.Authenticated() {
			printNotLoggedIn()
			return nil
		}
		u, err := withSpinner("Loading account", func() (*auth.User, error) {
			return m.CurrentUser(ctx)
		})
		if isSignedOut(err) {
			printNotLoggedIn()
			return nil
		}
		if err != nil {
			return err
		}
		printUser(*u, m.State().Session)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(meCmd)
}
