package cmd

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token now",
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
		next, err := withSpinner("Renewing session", func() (auth.State, error) {
			return m.Refresh(ctx)
		})
		if err != nil {
			return err
		}
		pterm.Success.Printf("Session renewed until %s\n", next.Session.ExpiresTime().Local().Format(time.RFC1123))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
