package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// whoamiCmd shows the stored session without contacting the server.
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account from the local session",
	Long: `The whoami command shows the account of the stored session. It works offline: an
unexpired session is read from the keychain as is, and an expiring one is renewed
once when the server can be reached.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := session(cmd.Context())
		if err != nil {
			return err
		}
		if !st.Authenticated() {
			printNotLoggedIn()
			if st.Err != nil {
				pterm.Debug.Println(st.Err.Error())
			}
			return nil
		}
		printUser(*st.User, st.Session)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
