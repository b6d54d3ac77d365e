package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
)

var (
	registerEmail     string
	registerFirstName string
	registerLastName  string
)

var registerCmd = &cobra.Command{
	Use:     "register",
	Aliases: []string{"signup"},
	Short:   "Create a Wayfare account",
	Long: `The register command creates an account. Depending on the server you are either
signed in right away or asked to confirm your email first.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, _, err := session(ctx)
		if err != nil {
			return err
		}

		email := strings.TrimSpace(registerEmail)
		if email == "" {
			if email, err = promptText("Email", ""); err != nil {
				return err
			}
		}
		password, err := promptSecret("Password")
		if err != nil {
			return err
		}
		confirm, err := promptSecret("Confirm password")
		if err != nil {
			return err
		}

		res, err := withSpinner("Creating account", func() (auth.RegisterResult, error) {
			return m.Register(ctx, auth.Registration{
				Email:           email,
				Password:        password,
				PasswordConfirm: confirm,
				FirstName:       registerFirstName,
				LastName:        registerLastName,
			})
		})
		if err != nil {
			return err
		}

		if res.PendingVerification {
			pterm.Info.Println(res.Message)
			pterm.Println("   Then run 'wayfare login'.")
			return nil
		}
		pterm.Success.Println(res.Message)
		if st := m.State(); st.Authenticated() {
			pterm.Println(getRandomLoginGreeting(st.User.DisplayName()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Account email (prompted when omitted)")
	registerCmd.Flags().StringVar(&registerFirstName, "first-name", "", "First name")
	registerCmd.Flags().StringVar(&registerLastName, "last-name", "", "Last name")
}
