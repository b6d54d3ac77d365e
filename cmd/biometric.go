package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/biometric"
)

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Manage local confirmation before sign-in",
	Long: `Biometric sign-in asks you to confirm your identity on this device before
'wayfare login --biometric' sends your credentials. Set biometric.device to
"terminal" in config.yaml to confirm with a prompt on this terminal.`,
}

var biometricStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device capabilities and whether biometric sign-in is on",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}
		c := rt.gate.Capabilities(ctx)
		types := make([]string, 0, len(c.SupportedTypes))
		for _, t := range c.SupportedTypes {
			types = append(types, string(t))
		}
		if len(types) == 0 {
			types = append(types, "none")
		}
		pterm.Printf("Hardware  %t\n", c.HasHardware)
		pterm.Printf("Enrolled  %t\n", c.IsEnrolled)
		pterm.Printf("Types     %s\n", strings.Join(types, ", "))
		pterm.Printf("Enabled   %t\n", rt.gate.IsBiometricLoginEnabled(ctx))
		return nil
	},
}

var biometricEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn on biometric sign-in after one confirmation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}
		err = rt.gate.EnableBiometricLogin(ctx, biometric.Options{
			PromptMessage:  "Confirm it's you to sign in to Wayfare",
			PromptSubtitle: "You can turn this off with 'wayfare biometric disable'.",
			FallbackLabel:  "Use password",
		})
		if err != nil {
			return err
		}
		pterm.Success.Println("Biometric sign-in enabled")
		return nil
	},
}

var biometricDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn off biometric sign-in",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}
		rt.gate.DisableBiometricLogin(ctx)
		pterm.Success.Println("Biometric sign-in disabled")
		return nil
	},
}

func init() {
	biometricCmd.AddCommand(biometricStatusCmd, biometricEnableCmd, biometricDisableCmd)
	rootCmd.AddCommand(biometricCmd)
}
