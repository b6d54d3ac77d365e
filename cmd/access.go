package cmd

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
	"wayfare/cli/internal/authz"
	autherrors "wayfare/cli/internal/errors"
)

var (
	checkRole string
	checkTier string
	canList   bool
)

// canCmd evaluates a named capability against the local session.
var canCmd = &cobra.Command{
	Use:   "can [capability]",
	Short: "Check whether your account unlocks a feature",
	Long: `The can command answers from the local session whether the signed-in account may use
a feature. Run it with --list to see every capability and its requirement.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := session(cmd.Context())
		if err != nil {
			return err
		}
		if canList || len(args) == 0 {
			printCapabilities(st)
			return nil
		}
		return report(authz.Can(st, authz.Capability(strings.TrimSpace(args[0]))))
	},
}

// checkCmd evaluates an explicit role and tier requirement.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the account against a role and tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := auth.ParseRole(checkRole)
		if checkRole != "" && !ok {
			return autherrors.New(autherrors.BadRequest, fmt.Sprintf("Unknown role %q. Use client, organizer or admin.", checkRole))
		}
		tier := auth.ParseTier(checkTier)
		if checkTier != "" && tier == auth.TierNone {
			return autherrors.New(autherrors.BadRequest, fmt.Sprintf("Unknown tier %q. Use standard, premium or elite.", checkTier))
		}
		_, st, err := session(cmd.Context())
		if err != nil {
			return err
		}
		return report(authz.CheckPermission(st, role, tier))
	},
}

func report(d authz.Decision) error {
	if d.Allowed {
		pterm.Success.Println("Allowed")
		return nil
	}
	return d.Err()
}

func printCapabilities(st auth.State) {
	granted := map[authz.Capability]bool{}
	for _, c := range authz.Granted(st) {
		granted[c] = true
	}
	data := pterm.TableData{{"Capability", "Requires", "Access"}}
	for _, c := range authz.Capabilities() {
		r, _ := authz.RequirementFor(c)
		var need []string
		if r.Role != "" {
			need = append(need, "role "+string(r.Role))
		}
		if r.Tier != auth.TierNone {
			need = append(need, "tier "+string(r.Tier))
		}
		if len(need) == 0 {
			need = append(need, "sign-in")
		}
		access := pterm.Red("no")
		if granted[c] {
			access = pterm.Green("yes")
		}
		data = append(data, []string{string(c), strings.Join(need, ", "), access})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	if !st.Authenticated() {
		printNotLoggedIn()
	}
}

func init() {
	rootCmd.AddCommand(canCmd, checkCmd)
	canCmd.Flags().BoolVar(&canList, "list", false, "List every capability")
	checkCmd.Flags().StringVar(&checkRole, "role", "", "Required role: client, organizer or admin")
	checkCmd.Flags().StringVar(&checkTier, "tier", "", "Required tier: standard, premium or elite")
}
