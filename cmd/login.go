// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
)

var (
	loginEmail     string
	loginForce     bool
	loginBiometric bool
	loginPassStdin bool
)

// loginCmd signs in with email and password.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"signin"},
	Short:   "Sign in with your Wayfare email and password",
	Long: `The login command asks for your email and password, signs you in and stores the
session encrypted in the OS keychain. Later commands reuse and silently renew it.

If you are already signed in the command stops early; pass --force to sign in again.
For scripts, pass --email and pipe the password with --password-stdin.
With --biometric and biometric sign-in enabled, you confirm your identity locally
before the credentials are sent.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, st, err := session(ctx)
		if err != nil {
			return err
		}
		if st.Authenticated() && !loginForce {
			pterm.Printf("Already logged in as %s\n", st.User.Email)
			return nil
		}

		email := strings.TrimSpace(loginEmail)
		if email == "" {
			if email, err = promptText("Email", ""); err != nil {
				return err
			}
		}
		var password string
		if loginPassStdin {
			password, err = readPasswordLine(cmd.InOrStdin())
		} else {
			password, err = promptSecret("Password")
		}
		if err != nil {
			return err
		}

		signIn := func(ctx context.Context) error {
			next, err := withSpinner("Signing in", func() (auth.State, error) {
				return m.Login(ctx, auth.Credentials{Email: email, Password: password})
			})
			if err != nil {
				return err
			}
			st = next
			return nil
		}
		if loginBiometric {
			rt, _ := loadRuntime(ctx)
			err = rt.gate.Guard(ctx, signIn)
		} else {
			err = signIn(ctx)
		}
		if err != nil {
			return err
		}

		pterm.Println(getRandomLoginGreeting(st.User.DisplayName()))
		if !st.User.EmailVerified {
			pterm.Warning.Println("Your email is not verified yet. Some features stay locked until it is.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email (prompted when omitted)")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Sign in again even when a session exists")
	loginCmd.Flags().BoolVar(&loginBiometric, "biometric", false, "Require local biometric confirmation first when enabled")
	loginCmd.Flags().BoolVar(&loginPassStdin, "password-stdin", false, "Read the password from stdin")
}

// readPasswordLine returns the first line of r without its line ending.
func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", autherrors.New(autherrors.InvalidCredentials, "No password on stdin.")
	}
	return line, nil
}

// getRandomLoginGreeting returns a random greeting phrase with the user's identifier
func getRandomLoginGreeting(identifier string) string {
	greetings := []string{
		"🎉 Welcome back, %s!",
		"✨ Great to see you, %s!",
		"🚀 You're all set, %s!",
		"👋 Hello %s! Where to next?",
		"💫 Successfully authenticated as %s",
		"🌟 Welcome aboard, %s!",
		"✅ Authentication complete! Hi %s!",
		"🔓 Access granted! Welcome %s!",
	}
	return fmt.Sprintf(greetings[rand.IntN(len(greetings))], identifier)
}

// isSignedOut reports errors after which the user has to log in again.
func isSignedOut(err error) bool {
	return autherrors.IsTerminalAuth(err) || autherrors.Is(err, autherrors.NotAuthenticated)
}
