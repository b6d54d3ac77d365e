// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the Wayfare CLI. The
// commands only render session state and invoke session operations; every
// decision about tokens, refresh and storage lives in the internal packages.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/httperrors"
	"wayfare/cli/internal/logging"
)

var (
	showVersion bool
	configPath  string
	verbose     bool
	baseURLFlag string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "wayfare",
	Short:         "Wayfare account access from the terminal",
	Long:          `Wayfare signs you in to your travel account, keeps the session fresh and shows what your role and tier unlock.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			return printVersion(cmd)
		}
		return cmd.Help()
	},
}

// Execute runs the CLI. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c, err := rootCmd.ExecuteContextC(ctx)
	stop()
	closeRuntime()
	if err != nil {
		reportError(c, err)
		os.Exit(1)
	}
}

// reportError renders a failed command. Transport failures get troubleshooting
// steps for the configured host.
func reportError(c *cobra.Command, err error) {
	if c == nil {
		c = rootCmd
	}
	var e *autherrors.E
	switch {
	case errors.As(err, &e) && e.Kind == autherrors.NetworkError && e.Err != nil && !errors.Is(err, context.Canceled):
		host := "server"
		if rt != nil {
			host = httperrors.ExtractHostFromURL(rt.baseURL)
		}
		httperrors.Show(e.Err, "running 'wayfare "+c.Name()+"'", host)
	case e != nil:
		logging.PresentAuthError(err)
	case errors.Is(err, context.Canceled):
		pterm.Println("Cancelled.")
	default:
		fmt.Fprintln(os.Stderr, logging.PresentError("wayfare "+c.Name(), err))
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default $XDG_CONFIG_HOME/wayfare/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Override the identity API base URL")
}
