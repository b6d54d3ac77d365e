// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	// Version holds the CLI version information.
	// This value is typically set at build time using -ldflags.
	Version = "0.0.0-dev"
)

func printVersion(cmd *cobra.Command) error {
	pterm.Printf("wayfare %s\n", Version)
	rt, err := loadRuntime(cmd.Context())
	if err != nil {
		// Version output must not depend on a working configuration.
		pterm.Printf("api     unavailable: %v\n", err)
		return nil
	}
	pterm.Printf("api     %s\n", rt.baseURL)
	pterm.Printf("keyring %s\n", rt.ring.Name())
	return nil
}
