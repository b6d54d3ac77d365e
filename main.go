// Package main is the entry point for the Wayfare CLI application.
package main

import (
	"wayfare/cli/cmd"
)

func main() {
	cmd.Execute()
}
