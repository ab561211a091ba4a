// Package main is the entry point for the contentplane CLI.
// The CLI is the developer terminal tool for interacting with the contentplane API.
package main

import (
	"contentplane/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
