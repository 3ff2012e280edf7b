// Package main provides the entry point for the scopesync CLI.
package main

import (
	"os"

	"github.com/randalmurphal/scopesync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		cli.PrintError(err)
		os.Exit(1)
	}
}
