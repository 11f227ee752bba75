package main

import (
	"os"

	"github.com/pfcm/oscroute/cmd/oscroute/commands"
)

// Set by the build.
var version = "dev"

func main() {
	commands.SetVersion(version)
	// Errors are printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
