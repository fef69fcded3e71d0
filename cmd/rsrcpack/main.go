package main

import (
	"os"

	"github.com/conduit-lang/rsrcpack/internal/cli/commands"
)

func main() {
	// Execute has already printed the diagnostic.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
