// Command mnemo is the CLI entry point for the local-first semantic
// memory engine.
package main

import (
	"os"

	"github.com/mnemo-dev/mnemo/cmd/mnemo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
