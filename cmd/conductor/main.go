package main

import (
	"os"

	"github.com/vulntor/conductor/cmd/conductor/commands"
	"github.com/vulntor/conductor/cmd/conductor/internal/format"
	"github.com/vulntor/conductor/pkg/engine"
)

// main runs the CLI and maps the returned error to an exit code:
//   - 0: success, including sessions where plugins failed
//   - 1: general error
//   - 2: invalid configuration, manifests or options
//   - 130: interrupted
func main() {
	err := commands.NewCommand().Execute()
	if err != nil {
		_ = format.New(os.Stdout, os.Stderr, format.ModeTable, false, false).PrintError(err)
		os.Exit(engine.ExitCode(err))
	}
}
