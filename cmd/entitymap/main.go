// Command entitymap validates mapping files, compiles requests for each
// backend and runs conformance scenarios.
package main

import (
	"os"

	"github.com/roach88/entitymap/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own errors; only the exit code is left.
		os.Exit(cli.GetExitCode(err))
	}
}
