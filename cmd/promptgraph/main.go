// Command promptgraph plans and executes prompt flows from the command
// line.
//
// Usage:
//
//	promptgraph [--config FILE] [--json] <command> [flags]
//
// Logging is configured from LOG_LEVEL and LOG_FORMAT.
package main

import (
	"fmt"
	"os"

	"github.com/randalmurphal/promptgraph/internal/cli"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/observability"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	logger := observability.SetupLogger()

	if err := cli.NewRootCmd(version, logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
