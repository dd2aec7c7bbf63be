/*
PURPOSE:
  Entry point for the Polyglot Runner binary.
  Executes the CLI root command and maps its error to an exit code.

REQUIREMENTS:
  User-specified:
  - Single binary entry point.
  - Non-zero exit when the run could not produce results.

  Implementation-discovered:
  - An interrupted run exits 130 like other shell tools, so scripts can tell it from a failure.

ARCHITECTURE INTEGRATION:
  - Calls: internal/cli.Execute()

ERROR HANDLING:
  - Prints the error to stderr; exit 1, or 130 when interrupted.

IMPLEMENTATION RULES:
  - Keep main() minimal. All logic belongs in internal/ packages.

USAGE:
  go build -o polyglot-runner ./cmd/polyglot-runner
  ./polyglot-runner run --models llama3:8b

SELF-HEALING INSTRUCTIONS:
  - If CLI fails to start, check internal/cli/root.go definition.

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - Update when changing the CLI framework or high-level signal handling.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/daryltucker/polyglot-runner/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
