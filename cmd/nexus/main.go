// Command nexus keeps a personal data snapshot in a mergeable, locally
// persisted document.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nexus/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
