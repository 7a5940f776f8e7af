// Command lamportsim runs Lamport clock machine simulations and checks
// their logs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lamportsim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lamportsim: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
