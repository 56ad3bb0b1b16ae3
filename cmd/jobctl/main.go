// Command jobctl is the CLI surface for gridjob: submit, monitor and
// manage batch jobs against either a local parallel scheduler or an
// external SGE-compatible grid.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
