// Command alignrun launches the external align binary from build/bin on an
// input/output pair, passing through the terminal and the exit status.
package main

import (
	"os"

	"alignrun/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
