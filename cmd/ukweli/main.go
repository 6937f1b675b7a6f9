// Command ukweli is the CLI front-end over UkweliDB's core (§1 "out of
// scope ... the command-line front-end"): it wires the cobra command tree
// in internal/cli to a process and maps the closed error taxonomy to the
// four exit codes of §6.
package main

import (
	"fmt"
	"os"

	"github.com/elviscgn/UkweliDB/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := cli.NewRootCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ukweli:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
