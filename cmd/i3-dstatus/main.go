// Command i3-dstatus aggregates status blocks from generator programs into
// an i3bar protocol stream on stdout.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dstatus/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		code := cli.GetExitCode(err)
		if code != cli.ExitStdinClosed {
			fmt.Fprintln(os.Stderr, "i3-dstatus:", err)
		}
		os.Exit(code)
	}
}
