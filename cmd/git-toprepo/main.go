// Command git-toprepo translates between a top repository (with git
// submodules) and a flattened mono repository. One subcommand per verb,
// built on spf13/cobra for the flag/usage handling the surface needs
// (role selection, --dry-run, --from-scratch, --offline).
package main

import (
	"fmt"
	"os"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
)

func main() {
	log := logging.New()
	root := newRootCmd(log)

	cmd, err := root.ExecuteC()
	if err == nil {
		return
	}
	if !cmd.SilenceUsage {
		// Cobra itself rejected the invocation (unknown flag, wrong
		// argument count) before any business logic ran: a usage error.
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "git-toprepo: %v\n", err)
	os.Exit(toprepo.ClassifyExit(err))
}
