package main

import (
	"fmt"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// gitDirFlag is the shared --git-dir flag every verb but init reads to
// find the mono repository.
var gitDirFlag string

// showFlags is a debug aid for CI invocations: echo every flag the
// invoked subcommand actually registered, along with its effective
// value, before running it.
var showFlags bool

func newRootCmd(log logging.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "git-toprepo",
		Short:         "Translate between a top repository and its flattened mono repository",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if showFlags {
				printEffectiveFlags(cmd)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&gitDirFlag, "git-dir", "d", ".", "path to the mono repository")
	root.PersistentFlags().BoolVar(&showFlags, "show-flags", false, "print effective flag values before running")

	root.AddCommand(
		newInitCmd(log),
		newConfigCmd(log),
		newRefilterCmd(log),
		newFetchCmd(log),
		newPushCmd(log),
	)
	return root
}

// printEffectiveFlags walks both the command's own and its inherited
// persistent flags, printing name=value for every one of them, whether
// set on the command line or left at its default.
func printEffectiveFlags(cmd *cobra.Command) {
	visit := func(flag *pflag.Flag) {
		fmt.Printf("%s=%s\n", flag.Name, flag.Value.String())
	}
	cmd.Flags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
}
