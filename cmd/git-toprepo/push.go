package main

import (
	"fmt"
	"strings"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
	"github.com/spf13/cobra"
)

func newPushCmd(log logging.Logger) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "push [origin] <local-ref>:<remote-ref>",
		Short: "Split mono commits and push the result to each configured repo",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			refSpec := args[0]
			if len(args) == 2 {
				// The optional leading "origin" argument names the
				// conceptual remote group; the Splitter always produces
				// instructions for every repository a commit touches,
				// so it carries no further meaning here.
				refSpec = args[1]
			}
			s, err := toprepo.Open(log, gitDirFlag)
			if err != nil {
				return err
			}
			instructions, err := s.Push(refSpec, dryRun)
			if err != nil {
				return err
			}
			if dryRun {
				for _, ins := range instructions {
					extra := ""
					if len(ins.ExtraArgs) > 0 {
						extra = " " + strings.Join(ins.ExtraArgs, " ")
					}
					fmt.Printf("would push %s -> %s%s\n", ins.CommitHash, ins.RepoName, extra)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the push plan without pushing")
	return cmd
}
