package main

import (
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
	"github.com/spf13/cobra"
)

func newFetchCmd(log logging.Logger) *cobra.Command {
	var skipFilter bool
	cmd := &cobra.Command{
		Use:   "fetch [<remote> [<refspec>]]",
		Short: "Fetch raw history from a remote and refilter",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			var remote, refSpec string
			if len(args) >= 1 {
				remote = args[0]
			}
			if len(args) == 2 {
				refSpec = args[1]
			}
			s, err := toprepo.Open(log, gitDirFlag)
			if err != nil {
				return err
			}
			return s.Fetch(remote, refSpec, skipFilter, true)
		},
	}
	cmd.Flags().BoolVar(&skipFilter, "skip-filter", false, "fetch raw history without translating it")
	return cmd
}
