package main

import (
	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
	"github.com/spf13/cobra"
)

func newInitCmd(log logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init <url> [<dir>]",
		Short: "Initialize a new mono repository tracking <url>",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			dir := "."
			if len(args) == 2 {
				dir = args[1]
			}
			_, err := toprepo.Init(log, dir, args[0])
			return err
		},
	}
}
