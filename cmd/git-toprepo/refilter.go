package main

import (
	"fmt"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
	"github.com/spf13/cobra"
)

func newRefilterCmd(log logging.Logger) *cobra.Command {
	var fromScratch bool
	var offline bool
	cmd := &cobra.Command{
		Use:   "refilter",
		Short: "Translate every top branch onto its mono branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			s, err := toprepo.Open(log, gitDirFlag)
			if err != nil {
				return err
			}
			results, err := s.RefilterAll(fromScratch, !offline)
			if err != nil {
				return err
			}
			for branch, tip := range results {
				fmt.Printf("%s -> %s\n", branch, tip)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromScratch, "from-scratch", false, "discard the Conversion Map and BumpInfo state, retranslating everything")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not fetch git-remote-backed configuration sources")
	return cmd
}
