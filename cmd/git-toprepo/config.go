package main

import (
	"fmt"
	"strings"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/meroton/git-toprepo/internal/toprepo"
	"github.com/spf13/cobra"
)

func newConfigCmd(log logging.Logger) *cobra.Command {
	var list bool
	var offline bool
	cmd := &cobra.Command{
		Use:   "config (--list | <key>)",
		Short: "Print the merged configuration, or a single key's value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if !list && len(args) == 0 {
				return fmt.Errorf("config requires --list or a key")
			}
			s, err := toprepo.Open(log, gitDirFlag)
			if err != nil {
				return err
			}
			if err := s.LoadConfig(!offline); err != nil {
				return err
			}
			if list {
				for _, line := range s.ConfigList() {
					fmt.Println(line)
				}
				return nil
			}
			fmt.Println(strings.Join(s.ConfigGet(args[0]), "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list every merged configuration key")
	cmd.Flags().BoolVar(&offline, "offline", false, "do not fetch git-remote-backed configuration sources")
	return cmd
}
