package main

import (
	"testing"

	"github.com/meroton/git-toprepo/internal/logging"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdRegistersEveryVerb(t *testing.T) {
	root := newRootCmd(logging.Nop())
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.ElementsMatch(t, []string{"init", "config", "refilter", "fetch", "push"}, names)
}

func TestPrintEffectiveFlagsVisitsLocalAndInheritedFlags(t *testing.T) {
	root := newRootCmd(logging.Nop())
	fetch, _, err := root.Find([]string{"fetch"})
	require.NoError(t, err)

	require.NotPanics(t, func() { printEffectiveFlags(fetch) })

	seen := map[string]bool{}
	visit := func(f *pflag.Flag) { seen[f.Name] = true }
	fetch.Flags().VisitAll(visit)
	fetch.InheritedFlags().VisitAll(visit)
	require.True(t, seen["skip-filter"])
	require.True(t, seen["git-dir"])
}
