package convmap

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"
)

func TestSetAndLookup(t *testing.T) {
	m := New()
	src := plumbing.NewHash("1111111111111111111111111111111111111111")
	mono := plumbing.NewHash("2222222222222222222222222222222222222222")

	m.Set("libfoo", src, mono)

	got, ok := m.Lookup("libfoo", src)
	require.True(t, ok)
	require.Equal(t, mono, got)
	require.True(t, m.Has("libfoo", src))
	require.Equal(t, 1, m.Len())
}

func TestLookupMiss(t *testing.T) {
	m := New()
	_, ok := m.Lookup("libfoo", plumbing.NewHash("1111111111111111111111111111111111111111"))
	require.False(t, ok)
}

func TestOrigin(t *testing.T) {
	m := New()
	src := plumbing.NewHash("1111111111111111111111111111111111111111")
	mono := plumbing.NewHash("2222222222222222222222222222222222222222")
	m.Set("libfoo", src, mono)

	origin, ok := m.Origin(mono)
	require.True(t, ok)
	require.Equal(t, "libfoo", origin.Repo)
	require.Equal(t, src, origin.Hash)
}

func TestSetFirstWriteWins(t *testing.T) {
	m := New()
	src := plumbing.NewHash("1111111111111111111111111111111111111111")
	first := plumbing.NewHash("2222222222222222222222222222222222222222")
	second := plumbing.NewHash("3333333333333333333333333333333333333333")

	m.Set("libfoo", src, first)
	m.Set("libfoo", src, second)

	got, _ := m.Lookup("libfoo", src)
	require.Equal(t, first, got, "want the first write to win")
}

func TestDistinctReposDoNotCollide(t *testing.T) {
	m := New()
	src := plumbing.NewHash("1111111111111111111111111111111111111111")
	monoA := plumbing.NewHash("2222222222222222222222222222222222222222")
	monoB := plumbing.NewHash("3333333333333333333333333333333333333333")

	m.Set("repoA", src, monoA)
	m.Set("repoB", src, monoB)

	gotA, _ := m.Lookup("repoA", src)
	gotB, _ := m.Lookup("repoB", src)
	require.Equal(t, monoA, gotA)
	require.Equal(t, monoB, gotB)
}
