package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeclareAndIsDeclaredMissing(t *testing.T) {
	l := New()
	require.False(t, l.IsDeclaredMissing("https://example.com/foo.git", "abc"))
	l.Declare("https://example.com/foo.git", "abc")
	require.True(t, l.IsDeclaredMissing("https://example.com/foo.git", "abc"))
	require.False(t, l.IsDeclaredMissing("https://example.com/bar.git", "abc"), "must not leak across URLs")
}

func TestMarkCheckedUndeclared(t *testing.T) {
	l := New()
	require.Nil(t, l.MarkChecked("https://example.com/foo.git", "abc"), "want nil for an undeclared pair")
}

func TestMarkCheckedOverspecifiedOnce(t *testing.T) {
	l := New()
	l.Declare("https://example.com/foo.git", "abc")

	w1 := l.MarkChecked("https://example.com/foo.git", "abc")
	require.NotNil(t, w1, "want an overspecified warning on first check")
	w2 := l.MarkChecked("https://example.com/foo.git", "abc")
	require.Nil(t, w2, "want nil on repeat check of the same pair")
}
