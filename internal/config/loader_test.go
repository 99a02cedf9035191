package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLoader(t *testing.T) {
	l := Static("key=value\n")
	require.NoError(t, l.FetchRemote(true))
	lines, err := l.Lines()
	require.NoError(t, err)
	require.Equal(t, "key=value\n", lines)
}

func TestLocalFileLoaderReadsContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config", []byte("[toprepo]\n\trole = ci\n"), 0o644))

	l := LocalFile(fs, "/config", false)
	lines, err := l.Lines()
	require.NoError(t, err)
	require.Equal(t, "toprepo.role=ci\n", lines)
}

func TestLocalFileLoaderMissingAllowed(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := LocalFile(fs, "/does-not-exist", true)
	lines, err := l.Lines()
	require.NoError(t, err)
	require.Equal(t, "", lines)
}

func TestLocalFileLoaderMissingDisallowed(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := LocalFile(fs, "/does-not-exist", false)
	_, err := l.Lines()
	require.Error(t, err)
}

func TestParseGitConfigFormatSections(t *testing.T) {
	content := `[toprepo "repo-foo"]
	url = https://example.com/foo.git
	enabled = true
`
	got := parseGitConfigFormat(content)
	want := "toprepo.repo-foo.url=https://example.com/foo.git\ntoprepo.repo-foo.enabled=true\n"
	require.Equal(t, want, got)
}

func TestParseGitConfigFormatSkipsCommentsAndBlankLines(t *testing.T) {
	content := "# comment\n\n; also a comment\n[toprepo]\nrole = ci\n"
	require.Equal(t, "toprepo.role=ci\n", parseGitConfigFormat(content))
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{"1": true, "true": true, "True": true, "0": false, "false": false, "": false}
	for in, want := range cases {
		got, err := parseBool(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "parseBool(%q)", in)
	}
}

func TestParseBoolInvalid(t *testing.T) {
	_, err := parseBool("maybe")
	require.Error(t, err)
}

func TestEnvLoaderReadsKnownKeyFromPrefixedVar(t *testing.T) {
	t.Setenv("GIT_TOPREPO_ROLE", "ci")
	l := Env("GIT_TOPREPO", []string{"toprepo.role"})
	lines, err := l.Lines()
	require.NoError(t, err)
	require.Equal(t, "toprepo.role=ci\n", lines)
}

func TestEnvLoaderIgnoresUnsetKeys(t *testing.T) {
	l := Env("GIT_TOPREPO", []string{"toprepo.role"})
	lines, err := l.Lines()
	require.NoError(t, err)
	require.Equal(t, "", lines)
}

func TestMultiLoaderConcatenatesInOrder(t *testing.T) {
	m := MultiLoader{Loaders: []Loader{Static("a=1\n"), Static("b=2\n")}}
	lines, err := m.Lines()
	require.NoError(t, err)
	require.Equal(t, "a=1\nb=2\n", lines)
}
