package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeText(t *testing.T, text string) *Config {
	t.Helper()
	cfg := New()
	require.NoError(t, NewDecoder(strings.NewReader(text)).Decode(cfg))
	return cfg
}

func mapReader(files map[string]string) func(string) ([]byte, error) {
	return func(p string) ([]byte, error) {
		content, ok := files[p]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(content), nil
	}
}

func TestIncludeIfGitdirMatch(t *testing.T) {
	cfg := decodeText(t, "[includeIf \"gitdir:/srv/work/**\"]\npath = extra.cfg\n")
	l := &Loader{
		ReadFile: mapReader(map[string]string{"extra.cfg": "[user]\nname = Alice\n"}),
		GitDir:   "/srv/work/proj/.git",
	}
	require.NoError(t, l.ResolveIncludes(cfg, "/srv/work/proj/.git/config"))
	assert.Equal(t, "Alice", cfg.GetOption("user", NoSubsection, "name"))
}

func TestIncludeIfGitdirNoMatch(t *testing.T) {
	cfg := decodeText(t, "[includeIf \"gitdir:/srv/work/**\"]\npath = extra.cfg\n")
	l := &Loader{
		ReadFile: mapReader(map[string]string{"extra.cfg": "[user]\nname = Alice\n"}),
		GitDir:   "/home/me/proj/.git",
	}
	require.NoError(t, l.ResolveIncludes(cfg, "/home/me/proj/.git/config"))
	assert.Equal(t, "", cfg.GetOption("user", NoSubsection, "name"))
}

func TestIncludeIfGitdirCaseInsensitive(t *testing.T) {
	cfg := decodeText(t, "[includeIf \"gitdir/i:/SRV/Work/**\"]\npath = extra.cfg\n")
	l := &Loader{
		ReadFile: mapReader(map[string]string{"extra.cfg": "[user]\nname = Alice\n"}),
		GitDir:   "/srv/work/proj/.git",
	}
	require.NoError(t, l.ResolveIncludes(cfg, "/srv/work/proj/.git/config"))
	assert.Equal(t, "Alice", cfg.GetOption("user", NoSubsection, "name"))
}

func TestIncludeIfGitdirUnanchoredPattern(t *testing.T) {
	// An unanchored pattern is prefixed with "**/", so "proj/**" matches any
	// gitdir with a "proj" path segment.
	cfg := decodeText(t, "[includeIf \"gitdir:proj/**\"]\npath = extra.cfg\n")
	l := &Loader{
		ReadFile: mapReader(map[string]string{"extra.cfg": "[user]\nname = Alice\n"}),
		GitDir:   "/srv/work/proj/.git",
	}
	require.NoError(t, l.ResolveIncludes(cfg, "/srv/work/proj/.git/config"))
	assert.Equal(t, "Alice", cfg.GetOption("user", NoSubsection, "name"))
}

func TestIncludeIfOnBranch(t *testing.T) {
	cfg := decodeText(t, "[includeIf \"onbranch:feature/**\"]\npath = extra.cfg\n")
	files := map[string]string{"extra.cfg": "[user]\nname = Bob\n"}

	matched := &Loader{ReadFile: mapReader(files), Branch: "feature/x"}
	require.NoError(t, matched.ResolveIncludes(cfg, "config"))
	assert.Equal(t, "Bob", cfg.GetOption("user", NoSubsection, "name"))

	detached := &Loader{ReadFile: mapReader(files), Branch: ""}
	cfg2 := decodeText(t, "[includeIf \"onbranch:feature/**\"]\npath = extra.cfg\n")
	require.NoError(t, detached.ResolveIncludes(cfg2, "config"))
	assert.Equal(t, "", cfg2.GetOption("user", NoSubsection, "name"))
}

func TestUnconditionalInclude(t *testing.T) {
	cfg := decodeText(t, "[include]\npath = extra.cfg\n")
	l := &Loader{ReadFile: mapReader(map[string]string{"extra.cfg": "[core]\nbare = true\n"})}
	require.NoError(t, l.ResolveIncludes(cfg, "config"))
	assert.Equal(t, "true", cfg.GetOption("core", NoSubsection, "bare"))
	require.Len(t, cfg.Includes, 1)
	assert.Equal(t, "extra.cfg", cfg.Includes[0].Path)
}

func TestIncludeRelativePathResolvesAgainstIncludingFile(t *testing.T) {
	var asked []string
	l := &Loader{ReadFile: func(p string) ([]byte, error) {
		asked = append(asked, p)
		return []byte(""), nil
	}}
	cfg := decodeText(t, "[include]\npath = ./sub.cfg\n")
	require.NoError(t, l.ResolveIncludes(cfg, "/repo/.git/config"))
	require.Equal(t, []string{"/repo/.git/sub.cfg"}, asked)
}

func TestIncludeDepthExceeded(t *testing.T) {
	files := map[string]string{"self.cfg": "[include]\npath = self.cfg\n"}

	hard := &Loader{ReadFile: mapReader(files)}
	cfg := decodeText(t, "[include]\npath = self.cfg\n")
	err := hard.ResolveIncludes(cfg, "config")
	require.ErrorIs(t, err, ErrIncludeDepthExceeded)

	soft := &Loader{ReadFile: mapReader(files), TruncateOnDepthExceeded: true}
	cfg2 := decodeText(t, "[include]\npath = self.cfg\n")
	require.NoError(t, soft.ResolveIncludes(cfg2, "config"))
}
