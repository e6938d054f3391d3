package config

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultMaxIncludeDepth bounds the recursion of include/includeIf
// resolution. Exceeding it is an error unless TruncateOnDepthExceeded is
// set on the Loader.
const DefaultMaxIncludeDepth = 10

// Loader resolves `[include]` and `[includeIf]` directives found while
// parsing a config file, reading referenced files through the ReadFile
// callback (so a caller can back includes with a billy.Filesystem or with
// the OS).
type Loader struct {
	// ReadFile loads the bytes of an included file by path.
	ReadFile func(path string) ([]byte, error)
	// GitDir is the gitdir of the config file being resolved, used to
	// evaluate `includeIf "gitdir:..."` predicates.
	GitDir string
	// Branch is the currently checked-out branch's short name, used to
	// evaluate `includeIf "onbranch:..."` predicates. Empty means
	// detached or unknown, and onbranch predicates never match.
	Branch string
	// MaxDepth bounds include recursion; zero means DefaultMaxIncludeDepth.
	MaxDepth int
	// TruncateOnDepthExceeded silently stops recursing instead of
	// returning ErrIncludeDepthExceeded once MaxDepth is reached.
	TruncateOnDepthExceeded bool
}

// ResolveIncludes walks every `[include]`/`[includeIf]` section in cfg,
// loading and merging matched files' sections into cfg.Includes (and,
// transitively, resolving their own includes). Sections named `include`
// or `includeIf "..."` are otherwise inert: their only meaningful key is
// `path`.
func (l *Loader) ResolveIncludes(cfg *Config, includingFile string) error {
	return l.resolve(cfg, includingFile, 0)
}

func (l *Loader) resolve(cfg *Config, includingFile string, depth int) error {
	maxDepth := l.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxIncludeDepth
	}
	if depth >= maxDepth {
		if l.TruncateOnDepthExceeded {
			return nil
		}
		return ErrIncludeDepthExceeded
	}

	for _, s := range cfg.Sections {
		if strings.EqualFold(s.Name, "include") {
			for _, p := range s.OptionAll("path") {
				if err := l.loadInclude(cfg, p, includingFile, depth); err != nil {
					return err
				}
			}
		}
		if strings.EqualFold(s.Name, "includeIf") {
			for _, ss := range s.Subsections {
				ok, err := l.matches(ss.Name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				for _, p := range ss.OptionAll("path") {
					if err := l.loadInclude(cfg, p, includingFile, depth); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (l *Loader) loadInclude(cfg *Config, rawPath, includingFile string, depth int) error {
	resolved := l.resolvePath(rawPath, includingFile)
	data, err := l.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("config: include %q: %w", resolved, err)
	}
	included := New()
	if err := NewDecoder(bytes.NewReader(data)).Decode(included); err != nil {
		return fmt.Errorf("config: include %q: %w", resolved, err)
	}
	if err := l.resolve(included, resolved, depth+1); err != nil {
		return err
	}
	cfg.Includes = append(cfg.Includes, &Include{Path: resolved, Config: included})
	for _, s := range included.Sections {
		if strings.EqualFold(s.Name, "include") || strings.EqualFold(s.Name, "includeIf") {
			continue
		}
		for _, o := range s.Options {
			cfg.AddOption(s.Name, NoSubsection, o.Key, o.Value)
		}
		for _, ss := range s.Subsections {
			for _, o := range ss.Options {
				cfg.AddOption(s.Name, ss.Name, o.Key, o.Value)
			}
		}
	}
	return nil
}

// resolvePath applies the include-path normalizations: "./" is relative to the
// including file's directory, "~/" to the home directory, otherwise the
// path is used as-is (already absolute, or relative to the process cwd).
func (l *Loader) resolvePath(p, includingFile string) string {
	switch {
	case strings.HasPrefix(p, "./"):
		return filepath.Join(filepath.Dir(includingFile), p)
	case p == "~" || strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	default:
		return p
	}
}

// matches evaluates one `includeIf "<predicate>:<pattern>"` subsection
// name against the loader's context.
func (l *Loader) matches(cond string) (bool, error) {
	predicate, pattern, ok := strings.Cut(cond, ":")
	if !ok {
		return false, nil
	}
	switch predicate {
	case "gitdir":
		return matchGitDir(l.GitDir, pattern, false), nil
	case "gitdir/i":
		return matchGitDir(l.GitDir, pattern, true), nil
	case "onbranch":
		return l.Branch != "" && matchGlob(normalizeBranchPattern(pattern), l.Branch), nil
	default:
		return false, nil
	}
}

// matchGitDir implements the gitdir/gitdir/i predicate's pattern
// normalization: a trailing "/" gets "**" appended, an unanchored
// pattern is prefixed with "**/", and "~/" expands to the home
// directory.
func matchGitDir(gitDir, pattern string, caseInsensitive bool) bool {
	if gitDir == "" {
		return false
	}
	p := pattern
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~/"))
		}
	}
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "**") && !strings.HasPrefix(p, "~") {
		p = "**/" + p
	}
	gd := filepath.ToSlash(gitDir)
	if caseInsensitive {
		gd = strings.ToLower(gd)
		p = strings.ToLower(p)
	}
	return matchGlob(p, gd)
}

func normalizeBranchPattern(pattern string) string {
	if strings.HasSuffix(pattern, "/") {
		return pattern + "**"
	}
	return pattern
}

// matchGlob matches name against pattern, a shell glob extended with
// "**" meaning "any number of path segments, including none".
func matchGlob(pattern, name string) bool {
	return globMatch(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func globMatch(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}
	if pat[0] == "**" {
		if globMatch(pat[1:], name) {
			return true
		}
		if len(name) == 0 {
			return false
		}
		return globMatch(pat, name[1:])
	}
	if len(name) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], name[0])
	if err != nil || !ok {
		return false
	}
	return globMatch(pat[1:], name[1:])
}
