package config

// Scope identifies one of the configuration sources merged into an
// effective value, ordered from lowest to highest precedence: a value
// declared at a higher scope always wins over the same key declared at a
// lower one.
type Scope int

const (
	// Bundled holds defaults compiled into the binary itself.
	Bundled Scope = iota
	// System is /etc/gitconfig or platform equivalent.
	System
	// User is $XDG_CONFIG_HOME/git/config, falling back to
	// $HOME/.config/git/config.
	User
	// Repo is <gitdir>/config.
	Repo
	// Worktree is <gitdir>/config.worktree, read only when
	// extensions.worktreeConfig is enabled.
	Worktree
	// Environment represents values supplied through GIT_CONFIG_*
	// environment variables.
	Environment
	// CommandLine represents values supplied with `-c key=value`.
	CommandLine
	// Programmatic represents values set directly through this module's
	// API after every file-backed source has been loaded.
	Programmatic

	numScopes
)

// ScopedConfigs holds one Config per Scope.
type ScopedConfigs map[Scope]*Config

// Merged is a read-only, precedence-ordered view over several Config
// sources: Section/Option lookups return the highest-scope value for a
// repeated key, the same rule git itself applies when merging
// system/user/repo configuration.
type Merged struct {
	scoped ScopedConfigs
}

// NewMerged returns a Merged with an empty Config at every scope.
func NewMerged() *Merged {
	m := &Merged{scoped: make(ScopedConfigs, numScopes)}
	for s := Scope(0); s < numScopes; s++ {
		m.scoped[s] = New()
	}
	return m
}

// Set installs cfg as the Config for scope, replacing whatever was there.
func (m *Merged) Set(scope Scope, cfg *Config) { m.scoped[scope] = cfg }

// At returns the Config backing scope, creating an empty one if unset.
func (m *Merged) At(scope Scope) *Config {
	if m.scoped[scope] == nil {
		m.scoped[scope] = New()
	}
	return m.scoped[scope]
}

// GetOption returns the highest-scope value of section/subsection/key,
// or "" if no scope sets it.
func (m *Merged) GetOption(section, subsection, key string) string {
	for s := numScopes - 1; s >= 0; s-- {
		if cfg := m.scoped[s]; cfg != nil && cfg.HasSection(section) {
			if v := cfg.GetOption(section, subsection, key); v != "" {
				return v
			}
		}
	}
	return ""
}

// GetAllOptions returns every scope's values of section/subsection/key,
// concatenated from lowest to highest precedence (so a caller folding
// multi-valued keys like `remote.origin.fetch` sees every declaration in
// the order git itself would apply them).
func (m *Merged) GetAllOptions(section, subsection, key string) []string {
	var all []string
	for s := Scope(0); s < numScopes; s++ {
		if cfg := m.scoped[s]; cfg != nil {
			all = append(all, cfg.GetAllOptions(section, subsection, key)...)
		}
	}
	return all
}
