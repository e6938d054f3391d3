// Package config implements the hierarchical, INI-like configuration
// format: sections and subsections, typed value lookup, include and
// includeIf resolution, and multi-source precedence merging.
package config

import "github.com/dietcache/vcscore/hash"

// NoSubsection is passed to Config.Section and friends to mean "no
// subsection". It is the empty string, so a subsection named "" cannot be
// addressed separately from the section itself.
const NoSubsection = ""

// Config holds every section, comment, and include parsed from one
// configuration source (a single file, in the common case).
type Config struct {
	Comment  *Comment
	Sections Sections
	Includes Includes
}

// Comment is a line comment's text, without its leading '#' or ';'.
type Comment string

// Includes is an ordered list of Include.
type Includes []*Include

// Include is a resolved `[include]` or `[includeIf]` directive: the path
// it named and, once loaded, the Config parsed from that path.
type Include struct {
	Path   string
	Config *Config
}

// New returns an empty Config.
func New() *Config {
	return &Config{}
}

// Section returns the named section, creating it if it does not exist.
func (c *Config) Section(name string) *Section {
	for i := len(c.Sections) - 1; i >= 0; i-- {
		if c.Sections[i].IsName(name) {
			return c.Sections[i]
		}
	}
	s := &Section{Name: name}
	c.Sections = append(c.Sections, s)
	return s
}

// HasSection reports whether name has been declared.
func (c *Config) HasSection(name string) bool {
	for _, s := range c.Sections {
		if s.IsName(name) {
			return true
		}
	}
	return false
}

// RemoveSection drops the named section, if present.
func (c *Config) RemoveSection(name string) *Config {
	result := Sections{}
	for _, s := range c.Sections {
		if !s.IsName(name) {
			result = append(result, s)
		}
	}
	c.Sections = result
	return c
}

// RemoveSubsection drops subsection from section, if present.
func (c *Config) RemoveSubsection(section, subsection string) *Config {
	if c.HasSection(section) {
		c.Section(section).RemoveSubsection(subsection)
	}
	return c
}

// AddOption appends key=value to the given section/subsection. Use
// NoSubsection when there is no subsection.
func (c *Config) AddOption(section, subsection, key, value string) *Config {
	if subsection == NoSubsection {
		c.Section(section).AddOption(key, value)
	} else {
		c.Section(section).Subsection(subsection).AddOption(key, value)
	}
	return c
}

// SetOption sets key to value (possibly several values) in the given
// section/subsection. Use NoSubsection when there is no subsection.
func (c *Config) SetOption(section, subsection, key string, value ...string) *Config {
	if subsection == NoSubsection {
		c.Section(section).SetOption(key, value...)
	} else {
		c.Section(section).Subsection(subsection).SetOption(key, value...)
	}
	return c
}

// GetOption returns the last value of key in section/subsection, or "" if
// unset. Matching git's behavior since v1.8.1-rc1, the last declaration
// wins when a key is repeated.
func (c *Config) GetOption(section, subsection, key string) string {
	if subsection == NoSubsection {
		return c.Section(section).Option(key)
	}
	return c.Section(section).Subsection(subsection).Option(key)
}

// GetAllOptions returns every value of key in section/subsection, in
// declaration order.
func (c *Config) GetAllOptions(section, subsection, key string) []string {
	if subsection == NoSubsection {
		return c.Section(section).OptionAll(key)
	}
	return c.Section(section).Subsection(subsection).OptionAll(key)
}

// ObjectFormat reports the hash kind this config declares via
// `extensions.objectFormat`, defaulting to Sha1 when unset.
func (c *Config) ObjectFormat() (hash.Kind, error) {
	v := c.Section("extensions").Option("objectFormat")
	switch v {
	case "", "sha1":
		return hash.Sha1, nil
	case "sha256":
		return hash.Sha256, nil
	default:
		return 0, ErrInvalidObjectFormat
	}
}
