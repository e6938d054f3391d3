package config

import (
	"io"

	"github.com/go-git/gcfg"
)

// Decoder reads config text from a stream and builds a Config from it,
// delegating the section/key/value tokenization to gcfg's callback-driven
// reader (the same INI dialect git itself uses: `#`/`;` comments, `\`
// line continuation, double-quoted values).
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode parses the whole input and appends every section, subsection,
// and option it finds to cfg.
func (d *Decoder) Decode(cfg *Config) error {
	cb := func(section, subsection, key, value string, _ bool) error {
		switch {
		case subsection == "" && key == "":
			cfg.Section(section)
		case subsection != "" && key == "":
			cfg.Section(section).Subsection(subsection)
		default:
			cfg.AddOption(section, subsection, key, value)
		}
		return nil
	}
	return gcfg.ReadWithCallback(d.r, cb)
}
