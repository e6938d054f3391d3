package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Bool parses s as a git-style boolean: "true", "yes", "on", "1" and
// their negatives are recognized case-insensitively; an empty string
// means the key stood alone (`name` ≡ `name = true`) and is also true.
func Bool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidBoolean, s)
	}
}

// Int parses s as a git-style integer, honoring a trailing k/m/g suffix
// (case-insensitive) as a multiplier of 1024/1024^2/1024^3.
func Int(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidInteger)
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInteger, s)
	}
	return n * mult, nil
}

var colorNames = map[string]bool{
	"normal": true, "black": true, "red": true, "green": true, "yellow": true,
	"blue": true, "magenta": true, "cyan": true, "white": true, "default": true,
}

var colorAttrs = map[string]bool{
	"bold": true, "dim": true, "ul": true, "blink": true, "reverse": true,
	"italic": true, "strike": true, "no-bold": true, "no-dim": true,
	"no-ul": true, "no-blink": true, "no-reverse": true, "no-italic": true,
	"no-strike": true, "nobold": true, "nodim": true, "noul": true,
	"noblink": true, "noreverse": true, "noitalic": true, "nostrike": true,
}

// Color validates s as a git color value: a space-separated sequence of
// a foreground color, an optional background color, and zero or more
// text attributes, drawn from the fixed color/attribute vocabulary, or a
// bare numeric (0-255) or #rrggbb color.
func Color(s string) error {
	if s == "" {
		return nil
	}
	for _, tok := range strings.Fields(s) {
		lower := strings.ToLower(tok)
		if colorNames[lower] || colorAttrs[lower] {
			continue
		}
		if strings.HasPrefix(tok, "#") && len(tok) == 7 {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil && n >= 0 && n <= 255 {
			continue
		}
		return fmt.Errorf("%w: %q", ErrInvalidColor, tok)
	}
	return nil
}

// Path resolves a path value: a leading "~/" expands to the user's home
// directory, and a leading "%(prefix)/" expands to prefix (the directory
// housing the running binary's installation, supplied by the caller
// since this module has no notion of its own install location).
func Path(s, home, prefix string) (string, error) {
	switch {
	case s == "~" || strings.HasPrefix(s, "~/"):
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return "", err
			}
		}
		return filepath.Join(home, strings.TrimPrefix(s, "~")), nil
	case strings.HasPrefix(s, "%(prefix)/"):
		return filepath.Join(prefix, strings.TrimPrefix(s, "%(prefix)/")), nil
	default:
		return s, nil
	}
}
