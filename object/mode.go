package object

import (
	"fmt"
	"strconv"
)

// FileMode is the Unix-style permission and type bits stored in a tree
// entry. Only a handful of values are well-formed; git never writes any
// others, but a parser must still accept odd values seen in real history.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0o40000
	Regular    FileMode = 0o100644
	Deprecated FileMode = 0o100664
	Executable FileMode = 0o100755
	Symlink    FileMode = 0o120000
	Submodule  FileMode = 0o160000
)

// IsMalformed reports whether mode is not one of the modes git itself ever
// writes into a tree.
func (m FileMode) IsMalformed() bool {
	switch m {
	case Empty, Dir, Regular, Deprecated, Executable, Symlink, Submodule:
		return false
	default:
		return true
	}
}

// IsDir reports whether the entry addresses a subtree.
func (m FileMode) IsDir() bool { return m == Dir }

// String returns the zero-padded six-digit octal form used on the wire.
func (m FileMode) String() string { return fmt.Sprintf("%06o", uint32(m)) }

// New parses the octal textual form of a mode, as found in a tree entry or
// in the output of commands like "git diff-tree".
func New(s string) (FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("object: invalid file mode %q: %w", s, err)
	}
	return FileMode(n), nil
}
