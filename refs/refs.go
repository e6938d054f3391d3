// Package refs implements the reference store: loose ref files, the
// packed-refs file, reflogs, symbolic-ref resolution, and name
// categorization. Transaction semantics (prepare/commit, expected
// predicates) live in the sibling reftx package.
package refs

import (
	"fmt"
	"strings"

	"github.com/dietcache/vcscore/hash"
)

// Name is a fully-qualified reference name, e.g. "refs/heads/main" or the
// bare pseudo-ref "HEAD".
type Name string

const symbolicPrefix = "ref: "

// Value is a resolved (but not yet dereferenced) reference value: exactly
// one of Target or Symbolic is set.
type Value struct {
	Target   hash.ID
	Symbolic Name
}

// IsSymbolic reports whether the value points at another ref by name
// rather than directly at an object id.
func (v Value) IsSymbolic() bool { return v.Symbolic != "" }

// ParseLooseContent parses the body of a loose ref file: either
// "ref: <target>\n" or a bare hex id followed by a newline.
func ParseLooseContent(data []byte, idKind hash.Kind) (Value, error) {
	s := strings.TrimRight(string(data), "\n")
	if strings.HasPrefix(s, symbolicPrefix) {
		target := strings.TrimSpace(strings.TrimPrefix(s, symbolicPrefix))
		if target == "" {
			return Value{}, fmt.Errorf("%w: empty symbolic target", ErrMalformed)
		}
		return Value{Symbolic: Name(target)}, nil
	}
	id, ok := hash.FromHex(strings.TrimSpace(s))
	if !ok {
		return Value{}, fmt.Errorf("%w: %q is neither a symbolic ref nor a valid %s id", ErrMalformed, s, idKind)
	}
	return Value{Target: id}, nil
}

// EncodeLooseContent serializes v in the on-disk loose-ref form.
func EncodeLooseContent(v Value) []byte {
	if v.IsSymbolic() {
		return []byte(symbolicPrefix + string(v.Symbolic) + "\n")
	}
	return []byte(v.Target.String() + "\n")
}

// Category classifies a reference name into the closed set of display
// categories used by tooling (branch listings, ref-filter style output).
type Category int

const (
	Other Category = iota
	Tag
	LocalBranch
	RemoteBranch
	Note
	Bisect
	Rewritten
	WorktreePrivate
	PseudoRef
	MainRef
	MainPseudoRef
	LinkedRef
	LinkedPseudoRef
)

func (c Category) String() string {
	switch c {
	case Tag:
		return "tag"
	case LocalBranch:
		return "local-branch"
	case RemoteBranch:
		return "remote-branch"
	case Note:
		return "note"
	case Bisect:
		return "bisect"
	case Rewritten:
		return "rewritten"
	case WorktreePrivate:
		return "worktree-private"
	case PseudoRef:
		return "pseudo-ref"
	case MainRef:
		return "main-ref"
	case MainPseudoRef:
		return "main-pseudo-ref"
	case LinkedRef:
		return "linked-ref"
	case LinkedPseudoRef:
		return "linked-pseudo-ref"
	default:
		return "other"
	}
}

// Categorized is the result of classifying a ref name: its category, the
// shortest conventional display form, and — for the two linked-worktree
// categories — which worktree it belongs to.
type Categorized struct {
	Category Category
	Short    string
	Worktree string
}

var categoryPrefixes = []struct {
	prefix string
	cat    Category
}{
	{"refs/tags/", Tag},
	{"refs/heads/", LocalBranch},
	{"refs/remotes/", RemoteBranch},
	{"refs/notes/", Note},
	{"refs/bisect/", Bisect},
	{"refs/rewritten/", Rewritten},
	{"refs/worktree/", WorktreePrivate},
}

// Categorize classifies name. Names prefixed "main-worktree/" or
// "worktrees/<id>/" address another worktree's private namespace, the
// layout the common git dir uses to multiplex per-worktree HEAD/bisect
// state; they categorize as MainRef/MainPseudoRef or LinkedRef/
// LinkedPseudoRef respectively instead of their unprefixed category.
func Categorize(name Name) Categorized {
	s := string(name)

	if rest, ok := strings.CutPrefix(s, "main-worktree/"); ok {
		if isPseudoRefName(rest) {
			return Categorized{Category: MainPseudoRef, Short: rest}
		}
		return Categorized{Category: MainRef, Short: shortName(rest)}
	}

	if rest, ok := strings.CutPrefix(s, "worktrees/"); ok {
		worktree, sub, _ := strings.Cut(rest, "/")
		if isPseudoRefName(sub) {
			return Categorized{Category: LinkedPseudoRef, Worktree: worktree, Short: sub}
		}
		return Categorized{Category: LinkedRef, Worktree: worktree, Short: shortName(sub)}
	}

	if isPseudoRefName(s) {
		return Categorized{Category: PseudoRef, Short: s}
	}

	for _, cp := range categoryPrefixes {
		if rest, ok := strings.CutPrefix(s, cp.prefix); ok {
			return Categorized{Category: cp.cat, Short: rest}
		}
	}

	return Categorized{Category: Other, Short: s}
}

func shortName(s string) string {
	for _, cp := range categoryPrefixes {
		if rest, ok := strings.CutPrefix(s, cp.prefix); ok {
			return rest
		}
	}
	return s
}

// isPseudoRefName reports whether s looks like a top-level pseudo-ref such
// as HEAD, FETCH_HEAD, or ORIG_HEAD: all-uppercase, no path separators.
func isPseudoRefName(s string) bool {
	if s == "" || strings.Contains(s, "/") {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
