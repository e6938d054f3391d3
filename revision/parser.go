package revision

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind hints the object kind a peel or disambiguation should resolve to.
// KindAny means "whatever the reference or prefix already names".
type Kind int

const (
	KindAny Kind = iota
	KindCommit
	KindTree
	KindBlob
	KindTag
)

// TraverseKind distinguishes the two ancestor-walking suffixes: Parent for
// `^N` (Nth parent of the current commit) and Ancestor for `~N` (Nth
// generation ancestor along the first-parent chain).
type TraverseKind int

const (
	Parent TraverseKind = iota
	Ancestor
)

// RefsHint resolves the ambiguity between a full-length hex id and a
// like-named reference. The default matches git's own behavior.
type RefsHint int

const (
	// PreferObjectOnFullLengthHexShaUseRefOtherwise treats a full-length
	// hex string as an object id even if a same-named ref exists. Under
	// either hint, a shorter hex string of at least four digits goes to
	// DisambiguatePrefix and any other name goes to FindRef.
	PreferObjectOnFullLengthHexShaUseRefOtherwise RefsHint = iota
	// PreferRef looks a full-length hex string up as a reference
	// (FindRef) instead of as an object id.
	PreferRef
)

// Delegate receives the semantic events a revision expression drives in the
// order the grammar implies them. Every method returns false to abort
// parsing with an error tagged with the offending construct; the parser
// itself interprets no object, it is a pure grammar walker.
type Delegate interface {
	// FindRef resolves a reference name (HEAD, main, refs/heads/main, ...).
	FindRef(name string) bool
	// DisambiguatePrefix resolves a hexadecimal object-id prefix, optionally
	// hinted at a kind (used by `^{kind}` chained onto a prefix).
	DisambiguatePrefix(prefix string, kindHint Kind) bool
	// ReflogEntry resolves `@{N}`, the Nth-previous value of the current
	// ref's reflog.
	ReflogEntry(n int) bool
	// ReflogDate resolves `@{<date>}`, the reflog value as of a point in
	// time; spec is the raw text between the braces.
	ReflogDate(spec string) bool
	// NthCheckedOutBranch resolves `@{-N}`, the Nth branch checked out
	// before the current one.
	NthCheckedOutBranch(n int) bool
	// SiblingBranch resolves `name@{upstream}` / `name@{push}` style
	// suffixes; kind is the raw text inside the braces ("upstream", "u",
	// "push").
	SiblingBranch(kind string) bool
	// Traverse walks n steps of the given kind from the current revision.
	Traverse(kind TraverseKind, n int) bool
	// PeelUntil peels (dereferences tag objects, or descends to a
	// specific kind) until the given kind is reached. KindAny means "peel
	// the tag chain to its non-tag terminus" (`X^{}`).
	PeelUntil(kind Kind) bool
	// Find resolves `X^{/regex}` or `:/regex`: the most recent commit
	// reachable from the current anchor (or any ref, for the bare `:/`
	// form) whose message matches regex.
	Find(regex string) bool
	// IndexLookup resolves `:path` (stage 0) or `:N:path` (explicit
	// stage).
	IndexLookup(stage int, path string) bool
	// SetRange records that the expression being parsed is the right-hand
	// side of an `A..B` two-dot range.
	SetRange()
	// SetMergeBase records that the expression is the right-hand side of
	// an `A...B` symmetric-difference/merge-base range.
	SetMergeBase()
}

// Error is returned for any malformed revision expression. Pos is the byte
// offset into the original input at which the parser gave up.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("revision: %s (at byte %d)", e.Msg, e.Pos)
}

func errAt(pos int, format string, args ...interface{}) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// errAbort is returned when the delegate itself rejects a construct
// (returns false); the caller is expected to have recorded why.
func errAbort(pos int, what string) error {
	return &Error{Pos: pos, Msg: "delegate rejected " + what}
}

// Parse drives d through the revision expression in input. A bare `:path`
// or `:N:path` at the very start is recognized first since it has no
// preceding anchor; otherwise the expression is `<atom><modifiers...>`,
// optionally followed by `..`/`...` and a second such expression.
func Parse(input string, d Delegate, hint RefsHint) error {
	p := &parser{s: input, hint: hint, d: d}
	if err := p.parseExpr(); err != nil {
		return err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return errAt(p.pos, "unexpected trailing input %q", p.s[p.pos:])
	}
	return nil
}

type parser struct {
	s    string
	pos  int
	hint RefsHint
	d    Delegate
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) rest() string { return p.s[p.pos:] }

// parseExpr parses one full revision expression: an anchor, its modifier
// suffixes, and — if a range operator follows — a second expression.
func (p *parser) parseExpr() error {
	if err := p.parseAnchorAndModifiers(); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(p.rest(), "..."):
		p.pos += 3
		p.d.SetMergeBase()
		return p.parseSide()
	case strings.HasPrefix(p.rest(), ".."):
		p.pos += 2
		p.d.SetRange()
		return p.parseSide()
	}
	return nil
}

// parseSide parses the right-hand side of a range operator. An empty
// right-hand side (`main..`) means HEAD, matching the standard shorthand.
func (p *parser) parseSide() error {
	if p.pos == len(p.s) {
		if !p.d.FindRef("HEAD") {
			return errAbort(p.pos, "implicit HEAD")
		}
		return nil
	}
	return p.parseAnchorAndModifiers()
}

// parseAnchorAndModifiers parses one anchor (`:/regex`, `:path`, `:N:path`,
// `@`, a hex prefix, or a bare ref name) followed by zero or more `^`/`~`/`@`
// suffix modifiers.
func (p *parser) parseAnchorAndModifiers() error {
	start := p.pos
	if strings.HasPrefix(p.rest(), ":/") {
		p.pos += 2
		pattern := p.takeUntilAny("^~")
		if !p.d.Find(pattern) {
			return errAbort(start, "message search "+strconv.Quote(pattern))
		}
		return p.parseModifiers()
	}
	if strings.HasPrefix(p.rest(), ":") {
		return p.parseIndexLookup()
	}

	if p.rest() == "@" || strings.HasPrefix(p.rest(), "@^") || strings.HasPrefix(p.rest(), "@~") || strings.HasPrefix(p.rest(), "@{") {
		if !strings.HasPrefix(p.rest(), "@{") {
			p.pos++ // consume '@'; an "@{" suffix is left for parseModifiers
		}
		if !p.d.FindRef("HEAD") {
			return errAbort(start, "HEAD")
		}
		return p.parseModifiers()
	}

	name := p.takeUntilAny("^~@")
	if name == "" {
		return errAt(p.pos, "expected a revision")
	}
	fullLength := len(name) == 40 || len(name) == 64
	if isHexPrefix(name) && (!fullLength || p.hint != PreferRef) {
		if !p.d.DisambiguatePrefix(name, KindAny) {
			return errAbort(start, "prefix "+strconv.Quote(name))
		}
	} else {
		if !p.d.FindRef(name) {
			return errAbort(start, "ref "+strconv.Quote(name))
		}
	}
	return p.parseModifiers()
}

// parseIndexLookup parses `:path` or `:N:path` starting at the leading
// colon.
func (p *parser) parseIndexLookup() error {
	start := p.pos
	p.pos++ // consume ':'
	stage := 0
	if n, rest, ok := takeLeadingInt(p.rest()); ok && strings.HasPrefix(rest, ":") {
		stage = n
		p.pos += len(p.rest()) - len(rest) + 1 // consume digits and the second colon
	}
	path := p.rest()
	p.pos = len(p.s)
	if !p.d.IndexLookup(stage, path) {
		return errAbort(start, "index lookup "+strconv.Quote(path))
	}
	return nil
}

// parseModifiers consumes the suffix grammar that can chain onto any
// anchor: `^`, `^N`, `^{...}`, `~N`, `@{...}`.
func (p *parser) parseModifiers() error {
	for {
		switch {
		case strings.HasPrefix(p.rest(), "^{"):
			if err := p.parseCaretBrace(); err != nil {
				return err
			}
		case strings.HasPrefix(p.rest(), "^"):
			if err := p.parseCaret(); err != nil {
				return err
			}
		case strings.HasPrefix(p.rest(), "~"):
			if err := p.parseTilde(); err != nil {
				return err
			}
		case strings.HasPrefix(p.rest(), "@{"):
			if err := p.parseAt(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// parseCaret parses `^` (first parent) or `^N` (Nth parent).
func (p *parser) parseCaret() error {
	start := p.pos
	p.pos++ // consume '^'
	n, rest, ok := takeLeadingInt(p.rest())
	if !ok {
		n = 1
	} else {
		p.pos += len(p.rest()) - len(rest)
	}
	if !p.d.Traverse(Parent, n) {
		return errAbort(start, fmt.Sprintf("^%d", n))
	}
	return nil
}

// parseTilde parses `~` (first ancestor) or `~N`.
func (p *parser) parseTilde() error {
	start := p.pos
	p.pos++ // consume '~'
	n, rest, ok := takeLeadingInt(p.rest())
	if !ok {
		n = 1
	} else {
		p.pos += len(p.rest()) - len(rest)
	}
	if !p.d.Traverse(Ancestor, n) {
		return errAbort(start, fmt.Sprintf("~%d", n))
	}
	return nil
}

// parseCaretBrace parses `^{}`, `^{kind}`, and `^{/regex}`.
func (p *parser) parseCaretBrace() error {
	start := p.pos
	p.pos += 2 // consume '^{'
	end := strings.IndexByte(p.rest(), '}')
	if end < 0 {
		return errAt(p.pos, "unterminated ^{...}")
	}
	body := p.rest()[:end]
	p.pos += end + 1 // consume body and '}'

	switch {
	case body == "":
		if !p.d.PeelUntil(KindAny) {
			return errAbort(start, "^{} peel")
		}
	case strings.HasPrefix(body, "/"):
		if !p.d.Find(body[1:]) {
			return errAbort(start, "^{/...} search")
		}
	default:
		kind, err := parseKind(body)
		if err != nil {
			return errAt(start, "%s", err)
		}
		if !p.d.PeelUntil(kind) {
			return errAbort(start, "^{"+body+"} peel")
		}
	}
	return nil
}

// parseAt parses `@{N}`, `@{-N}`, `@{upstream}`/`@{push}`, and `@{<date>}`.
func (p *parser) parseAt() error {
	start := p.pos
	p.pos += 2 // consume '@{'
	end := strings.IndexByte(p.rest(), '}')
	if end < 0 {
		return errAt(p.pos, "unterminated @{...}")
	}
	body := p.rest()[:end]
	p.pos += end + 1 // consume body and '}'

	switch {
	case strings.HasPrefix(body, "-"):
		n, err := strconv.Atoi(body[1:])
		if err != nil {
			return errAt(start, "malformed @{-N}: %s", err)
		}
		if !p.d.NthCheckedOutBranch(n) {
			return errAbort(start, "@{-"+strconv.Itoa(n)+"}")
		}
	case isAllDigits(body):
		n, _ := strconv.Atoi(body)
		if !p.d.ReflogEntry(n) {
			return errAbort(start, "@{"+body+"}")
		}
	case body == "upstream" || body == "u" || body == "push":
		if !p.d.SiblingBranch(body) {
			return errAbort(start, "@{"+body+"}")
		}
	default:
		if !p.d.ReflogDate(body) {
			return errAbort(start, "@{"+body+"}")
		}
	}
	return nil
}

// takeUntilAny consumes and returns the run of characters up to (but not
// including) the first occurrence of any rune in stop, or up to a range
// operator (".." / "..."), whichever comes first. It tokenizes via the
// scanner rather than inspecting bytes directly so the boundary runes line
// up with the same lexical classes the rest of the grammar uses.
func (p *parser) takeUntilAny(stop string) string {
	sc := newScanner(strings.NewReader(p.rest()))
	var sb strings.Builder

	for {
		tok, data, err := sc.scan()
		if err != nil || tok == eof {
			break
		}
		if tok == dot {
			tok2, data2, err2 := sc.scan()
			if err2 == nil && tok2 == dot {
				break // ".." or "..." — stop before consuming either dot
			}
			sb.WriteString(data)
			if err2 != nil || tok2 == eof {
				break
			}
			tok, data = tok2, data2
		}
		if strings.ContainsRune(stop, tokenRune(tok)) {
			break
		}
		sb.WriteString(data)
	}

	p.pos += len(sb.String())
	return sb.String()
}

// tokenRune returns the rune a single-character token was scanned from, or
// 0 for tokens (word, number, space, ...) that never represent exactly one
// boundary rune.
func tokenRune(t token) rune {
	switch t {
	case colon:
		return ':'
	case tilde:
		return '~'
	case caret:
		return '^'
	case dot:
		return '.'
	case slash:
		return '/'
	case obrace:
		return '{'
	case cbrace:
		return '}'
	case obracket:
		return '['
	case minus:
		return '-'
	case at:
		return '@'
	case aslash:
		return '\\'
	case qmark:
		return '?'
	case asterisk:
		return '*'
	case emark:
		return '!'
	default:
		return 0
	}
}

// takeLeadingInt parses a run of leading ASCII digits from s, returning the
// parsed value, the remaining string, and whether any digit was consumed.
func takeLeadingInt(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHexPrefix(s string) bool {
	if len(s) < 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "commit":
		return KindCommit, nil
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	case "tag":
		return KindTag, nil
	default:
		return KindAny, fmt.Errorf("unknown peel kind %q", s)
	}
}
