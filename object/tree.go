package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/dietcache/vcscore/hash"
)

// TreeEntry is one (mode, name, id) triple inside a Tree.
type TreeEntry struct {
	Name string
	Mode FileMode
	ID   hash.ID
}

// Tree is an ordered sequence of entries, sorted by the name-as-if-suffixed
// rule: directory names sort as though a trailing "/" were appended, so
// "foo" (a file) sorts before "foo.txt" but "foo/" (a directory) sorts after
// "foo." and before "fop".
type Tree struct {
	Entries []TreeEntry
}

// sortKey returns the name used for tree ordering comparisons.
func (e TreeEntry) sortKey() string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// Sorted reports whether the tree's entries are already in canonical order.
func (t *Tree) Sorted() bool {
	for i := 1; i < len(t.Entries); i++ {
		if t.Entries[i-1].sortKey() >= t.Entries[i].sortKey() {
			return false
		}
	}
	return true
}

// Sort reorders entries into canonical order in place.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].sortKey() < t.Entries[j].sortKey()
	})
}

// decodeTree parses a tree payload: a sequence of
// "<mode> <name>\x00<20-or-32-raw-id-bytes>" records with no separators
// between records.
func decodeTree(payload []byte) (*Tree, error) {
	t := &Tree{}
	b := payload
	for len(b) > 0 {
		sp := bytes.IndexByte(b, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: tree entry missing mode separator", ErrMalformedObject)
		}
		mode, err := New(string(b[:sp]))
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry mode: %v", ErrMalformedObject, err)
		}
		b = b[sp+1:]

		nul := bytes.IndexByte(b, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: tree entry missing name terminator", ErrMalformedObject)
		}
		name := string(b[:nul])
		if name == "" || bytes.ContainsAny([]byte(name), "/\x00") {
			return nil, fmt.Errorf("%w: tree entry invalid name %q", ErrMalformedObject, name)
		}
		b = b[nul+1:]

		// The id width is ambiguous from the payload alone for mixed packs,
		// so callers on a Sha256 repository must use DecodeTreeKind; this
		// path assumes Sha1 (20 bytes), the common case.
		if len(b) < hash.Sha1Size {
			return nil, fmt.Errorf("%w: tree entry truncated id", ErrMalformedObject)
		}
		id, _ := hash.FromBytes(b[:hash.Sha1Size])
		b = b[hash.Sha1Size:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, ID: id})
	}
	if !t.Sorted() {
		return nil, fmt.Errorf("%w: tree entries not sorted", ErrMalformedObject)
	}
	return t, nil
}

// DecodeTreeKind parses a tree payload whose entry ids are idKind-sized,
// for repositories using a hash kind other than Sha1.
func DecodeTreeKind(payload []byte, idKind hash.Kind) (*Tree, error) {
	if idKind == hash.Sha1 {
		return decodeTree(payload)
	}
	t := &Tree{}
	b := payload
	width := idKind.Size()
	for len(b) > 0 {
		sp := bytes.IndexByte(b, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: tree entry missing mode separator", ErrMalformedObject)
		}
		mode, err := New(string(b[:sp]))
		if err != nil {
			return nil, fmt.Errorf("%w: tree entry mode: %v", ErrMalformedObject, err)
		}
		b = b[sp+1:]

		nul := bytes.IndexByte(b, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: tree entry missing name terminator", ErrMalformedObject)
		}
		name := string(b[:nul])
		b = b[nul+1:]

		if len(b) < width {
			return nil, fmt.Errorf("%w: tree entry truncated id", ErrMalformedObject)
		}
		id, _ := hash.FromBytes(b[:width])
		b = b[width:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, ID: id})
	}
	return t, nil
}

// encode serializes the tree to its canonical payload. The tree's entries
// must already be in canonical order; Encode does not sort them, because
// silently reordering would hide a caller bug that built an invalid tree.
func (t *Tree) encode() []byte {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		buf.WriteString(strconv.FormatUint(uint64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	return buf.Bytes()
}

// Bytes returns the canonical payload; each entry id is written at its own
// kind's width.
func (t *Tree) Bytes() []byte { return t.encode() }
