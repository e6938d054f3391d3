// Package object implements the canonical in-memory and byte-level form of
// the four git object kinds (blob, tree, commit, tag), their parsers, and
// their serializers. Serialization is byte-exact: for any well-formed input,
// Decode(Encode(x)) reproduces x, and hashing the encoded header+payload
// reproduces the object's id.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dietcache/vcscore/hash"
)

// Kind identifies which of the four object shapes a payload decodes to.
type Kind uint8

const (
	InvalidObject Kind = iota
	BlobObject
	TreeObject
	CommitObject
	TagObject
)

func (k Kind) String() string {
	switch k {
	case BlobObject:
		return "blob"
	case TreeObject:
		return "tree"
	case CommitObject:
		return "commit"
	case TagObject:
		return "tag"
	default:
		return "invalid"
	}
}

// KindFromString maps a header token ("blob", "tree", "commit", "tag") to a
// Kind, returning InvalidObject for anything else.
func KindFromString(s string) Kind {
	switch s {
	case "blob":
		return BlobObject
	case "tree":
		return TreeObject
	case "commit":
		return CommitObject
	case "tag":
		return TagObject
	default:
		return InvalidObject
	}
}

// Bytes returns the wire representation of the kind, as used in an object
// header.
func (k Kind) Bytes() []byte { return []byte(k.String()) }

var (
	// ErrMalformedObject is returned when an object's header or body does
	// not conform to the canonical grammar.
	ErrMalformedObject = errors.New("object: malformed")
	// ErrUnsupportedKind is returned when an object header names a kind
	// other than blob/tree/commit/tag.
	ErrUnsupportedKind = errors.New("object: unsupported kind")
)

// Header returns the canonical header prefixed to an object's payload
// before hashing: "<kind> <len>\x00".
func Header(k Kind, size int64) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", k, size))
}

// ID computes the content-addressing hash of an object from its kind and
// canonical payload bytes.
func ID(kind hash.Kind, k Kind, payload []byte) hash.ID {
	h := kind.Hasher()
	h.Write(Header(k, int64(len(payload))))
	h.Write(payload)
	sum := h.Sum(nil)
	id, _ := hash.FromBytes(sum)
	return id
}

// Decoded is the parsed shape of an object's payload: exactly one of Blob,
// Tree, Commit, or Tag is non-nil, matching Kind.
type Decoded struct {
	Kind   Kind
	Blob   *Blob
	Tree   *Tree
	Commit *Commit
	Tag    *Tag
}

// Decode parses payload according to kind. It returns ErrUnsupportedKind for
// any kind other than the four object shapes, and a wrapped ErrMalformedObject
// for payloads that don't conform to that shape's grammar.
func Decode(kind Kind, payload []byte) (*Decoded, error) {
	switch kind {
	case BlobObject:
		return &Decoded{Kind: kind, Blob: &Blob{data: payload}}, nil
	case TreeObject:
		t, err := decodeTree(payload)
		if err != nil {
			return nil, err
		}
		return &Decoded{Kind: kind, Tree: t}, nil
	case CommitObject:
		c, err := decodeCommit(payload)
		if err != nil {
			return nil, err
		}
		return &Decoded{Kind: kind, Commit: c}, nil
	case TagObject:
		tg, err := decodeTag(payload)
		if err != nil {
			return nil, err
		}
		return &Decoded{Kind: kind, Tag: tg}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKind, kind)
	}
}

// Encode serializes d back to its canonical payload bytes.
func Encode(d *Decoded) ([]byte, error) {
	switch d.Kind {
	case BlobObject:
		return d.Blob.Bytes(), nil
	case TreeObject:
		return d.Tree.encode(), nil
	case CommitObject:
		return d.Commit.encode(), nil
	case TagObject:
		return d.Tag.encode(), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKind, d.Kind)
	}
}

// splitLines splits a header block on either "\n" or "\r\n", tolerating
// both line endings as the commit/tag parsers must.
func splitLines(b []byte) [][]byte {
	var lines [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			lines = append(lines, b)
			break
		}
		line := b[:i]
		line = bytes.TrimSuffix(line, []byte("\r"))
		lines = append(lines, line)
		b = b[i+1:]
	}
	return lines
}

// readHeaderBody splits a header+blank-line+message object payload into its
// header lines and its message, tolerating \n or \r\n throughout.
func readHeaderBody(payload []byte) (header [][]byte, message []byte, err error) {
	sep := []byte("\n\n")
	idx := bytes.Index(payload, sep)
	crlfSep := []byte("\r\n\r\n")
	crlfIdx := bytes.Index(payload, crlfSep)

	switch {
	case idx < 0 && crlfIdx < 0:
		// No blank line: treat the whole payload as header, empty message.
		return splitLines(payload), nil, nil
	case crlfIdx >= 0 && (idx < 0 || crlfIdx < idx):
		header = splitLines(payload[:crlfIdx])
		message = payload[crlfIdx+len(crlfSep):]
	default:
		header = splitLines(payload[:idx])
		message = payload[idx+len(sep):]
	}
	return header, message, nil
}

// Summary computes the projection described for commit and tag messages:
// trim leading/trailing whitespace, then fold every run of whitespace that
// spans at least one newline into a single space, stopping at the first
// blank line (i.e. only the title is summarized).
func Summary(message string) string {
	title := message
	if i := indexBlankLine(message); i >= 0 {
		title = message[:i]
	}
	title = strings.TrimSpace(title)
	return foldNewlineRuns(title)
}

// indexBlankLine returns the byte offset of the first blank line (two
// consecutive newlines, tolerating \r\n) in s, or -1 if there is none.
func indexBlankLine(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' {
			continue
		}
		j := i + 1
		for j < len(s) && s[j] == '\r' {
			j++
		}
		if j < len(s) && s[j] == '\n' {
			return i
		}
	}
	return -1
}

// foldNewlineRuns replaces every run of whitespace that contains at least
// one newline with a single space; runs of whitespace with no newline (e.g.
// a run of plain spaces) are left untouched.
func foldNewlineRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		c := s[i]
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			b.WriteByte(c)
			i++
			continue
		}
		j := i
		sawNewline := false
		for j < len(s) {
			switch s[j] {
			case ' ', '\t', '\r':
				j++
			case '\n':
				sawNewline = true
				j++
			default:
				goto doneRun
			}
		}
	doneRun:
		if sawNewline {
			b.WriteByte(' ')
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}
