package object

import (
	"bytes"
	"fmt"

	"github.com/dietcache/vcscore/hash"
)

// Tag is the parsed shape of an annotated tag object: the tagged object, its
// kind, the tag's own name, an optional tagger signature, a message, and an
// optional trailing detached signature.
type Tag struct {
	ObjectID   hash.ID
	ObjectKind Kind
	Name       string
	Tagger     *Signature
	Message    string
	Signature  string // detached PGP/SSH/X509 signature, if present
}

// Title returns the message up to the first blank line.
func (t *Tag) Title() string {
	if i := indexBlankLine(t.Message); i >= 0 {
		return t.Message[:i]
	}
	return t.Message
}

// Summary returns the folded, trimmed projection of the title.
func (t *Tag) Summary() string { return Summary(t.Message) }

func decodeTag(payload []byte) (*Tag, error) {
	header, message, err := readHeaderBody(payload)
	if err != nil {
		return nil, err
	}

	t := &Tag{}
	sawObject, sawType, sawName := false, false, false

	for _, line := range header {
		key, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: tag header line %q", ErrMalformedObject, line)
		}
		switch key {
		case "object":
			id, ok := hash.FromHex(value)
			if !ok {
				return nil, fmt.Errorf("%w: tag object id %q", ErrMalformedObject, value)
			}
			t.ObjectID = id
			sawObject = true
		case "type":
			k := KindFromString(value)
			if k == InvalidObject {
				return nil, fmt.Errorf("%w: tag type %q", ErrMalformedObject, value)
			}
			t.ObjectKind = k
			sawType = true
		case "tag":
			t.Name = value
			sawName = true
		case "tagger":
			sig := decodeSignature([]byte(value))
			t.Tagger = &sig
		default:
			// Unknown tag headers are tolerated and dropped; git itself
			// never emits extra headers in a tag.
		}
	}

	if !sawObject || !sawType || !sawName {
		return nil, fmt.Errorf("%w: tag missing required header", ErrMalformedObject)
	}

	if pos, _ := detectTrailingSignature(message); pos >= 0 {
		t.Message = string(message[:pos])
		t.Signature = string(message[pos:])
	} else {
		t.Message = string(message)
	}
	return t, nil
}

// detectTrailingSignature locates a detached signature block appended after
// the tag message, reusing the same scan parseSignedBytes in signature.go
// would use for commits/tags alike.
func detectTrailingSignature(message []byte) (int, SignatureType) {
	return parseSignedBytes(message)
}

func (t *Tag) encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.ObjectID)
	fmt.Fprintf(&buf, "type %s\n", t.ObjectKind)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.encode())
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	buf.WriteString(t.Signature)
	return buf.Bytes()
}

// Bytes returns the canonical payload.
func (t *Tag) Bytes() []byte { return t.encode() }
