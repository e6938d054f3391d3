// Package packfile decodes and encodes the binary pack format: a 12-byte
// header, N variable-length entries (zlib-compressed, optionally a delta
// against an offset- or id-addressed base), and a trailing content hash.
package packfile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

// VersionSupported is the only pack version this package writes; it reads
// both 2 and 3.
const VersionSupported = 2

var signature = []byte("PACK")

const (
	headerSize  = 12
	firstBits   = uint8(4)
	contBits    = uint8(7)
	maskFirst   = uint8(0x0f)
	maskCont    = uint8(0x80)
	maskPayload = uint8(0x7f)
	maskType    = uint8(0x70)
)

// EntryType is a pack entry's on-disk type tag: one of the four base object
// kinds, or one of the two delta kinds.
type EntryType uint8

const (
	InvalidEntry EntryType = iota
	CommitEntry
	TreeEntry
	BlobEntry
	TagEntry
	_ // 5 is reserved
	OFSDeltaEntry
	REFDeltaEntry
)

// IsDelta reports whether the entry is OFS_DELTA or REF_DELTA.
func (t EntryType) IsDelta() bool { return t == OFSDeltaEntry || t == REFDeltaEntry }

// Kind maps a base entry type to the object.Kind it decodes to. It panics if
// t is a delta type; resolve the delta first.
func (t EntryType) Kind() object.Kind {
	switch t {
	case CommitEntry:
		return object.CommitObject
	case TreeEntry:
		return object.TreeObject
	case BlobEntry:
		return object.BlobObject
	case TagEntry:
		return object.TagObject
	default:
		panic(fmt.Sprintf("packfile: %v has no direct object kind", t))
	}
}

func entryTypeFromKind(k object.Kind) EntryType {
	switch k {
	case object.CommitObject:
		return CommitEntry
	case object.TreeObject:
		return TreeEntry
	case object.BlobObject:
		return BlobEntry
	case object.TagObject:
		return TagEntry
	default:
		return InvalidEntry
	}
}

var (
	ErrBadSignature       = errors.New("packfile: bad signature")
	ErrUnsupportedVersion = errors.New("packfile: unsupported version")
	ErrMalformed          = errors.New("packfile: malformed")
	ErrEmptyPack          = errors.New("packfile: empty")
	ErrTrailerMismatch    = errors.New("packfile: trailer hash mismatch")
	ErrCRCMismatch        = errors.New("packfile: CRC32 mismatch")
	ErrReencodeMismatch   = errors.New("packfile: decode-reencode mismatch")
	ErrBaseNotFound       = errors.New("packfile: delta base not found")
	ErrOffsetOutOfRange   = errors.New("packfile: delta base offset out of range")
)

// Header is the parsed 12-byte pack header.
type Header struct {
	Version      uint32
	ObjectsCount uint32
}

// DecodeHeader parses the 12-byte pack header from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("%w: short header", ErrMalformed)
	}
	if !bytes.Equal(b[:4], signature) {
		return Header{}, ErrBadSignature
	}
	version := be32(b[4:8])
	if version != 2 && version != 3 {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return Header{Version: version, ObjectsCount: be32(b[8:12])}, nil
}

// EncodeHeader serializes a pack header.
func EncodeHeader(h Header) []byte {
	b := make([]byte, headerSize)
	copy(b, signature)
	putBE32(b[4:8], h.Version)
	putBE32(b[8:12], h.ObjectsCount)
	return b
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// TrailerSize is the width of the trailing whole-pack hash for kind: 20
// bytes for Sha1, 32 for Sha256.
func TrailerSize(kind hash.Kind) int { return kind.Size() }
