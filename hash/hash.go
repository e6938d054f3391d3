// Package hash implements the fixed-width content hashes used to address
// objects, and the hexadecimal prefix values used to disambiguate them.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"

	"github.com/pjbgf/sha1cd"
)

// Kind identifies which hash function produced an ID.
type Kind uint8

const (
	// Sha1 is the collision-detecting SHA-1 hash, 20 bytes wide.
	Sha1 Kind = iota
	// Sha256 is SHA-256, 32 bytes wide.
	Sha256
)

// Size returns the number of bytes a hash of this kind occupies.
func (k Kind) Size() int {
	if k == Sha256 {
		return Sha256Size
	}
	return Sha1Size
}

// HexSize returns the number of hex characters a hash of this kind occupies.
func (k Kind) HexSize() int {
	return k.Size() * 2
}

func (k Kind) String() string {
	if k == Sha256 {
		return "sha256"
	}
	return "sha1"
}

// Hasher returns a fresh, empty hash.Hash for the given kind. Sha1 uses the
// collision-detecting implementation so that known SHA-1 attacks are
// reported as write errors rather than silently accepted.
func (k Kind) Hasher() hash.Hash {
	if k == Sha256 {
		return sha256.New()
	}
	return sha1cd.New()
}

const (
	Sha1Size    = 20
	Sha1HexSize = Sha1Size * 2

	Sha256Size    = 32
	Sha256HexSize = Sha256Size * 2

	maxSize = Sha256Size
)

var (
	// ErrInvalidHex is returned when a string is not valid hexadecimal of a
	// supported length.
	ErrInvalidHex = errors.New("hash: invalid hexadecimal id")
	// ErrShortPrefix is returned when constructing a Prefix from fewer than
	// four hex characters.
	ErrShortPrefix = errors.New("hash: prefix shorter than 4 hex characters")
)

// ID is a fixed-width content hash. The zero value is the all-zero hash of
// kind Sha1; use Zero(kind) to obtain the zero value of a specific kind.
type ID struct {
	kind Kind
	b    [maxSize]byte
}

// Zero returns the all-zero ID of the given kind.
func Zero(k Kind) ID {
	return ID{kind: k}
}

// FromBytes builds an ID from raw hash bytes, inferring the kind from the
// slice length. It reports false if the length matches no supported kind.
func FromBytes(b []byte) (ID, bool) {
	var id ID
	switch len(b) {
	case Sha1Size:
		id.kind = Sha1
	case Sha256Size:
		id.kind = Sha256
	default:
		return ID{}, false
	}
	copy(id.b[:], b)
	return id, true
}

// FromHex parses a hexadecimal id, inferring the kind from the string
// length.
func FromHex(s string) (ID, bool) {
	switch len(s) {
	case Sha1HexSize, Sha256HexSize:
	default:
		return ID{}, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, false
	}
	return FromBytes(b)
}

// MustFromHex is FromHex, panicking on invalid input. Intended for literal
// hashes in tests and constant tables.
func MustFromHex(s string) ID {
	id, ok := FromHex(s)
	if !ok {
		panic(fmt.Sprintf("hash: invalid hex id %q", s))
	}
	return id
}

// Kind reports which hash function produced the id.
func (id ID) Kind() Kind { return id.kind }

// Size returns the number of significant bytes in the id.
func (id ID) Size() int { return id.kind.Size() }

// IsZero reports whether every significant byte of the id is zero.
func (id ID) IsZero() bool {
	z := Zero(id.kind)
	return bytes.Equal(id.Bytes(), z.Bytes())
}

// Bytes returns the significant bytes of the id. The returned slice must not
// be mutated.
func (id ID) Bytes() []byte { return id.b[:id.Size()] }

// String returns the lowercase hexadecimal representation.
func (id ID) String() string { return hex.EncodeToString(id.Bytes()) }

// Compare orders two ids of the same kind by their byte representation.
func (id ID) Compare(other ID) int { return bytes.Compare(id.Bytes(), other.Bytes()) }

// Equal reports whether two ids have the same kind and bytes.
func (id ID) Equal(other ID) bool {
	return id.kind == other.kind && bytes.Equal(id.Bytes(), other.Bytes())
}

// FirstByte returns the first byte of the id, used for fan-out bucketing.
func (id ID) FirstByte() byte { return id.b[0] }

// HasPrefix reports whether p is a prefix of id.
func (id ID) HasPrefix(p Prefix) bool {
	if p.id.kind != id.kind {
		return false
	}
	n := p.hexLen / 2
	if !bytes.Equal(id.Bytes()[:n], p.id.Bytes()[:n]) {
		return false
	}
	if p.hexLen%2 == 0 {
		return true
	}
	// Odd trailing nibble: compare the high nibble of the next byte.
	return id.Bytes()[n]>>4 == p.id.Bytes()[n]>>4
}

// Sort sorts a slice of IDs in increasing order.
func Sort(ids []ID) { sort.Sort(idSlice(ids)) }

type idSlice []ID

func (s idSlice) Len() int           { return len(s) }
func (s idSlice) Less(i, j int) bool { return s[i].Compare(s[j]) < 0 }
func (s idSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Prefix is an ID together with the number of significant leading hex
// digits, used to represent a possibly-ambiguous abbreviated id.
type Prefix struct {
	id     ID
	hexLen int
}

// NewPrefix builds a Prefix from a hexadecimal string. It rejects strings
// shorter than four characters, per the minimum abbreviation length.
func NewPrefix(s string) (Prefix, error) {
	if len(s) < 4 {
		return Prefix{}, ErrShortPrefix
	}
	kind := Sha1
	if len(s) > Sha1HexSize {
		kind = Sha256
	}
	padded := s
	full := kind.HexSize()
	if len(padded) > full {
		return Prefix{}, fmt.Errorf("%w: %q longer than %d hex digits", ErrInvalidHex, s, full)
	}
	if len(padded)%2 != 0 {
		padded += "0"
	}
	for len(padded) < full {
		padded += "00"
	}
	id, ok := FromHex(padded)
	if !ok {
		return Prefix{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return Prefix{id: id, hexLen: len(s)}, nil
}

// Len returns the number of significant hex digits.
func (p Prefix) Len() int { return p.hexLen }

// ID returns the zero-padded id backing the prefix. Its significant bytes
// (per Len) are the prefix's digits; comparing it against a sorted id
// table locates the start of the prefix's run, since zero-padding a
// prefix always produces the smallest id sharing that prefix.
func (p Prefix) ID() ID { return p.id }

// IsFullLength reports whether the prefix names exactly one id, i.e. it has
// as many hex digits as its kind's full hash.
func (p Prefix) IsFullLength() bool { return p.hexLen == p.id.kind.HexSize() }

// String returns the hexadecimal prefix exactly as significant.
func (p Prefix) String() string { return p.id.String()[:p.hexLen] }
