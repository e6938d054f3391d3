package packfile

import (
	"bufio"
	"fmt"

	"github.com/dietcache/vcscore/hash"
)

// EntryHeader is the decoded header of one pack entry: its type, its
// declared uncompressed size, and — for delta entries — the base
// reference (a negative offset for OFS_DELTA, an id for REF_DELTA).
type EntryHeader struct {
	Type       EntryType
	Size       int64
	BaseOffset int64   // valid iff Type == OFSDeltaEntry; distance back from this entry's offset
	BaseID     hash.ID // valid iff Type == REFDeltaEntry
}

// ReadEntryHeader parses a variable-length entry header from r: the first
// byte holds a continuation bit, a 3-bit type, and 4 size bits; subsequent
// bytes each contribute 7 more size bits, low-order first.
func ReadEntryHeader(r *bufio.Reader, idKind hash.Kind) (EntryHeader, int, error) {
	var eh EntryHeader
	nRead := 0

	b, err := r.ReadByte()
	if err != nil {
		return eh, nRead, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	nRead++

	eh.Type = EntryType((b & maskType) >> 4)
	size := uint64(b & maskFirst)
	shift := uint(firstBits)
	cont := b&maskCont != 0

	for cont {
		b, err = r.ReadByte()
		if err != nil {
			return eh, nRead, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		nRead++
		size |= uint64(b&maskPayload) << shift
		shift += uint(contBits)
		cont = b&maskCont != 0
	}
	eh.Size = int64(size)

	switch eh.Type {
	case OFSDeltaEntry:
		off, n, err := readOffsetDelta(r)
		if err != nil {
			return eh, nRead, err
		}
		nRead += n
		eh.BaseOffset = off
	case REFDeltaEntry:
		buf := make([]byte, idKind.Size())
		if _, err := readFull(r, buf); err != nil {
			return eh, nRead, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		nRead += len(buf)
		id, _ := hash.FromBytes(buf)
		eh.BaseID = id
	case CommitEntry, TreeEntry, BlobEntry, TagEntry:
		// no extra fields
	default:
		return eh, nRead, fmt.Errorf("%w: unknown entry type %d", ErrMalformed, eh.Type)
	}

	return eh, nRead, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readOffsetDelta parses the MSB-continuation-encoded negative offset used
// by OFS_DELTA, returning the (positive) distance back to the base entry.
func readOffsetDelta(r *bufio.Reader) (int64, int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n := 1
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		n++
		offset = ((offset + 1) << 7) | int64(b&0x7f)
	}
	return offset, n, nil
}

// EncodeEntryHeader serializes an entry header in the same variable-length
// form ReadEntryHeader parses.
func EncodeEntryHeader(t EntryType, size int64) []byte {
	var out []byte
	b := byte(t) << 4
	b |= byte(size & 0x0f)
	size >>= 4
	if size != 0 {
		b |= maskCont
	}
	out = append(out, b)
	for size != 0 {
		b = byte(size & 0x7f)
		size >>= 7
		if size != 0 {
			b |= maskCont
		}
		out = append(out, b)
	}
	return out
}

// EncodeOffsetDelta serializes the base-offset field of an OFS_DELTA entry.
func EncodeOffsetDelta(offset int64) []byte {
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(offset & 0x7f)
	offset >>= 7
	for offset != 0 {
		offset--
		i--
		buf[i] = 0x80 | byte(offset&0x7f)
		offset >>= 7
	}
	return buf[i:]
}
