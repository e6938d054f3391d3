package idxfile

import (
	"encoding/binary"
	"fmt"

	"github.com/dietcache/vcscore/hash"
)

// Decode parses a pack index (v1 or v2) from b. idKind must match the
// companion pack's id width; the index format itself carries no explicit
// hash-kind tag.
func Decode(b []byte, idKind hash.Kind) (*Index, error) {
	if len(b) >= 4 && string(b[:4]) == v2Magic {
		return decodeV2(b, idKind)
	}
	return decodeV1(b, idKind)
}

func decodeV2(b []byte, idKind hash.Kind) (*Index, error) {
	if len(b) < 8+fanOutEntries*4 {
		return nil, fmt.Errorf("%w: short v2 index", ErrMalformed)
	}
	version := binary.BigEndian.Uint32(b[4:8])
	if version != v2Version {
		return nil, fmt.Errorf("%w: v%d", ErrUnsupportedVersion, version)
	}

	off := 8
	fanOut, off := readFanOut(b, off)
	count := int(fanOut[fanOutEntries-1])
	idSize := idKind.Size()

	ids := make([]hash.ID, count)
	for i := 0; i < count; i++ {
		id, ok := hash.FromBytes(b[off : off+idSize])
		if !ok {
			return nil, fmt.Errorf("%w: bad id width", ErrMalformed)
		}
		ids[i] = id
		off += idSize
	}

	crcs := make([]uint32, count)
	for i := 0; i < count; i++ {
		crcs[i] = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
	}

	offsets32 := make([]uint32, count)
	largeCount := 0
	for i := 0; i < count; i++ {
		offsets32[i] = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
		if offsets32[i]&largeOffsetBit != 0 {
			largeCount++
		}
	}

	largeOffsets := make([]int64, largeCount)
	for i := 0; i < largeCount; i++ {
		largeOffsets[i] = int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
	}

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		var offset int64
		if offsets32[i]&largeOffsetBit != 0 {
			idx := int(offsets32[i] &^ largeOffsetBit)
			if idx >= len(largeOffsets) {
				return nil, fmt.Errorf("%w: large offset index out of range", ErrMalformed)
			}
			offset = largeOffsets[idx]
		} else {
			offset = int64(offsets32[i])
		}
		entries[i] = Entry{ID: ids[i], CRC32: crcs[i], Offset: offset}
	}

	if off+2*idSize > len(b) {
		return nil, fmt.Errorf("%w: missing trailer", ErrMalformed)
	}
	packChecksum, _ := hash.FromBytes(b[off : off+idSize])
	off += idSize
	checksum, _ := hash.FromBytes(b[off : off+idSize])

	return &Index{Version: 2, IDKind: idKind, Entries: entries, PackChecksum: packChecksum, Checksum: checksum}, nil
}

func decodeV1(b []byte, idKind hash.Kind) (*Index, error) {
	if len(b) < fanOutEntries*4 {
		return nil, fmt.Errorf("%w: short v1 index", ErrMalformed)
	}
	off := 0
	fanOut, off := readFanOut(b, off)
	count := int(fanOut[fanOutEntries-1])
	idSize := idKind.Size()

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		if off+4+idSize > len(b) {
			return nil, fmt.Errorf("%w: truncated v1 entry", ErrMalformed)
		}
		offset := int64(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		id, ok := hash.FromBytes(b[off : off+idSize])
		if !ok {
			return nil, fmt.Errorf("%w: bad id width", ErrMalformed)
		}
		off += idSize
		entries[i] = Entry{ID: id, Offset: offset}
	}

	if off+2*idSize > len(b) {
		return nil, fmt.Errorf("%w: missing trailer", ErrMalformed)
	}
	packChecksum, _ := hash.FromBytes(b[off : off+idSize])
	off += idSize
	checksum, _ := hash.FromBytes(b[off : off+idSize])

	return &Index{Version: 1, IDKind: idKind, Entries: entries, PackChecksum: packChecksum, Checksum: checksum}, nil
}

func readFanOut(b []byte, off int) ([fanOutEntries]uint32, int) {
	var fanOut [fanOutEntries]uint32
	for i := 0; i < fanOutEntries; i++ {
		fanOut[i] = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
	}
	return fanOut, off
}

// Encode serializes idx in v2 form: entries must already be sorted by id
// (as Build leaves them).
func Encode(idx *Index) ([]byte, error) {
	idSize := idx.IDKind.Size()
	fanOut := buildFanOut(idx.Entries)

	var large []int64
	offsets32 := make([]uint32, len(idx.Entries))
	for i, e := range idx.Entries {
		if e.Offset > 0x7fffffff {
			offsets32[i] = largeOffsetBit | uint32(len(large))
			large = append(large, e.Offset)
		} else {
			offsets32[i] = uint32(e.Offset)
		}
	}

	buf := make([]byte, 0, 8+fanOutEntries*4+len(idx.Entries)*(idSize+8)+len(large)*8+2*idSize)
	buf = append(buf, v2Magic...)
	buf = appendU32(buf, v2Version)
	for _, v := range fanOut {
		buf = appendU32(buf, v)
	}
	for _, e := range idx.Entries {
		buf = append(buf, e.ID.Bytes()...)
	}
	for _, e := range idx.Entries {
		buf = appendU32(buf, e.CRC32)
	}
	for _, v := range offsets32 {
		buf = appendU32(buf, v)
	}
	for _, v := range large {
		buf = appendU64(buf, uint64(v))
	}
	buf = append(buf, idx.PackChecksum.Bytes()...)

	sum := idx.IDKind.Hasher()
	sum.Write(buf)
	checksum, _ := hash.FromBytes(sum.Sum(nil))
	idx.Checksum = checksum
	buf = append(buf, checksum.Bytes()...)

	return buf, nil
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
