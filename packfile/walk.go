package packfile

import (
	"fmt"
	"io"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

// ScannedEntry describes one entry discovered by a sequential walk of a
// pack: its start offset, where its compressed payload begins, its decoded
// header, and the CRC32 of its on-disk bytes (header + compressed
// payload), the form a v2 index stores.
type ScannedEntry struct {
	Offset     int64
	DataOffset int64
	Header     EntryHeader
	CRC32      uint32
}

// Walk visits every entry in the pack in on-disk order, which for
// OFS_DELTA entries is guaranteed to visit a base before any entry that
// deltas against it. count is the pack header's declared object count.
func (p *Pack) Walk(count uint32, visit func(ScannedEntry) error) error {
	offset := int64(headerSize)
	limit := p.size - int64(p.idKind.Size())

	for i := uint32(0); i < count; i++ {
		if offset >= limit {
			return fmt.Errorf("%w: ran out of bytes before reading %d entries", ErrMalformed, count)
		}
		eh, dataOffset, err := p.EntryHeaderAt(offset)
		if err != nil {
			return err
		}
		compressedLen, err := p.compressedLen(dataOffset)
		if err != nil {
			return err
		}
		hdrLen := int(dataOffset - offset)
		crc, err := p.crc32At(offset, hdrLen, compressedLen)
		if err != nil {
			return err
		}

		if err := visit(ScannedEntry{Offset: offset, DataOffset: dataOffset, Header: eh, CRC32: crc}); err != nil {
			return err
		}
		offset = dataOffset + compressedLen
	}
	return nil
}

// ResolvedEntry is a fully decoded entry, ready to become an index row.
type ResolvedEntry struct {
	ID     hash.ID
	Offset int64
	CRC32  uint32
	Kind   object.Kind
}

// Resolve walks the whole pack, decoding every entry (following delta
// chains via p.Decode, which this same Pack also uses, so bases resolved
// during the walk populate the decode cache for later chain members) and
// computing each object's id. The result is the raw material for building
// a pack index from scratch, e.g. after receiving a pack with no
// accompanying .idx.
func (p *Pack) Resolve(count uint32) ([]ResolvedEntry, error) {
	out := make([]ResolvedEntry, 0, count)
	err := p.Walk(count, func(se ScannedEntry) error {
		kind, data, err := p.Decode(se.Offset)
		if err != nil {
			return err
		}
		id := object.ID(p.idKind, kind, data)
		out = append(out, ResolvedEntry{ID: id, Offset: se.Offset, CRC32: se.CRC32, Kind: kind})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadAll drains r fully and returns it as a byte slice sized for use as
// an io.ReaderAt backing a Pack, e.g. for packs received over the wire
// rather than already resident on disk.
func ReadAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
