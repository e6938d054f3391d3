package packfile

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/dietcache/vcscore/cache"
	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

// BaseProvider resolves a REF_DELTA's base object by id when it is not
// found within the pack itself (a thin pack).
type BaseProvider interface {
	GetByID(id hash.ID) (object.Kind, []byte, error)
}

// Pack provides random access into a pack file by byte offset, resolving
// delta chains on demand. It is safe for concurrent use: each call opens
// its own section reader over the backing ReaderAt.
type Pack struct {
	id          string
	r           io.ReaderAt
	size        int64
	idKind      hash.Kind
	cache       *cache.Cache
	base        BaseProvider
	indexLookup func(id hash.ID) (int64, bool)
}

// NewPack wraps r (the full pack file contents, including the 12-byte
// header and trailing hash) for random access. size is the total byte
// length of the pack. id should be stable and unique per pack (its
// trailing hash hex-encoded, typically) so a shared decode cache keys
// correctly across packs.
func NewPack(id string, r io.ReaderAt, size int64, idKind hash.Kind, opts ...PackOption) *Pack {
	p := &Pack{id: id, r: r, size: size, idKind: idKind}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PackOption configures a Pack.
type PackOption func(*Pack)

// WithDecodeCache attaches a bounded LRU of reconstructed base objects,
// shared across every Pack backed by the same store.
func WithDecodeCache(c *cache.Cache) PackOption { return func(p *Pack) { p.cache = c } }

// WithBaseProvider supplies an external object source for REF_DELTA bases
// not found in this pack (thin-pack reads).
func WithBaseProvider(b BaseProvider) PackOption { return func(p *Pack) { p.base = b } }

// WithIndexLookup lets REF_DELTA entries whose base id happens to live in
// this same pack resolve to an offset without consulting a BaseProvider.
// Callers typically bind this to an idxfile lookup.
func WithIndexLookup(f func(id hash.ID) (int64, bool)) PackOption {
	return func(p *Pack) { p.indexLookup = f }
}

// EntryHeaderAt reads and decodes the entry header at offset, returning the
// header and the byte offset at which the zlib-compressed payload begins.
func (p *Pack) EntryHeaderAt(offset int64) (EntryHeader, int64, error) {
	if offset < headerSize || offset >= p.size-int64(p.idKind.Size()) {
		return EntryHeader{}, 0, fmt.Errorf("%w: offset %d", ErrOffsetOutOfRange, offset)
	}
	sr := io.NewSectionReader(p.r, offset, p.size-offset)
	br := bufio.NewReader(sr)
	eh, n, err := ReadEntryHeader(br, p.idKind)
	if err != nil {
		return EntryHeader{}, 0, err
	}
	return eh, offset + int64(n), nil
}

// rawInflate decompresses exactly size bytes from the zlib stream starting
// at dataOffset.
func (p *Pack) rawInflate(dataOffset int64, size int64) ([]byte, error) {
	sr := io.NewSectionReader(p.r, dataOffset, p.size-dataOffset)
	zr, err := zlib.NewReader(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrMalformed, err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrMalformed, err)
	}
	return out, nil
}

// crc32At computes the CRC32 of the compressed bytes of the entry whose
// header decode consumed hdrLen bytes and whose compressed payload is
// compressedLen bytes long.
func (p *Pack) crc32At(offset int64, hdrLen int, compressedLen int64) (uint32, error) {
	sr := io.NewSectionReader(p.r, offset, int64(hdrLen)+compressedLen)
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, sr); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Decode fully resolves the object stored at offset: non-delta entries are
// inflated directly; delta entries are resolved by walking OFS/REF chains,
// consulting the decode cache and, for REF_DELTA bases missing from this
// pack, the configured BaseProvider.
func (p *Pack) Decode(offset int64) (object.Kind, []byte, error) {
	key := cache.Key{PackID: p.id, Offset: offset}
	if p.cache != nil {
		if kind, data, ok := p.cache.Get(key); ok {
			return kind, data, nil
		}
	}

	eh, dataOffset, err := p.EntryHeaderAt(offset)
	if err != nil {
		return 0, nil, err
	}

	var kind object.Kind
	var data []byte

	switch {
	case !eh.Type.IsDelta():
		kind = eh.Type.Kind()
		data, err = p.rawInflate(dataOffset, eh.Size)
		if err != nil {
			return 0, nil, err
		}
	case eh.Type == OFSDeltaEntry:
		baseOffset := offset - eh.BaseOffset
		if baseOffset <= 0 {
			return 0, nil, ErrOffsetOutOfRange
		}
		baseKind, baseData, err := p.Decode(baseOffset)
		if err != nil {
			return 0, nil, err
		}
		deltaRaw, err := p.rawInflate(dataOffset, eh.Size)
		if err != nil {
			return 0, nil, err
		}
		data, err = ApplyDelta(baseData, deltaRaw)
		if err != nil {
			return 0, nil, err
		}
		kind = baseKind
	case eh.Type == REFDeltaEntry:
		var baseKind object.Kind
		var baseData []byte
		if off, ok := p.offsetForID(eh.BaseID); ok {
			baseKind, baseData, err = p.Decode(off)
		} else if p.base != nil {
			baseKind, baseData, err = p.base.GetByID(eh.BaseID)
		} else {
			return 0, nil, fmt.Errorf("%w: %s", ErrBaseNotFound, eh.BaseID)
		}
		if err != nil {
			return 0, nil, err
		}
		deltaRaw, err := p.rawInflate(dataOffset, eh.Size)
		if err != nil {
			return 0, nil, err
		}
		data, err = ApplyDelta(baseData, deltaRaw)
		if err != nil {
			return 0, nil, err
		}
		kind = baseKind
	}

	if p.cache != nil {
		p.cache.Put(key, kind, data)
	}
	return kind, data, nil
}

// offsetForID consults the configured index lookup, if any, to resolve a
// REF_DELTA base that lives within this same pack.
func (p *Pack) offsetForID(id hash.ID) (int64, bool) {
	if p.indexLookup == nil {
		return 0, false
	}
	return p.indexLookup(id)
}

// Size returns the total byte length of the pack, trailer included.
func (p *Pack) Size() int64 { return p.size }

// VerifyLevel selects how thoroughly Verify checks one entry.
type VerifyLevel int

const (
	// VerifyHashOnly checks only the trailing whole-pack hash (Pack.Verify
	// does that itself; VerifyEntry only bounds-checks the entry header at
	// this level).
	VerifyHashOnly VerifyLevel = iota
	// VerifyCRC additionally recomputes each entry's compressed-byte CRC32
	// against the value recorded in a v2 index.
	VerifyCRC
	// VerifyDecodeReencode additionally decodes each object and re-encodes
	// it canonically, requiring the re-encoded payload to equal the
	// decoded bytes.
	VerifyDecodeReencode
)

// VerifyEntry checks the entry at offset against level, using crc (from a
// v2 pack index) when level requires it.
func (p *Pack) VerifyEntry(offset int64, level VerifyLevel, crc uint32) error {
	_, dataOffset, err := p.EntryHeaderAt(offset)
	if err != nil {
		return err
	}

	if level >= VerifyCRC {
		compressedLen, err := p.compressedLen(dataOffset)
		if err != nil {
			return err
		}
		hdrLen := int(dataOffset - offset)
		got, err := p.crc32At(offset, hdrLen, compressedLen)
		if err != nil {
			return err
		}
		if got != crc {
			return fmt.Errorf("%w: at offset %d", ErrCRCMismatch, offset)
		}
	}

	if level >= VerifyDecodeReencode {
		kind, data, err := p.Decode(offset)
		if err != nil {
			return err
		}
		decoded, err := object.Decode(kind, data)
		if err != nil {
			return fmt.Errorf("%w: decode: %v", ErrReencodeMismatch, err)
		}
		reencoded, err := object.Encode(decoded)
		if err != nil {
			return fmt.Errorf("%w: re-encode: %v", ErrReencodeMismatch, err)
		}
		if !bytes.Equal(reencoded, data) {
			return fmt.Errorf("%w: at offset %d", ErrReencodeMismatch, offset)
		}
	}

	return nil
}

// compressedLen measures the byte length of the zlib stream starting at
// dataOffset. Zlib streams are self-terminating but the decompressor reads
// through a buffer, so the exact length is what the buffer consumed minus
// what it still holds once the stream ends.
func (p *Pack) compressedLen(dataOffset int64) (int64, error) {
	cr := &countingReader{r: io.NewSectionReader(p.r, dataOffset, p.size-dataOffset)}
	br := bufio.NewReader(cr)
	zr, err := zlib.NewReader(br)
	if err != nil {
		return 0, fmt.Errorf("%w: zlib: %v", ErrMalformed, err)
	}
	defer zr.Close()
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return 0, fmt.Errorf("%w: inflate: %v", ErrMalformed, err)
	}
	return cr.n - int64(br.Buffered()), nil
}

// countingReader tracks how many bytes have been read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
