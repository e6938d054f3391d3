package packfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

// PendingObject is one object queued for inclusion in an encoded pack.
// DeltaBase, when non-negative, is the index (within the same Encode call)
// of the object this one should be written as an OFS_DELTA against; the
// base must appear earlier in Objects (OFS_DELTA can only point backward).
//
// ExternalBase names a delta base by id when the delta was computed
// against an object that is not (yet) part of this same Encode call — the
// thin-pack case. Pass the pending objects through
// CloseThin before Encode to resolve every ExternalBase into a DeltaBase
// index, so Encode itself only ever has to deal with OFS_DELTA against an
// object it is about to write.
type PendingObject struct {
	ID           hash.ID
	Kind         object.Kind
	Data         []byte
	DeltaBase    int
	ExternalBase hash.ID
	// Copy, when set, short-circuits compression: the entry's already
	// compressed bytes are copied verbatim out of a source pack after a
	// CRC check. Only non-delta source entries qualify, since a copied
	// delta's base reference would dangle in the new pack.
	Copy *CopySource
}

// CopySource names a pack entry whose on-disk bytes can be reused as-is.
type CopySource struct {
	Pack   *Pack
	Offset int64
	CRC32  uint32
}

// CloseThin resolves every PendingObject.ExternalBase in objects into an
// ordinary DeltaBase index, fetching each missing base through provider and
// prepending it to the returned slice as a full (non-delta) entry. This is
// this module's chosen answer to the thin-pack question: rather
// than emit REF_DELTA entries whose base must be supplied by the receiver,
// the writer closes the pack at encode time so every pack it produces is
// self-contained. Bases already present in objects (by id) are reused
// rather than fetched twice.
func CloseThin(objects []PendingObject, provider BaseProvider) ([]PendingObject, error) {
	indexByID := make(map[hash.ID]int, len(objects))
	for i, o := range objects {
		indexByID[o.ID] = i
	}

	var prefix []PendingObject
	needsBase := false
	for _, o := range objects {
		if !o.ExternalBase.IsZero() && o.DeltaBase < 0 {
			needsBase = true
			break
		}
	}
	if !needsBase {
		return objects, nil
	}

	fetched := make(map[hash.ID]int)
	for _, o := range objects {
		if o.ExternalBase.IsZero() || o.DeltaBase >= 0 {
			continue
		}
		if _, ok := indexByID[o.ExternalBase]; ok {
			continue
		}
		if _, ok := fetched[o.ExternalBase]; ok {
			continue
		}
		kind, data, err := provider.GetByID(o.ExternalBase)
		if err != nil {
			return nil, fmt.Errorf("packfile: closing thin pack: resolving base %s: %w", o.ExternalBase, err)
		}
		fetched[o.ExternalBase] = len(prefix)
		prefix = append(prefix, PendingObject{ID: o.ExternalBase, Kind: kind, Data: data, DeltaBase: -1})
	}

	offset := len(prefix)
	closed := make([]PendingObject, 0, offset+len(objects))
	closed = append(closed, prefix...)
	for _, o := range objects {
		if !o.ExternalBase.IsZero() && o.DeltaBase < 0 {
			if idx, ok := indexByID[o.ExternalBase]; ok {
				o.DeltaBase = offset + idx
			} else {
				o.DeltaBase = fetched[o.ExternalBase]
			}
		} else if o.DeltaBase >= 0 {
			o.DeltaBase += offset
		}
		closed = append(closed, o)
	}
	return closed, nil
}

// Encoder writes the pack binary format: a 12-byte header, one
// variable-length entry per object (optionally delta-compressed against an
// earlier entry in the same pack), and a trailing whole-pack hash.
type Encoder struct {
	idKind hash.Kind
}

// NewEncoder creates an Encoder that hashes entries and the pack trailer
// with idKind.
func NewEncoder(idKind hash.Kind) *Encoder {
	return &Encoder{idKind: idKind}
}

// Encode writes objects to w as a single pack, compressing each entry's
// payload concurrently (bounded by GOMAXPROCS) before serializing them in
// order, since the on-disk format itself must be written sequentially.
// It returns the trailing pack hash.
func (e *Encoder) Encode(ctx context.Context, w io.Writer, objects []PendingObject) (hash.ID, error) {
	for i, obj := range objects {
		if obj.DeltaBase != -1 && (obj.DeltaBase < 0 || obj.DeltaBase >= i) {
			return hash.ID{}, fmt.Errorf("packfile: object %d has invalid delta base %d", i, obj.DeltaBase)
		}
	}

	raw := make([][]byte, len(objects))
	compressed := make([][]byte, len(objects))
	copiedHdr := make([][]byte, len(objects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range objects {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if objects[i].Copy != nil {
				hdr, payload, err := copyFromPack(objects[i].Copy)
				if err != nil {
					return err
				}
				copiedHdr[i] = hdr
				compressed[i] = payload
				return nil
			}
			payload := objects[i].Data
			if objects[i].DeltaBase >= 0 {
				payload = DiffDelta(objects[objects[i].DeltaBase].Data, payload)
			}
			raw[i] = payload

			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(payload); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			compressed[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return hash.ID{}, err
	}

	hw := &hashingWriter{w: w, h: e.idKind.Hasher()}
	if _, err := hw.Write(EncodeHeader(Header{Version: VersionSupported, ObjectsCount: uint32(len(objects))})); err != nil {
		return hash.ID{}, err
	}

	offsets := make([]int64, len(objects))
	pos := int64(headerSize)
	for i, obj := range objects {
		offsets[i] = pos

		var hdr []byte
		switch {
		case obj.Copy != nil:
			hdr = copiedHdr[i]
		case obj.DeltaBase >= 0:
			hdr = EncodeEntryHeader(OFSDeltaEntry, int64(len(raw[i])))
			hdr = append(hdr, EncodeOffsetDelta(pos-offsets[obj.DeltaBase])...)
		default:
			hdr = EncodeEntryHeader(entryTypeFromKind(obj.Kind), int64(len(raw[i])))
		}

		if _, err := hw.Write(hdr); err != nil {
			return hash.ID{}, err
		}
		if _, err := hw.Write(compressed[i]); err != nil {
			return hash.ID{}, err
		}
		pos += int64(len(hdr)) + int64(len(compressed[i]))
	}

	sum := hw.h.Sum(nil)
	trailer, ok := hash.FromBytes(sum)
	if !ok {
		return hash.ID{}, fmt.Errorf("packfile: unexpected hash width %d", len(sum))
	}
	if _, err := w.Write(trailer.Bytes()); err != nil {
		return hash.ID{}, err
	}
	return trailer, nil
}

// copyFromPack validates the source entry's CRC32 and reads back its raw
// header and compressed payload bytes for verbatim reuse.
func copyFromPack(src *CopySource) ([]byte, []byte, error) {
	eh, dataOffset, err := src.Pack.EntryHeaderAt(src.Offset)
	if err != nil {
		return nil, nil, err
	}
	if eh.Type.IsDelta() {
		return nil, nil, fmt.Errorf("packfile: cannot copy delta entry at offset %d verbatim", src.Offset)
	}
	if err := src.Pack.VerifyEntry(src.Offset, VerifyCRC, src.CRC32); err != nil {
		return nil, nil, err
	}

	compressedLen, err := src.Pack.compressedLen(dataOffset)
	if err != nil {
		return nil, nil, err
	}
	hdr := make([]byte, dataOffset-src.Offset)
	if _, err := src.Pack.r.ReadAt(hdr, src.Offset); err != nil {
		return nil, nil, err
	}
	payload := make([]byte, compressedLen)
	if _, err := src.Pack.r.ReadAt(payload, dataOffset); err != nil {
		return nil, nil, err
	}
	return hdr, payload, nil
}

// hashingWriter mirrors every byte written through it into a running hash,
// so the pack trailer can be computed without a second pass over the
// output.
type hashingWriter struct {
	w io.Writer
	h interface {
		io.Writer
		Sum(b []byte) []byte
	}
}

func (hw *hashingWriter) Write(p []byte) (int, error) {
	hw.h.Write(p)
	return hw.w.Write(p)
}
