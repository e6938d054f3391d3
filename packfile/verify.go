package packfile

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dietcache/vcscore/idxfile"
	"github.com/dietcache/vcscore/object"
)

// TraversalAlgorithm selects how Verify visits the pack's entries.
type TraversalAlgorithm int

const (
	// Lookup walks the index in id order and resolves each delta chain
	// independently: minimal memory, repeated base reconstruction.
	Lookup TraversalAlgorithm = iota
	// Indexed scans the pack once, builds a base-offset to children tree,
	// and resolves each base exactly once before fanning out to its
	// dependents: more memory, no recomputation.
	Indexed
)

// VerifyOptions configures a whole-pack Verify run.
type VerifyOptions struct {
	Level     VerifyLevel
	Algorithm TraversalAlgorithm
	// FailFast stops on the first per-entry error instead of recording it
	// in the returned stats and continuing.
	FailFast bool
}

// VerifyStats aggregates what a Verify run saw.
type VerifyStats struct {
	Objects uint32
	Deltas  uint32
	// Errors holds per-entry failures when FailFast is off.
	Errors []error
}

// VerifyPackHash recomputes the trailing whole-pack hash over everything
// preceding it and compares against the stored trailer.
func (p *Pack) VerifyPackHash() error {
	trailerSize := int64(TrailerSize(p.idKind))
	if p.size < headerSize+trailerSize {
		return fmt.Errorf("%w: pack shorter than header plus trailer", ErrMalformed)
	}

	h := p.idKind.Hasher()
	body := io.NewSectionReader(p.r, 0, p.size-trailerSize)
	if _, err := io.Copy(h, body); err != nil {
		return err
	}

	want := make([]byte, trailerSize)
	if _, err := p.r.ReadAt(want, p.size-trailerSize); err != nil {
		return err
	}
	if !bytes.Equal(h.Sum(nil), want) {
		return ErrTrailerMismatch
	}
	return nil
}

// Verify checks the pack against its index at the requested level: the
// trailer hash always, per-entry CRC32s at VerifyCRC and above, and a
// decode-and-reencode of every non-blob object at VerifyDecodeReencode.
// ctx is polled at entry boundaries so a long verification can be
// interrupted deterministically.
func (p *Pack) Verify(ctx context.Context, idx *idxfile.Index, opts VerifyOptions) (VerifyStats, error) {
	var stats VerifyStats

	record := func(err error) error {
		if err == nil {
			return nil
		}
		if opts.FailFast {
			return err
		}
		stats.Errors = append(stats.Errors, err)
		return nil
	}

	if err := record(p.VerifyPackHash()); err != nil {
		return stats, err
	}
	if opts.Level == VerifyHashOnly {
		stats.Objects = uint32(len(idx.Entries))
		return stats, nil
	}

	var err error
	switch opts.Algorithm {
	case Indexed:
		err = p.verifyIndexed(ctx, idx, opts, &stats, record)
	default:
		err = p.verifyLookup(ctx, idx, opts, &stats, record)
	}
	return stats, err
}

// verifyLookup walks the index in id order, resolving every delta chain
// through Decode independently.
func (p *Pack) verifyLookup(ctx context.Context, idx *idxfile.Index, opts VerifyOptions, stats *VerifyStats, record func(error) error) error {
	for _, e := range idx.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		eh, _, err := p.EntryHeaderAt(e.Offset)
		if err != nil {
			if err := record(err); err != nil {
				return err
			}
			continue
		}
		if eh.Type.IsDelta() {
			stats.Deltas++
		}

		if err := record(p.verifyOne(e, opts.Level)); err != nil {
			return err
		}
		stats.Objects++
	}
	return nil
}

func (p *Pack) verifyOne(e idxfile.Entry, level VerifyLevel) error {
	if err := p.VerifyEntry(e.Offset, level, e.CRC32); err != nil {
		return err
	}
	kind, data, err := p.Decode(e.Offset)
	if err != nil {
		return err
	}
	if got := object.ID(p.idKind, kind, data); !got.Equal(e.ID) {
		return fmt.Errorf("%w: offset %d decodes to %s, index says %s", ErrMalformed, e.Offset, got, e.ID)
	}
	return nil
}

// verifyIndexed scans the pack once, builds the base-offset to children
// tree, and resolves every base exactly once, handing the reconstructed
// bytes down to each dependent delta.
func (p *Pack) verifyIndexed(ctx context.Context, idx *idxfile.Index, opts VerifyOptions, stats *VerifyStats, record func(error) error) error {
	var scanned []ScannedEntry
	if err := p.Walk(uint32(len(idx.Entries)), func(se ScannedEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned = append(scanned, se)
		return nil
	}); err != nil {
		return err
	}

	byOffset := make(map[int64]int, len(scanned))
	for i, se := range scanned {
		byOffset[se.Offset] = i
	}

	entryAt := make(map[int64]idxfile.Entry, len(idx.Entries))
	for _, e := range idx.Entries {
		entryAt[e.Offset] = e
	}

	children := make(map[int64][]int)
	var roots []int
	for i, se := range scanned {
		switch se.Header.Type {
		case OFSDeltaEntry:
			children[se.Offset-se.Header.BaseOffset] = append(children[se.Offset-se.Header.BaseOffset], i)
		case REFDeltaEntry:
			if off, ok := idx.Find(se.Header.BaseID); ok {
				if _, present := byOffset[off]; present {
					children[off] = append(children[off], i)
					continue
				}
			}
			// Thin-pack entry: the base lives outside this pack, so the
			// chain has to be resolved through Decode and the configured
			// BaseProvider instead of the in-pack tree.
			roots = append(roots, i)
		default:
			roots = append(roots, i)
		}
	}

	var visit func(i int, baseKind object.Kind, baseData []byte) error
	visit = func(i int, baseKind object.Kind, baseData []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		se := scanned[i]

		var kind object.Kind
		var data []byte
		var err error
		switch {
		case !se.Header.Type.IsDelta():
			kind = se.Header.Type.Kind()
			data, err = p.rawInflate(se.DataOffset, se.Header.Size)
		case baseData != nil:
			stats.Deltas++
			var deltaRaw []byte
			deltaRaw, err = p.rawInflate(se.DataOffset, se.Header.Size)
			if err == nil {
				kind = baseKind
				data, err = ApplyDelta(baseData, deltaRaw)
			}
		default:
			stats.Deltas++
			kind, data, err = p.Decode(se.Offset)
		}
		if err != nil {
			return record(err)
		}

		if err := record(p.checkAgainstIndex(se, entryAt, kind, data, opts.Level)); err != nil {
			return err
		}
		stats.Objects++

		for _, c := range children[se.Offset] {
			if err := visit(c, kind, data); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := visit(r, 0, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pack) checkAgainstIndex(se ScannedEntry, entryAt map[int64]idxfile.Entry, kind object.Kind, data []byte, level VerifyLevel) error {
	e, ok := entryAt[se.Offset]
	if !ok {
		return fmt.Errorf("%w: entry at offset %d missing from index", ErrMalformed, se.Offset)
	}
	if got := object.ID(p.idKind, kind, data); !got.Equal(e.ID) {
		return fmt.Errorf("%w: offset %d decodes to %s, index says %s", ErrMalformed, se.Offset, got, e.ID)
	}
	if level >= VerifyCRC && se.CRC32 != e.CRC32 {
		return fmt.Errorf("%w: at offset %d", ErrCRCMismatch, se.Offset)
	}
	if level >= VerifyDecodeReencode && kind != object.BlobObject {
		decoded, err := object.Decode(kind, data)
		if err != nil {
			return fmt.Errorf("%w: decode: %v", ErrReencodeMismatch, err)
		}
		reencoded, err := object.Encode(decoded)
		if err != nil {
			return fmt.Errorf("%w: re-encode: %v", ErrReencodeMismatch, err)
		}
		if !bytes.Equal(reencoded, data) {
			return fmt.Errorf("%w: at offset %d", ErrReencodeMismatch, se.Offset)
		}
	}
	return nil
}
