// Package idxfile decodes and encodes the pack index format: a sorted
// table of object ids with their byte offsets into the companion pack,
// letting a pack be read without a full sequential scan.
package idxfile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dietcache/vcscore/hash"
)

const (
	v2Magic        = "\xfftOc"
	v2Version      = uint32(2)
	fanOutEntries  = 256
	largeOffsetBit = 0x80000000
)

var (
	ErrMalformed          = errors.New("idxfile: malformed")
	ErrUnsupportedVersion = errors.New("idxfile: unsupported version")
	ErrDuplicateID        = errors.New("idxfile: duplicate object id")
)

// Entry is one object's index row: its id, its CRC32 (zero for a v1 index,
// which records none), and its byte offset into the pack.
type Entry struct {
	ID     hash.ID
	CRC32  uint32
	Offset int64
}

// Index is a fully decoded pack index, sorted by id ascending.
type Index struct {
	Version      uint32
	IDKind       hash.Kind
	Entries      []Entry
	PackChecksum hash.ID
	Checksum     hash.ID
}

// LookupResult classifies a FindPrefix by how many entries a prefix matched.
type LookupResult int

const (
	// NotFound means no entry matched.
	NotFound LookupResult = iota
	// Unique means exactly one entry matched.
	Unique
	// Ambiguous means more than one entry matched.
	Ambiguous
)

// Find resolves a full id to its offset.
func (idx *Index) Find(id hash.ID) (int64, bool) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].ID.Compare(id) >= 0
	})
	if i < len(idx.Entries) && idx.Entries[i].ID.Equal(id) {
		return idx.Entries[i].Offset, true
	}
	return 0, false
}

// FindCRC32 resolves a full id to its recorded CRC32 (v2 only; always zero
// for a v1 index).
func (idx *Index) FindCRC32(id hash.ID) (uint32, bool) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].ID.Compare(id) >= 0
	})
	if i < len(idx.Entries) && idx.Entries[i].ID.Equal(id) {
		return idx.Entries[i].CRC32, true
	}
	return 0, false
}

// FindPrefix resolves an abbreviated id, reporting whether it matched
// nothing, exactly one entry, or more than one.
func (idx *Index) FindPrefix(p hash.Prefix) (Entry, LookupResult) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].ID.Compare(p.ID()) >= 0
	})

	var matches []Entry
	for j := i; j < len(idx.Entries) && idx.Entries[j].ID.HasPrefix(p); j++ {
		matches = append(matches, idx.Entries[j])
	}
	switch len(matches) {
	case 0:
		return Entry{}, NotFound
	case 1:
		return matches[0], Unique
	default:
		return Entry{}, Ambiguous
	}
}

// EntriesByOffset returns the entries reordered by ascending pack offset,
// the cache-friendly order for sequential pack scans; the Entries field
// itself stays in id order.
func (idx *Index) EntriesByOffset() []Entry {
	out := append([]Entry(nil), idx.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// buildFanOut computes the 256-bucket cumulative fan-out table over sorted
// entries: FanOut[b] is the count of entries whose first id byte is <= b.
func buildFanOut(entries []Entry) [fanOutEntries]uint32 {
	var counts [fanOutEntries]uint32
	for _, e := range entries {
		counts[e.ID.FirstByte()]++
	}
	var fanOut [fanOutEntries]uint32
	var total uint32
	for b := 0; b < fanOutEntries; b++ {
		total += counts[b]
		fanOut[b] = total
	}
	return fanOut
}

// Build sorts entries by id and assembles an Index, computing the fan-out
// table lazily at encode time. It rejects duplicate ids.
func Build(idKind hash.Kind, entries []Entry, packChecksum hash.ID) (*Index, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID) < 0 })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID.Equal(sorted[i-1].ID) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, sorted[i].ID)
		}
	}
	return &Index{Version: v2Version, IDKind: idKind, Entries: sorted, PackChecksum: packChecksum}, nil
}
