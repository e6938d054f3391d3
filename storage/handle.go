package storage

import (
	"fmt"
	"sync"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/idxfile"
	"github.com/dietcache/vcscore/object"
	"github.com/dietcache/vcscore/packfile"
)

// OpenPack is one loaded pack: its parsed index alongside the Pack reader
// bound to it.
type OpenPack struct {
	ID    string
	Index *idxfile.Index
	Pack  *packfile.Pack
}

// PackLister reloads the current set of open packs from disk, used by
// Handle.Find to tolerate a concurrent repack that swapped the pack list
// out from under a lookup already in progress.
type PackLister interface {
	ListPacks() ([]*OpenPack, error)
}

// packSet is the shared, mutex-guarded pack list behind one or more
// Handle clones: lookups take the read side and stay concurrent, a reload
// takes a brief exclusive turn.
type packSet struct {
	mu      sync.RWMutex
	packs   []*OpenPack
	lister  PackLister
	reloads int
}

// Handle composes zero-or-more loose stores with an ordered list of packs
// into a single object lookup surface. It is cheaply clonable — Clone
// returns a handle sharing the same loose stores and pack list but
// nothing else — so concurrent callers never contend on per-handle state.
type Handle struct {
	idKind hash.Kind
	loose  []*LooseStore
	ps     *packSet
}

// NewHandle returns a Handle over loose (probed in order) and the initial
// pack list. lister may be nil, in which case Find never reloads and
// simply reports ErrNotFound once every current pack has missed.
func NewHandle(idKind hash.Kind, loose []*LooseStore, packs []*OpenPack, lister PackLister) *Handle {
	return &Handle{idKind: idKind, loose: loose, ps: &packSet{packs: packs, lister: lister}}
}

// Clone returns a Handle sharing this one's loose stores and pack list
// (the pack list is read through the same mutex, so a reload on one
// clone is visible to every other), intended for a goroutine that wants
// its own call stack into Find without any shared mutable scratch state.
func (h *Handle) Clone() *Handle {
	c := *h
	return &c
}

// Find resolves id to its decoded kind and canonical payload: loose
// stores are probed first, then each pack's index in order; if every
// source misses and a PackLister is configured, the pack list is reloaded
// once and the pack probe retried, tolerating a concurrent repack that
// removed the pack holding id from one list and added an equivalent entry
// under a new name.
func (h *Handle) Find(id hash.ID) (object.Kind, []byte, error) {
	for _, l := range h.loose {
		if l.Has(id) {
			return l.Get(id)
		}
	}

	kind, data, err := h.findInPacks(id)
	if err == nil {
		return kind, data, nil
	}
	if err != ErrNotFound || h.ps.lister == nil {
		return 0, nil, err
	}

	if err := h.reload(); err != nil {
		return 0, nil, err
	}
	return h.findInPacks(id)
}

func (h *Handle) findInPacks(id hash.ID) (object.Kind, []byte, error) {
	h.ps.mu.RLock()
	defer h.ps.mu.RUnlock()

	for _, p := range h.ps.packs {
		offset, ok := p.Index.Find(id)
		if !ok {
			continue
		}
		return p.Pack.Decode(offset)
	}
	return 0, nil, ErrNotFound
}

func (h *Handle) reload() error {
	packs, err := h.ps.lister.ListPacks()
	if err != nil {
		return fmt.Errorf("storage: reloading pack list: %w", err)
	}
	h.ps.mu.Lock()
	h.ps.packs = packs
	h.ps.reloads++
	h.ps.mu.Unlock()
	return nil
}

// Has reports whether id resolves in any loose store or pack, without
// reloading the pack list on a miss.
func (h *Handle) Has(id hash.ID) bool {
	for _, l := range h.loose {
		if l.Has(id) {
			return true
		}
	}
	_, _, err := h.findInPacks(id)
	return err == nil
}

// GetByID satisfies packfile.BaseProvider, letting a thin pack being
// decoded resolve a REF_DELTA base that lives outside the pack itself
// through this same handle.
func (h *Handle) GetByID(id hash.ID) (object.Kind, []byte, error) {
	return h.Find(id)
}

// LookupPrefix resolves an abbreviated hex id against every loose store
// and pack, aggregating matches across sources and short-circuiting as
// soon as two distinct ids are found to share the prefix.
func (h *Handle) LookupPrefix(p hash.Prefix) (hash.ID, LookupResult) {
	seen := make(map[hash.ID]struct{})

	add := func(id hash.ID) LookupResult {
		seen[id] = struct{}{}
		if len(seen) > 1 {
			return Ambiguous
		}
		return Unique
	}

	for _, l := range h.loose {
		ids, err := l.FindPrefix(p)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if add(id) == Ambiguous {
				return hash.ID{}, Ambiguous
			}
		}
	}

	h.ps.mu.RLock()
	for _, op := range h.ps.packs {
		entry, result := op.Index.FindPrefix(p)
		if result == idxfile.Ambiguous {
			h.ps.mu.RUnlock()
			return hash.ID{}, Ambiguous
		}
		if result == idxfile.Unique {
			if add(entry.ID) == Ambiguous {
				h.ps.mu.RUnlock()
				return hash.ID{}, Ambiguous
			}
		}
	}
	h.ps.mu.RUnlock()

	if len(seen) == 0 {
		return hash.ID{}, NotFound
	}
	for id := range seen {
		return id, Unique
	}
	return hash.ID{}, NotFound
}

// Peel satisfies refs.Peeler: it decodes id and, if it names a tag
// object, returns the tag's target; any other kind (or a missing object)
// reports ok=false so the caller treats id itself as terminal.
func (h *Handle) Peel(id hash.ID) (hash.ID, bool, error) {
	kind, payload, err := h.Find(id)
	if err == ErrNotFound {
		return id, false, nil
	}
	if err != nil {
		return hash.ID{}, false, err
	}
	if kind != object.TagObject {
		return id, false, nil
	}
	d, err := object.Decode(kind, payload)
	if err != nil {
		return hash.ID{}, false, err
	}
	return d.Tag.ObjectID, true, nil
}
