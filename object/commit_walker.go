package object

import (
	"errors"
	"io"

	"github.com/dietcache/vcscore/hash"
)

// CommitLookup resolves a commit id to its decoded Commit. It is the only
// way CommitWalker reaches beyond the commit it was started from, since the
// object package itself holds no reference to a store.
type CommitLookup func(hash.ID) (*Commit, error)

// CommitWalker iterates commit ancestry in pre-order (a commit before its
// parents), the default traversal order for both full-history and
// first-parent-only walks. There is no commit-graph file backing this: each
// step calls CommitLookup directly, so walking N commits costs N lookups.
type CommitWalker struct {
	lookup       CommitLookup
	firstParent  bool
	seen         map[hash.ID]bool
	stack        [][]hash.ID
	next         *Commit
	nextID       hash.ID
	err          error
}

// NewCommitWalker returns a CommitWalker that starts at start (already
// resolved) and visits its ancestors. When firstParentOnly is true, each
// commit contributes only its first parent to the walk, matching `git log
// --first-parent`; otherwise every parent is visited and each commit is
// still only returned once.
func NewCommitWalker(startID hash.ID, start *Commit, firstParentOnly bool, lookup CommitLookup) *CommitWalker {
	w := &CommitWalker{
		lookup:      lookup,
		firstParent: firstParentOnly,
		seen:        make(map[hash.ID]bool),
	}
	w.next = start
	w.nextID = startID
	return w
}

// Next returns the next commit in the walk, or io.EOF once the ancestry is
// exhausted. The returned id is the commit's own id, as supplied to
// NewCommitWalker or discovered via a parent pointer.
func (w *CommitWalker) Next() (hash.ID, *Commit, error) {
	if w.err != nil {
		return hash.ID{}, nil, w.err
	}

	for {
		var id hash.ID
		var c *Commit

		if w.next != nil {
			id, c = w.nextID, w.next
			w.next, w.nextID = nil, hash.ID{}
		} else {
			var ok bool
			id, ok = w.popPending()
			if !ok {
				return hash.ID{}, nil, io.EOF
			}
			var err error
			c, err = w.lookup(id)
			if err != nil {
				w.err = err
				return hash.ID{}, nil, err
			}
		}

		if w.seen[id] {
			continue
		}
		w.seen[id] = true

		parents := c.ParentIDs
		if w.firstParent && len(parents) > 1 {
			parents = parents[:1]
		}
		w.pushPending(parents)

		return id, c, nil
	}
}

func (w *CommitWalker) pushPending(ids []hash.ID) {
	if len(ids) == 0 {
		return
	}
	var fresh []hash.ID
	for _, id := range ids {
		if !w.seen[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) > 0 {
		w.stack = append(w.stack, fresh)
	}
}

func (w *CommitWalker) popPending() (hash.ID, bool) {
	for len(w.stack) > 0 {
		top := len(w.stack) - 1
		frame := w.stack[top]
		if len(frame) == 0 {
			w.stack = w.stack[:top]
			continue
		}
		id := frame[len(frame)-1]
		w.stack[top] = frame[:len(frame)-1]
		if len(w.stack[top]) == 0 {
			w.stack = w.stack[:top]
		}
		return id, true
	}
	return hash.ID{}, false
}

// ErrNoLookup is returned by ForEach helpers constructed without a
// CommitLookup, a programmer error rather than something a caller recovers
// from at runtime.
var ErrNoLookup = errors.New("object: commit walker has no lookup function")

// ForEach calls cb for every commit in the walk, stopping (without error) at
// the first io.EOF and returning immediately if either cb or the walk
// itself reports an error.
func (w *CommitWalker) ForEach(cb func(hash.ID, *Commit) error) error {
	if w.lookup == nil {
		return ErrNoLookup
	}
	for {
		id, c, err := w.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(id, c); err != nil {
			return err
		}
	}
}
