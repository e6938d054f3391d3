// Package reftx implements reference transactions: a batch of edits that
// either all take effect or none do, built on the refs package's loose and
// packed-refs primitives and the tempfile package's lockfiles.
package reftx

import (
	"context"
	"errors"
	"fmt"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/refs"
	"github.com/dietcache/vcscore/tempfile"
)

// Expected is the predicate an edit's current value must satisfy at
// prepare time.
type Expected int

const (
	// Any accepts whatever the ref currently holds, including absence.
	Any Expected = iota
	// MustNotExist requires the ref to be absent.
	MustNotExist
	// MustExist requires the ref to be present, regardless of value.
	MustExist
	// MustExistAndMatch requires the ref to be present and equal to Match.
	MustExistAndMatch
	// ExistingMustMatch requires the ref, if present, to equal Match; its
	// absence is not an error.
	ExistingMustMatch
)

// Kind discriminates an edit's change.
type Kind int

const (
	// Update sets the ref to New.
	Update Kind = iota
	// Delete removes the ref entirely.
	Delete
)

// Reflog carries the information needed to append a reflog entry for an
// edit; an edit with a nil Reflog does not touch the reflog at all.
// Messages follow the "<op>[ (<detail>)]: <summary>" convention.
type Reflog struct {
	Committer refs.Signature
	Op        string // e.g. "commit", "branch", "checkout"
	Detail    string // e.g. "initial" or "merge"; empty for neither
	Summary   string
}

func (r *Reflog) message() string {
	op := r.Op
	if r.Detail != "" {
		op += " (" + r.Detail + ")"
	}
	if op == "" {
		return r.Summary
	}
	return op + ": " + r.Summary
}

// CommitDetail returns the conventional reflog detail for a ref moving to
// a new commit: "initial" when the ref did not exist before, "merge" for a
// commit with two or more parents, empty otherwise.
func CommitDetail(prevExisted bool, parents int) string {
	if !prevExisted {
		return "initial"
	}
	if parents >= 2 {
		return "merge"
	}
	return ""
}

// Change is the mutation one edit applies to a reference.
type Change struct {
	Kind     Kind
	Expected Expected
	Match    hash.ID    // meaningful for MustExistAndMatch / ExistingMustMatch
	New      refs.Value // meaningful for Update
	Reflog   *Reflog
}

// Edit names one reference mutation within a transaction.
type Edit struct {
	Name   refs.Name
	Change Change
	// Deref, when the named ref is symbolic, retargets the edit at the ref
	// the chain ultimately points to rather than the symbolic pointer
	// itself. A symbolic HEAD is always dereferenced this way unless the
	// edit itself writes a symbolic value (a retarget of HEAD proper).
	Deref bool
}

var (
	// ErrPredicateFailed is returned at prepare time when an edit's
	// Expected predicate does not hold against the ref's current value.
	ErrPredicateFailed = errors.New("reftx: expected predicate failed")
	// ErrReferenceChanged is returned by Commit when a reference was
	// modified between Prepare and Commit by a writer that bypassed the
	// lockfile protocol; nothing is materialized in that case.
	ErrReferenceChanged = errors.New("reftx: reference changed concurrently")
	// ErrAlreadyPrepared is returned by Prepare on a transaction that has
	// already been prepared.
	ErrAlreadyPrepared = errors.New("reftx: transaction already prepared")
	// ErrNotPrepared is returned by Commit or Drop before Prepare succeeded.
	ErrNotPrepared = errors.New("reftx: transaction not prepared")
)

type staged struct {
	name        refs.Name
	lock        *tempfile.LockFile
	remove      bool
	value       refs.Value
	reflog      *Reflog
	oldExists   bool
	oldValue    refs.Value
	looseExists bool
}

// Transaction batches Edits against a Store so that they are validated and
// applied atomically: Prepare locks and checks every edit, Commit
// materializes them all, and Drop discards everything without touching
// the store.
type Transaction struct {
	store *refs.Store
	opts  tempfile.AcquireOptions

	edits []Edit

	prepared   bool
	staged     []*staged
	packedLock *tempfile.LockFile
	packedRefs *refs.PackedRefs
}

// New returns a Transaction over store with the given edits. opts governs
// contention behavior when acquiring per-ref and packed-refs lockfiles.
func New(store *refs.Store, opts tempfile.AcquireOptions, edits ...Edit) *Transaction {
	return &Transaction{store: store, opts: opts, edits: edits}
}

// Prepare acquires a lockfile for every affected loose ref (and the
// packed-refs lock, if any edit may need to touch it), reads current
// values, and verifies every edit's Expected predicate. It leaves nothing
// materialized: call Commit to publish the staged writes, or Drop to
// release every lock untouched.
//
// On a case-insensitive filesystem, two edits that name references
// differing only in case (e.g. "refs/A" and "refs/a") collide on the same
// underlying lockfile path, so the second AcquireLock call fails with
// ErrLockHeld — the lock layer itself enforces the case hazard without
// any special-cased name comparison here.
func (t *Transaction) Prepare(ctx context.Context) error {
	if t.prepared {
		return ErrAlreadyPrepared
	}

	ok := false
	defer func() {
		if !ok {
			t.releaseAll()
		}
	}()

	usesPacked := false

	for _, e := range t.edits {
		if err := refs.ValidateName(e.Name); err != nil {
			return fmt.Errorf("reftx: %w", err)
		}

		name := e.Name
		if t.shouldDeref(e) {
			final, err := t.store.FollowSymbolic(name)
			if err != nil {
				return fmt.Errorf("reftx: dereferencing %s: %w", name, err)
			}
			name = final
		}

		lock, err := tempfile.AcquireLock(ctx, t.store.FS(), t.store.Path(name), t.opts)
		if err != nil {
			return fmt.Errorf("reftx: locking %s: %w", name, err)
		}

		s := &staged{name: name, lock: lock, reflog: e.Change.Reflog}

		_, looseErr := t.store.ReadLoose(name)
		s.looseExists = looseErr == nil
		if looseErr != nil && !errors.Is(looseErr, refs.ErrNotExist) {
			lock.Drop()
			return fmt.Errorf("reftx: reading %s: %w", name, looseErr)
		}

		current, lookupErr := t.store.Lookup(name)
		s.oldExists = lookupErr == nil
		if lookupErr != nil && !errors.Is(lookupErr, refs.ErrNotExist) {
			lock.Drop()
			return fmt.Errorf("reftx: reading %s: %w", name, lookupErr)
		}
		s.oldValue = current

		if err := checkExpected(e.Change, s.oldExists, current); err != nil {
			lock.Drop()
			return fmt.Errorf("reftx: %s: %w", name, err)
		}

		switch e.Change.Kind {
		case Update:
			s.value = e.Change.New
		case Delete:
			s.remove = true
			// Deleting a ref removes the representation currently
			// supplying its value: the loose file if one exists, else the
			// packed entry. A loose delete leaves a same-named packed
			// entry exposed.
			if !s.looseExists && t.packedEntryExists(name) {
				usesPacked = true
			}
		}
		t.staged = append(t.staged, s)
	}

	if usesPacked {
		lock, err := tempfile.AcquireLock(ctx, t.store.FS(), t.store.PackedRefsPath(), t.opts)
		if err != nil {
			return fmt.Errorf("reftx: locking packed-refs: %w", err)
		}
		pr, err := t.store.ReadPackedRefs()
		if err != nil {
			lock.Drop()
			return fmt.Errorf("reftx: reading packed-refs: %w", err)
		}
		t.packedLock = lock
		t.packedRefs = pr
	}

	t.prepared = true
	ok = true
	return nil
}

func (t *Transaction) shouldDeref(e Edit) bool {
	if e.Deref {
		return true
	}
	if e.Name != "HEAD" {
		return false
	}
	// Writing a symbolic value to HEAD retargets the pointer itself.
	return !(e.Change.Kind == Update && e.Change.New.IsSymbolic())
}

func (t *Transaction) packedEntryExists(name refs.Name) bool {
	pr, err := t.store.ReadPackedRefs()
	if err != nil {
		return false
	}
	_, ok := pr.Find(name)
	return ok
}

func checkExpected(c Change, exists bool, current refs.Value) error {
	switch c.Expected {
	case Any:
		return nil
	case MustNotExist:
		if exists {
			return ErrPredicateFailed
		}
		return nil
	case MustExist:
		if !exists {
			return ErrPredicateFailed
		}
		return nil
	case MustExistAndMatch:
		if !exists || !current.Target.Equal(c.Match) {
			return ErrPredicateFailed
		}
		return nil
	case ExistingMustMatch:
		if exists && !current.Target.Equal(c.Match) {
			return ErrPredicateFailed
		}
		return nil
	default:
		return fmt.Errorf("reftx: unknown expected predicate %d", c.Expected)
	}
}

// Commit materializes every staged write: loose updates are renamed into
// place, packed-refs is rewritten atomically if touched, and a reflog
// entry is appended per update that carries one and writes a direct id
// (a symbolic update logs nothing; a delete removes the ref's reflog
// instead). Before the first rename,
// every staged ref is re-read and compared against the value observed at
// Prepare; any drift fails the whole transaction with ErrReferenceChanged
// and nothing becomes visible.
func (t *Transaction) Commit() error {
	if !t.prepared {
		return ErrNotPrepared
	}

	for _, s := range t.staged {
		current, err := t.store.Lookup(s.name)
		exists := err == nil
		if err != nil && !errors.Is(err, refs.ErrNotExist) {
			t.abort()
			return fmt.Errorf("reftx: re-reading %s: %w", s.name, err)
		}
		if exists != s.oldExists || current != s.oldValue {
			t.abort()
			return fmt.Errorf("reftx: %s: %w", s.name, ErrReferenceChanged)
		}
	}

	for _, s := range t.staged {
		if s.remove {
			if err := t.store.RemoveLoose(s.name); err != nil {
				t.abort()
				return fmt.Errorf("reftx: removing %s: %w", s.name, err)
			}
			s.lock.Drop()
			if !s.looseExists && t.packedRefs != nil {
				removePackedEntry(t.packedRefs, s.name)
			}
			if err := t.store.RemoveReflog(s.name); err != nil {
				return fmt.Errorf("reftx: removing reflog for %s: %w", s.name, err)
			}
			continue
		}

		if _, err := s.lock.File().Write(refs.EncodeLooseContent(s.value)); err != nil {
			t.abort()
			return fmt.Errorf("reftx: writing %s: %w", s.name, err)
		}
		if err := s.lock.Commit(); err != nil {
			t.abort()
			return fmt.Errorf("reftx: committing %s: %w", s.name, err)
		}

		// A symbolic update records no id transition, so it never logs:
		// this covers retargeting an unborn HEAD, which has no reflog yet.
		if s.reflog != nil && !s.value.IsSymbolic() {
			entry := refs.ReflogEntry{
				Old:       s.oldValue.Target,
				New:       s.value.Target,
				Committer: s.reflog.Committer,
				Message:   s.reflog.message(),
			}
			if !s.oldExists {
				entry.Old = hash.Zero(t.store.IDKind())
			}
			if err := t.store.AppendReflog(s.name, entry); err != nil {
				return fmt.Errorf("reftx: appending reflog for %s: %w", s.name, err)
			}
		}
	}

	if t.packedLock != nil {
		if _, err := t.packedLock.File().Write(t.packedRefs.Encode()); err != nil {
			t.packedLock.Drop()
			t.packedLock = nil
			return fmt.Errorf("reftx: writing packed-refs: %w", err)
		}
		if err := t.packedLock.Commit(); err != nil {
			return fmt.Errorf("reftx: committing packed-refs: %w", err)
		}
		t.packedLock = nil
	}

	t.staged = nil
	t.prepared = false
	return nil
}

// Drop releases every lock acquired by Prepare without modifying the
// store, rolling the transaction back.
func (t *Transaction) Drop() error {
	if !t.prepared {
		return ErrNotPrepared
	}
	t.abort()
	return nil
}

func (t *Transaction) abort() {
	t.releaseAll()
	t.prepared = false
}

func (t *Transaction) releaseAll() {
	for _, s := range t.staged {
		s.lock.Drop()
	}
	t.staged = nil
	if t.packedLock != nil {
		t.packedLock.Drop()
		t.packedLock = nil
	}
}

func removePackedEntry(pr *refs.PackedRefs, name refs.Name) {
	out := pr.Entries[:0]
	for _, e := range pr.Entries {
		if e.Name != name {
			out = append(out, e)
		}
	}
	pr.Entries = out
}
