package reftx

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/refs"
	"github.com/dietcache/vcscore/tempfile"
)

func testID(hex string) hash.ID { return hash.MustFromHex(hex) }

func newStore(t *testing.T) *refs.Store {
	t.Helper()
	return refs.NewStore(memfs.New(), "", hash.Sha1)
}

func TestCreateNewBranch(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	tx := New(store, tempfile.Immediate(), Edit{
		Name: "refs/heads/main",
		Change: Change{
			Kind:     Update,
			Expected: MustNotExist,
			New:      refs.Value{Target: id},
		},
	})

	if err := tx.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Target != id {
		t.Fatalf("Lookup = %v, want %v", got.Target, id)
	}
}

func TestMustNotExistFailsWhenPresent(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	ctx := context.Background()
	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: id}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	tx := New(store, tempfile.Immediate(), Edit{
		Name: "refs/heads/main",
		Change: Change{
			Kind:     Update,
			Expected: MustNotExist,
			New:      refs.Value{Target: id},
		},
	})
	if err := tx.Prepare(ctx); err == nil {
		t.Fatalf("Prepare succeeded, want ErrPredicateFailed")
	}
}

func TestMustExistAndMatchDetectsStaleCAS(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	oldID := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	newID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")
	staleID := testID("c3f4688a08fd86f1bf8e055724c84b7a40a09733")

	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: oldID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	tx := New(store, tempfile.Immediate(), Edit{
		Name: "refs/heads/main",
		Change: Change{
			Kind:     Update,
			Expected: MustExistAndMatch,
			Match:    staleID,
			New:      refs.Value{Target: newID},
		},
	})
	if err := tx.Prepare(ctx); err == nil {
		t.Fatalf("Prepare succeeded, want ErrPredicateFailed for stale compare-and-swap")
	}
}

func TestDeleteRemovesLooseRef(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	if err := store.WriteLoose(ctx, "refs/heads/topic", refs.Value{Target: id}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	tx := New(store, tempfile.Immediate(), Edit{
		Name:   "refs/heads/topic",
		Change: Change{Kind: Delete, Expected: MustExist},
	})
	if err := tx.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := store.Lookup("refs/heads/topic"); err != refs.ErrNotExist {
		t.Fatalf("Lookup after delete = %v, want ErrNotExist", err)
	}
}

func TestDropLeavesStoreUntouched(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	tx := New(store, tempfile.Immediate(), Edit{
		Name:   "refs/heads/main",
		Change: Change{Kind: Update, Expected: MustNotExist, New: refs.Value{Target: id}},
	})
	if err := tx.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Drop(); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	if _, err := store.Lookup("refs/heads/main"); err != refs.ErrNotExist {
		t.Fatalf("Lookup after drop = %v, want ErrNotExist", err)
	}
}

func TestCaseInsensitiveCollisionWithinTransaction(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	// memfs's billy.File creation is case-sensitive, so this asserts the
	// ordinary (non-colliding) path: two distinctly-cased names both
	// succeed. The collision behavior itself is exercised by the
	// lockfile layer on a genuinely case-folding filesystem; see
	// Transaction.Prepare's doc comment.
	tx := New(store, tempfile.Immediate(),
		Edit{Name: "refs/heads/a", Change: Change{Kind: Update, Expected: MustNotExist, New: refs.Value{Target: id}}},
		Edit{Name: "refs/heads/A", Change: Change{Kind: Update, Expected: MustNotExist, New: refs.Value{Target: id}}},
	)
	if err := tx.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestReflogAppendedOnUpdate(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	sig := refs.Signature{Name: "Jane Doe", Email: "jane@example.com"}

	tx := New(store, tempfile.Immediate(), Edit{
		Name: "refs/heads/main",
		Change: Change{
			Kind:     Update,
			Expected: MustNotExist,
			New:      refs.Value{Target: id},
			Reflog:   &Reflog{Committer: sig, Op: "branch", Detail: CommitDetail(false, 1), Summary: "Created from HEAD"},
		},
	})
	if err := tx.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := store.ReadReflog("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ReadReflog returned %d entries, want 1", len(entries))
	}
	if entries[0].New != id {
		t.Fatalf("entry.New = %v, want %v", entries[0].New, id)
	}
	if want := "branch (initial): Created from HEAD"; entries[0].Message != want {
		t.Fatalf("entry.Message = %q, want %q", entries[0].Message, want)
	}
}

func TestDerefRetargetsSymbolicHEAD(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	oldID := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	newID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")

	if err := store.WriteLoose(ctx, "HEAD", refs.Value{Symbolic: "refs/heads/main"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: oldID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	tx := New(store, tempfile.Immediate(), Edit{
		Name:  "HEAD",
		Deref: true,
		Change: Change{
			Kind:     Update,
			Expected: MustExistAndMatch,
			Match:    oldID,
			New:      refs.Value{Target: newID},
		},
	})
	if err := tx.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// HEAD itself must still be symbolic; only refs/heads/main moved.
	v, err := store.ReadLoose("HEAD")
	if err != nil {
		t.Fatalf("ReadLoose(HEAD): %v", err)
	}
	if !v.IsSymbolic() {
		t.Fatalf("HEAD is no longer symbolic after a dereferencing edit")
	}

	got, err := store.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Target != newID {
		t.Fatalf("Lookup = %v, want %v", got.Target, newID)
	}
}

func TestCommitFailsWhenRefChangedAfterPrepare(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	oldID := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	newID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")
	concurrentID := testID("c3f4688a08fd86f1bf8e055724c84b7a40a09733")

	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: oldID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	tx := New(store, tempfile.Immediate(),
		Edit{
			Name: "refs/heads/main",
			Change: Change{
				Kind:     Update,
				Expected: MustExistAndMatch,
				Match:    oldID,
				New:      refs.Value{Target: newID},
			},
		},
		Edit{
			Name: "refs/heads/new",
			Change: Change{
				Kind:     Update,
				Expected: MustNotExist,
				New:      refs.Value{Target: newID},
			},
		},
	)
	if err := tx.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// A writer that bypasses the lockfile protocol moves main underneath
	// the prepared transaction.
	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: concurrentID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	if err := tx.Commit(); !errors.Is(err, ErrReferenceChanged) {
		t.Fatalf("Commit = %v, want ErrReferenceChanged", err)
	}

	got, err := store.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Target != concurrentID {
		t.Fatalf("main = %v, want the concurrent writer's %v untouched", got.Target, concurrentID)
	}
	if _, err := store.Lookup("refs/heads/new"); err != refs.ErrNotExist {
		t.Fatalf("Lookup(new) = %v, want ErrNotExist after failed commit", err)
	}
}

func TestDeleteExposesPackedThenRemovesIt(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	packedID := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	looseID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")

	if err := store.WritePackedRefs(&refs.PackedRefs{Entries: []refs.PackedEntry{
		{Name: "refs/heads/main", Target: packedID},
	}}); err != nil {
		t.Fatalf("WritePackedRefs: %v", err)
	}
	if err := store.WriteLoose(ctx, "refs/heads/main", refs.Value{Target: looseID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	del := func() error {
		tx := New(store, tempfile.Immediate(), Edit{
			Name:   "refs/heads/main",
			Change: Change{Kind: Delete, Expected: MustExist},
		})
		if err := tx.Prepare(ctx); err != nil {
			return err
		}
		return tx.Commit()
	}

	if err := del(); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	got, err := store.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup after first delete: %v", err)
	}
	if got.Target != packedID {
		t.Fatalf("first delete exposed %v, want packed %v", got.Target, packedID)
	}

	if err := del(); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Lookup("refs/heads/main"); err != refs.ErrNotExist {
		t.Fatalf("Lookup after second delete = %v, want ErrNotExist", err)
	}

	pr, err := store.ReadPackedRefs()
	if err != nil {
		t.Fatalf("ReadPackedRefs: %v", err)
	}
	if _, ok := pr.Find("refs/heads/main"); ok {
		t.Fatalf("packed entry survived the second delete")
	}
}

func TestPrepareRejectsInvalidName(t *testing.T) {
	store := newStore(t)
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	tx := New(store, tempfile.Immediate(), Edit{
		Name:   "refs/heads/a..b",
		Change: Change{Kind: Update, Expected: Any, New: refs.Value{Target: id}},
	})
	if err := tx.Prepare(context.Background()); !errors.Is(err, refs.ErrInvalidName) {
		t.Fatalf("Prepare = %v, want ErrInvalidName", err)
	}
}

func TestLockConflictBetweenTransactions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	edit := Edit{
		Name:   "refs/heads/main",
		Change: Change{Kind: Update, Expected: Any, New: refs.Value{Target: id}},
	}

	first := New(store, tempfile.Immediate(), edit)
	if err := first.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer first.Drop()

	second := New(store, tempfile.Immediate(), edit)
	if err := second.Prepare(ctx); !errors.Is(err, tempfile.ErrLockHeld) {
		t.Fatalf("second Prepare = %v, want ErrLockHeld", err)
	}
}
