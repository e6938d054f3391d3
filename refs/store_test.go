package refs

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/dietcache/vcscore/hash"
)

func testID(hex string) hash.ID { return hash.MustFromHex(hex) }

func TestWriteLooseThenReadLoose(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	v := Value{Target: id}
	if err := s.WriteLoose(context.Background(), "refs/heads/main", v); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	got, err := s.ReadLoose("refs/heads/main")
	if err != nil {
		t.Fatalf("ReadLoose: %v", err)
	}
	if got.Target != id {
		t.Fatalf("ReadLoose = %v, want %v", got, v)
	}
}

func TestReadLooseMissing(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	if _, err := s.ReadLoose("refs/heads/nope"); err != ErrNotExist {
		t.Fatalf("ReadLoose = %v, want ErrNotExist", err)
	}
}

func TestLookupPrefersLooseOverPacked(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	looseID := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	packedID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")

	if err := s.WritePackedRefs(&PackedRefs{Entries: []PackedEntry{
		{Name: "refs/heads/main", Target: packedID},
	}}); err != nil {
		t.Fatalf("WritePackedRefs: %v", err)
	}
	if err := s.WriteLoose(context.Background(), "refs/heads/main", Value{Target: looseID}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	v, err := s.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if v.Target != looseID {
		t.Fatalf("Lookup = %v, want loose target %v", v.Target, looseID)
	}
}

func TestLookupFallsBackToPacked(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	packedID := testID("b66c08ba28aa1f81eb06a1127aa3936ff77e5e2c")
	if err := s.WritePackedRefs(&PackedRefs{Entries: []PackedEntry{
		{Name: "refs/heads/main", Target: packedID},
	}}); err != nil {
		t.Fatalf("WritePackedRefs: %v", err)
	}

	v, err := s.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if v.Target != packedID {
		t.Fatalf("Lookup = %v, want packed target %v", v.Target, packedID)
	}
}

func TestResolveFollowsSymbolicChain(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")
	ctx := context.Background()
	if err := s.WriteLoose(ctx, "refs/heads/main", Value{Target: id}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "HEAD", Value{Symbolic: "refs/heads/main"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	got, err := s.Resolve("HEAD")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != id {
		t.Fatalf("Resolve = %v, want %v", got, id)
	}
}

func TestResolveTooManyHops(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)
	ctx := context.Background()

	if err := s.WriteLoose(ctx, "a", Value{Symbolic: "b"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "b", Value{Symbolic: "c"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "c", Value{Symbolic: "d"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "d", Value{Symbolic: "e"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "e", Value{Symbolic: "f"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "f", Value{Symbolic: "g"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	if _, err := s.Resolve("a"); err != ErrTooManyHops {
		t.Fatalf("Resolve = %v, want ErrTooManyHops", err)
	}
}

func TestFollowSymbolicUnbornHEAD(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)

	if err := s.WriteLoose(context.Background(), "HEAD", Value{Symbolic: "refs/heads/main"}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	final, err := s.FollowSymbolic("HEAD")
	if err != nil {
		t.Fatalf("FollowSymbolic: %v", err)
	}
	if final != "refs/heads/main" {
		t.Fatalf("FollowSymbolic = %q, want refs/heads/main", final)
	}
}

func TestWalkSkipsLockFiles(t *testing.T) {
	fs := memfs.New()
	s := NewStore(fs, "", hash.Sha1)
	ctx := context.Background()
	id := testID("ce013625030ba8dba906f756967f9e9ca394464a")

	if err := s.WriteLoose(ctx, "refs/heads/main", Value{Target: id}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if err := s.WriteLoose(ctx, "refs/heads/topic", Value{Target: id}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}
	if f, err := fs.Create(fs.Join("refs", "heads", "topic.lock")); err == nil {
		f.Close()
	}

	var found []Name
	if err := s.Walk("refs/heads", func(n Name) error {
		found = append(found, n)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Walk found %v, want 2 entries", found)
	}
}
