package storage

import (
	"context"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/idxfile"
	"github.com/dietcache/vcscore/object"
	"github.com/dietcache/vcscore/packfile"
)

func TestLooseStorePutThenGet(t *testing.T) {
	fs := memfs.New()
	l := NewLooseStore(fs, "objects", hash.Sha1)

	payload := []byte("hello\n")
	id, err := l.Put(object.BlobObject, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !l.Has(id) {
		t.Fatalf("Has(%s) = false after Put", id)
	}

	kind, data, err := l.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if kind != object.BlobObject || string(data) != string(payload) {
		t.Fatalf("Get = %v %q, want blob %q", kind, data, payload)
	}
}

func TestLooseStorePutIsIdempotent(t *testing.T) {
	fs := memfs.New()
	l := NewLooseStore(fs, "objects", hash.Sha1)

	payload := []byte("hello\n")
	id1, err := l.Put(object.BlobObject, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	id2, err := l.Put(object.BlobObject, payload)
	if err != nil {
		t.Fatalf("Put (second): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("Put returned different ids for identical content: %s vs %s", id1, id2)
	}
}

func TestHandleFindPrefersLoose(t *testing.T) {
	fs := memfs.New()
	l := NewLooseStore(fs, "objects", hash.Sha1)
	payload := []byte("loose content\n")
	id, err := l.Put(object.BlobObject, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	h := NewHandle(hash.Sha1, []*LooseStore{l}, nil, nil)
	kind, data, err := h.Find(id)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if kind != object.BlobObject || string(data) != string(payload) {
		t.Fatalf("Find = %v %q", kind, data)
	}
}

func TestHandleFindMissingReturnsErrNotFound(t *testing.T) {
	h := NewHandle(hash.Sha1, nil, nil, nil)
	_, _, err := h.Find(hash.MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a"))
	if err != ErrNotFound {
		t.Fatalf("Find = %v, want ErrNotFound", err)
	}
}

func TestHandleFindInPack(t *testing.T) {
	payload := []byte("packed content\n")
	id := object.ID(hash.Sha1, object.BlobObject, payload)

	enc := packfile.NewEncoder(hash.Sha1)
	var buf packBuffer
	_, err := enc.Encode(context.Background(), &buf, []packfile.PendingObject{
		{Kind: object.BlobObject, ID: id, Data: payload, DeltaBase: -1},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	idx, err := idxfile.Build(hash.Sha1, []idxfile.Entry{{ID: id, Offset: 12}}, hash.Zero(hash.Sha1))
	if err != nil {
		t.Fatalf("idxfile.Build: %v", err)
	}

	pack := packfile.NewPack("test", &buf, int64(buf.Len()), hash.Sha1)
	h := NewHandle(hash.Sha1, nil, []*OpenPack{{ID: "test", Index: idx, Pack: pack}}, nil)

	kind, data, err := h.Find(id)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if kind != object.BlobObject || string(data) != string(payload) {
		t.Fatalf("Find = %v %q, want blob %q", kind, data, payload)
	}
}

// staticLister hands out a fixed pack list, standing in for a PackDir
// whose directory contents changed after the Handle was built.
type staticLister struct {
	packs []*OpenPack
	calls int
}

func (s *staticLister) ListPacks() ([]*OpenPack, error) {
	s.calls++
	return s.packs, nil
}

func TestHandleFindReloadsPackListOnMiss(t *testing.T) {
	payload := []byte("repacked content\n")
	id := object.ID(hash.Sha1, object.BlobObject, payload)

	enc := packfile.NewEncoder(hash.Sha1)
	var buf packBuffer
	if _, err := enc.Encode(context.Background(), &buf, []packfile.PendingObject{
		{Kind: object.BlobObject, ID: id, Data: payload, DeltaBase: -1},
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	idx, err := idxfile.Build(hash.Sha1, []idxfile.Entry{{ID: id, Offset: 12}}, hash.Zero(hash.Sha1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pack := packfile.NewPack("new", &buf, int64(buf.Len()), hash.Sha1)

	lister := &staticLister{packs: []*OpenPack{{ID: "new", Index: idx, Pack: pack}}}
	h := NewHandle(hash.Sha1, nil, nil, lister)

	kind, data, err := h.Find(id)
	if err != nil {
		t.Fatalf("Find after reload: %v", err)
	}
	if kind != object.BlobObject || string(data) != string(payload) {
		t.Fatalf("Find = %v %q", kind, data)
	}
	if lister.calls != 1 {
		t.Fatalf("ListPacks called %d times, want exactly 1", lister.calls)
	}
}

func TestLookupPrefixAcrossTwoPacks(t *testing.T) {
	idA := hash.MustFromHex("ab01000000000000000000000000000000000000")
	idB := hash.MustFromHex("ab01ff0000000000000000000000000000000000")

	idx1, err := idxfile.Build(hash.Sha1, []idxfile.Entry{{ID: idA, Offset: 12}}, hash.Zero(hash.Sha1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	idx2, err := idxfile.Build(hash.Sha1, []idxfile.Entry{{ID: idB, Offset: 12}}, hash.Zero(hash.Sha1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	h := NewHandle(hash.Sha1, nil, []*OpenPack{
		{ID: "one", Index: idx1},
		{ID: "two", Index: idx2},
	}, nil)

	// Prefixes shorter than four hex digits never even construct.
	if _, err := hash.NewPrefix("ab"); err == nil {
		t.Fatalf("NewPrefix(%q) accepted a 2-char prefix", "ab")
	}

	shared, err := hash.NewPrefix("ab01")
	if err != nil {
		t.Fatalf("NewPrefix: %v", err)
	}
	if _, res := h.LookupPrefix(shared); res != Ambiguous {
		t.Fatalf("LookupPrefix(ab01) = %v, want Ambiguous across the two packs", res)
	}

	unique, err := hash.NewPrefix("ab0100")
	if err != nil {
		t.Fatalf("NewPrefix: %v", err)
	}
	id, res := h.LookupPrefix(unique)
	if res != Unique || !id.Equal(idA) {
		t.Fatalf("LookupPrefix(ab0100) = %v %v, want unique %s", id, res, idA)
	}

	none, err := hash.NewPrefix("cd00")
	if err != nil {
		t.Fatalf("NewPrefix: %v", err)
	}
	if _, res := h.LookupPrefix(none); res != NotFound {
		t.Fatalf("LookupPrefix(cd00) = %v, want NotFound", res)
	}
}

// packBuffer adapts a bytes-backed buffer to io.ReaderAt for NewPack,
// since packfile.Encoder only requires an io.Writer.
type packBuffer struct{ b []byte }

func (p *packBuffer) Write(b []byte) (int, error) {
	p.b = append(p.b, b...)
	return len(b), nil
}
func (p *packBuffer) ReadAt(b []byte, off int64) (int, error) {
	if off >= int64(len(p.b)) {
		return 0, io.EOF
	}
	n := copy(b, p.b[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}
func (p *packBuffer) Len() int { return len(p.b) }
