package packfile

import (
	"bytes"
	"context"
	"testing"

	"github.com/dietcache/vcscore/hash"
	"github.com/dietcache/vcscore/object"
)

// fakeBaseProvider resolves external delta bases from an in-memory map,
// standing in for a storage.Handle in these tests.
type fakeBaseProvider map[hash.ID][]byte

func (f fakeBaseProvider) GetByID(id hash.ID) (object.Kind, []byte, error) {
	data, ok := f[id]
	if !ok {
		return 0, nil, ErrBaseNotFound
	}
	return object.BlobObject, data, nil
}

// TestCloseThinProducesSelfContainedPack exercises the thin-pack closing
// decision: a PendingObject whose delta base lives outside the batch is
// resolved, via CloseThin, into a pack that needs no external object to
// decode.
func TestCloseThinProducesSelfContainedPack(t *testing.T) {
	base := []byte("hello world, this is a longer blob used as a delta base\n")
	derived := append(append([]byte{}, base...), []byte("and some appended tail content\n")...)
	baseID := object.ID(hash.Sha1, object.BlobObject, base)
	derivedID := object.ID(hash.Sha1, object.BlobObject, derived)

	objs := []PendingObject{
		{ID: derivedID, Kind: object.BlobObject, Data: derived, DeltaBase: -1, ExternalBase: baseID},
	}
	provider := fakeBaseProvider{baseID: base}

	closed, err := CloseThin(objs, provider)
	if err != nil {
		t.Fatalf("CloseThin: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("got %d objects after closing, want 2 (base + derived)", len(closed))
	}
	if closed[0].ID != baseID || closed[0].DeltaBase != -1 {
		t.Fatalf("expected external base prepended as a full entry, got %+v", closed[0])
	}
	if closed[1].DeltaBase != 0 {
		t.Fatalf("expected derived entry to delta against index 0, got %d", closed[1].DeltaBase)
	}

	var buf bytes.Buffer
	enc := NewEncoder(hash.Sha1)
	if _, err := enc.Encode(context.Background(), &buf, closed); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	packBytes := buf.Bytes()
	pack := NewPack("thin-closed", bytes.NewReader(packBytes), int64(len(packBytes)), hash.Sha1)

	resolved, err := pack.Resolve(uint32(len(closed)))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	gotKind, gotData, err := pack.Decode(resolved[1].Offset)
	if err != nil {
		t.Fatalf("Decode derived entry without a BaseProvider: %v", err)
	}
	if gotKind != object.BlobObject || !bytes.Equal(gotData, derived) {
		t.Fatalf("derived entry decoded to wrong content")
	}
}

func TestCloseThinReusesBaseAlreadyInBatch(t *testing.T) {
	base := []byte("already included base content for a delta\n")
	derived := append(append([]byte{}, base...), []byte("tail\n")...)
	baseID := object.ID(hash.Sha1, object.BlobObject, base)
	derivedID := object.ID(hash.Sha1, object.BlobObject, derived)

	objs := []PendingObject{
		{ID: baseID, Kind: object.BlobObject, Data: base, DeltaBase: -1},
		{ID: derivedID, Kind: object.BlobObject, Data: derived, DeltaBase: -1, ExternalBase: baseID},
	}

	closed, err := CloseThin(objs, fakeBaseProvider{})
	if err != nil {
		t.Fatalf("CloseThin: %v", err)
	}
	if len(closed) != 2 {
		t.Fatalf("got %d objects, want 2 (no new base fetched)", len(closed))
	}
	if closed[1].DeltaBase != 0 {
		t.Fatalf("expected derived entry to reuse existing index 0, got %d", closed[1].DeltaBase)
	}
}

func TestCloseThinNoOpWithoutExternalBases(t *testing.T) {
	blob := []byte("plain content\n")
	objs := []PendingObject{
		{ID: object.ID(hash.Sha1, object.BlobObject, blob), Kind: object.BlobObject, Data: blob, DeltaBase: -1},
	}
	closed, err := CloseThin(objs, fakeBaseProvider{})
	if err != nil {
		t.Fatalf("CloseThin: %v", err)
	}
	if len(closed) != len(objs) {
		t.Fatalf("expected no-op when no ExternalBase is set")
	}
}
