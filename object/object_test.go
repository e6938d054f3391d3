package object

import (
	"testing"
	"time"

	"github.com/dietcache/vcscore/hash"
)

func TestBlobIDMatchesScenarioA(t *testing.T) {
	payload := []byte("hello\n")
	id := ID(hash.Sha1, BlobObject, payload)
	want := "ce013625030ba8dba906f756967f9e9ca394464a"
	if got := id.String(); got != want {
		t.Fatalf("blob id = %s, want %s", got, want)
	}
}

func TestTreeRoundTrip(t *testing.T) {
	blobID := hash.MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tr := &Tree{Entries: []TreeEntry{
		{Name: "README", Mode: Regular, ID: blobID},
		{Name: "src", Mode: Dir, ID: blobID},
	}}
	if !tr.Sorted() {
		t.Fatalf("expected canonical tree to be sorted")
	}
	encoded := tr.encode()
	decoded, err := decodeTree(encoded)
	if err != nil {
		t.Fatalf("decodeTree: %v", err)
	}
	if len(decoded.Entries) != 2 || decoded.Entries[0].Name != "README" {
		t.Fatalf("round trip mismatch: %+v", decoded.Entries)
	}
	if got := decoded.encode(); string(got) != string(encoded) {
		t.Fatalf("encode not byte-identical after round trip")
	}
}

func TestTreeSortOrderDirVsFile(t *testing.T) {
	// "foo." must sort before "foo/" (dir) per the as-if-suffixed rule.
	blobID := hash.MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tr := &Tree{Entries: []TreeEntry{
		{Name: "foo.", Mode: Regular, ID: blobID},
		{Name: "foo", Mode: Dir, ID: blobID},
	}}
	if !tr.Sorted() {
		t.Fatalf("expected foo. before foo/ to be considered sorted")
	}
}

func TestCommitRoundTrip(t *testing.T) {
	tree := hash.MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	parent := hash.MustFromHex("ab01cd0102030405060708090a0b0c0d0e0f1011")
	c := &Commit{
		TreeID:    tree,
		ParentIDs: []hash.ID{parent},
		Author:    Signature{Name: "A", Email: "a@example.com", When: time.Unix(1000, 0).In(time.FixedZone("", 3600))},
		Committer: Signature{Name: "A", Email: "a@example.com", When: time.Unix(1000, 0).In(time.FixedZone("", 3600))},
		Message:   "Title line\n\nBody   text\nwith wrapping.\n",
	}
	encoded := c.encode()
	decoded, err := decodeCommit(encoded)
	if err != nil {
		t.Fatalf("decodeCommit: %v", err)
	}
	if !decoded.TreeID.Equal(tree) || len(decoded.ParentIDs) != 1 {
		t.Fatalf("mismatch: %+v", decoded)
	}
	if string(decoded.encode()) != string(encoded) {
		t.Fatalf("commit encode not stable across round trip")
	}
	if decoded.Title() != "Title line" {
		t.Fatalf("Title() = %q", decoded.Title())
	}
}

func TestCommitReflogDetail(t *testing.T) {
	c := &Commit{}
	if got := c.ReflogDetail(false); got != "initial" {
		t.Fatalf("ReflogDetail(false) = %q, want initial", got)
	}
	c.ParentIDs = []hash.ID{hash.Zero(hash.Sha1)}
	if got := c.ReflogDetail(true); got != "" {
		t.Fatalf("ReflogDetail(true) single parent = %q, want empty", got)
	}
	c.ParentIDs = append(c.ParentIDs, hash.Zero(hash.Sha1))
	if got := c.ReflogDetail(true); got != "merge" {
		t.Fatalf("ReflogDetail(true) merge = %q, want merge", got)
	}
}

func TestCommitCRLFTolerant(t *testing.T) {
	payload := []byte("tree ce013625030ba8dba906f756967f9e9ca394464a\r\nauthor A <a@b.c> 1000 +0000\r\ncommitter A <a@b.c> 1000 +0000\r\n\r\nhi\r\n")
	c, err := decodeCommit(payload)
	if err != nil {
		t.Fatalf("decodeCommit CRLF: %v", err)
	}
	if c.Message != "hi\r\n" {
		t.Fatalf("message = %q", c.Message)
	}
}

func TestTagRoundTrip(t *testing.T) {
	obj := hash.MustFromHex("ce013625030ba8dba906f756967f9e9ca394464a")
	tg := &Tag{
		ObjectID:   obj,
		ObjectKind: CommitObject,
		Name:       "v1.0.0",
		Tagger:     &Signature{Name: "A", Email: "a@example.com", When: time.Unix(1000, 0).UTC()},
		Message:    "release\n",
	}
	encoded := tg.encode()
	decoded, err := decodeTag(encoded)
	if err != nil {
		t.Fatalf("decodeTag: %v", err)
	}
	if decoded.Name != "v1.0.0" || decoded.ObjectKind != CommitObject {
		t.Fatalf("mismatch: %+v", decoded)
	}
}

func TestSummaryFoldsNewlineRunsOnly(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello world", "hello world"},
		{"hello\nworld", "hello world"},
		{"hello\n\nworld", "hello"},
		{"  leading and trailing  \n", "leading and trailing"},
		{"title\nwraps  here\nindeed", "title wraps  here indeed"},
	}
	for _, c := range cases {
		if got := Summary(c.in); got != c.want {
			t.Errorf("Summary(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFileModeParsing(t *testing.T) {
	cases := []struct {
		in   string
		want FileMode
	}{
		{"40000", Dir},
		{"100644", Regular},
		{"100664", Deprecated},
		{"100755", Executable},
		{"120000", Symlink},
		{"160000", Submodule},
		{"0", Empty},
	}
	for _, c := range cases {
		got, err := New(c.in)
		if err != nil {
			t.Errorf("New(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("New(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	for _, bad := range []string{"0x81a4", "", "-42", "09"} {
		if _, err := New(bad); err == nil {
			t.Errorf("New(%q) should have failed", bad)
		}
	}
}
